package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// MintLedger pays one Solana mint out of the treasury wallet. Native SOL
// moves with a system transfer; SPL mints go treasury ATA to recipient ATA,
// creating the recipient account when needed.
type MintLedger struct {
	wallet   *Wallet
	mint     solana.PublicKey
	decimals uint8
	logger   *logrus.Logger
}

// NewMintLedger builds the ledger for a cross-chain token
func NewMintLedger(w *Wallet, t *models.Token) (*MintLedger, error) {
	if t.Kind != models.KindCrossChain || t.CrossChain == nil {
		return nil, fmt.Errorf("%w: %s is not a solana token", ledger.ErrUnsupported, t.Symbol)
	}
	mint, err := solana.PublicKeyFromBase58(t.CrossChain.Mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint for %s: %w", t.Symbol, err)
	}
	return &MintLedger{wallet: w, mint: mint, decimals: t.CrossChain.Decimals, logger: w.logger}, nil
}

// Factory adapts the wallet to ledger.RouterConfig.Solana
func (w *Wallet) Factory() ledger.SolanaFactory {
	return func(t *models.Token) (ledger.Ledger, error) {
		return NewMintLedger(w, t)
	}
}

func (l *MintLedger) Instructions(to solana.PublicKey, amount uint64, note string) ([]solana.Instruction, error) {
	payer := l.wallet.PublicKey()
	var ixs []solana.Instruction

	if l.mint.Equals(solana.SolMint) {
		ixs = append(ixs, transferSOL(payer, to, amount))
	} else {
		source, _, err := solana.FindAssociatedTokenAddress(payer, l.mint)
		if err != nil {
			return nil, err
		}
		create, dest, err := createATAIdempotent(payer, to, l.mint)
		if err != nil {
			return nil, err
		}
		ixs = append(ixs, create, transferChecked(source, l.mint, dest, payer, amount, l.decimals))
	}

	if note != "" {
		ixs = append(ixs, memo(payer, note))
	}
	return ixs, nil
}

func (l *MintLedger) Transfer(ctx context.Context, to string, amount *big.Int, note string) (models.ChainProof, error) {
	if amount == nil || amount.Sign() <= 0 || !amount.IsUint64() {
		return models.ChainProof{}, fmt.Errorf("%w: amount %v out of range", ledger.ErrTransferFailed, amount)
	}
	recipient, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return models.ChainProof{}, fmt.Errorf("%w: invalid recipient %q: %v", ledger.ErrTransferFailed, to, err)
	}

	ixs, err := l.Instructions(recipient, amount.Uint64(), note)
	if err != nil {
		return models.ChainProof{}, fmt.Errorf("%w: %v", ledger.ErrTransferFailed, err)
	}

	sig, err := l.wallet.SignAndSend(ctx, ixs)
	if err != nil {
		// a signature that never confirmed may still land; keep it in the log
		if errors.Is(err, ErrConfirmTimeout) {
			l.logger.WithFields(logrus.Fields{
				"signature": sig,
				"mint":      l.mint.String(),
				"to":        to,
				"amount":    amount.String(),
			}).Error("payout unconfirmed")
		}
		return models.ChainProof{}, fmt.Errorf("%w: %v", ledger.ErrTransferFailed, err)
	}

	l.logger.WithFields(logrus.Fields{
		"signature": sig,
		"mint":      l.mint.String(),
		"to":        to,
		"amount":    amount.String(),
	}).Info("solana payout confirmed")
	return models.SignatureProof(sig), nil
}

// TransferFrom has no Solana equivalent; payments arrive as relayed txs
func (l *MintLedger) TransferFrom(context.Context, string, string, *big.Int) (models.ChainProof, error) {
	return models.ChainProof{}, fmt.Errorf("%w: transfer_from on solana", ledger.ErrUnsupported)
}

func (l *MintLedger) Block(context.Context, uint64) (*ledger.Block, error) {
	return nil, fmt.Errorf("%w: block lookup on solana", ledger.ErrUnsupported)
}
