package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrConfirmTimeout = errors.New("transaction confirmation timeout")
	ErrTxFailed       = errors.New("transaction failed on chain")
)

// SignTx signs a transaction with the wallet's private key
func (w *Wallet) SignTx(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.pub) {
			return &w.priv
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

// SendTx submits a signed transaction and returns its signature
func (w *Wallet) SendTx(ctx context.Context, tx *solana.Transaction) (string, error) {
	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}

	params := []any{
		base64.StdEncoding.EncodeToString(txBytes),
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": "processed",
		},
	}

	var sig string
	if err := w.rpc.Call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", fmt.Errorf("sendTransaction: %w", err)
	}
	return sig, nil
}

// LatestBlockhash fetches the most recent blockhash
func (w *Wallet) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var out struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	params := []any{map[string]any{"commitment": "processed"}}
	if err := w.rpc.Call(ctx, "getLatestBlockhash", params, &out); err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}

	hash, err := solana.HashFromBase58(out.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("invalid blockhash format: %w", err)
	}
	return hash, nil
}

// ConfirmTransaction polls until the signature reaches the wallet's
// commitment level or the timeout passes
func (w *Wallet) ConfirmTransaction(ctx context.Context, signature string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	backoff := 500 * time.Millisecond
	maxBackoff := 4 * time.Second

	for time.Now().Before(deadline) {
		confirmed, err := w.signatureConfirmed(ctx, signature)
		if err != nil {
			return err
		}
		if confirmed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
	return fmt.Errorf("%w: %s after %v", ErrConfirmTimeout, signature, timeout)
}

func (w *Wallet) signatureConfirmed(ctx context.Context, signature string) (bool, error) {
	var out struct {
		Value []*struct {
			Slot               uint64 `json:"slot"`
			Err                any    `json:"err"`
			ConfirmationStatus string `json:"confirmationStatus"`
		} `json:"value"`
	}
	params := []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": true},
	}
	if err := w.rpc.Call(ctx, "getSignatureStatuses", params, &out); err != nil {
		return false, fmt.Errorf("getSignatureStatuses: %w", err)
	}

	if len(out.Value) == 0 || out.Value[0] == nil || out.Value[0].ConfirmationStatus == "" {
		return false, nil // not yet processed
	}
	status := out.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", ErrTxFailed, status.Err)
	}

	switch w.cfg.Commitment {
	case "finalized":
		return status.ConfirmationStatus == "finalized", nil
	case "confirmed":
		return status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized", nil
	default:
		return true, nil
	}
}

// SignAndSend builds a transaction paid by the treasury, signs it, sends it
// and waits for confirmation
func (w *Wallet) SignAndSend(ctx context.Context, instructions []solana.Instruction) (string, error) {
	blockhash, err := w.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(w.pub))
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}
	if err := w.SignTx(tx); err != nil {
		return "", err
	}

	sig, err := w.SendTx(ctx, tx)
	if err != nil {
		return "", err
	}

	if err := w.ConfirmTransaction(ctx, sig, w.cfg.ConfirmTimeout); err != nil {
		w.logger.WithError(err).WithField("signature", sig).Warn("sent transaction did not confirm")
		return sig, err
	}
	return sig, nil
}
