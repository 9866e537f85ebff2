package registry

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/gagliardetto/solana-go"
)

// TokenConfig represents a token entry in the JSON seed file
type TokenConfig struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Kind         string `json:"kind"` // native, ledger, cross_chain
	LedgerID     string `json:"ledger_id,omitempty"`
	Chain        string `json:"chain,omitempty"`
	Mint         string `json:"mint,omitempty"`
	Decimals     uint8  `json:"decimals"`
	Fee          string `json:"fee"`
	TransferFrom bool   `json:"transfer_from,omitempty"`
	Listed       *bool  `json:"listed,omitempty"`
}

// LoadTokensFromJSON reads and parses token seed entries
func LoadTokensFromJSON(path string) ([]*models.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var configs []TokenConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	tokens := make([]*models.Token, 0, len(configs))
	for i, cfg := range configs {
		t, err := parseTokenConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("token %d (%s): %w", i, cfg.Symbol, err)
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// Seed registers every token from the file that is not already known.
// It returns how many were added.
func (r *Registry) Seed(path string) (int, error) {
	tokens, err := LoadTokensFromJSON(path)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, t := range tokens {
		if _, err := r.BySymbol(t.Symbol); err == nil {
			continue
		}
		if _, err := r.Add(t); err != nil {
			return added, err
		}
		added++
	}
	r.logger.WithField("added", added).WithField("path", path).Info("token seed loaded")
	return added, nil
}

func parseTokenConfig(cfg TokenConfig) (*models.Token, error) {
	fee := new(big.Int)
	if cfg.Fee != "" {
		if _, ok := fee.SetString(cfg.Fee, 10); !ok {
			return nil, fmt.Errorf("invalid fee %q", cfg.Fee)
		}
	}

	t := &models.Token{
		Symbol: cfg.Symbol,
		Name:   cfg.Name,
		Kind:   models.TokenKind(cfg.Kind),
		Listed: cfg.Listed == nil || *cfg.Listed,
	}

	switch t.Kind {
	case models.KindNative:
		t.Native = &models.NativeToken{LedgerID: cfg.LedgerID, Decimals: cfg.Decimals, Fee: fee}
	case models.KindLedger:
		t.Ledger = &models.LedgerToken{LedgerID: cfg.LedgerID, Decimals: cfg.Decimals, Fee: fee, TransferFrom: cfg.TransferFrom}
	case models.KindCrossChain:
		if _, err := solana.PublicKeyFromBase58(cfg.Mint); err != nil {
			return nil, fmt.Errorf("invalid mint: %w", err)
		}
		chain := cfg.Chain
		if chain == "" {
			chain = models.ChainSolana
		}
		t.CrossChain = &models.CrossChainToken{Chain: chain, Mint: cfg.Mint, Decimals: cfg.Decimals, Fee: fee}
	default:
		return nil, fmt.Errorf("kind %q cannot be seeded", cfg.Kind)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
