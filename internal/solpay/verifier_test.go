package solpay

import (
	"context"
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/models"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usdc = &models.Token{
	ID:     5,
	Symbol: "USDC",
	Kind:   models.KindCrossChain,
	CrossChain: &models.CrossChainToken{
		Chain:    models.ChainSolana,
		Mint:     "EPjFWdd5AufqSSqeM2qN1xzybapC8G7wEGGkZwyTDt1v",
		Decimals: 6,
	},
}

type fixture struct {
	verifier *Verifier
	cache    *MemoryRelayCache
	payer    solana.PrivateKey
	treasury solana.PublicKey
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	treasury, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	cache := NewMemoryRelayCache()
	v, err := NewVerifier(VerifierConfig{Cache: cache, Treasury: treasury.PublicKey().String()})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }
	return &fixture{verifier: v, cache: cache, payer: payer, treasury: treasury.PublicKey(), now: now}
}

// pay relays a confirmed transfer and returns a signed proof for it
func (f *fixture) pay(t *testing.T, txSig string, amount string, args map[string]string) *models.SolanaProof {
	require.NoError(t, f.cache.PutTransaction(context.Background(), &RelayedTx{
		Signature: txSig,
		Status:    StatusConfirmed,
		Sender:    f.payer.PublicKey().String(),
		Receiver:  f.treasury.String(),
		Mint:      usdc.CrossChain.Mint,
		Amount:    amount,
	}))

	proof := &models.SolanaProof{
		TxSignature: txSig,
		Sender:      f.payer.PublicKey().String(),
		Timestamp:   f.now.Add(-time.Minute).UnixMilli(),
	}
	msg, err := CanonicalMessage(SignedArgs(args, proof), proof.Timestamp)
	require.NoError(t, err)
	env, err := OffchainMessage(msg)
	require.NoError(t, err)
	sig, err := f.payer.Sign(env)
	require.NoError(t, err)
	proof.Signature = sig.String()
	return proof
}

var swapArgs = map[string]string{"pay_token": "USDC", "pay_amount": "1000000", "receive_token": "ICP"}

func TestVerifier_Accepts(t *testing.T) {
	f := newFixture(t)
	proof := f.pay(t, "sig-1", "1000000", swapArgs)

	err := f.verifier.Verify(context.Background(), usdc, big.NewInt(1_000_000), proof, swapArgs)
	assert.NoError(t, err)
}

func TestVerifier_AmountOffByOne(t *testing.T) {
	f := newFixture(t)
	proof := f.pay(t, "sig-1", "999999", swapArgs)

	err := f.verifier.Verify(context.Background(), usdc, big.NewInt(1_000_000), proof, swapArgs)
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestVerifier_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, p *models.SolanaProof, args map[string]string) map[string]string
		want   error
	}{
		{
			name: "tampered args",
			mutate: func(_ *fixture, _ *models.SolanaProof, args map[string]string) map[string]string {
				out := map[string]string{}
				for k, v := range args {
					out[k] = v
				}
				out["receive_token"] = "ckBTC"
				return out
			},
			want: ErrBadSignature,
		},
		{
			name: "stale timestamp",
			mutate: func(f *fixture, p *models.SolanaProof, args map[string]string) map[string]string {
				f.verifier.now = func() time.Time { return f.now.Add(10 * time.Minute) }
				return args
			},
			want: ErrStaleMessage,
		},
		{
			name: "future timestamp",
			mutate: func(f *fixture, p *models.SolanaProof, args map[string]string) map[string]string {
				f.verifier.now = func() time.Time { return f.now.Add(-10 * time.Minute) }
				return args
			},
			want: ErrStaleMessage,
		},
		{
			name: "garbage sender",
			mutate: func(_ *fixture, p *models.SolanaProof, args map[string]string) map[string]string {
				p.Sender = "not-a-key"
				return args
			},
			want: ErrInvalidSender,
		},
		{
			name: "unknown tx",
			mutate: func(_ *fixture, p *models.SolanaProof, args map[string]string) map[string]string {
				p.TxSignature = "sig-unknown"
				return args
			},
			// the tx signature is part of the signed args
			want: ErrBadSignature,
		},
		{
			name: "unconfirmed",
			mutate: func(f *fixture, p *models.SolanaProof, args map[string]string) map[string]string {
				tx, _ := f.cache.GetTransaction(context.Background(), p.TxSignature)
				tx.Status = StatusProcessed
				_ = f.cache.PutTransaction(context.Background(), tx)
				return args
			},
			want: ErrTxNotConfirmed,
		},
		{
			name: "wrong recipient",
			mutate: func(f *fixture, p *models.SolanaProof, args map[string]string) map[string]string {
				tx, _ := f.cache.GetTransaction(context.Background(), p.TxSignature)
				tx.Receiver = f.payer.PublicKey().String()
				_ = f.cache.PutTransaction(context.Background(), tx)
				return args
			},
			want: ErrRecipientMismatch,
		},
		{
			name: "wrong sender",
			mutate: func(f *fixture, p *models.SolanaProof, args map[string]string) map[string]string {
				tx, _ := f.cache.GetTransaction(context.Background(), p.TxSignature)
				tx.Sender = f.treasury.String()
				_ = f.cache.PutTransaction(context.Background(), tx)
				return args
			},
			want: ErrSenderMismatch,
		},
		{
			name: "wrong mint",
			mutate: func(f *fixture, p *models.SolanaProof, args map[string]string) map[string]string {
				tx, _ := f.cache.GetTransaction(context.Background(), p.TxSignature)
				tx.Mint = NativeMint
				_ = f.cache.PutTransaction(context.Background(), tx)
				return args
			},
			want: ErrMintMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			proof := f.pay(t, "sig-1", "1000000", swapArgs)
			args := tt.mutate(f, proof, swapArgs)

			err := f.verifier.Verify(context.Background(), usdc, big.NewInt(1_000_000), proof, args)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifier_TxMissingFromCache(t *testing.T) {
	f := newFixture(t)
	proof := f.pay(t, "sig-1", "1000000", swapArgs)

	// sign for a signature the relay has not seen yet
	proof.TxSignature = "sig-2"
	msg, err := CanonicalMessage(SignedArgs(swapArgs, proof), proof.Timestamp)
	require.NoError(t, err)
	env, err := OffchainMessage(msg)
	require.NoError(t, err)
	sig, err := f.payer.Sign(env)
	require.NoError(t, err)
	proof.Signature = sig.String()

	err = f.verifier.Verify(context.Background(), usdc, big.NewInt(1_000_000), proof, swapArgs)
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestCanonicalMessage_SortedWithTimestamp(t *testing.T) {
	msg, err := CanonicalMessage(map[string]string{"b": "2", "a": "1", "timestamp": "spoof"}, 1700)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"2","timestamp":"1700"}`, string(msg))
}

func TestOffchainMessage_Envelope(t *testing.T) {
	env, err := OffchainMessage([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, signingDomain, string(env[:16]))
	assert.Equal(t, byte(0), env[16])
	assert.Equal(t, formatRestrictedASCII, env[17])
	assert.Equal(t, uint16(5), binary.LittleEndian.Uint16(env[18:20]))
	assert.Equal(t, "hello", string(env[20:]))

	env, err = OffchainMessage([]byte("héllo"))
	require.NoError(t, err)
	assert.Equal(t, formatLimitedUTF8, env[17])

	_, err = OffchainMessage(nil)
	assert.Error(t, err)
	_, err = OffchainMessage([]byte{0xff, 0xfe})
	assert.Error(t, err)
}
