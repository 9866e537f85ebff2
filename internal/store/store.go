package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("key not found")

// Region partitions the keyspace. Values are persisted as the first key byte
// so they must never be renumbered.
type Region byte

const (
	RegionPools           Region = 0x01
	RegionPairIndex       Region = 0x02
	RegionTokens          Region = 0x03
	RegionSymbolIndex     Region = 0x04
	RegionLPBalances      Region = 0x05
	RegionLPSupply        Region = 0x06
	RegionTransfers       Region = 0x07
	RegionProofIndex      Region = 0x08
	RegionClaims          Region = 0x09
	RegionUserClaims      Region = 0x0a
	RegionRequests        Region = 0x0b
	RegionUserRequests    Region = 0x0c
	RegionSequences       Region = 0x0d
	RegionRequestArchive  Region = 0x20
	RegionTransferArchive Region = 0x21
	RegionClaimArchive    Region = 0x22
)

var regionNames = map[Region]string{
	RegionPools:           "pools",
	RegionPairIndex:       "pair_index",
	RegionTokens:          "tokens",
	RegionSymbolIndex:     "symbol_index",
	RegionLPBalances:      "lp_balances",
	RegionLPSupply:        "lp_supply",
	RegionTransfers:       "transfers",
	RegionProofIndex:      "proof_index",
	RegionClaims:          "claims",
	RegionUserClaims:      "user_claims",
	RegionRequests:        "requests",
	RegionUserRequests:    "user_requests",
	RegionSequences:       "sequences",
	RegionRequestArchive:  "request_archive",
	RegionTransferArchive: "transfer_archive",
	RegionClaimArchive:    "claim_archive",
}

func (r Region) String() string {
	if n, ok := regionNames[r]; ok {
		return n
	}
	return fmt.Sprintf("region(%d)", byte(r))
}

// KV is an ordered key-value store partitioned by region
type KV interface {
	Get(r Region, key []byte) ([]byte, error)
	Set(r Region, key, value []byte) error
	// SetIfAbsent writes only when key is missing and reports whether it wrote
	SetIfAbsent(r Region, key, value []byte) (bool, error)
	Delete(r Region, key []byte) error
	// Iterate visits keys with the given prefix in ascending order. Returning
	// ErrStop from fn ends iteration without error.
	Iterate(r Region, prefix []byte, fn func(key, value []byte) error) error
	// Batch applies all writes made by fn atomically
	Batch(fn func(b Writer) error) error
	// NextID returns the next value of a named monotonic sequence, starting at 1
	NextID(seq string) (uint64, error)
	Close() error
}

// Writer is the write side of a batch
type Writer interface {
	Set(r Region, key, value []byte) error
	Delete(r Region, key []byte) error
}

// ErrStop ends an Iterate early
var ErrStop = errors.New("stop iteration")

// U32 encodes big-endian so keys sort numerically
func U32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func U64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func ParseU32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("expected 4 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func ParseU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// Join concatenates key parts
func Join(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// UserPrefix is the index prefix for one user's records. The length comes
// first so no user's prefix is a prefix of another's.
func UserPrefix(user string) []byte {
	return Join(U32(uint32(len(user))), []byte(user))
}

// GetJSON loads and decodes a value, returning ErrNotFound when missing
func GetJSON(kv KV, r Region, key []byte, v any) error {
	b, err := kv.Get(r, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", r, err)
	}
	return nil
}

func SetJSON(kv KV, r Region, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r, err)
	}
	return kv.Set(r, key, b)
}

// PutJSON is SetJSON inside a batch
func PutJSON(w Writer, r Region, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r, err)
	}
	return w.Set(r, key, b)
}
