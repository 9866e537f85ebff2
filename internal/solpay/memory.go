package solpay

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRelayCache is a process-local RelayCache for tests and single-node
// development without Redis
type MemoryRelayCache struct {
	mu  sync.RWMutex
	txs map[string]RelayedTx
}

func NewMemoryRelayCache() *MemoryRelayCache {
	return &MemoryRelayCache{txs: make(map[string]RelayedTx)}
}

func (c *MemoryRelayCache) GetTransaction(_ context.Context, signature string) (*RelayedTx, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.txs[signature]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, signature)
	}
	return &tx, nil
}

func (c *MemoryRelayCache) PutTransaction(_ context.Context, tx *RelayedTx) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[tx.Signature] = *tx
	return nil
}
