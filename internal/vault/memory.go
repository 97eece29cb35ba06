package vault

import (
	"context"
	"fmt"
	"sync"

	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/fluxpool/internal/types"
)

// MemoryLedger settles transfers immediately into in-memory balances.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]sdktypes.Coins
	settled  []types.Transfer
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]sdktypes.Coins)}
}

// Fund credits coins to an address outside of any pool operation.
func (l *MemoryLedger) Fund(address string, coins ...sdktypes.Coin) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[address] = l.balances[address].Add(coins...)
}

func (l *MemoryLedger) EnqueueTransfers(ctx context.Context, operationID string, transfers []types.Transfer) error {
	for _, tr := range transfers {
		if err := tr.Coin.Validate(); err != nil {
			return fmt.Errorf("operation %s: invalid transfer to %s: %w", operationID, tr.Recipient, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tr := range transfers {
		l.balances[tr.Recipient] = l.balances[tr.Recipient].Add(tr.Coin)
		l.settled = append(l.settled, tr)
	}
	return nil
}

func (l *MemoryLedger) Balances(ctx context.Context, address string) (sdktypes.Coins, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[address], nil
}

// Settled returns every transfer received so far, in order.
func (l *MemoryLedger) Settled() []types.Transfer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]types.Transfer(nil), l.settled...)
}

func (l *MemoryLedger) Close() error {
	return nil
}
