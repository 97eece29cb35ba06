package vault

import (
	"context"

	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/fluxpool/internal/types"
)

// Ledger executes the token transfers the pool emits.
// This interface abstracts away where transfers actually settle (in memory, a message queue, a chain),
// allowing the pool to stay ignorant of custody.
type Ledger interface {
	// EnqueueTransfers hands over the transfers of one committed operation. An error leaves the batch
	// in the pool's outbox to be offered again, so a batch may arrive more than once; operationID
	// identifies it. The pool never rolls back on delivery failures.
	EnqueueTransfers(ctx context.Context, operationID string, transfers []types.Transfer) error

	// Close cleans up any resources used by the ledger.
	Close() error
}

// BalanceReader is implemented by ledgers that can report what an address has received.
type BalanceReader interface {
	Balances(ctx context.Context, address string) (sdktypes.Coins, error)
}
