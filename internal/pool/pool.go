// Package pool sequences the pool operations: every call loads the state it needs from the
// key-value store, settles matured unbonding requests, applies its effect and commits atomically.
package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/fluxpool/internal/aggregate"
	"github.com/elys-network/fluxpool/internal/bonding"
	"github.com/elys-network/fluxpool/internal/logger"
	"github.com/elys-network/fluxpool/internal/pricefeed"
	"github.com/elys-network/fluxpool/internal/state"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
	"github.com/elys-network/fluxpool/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	configKey      = "config"
	tokenPrefix    = "token:"
	providerPrefix = "provider:"
	outboxPrefix   = "outbox:"
)

// Journal receives the response of every committed operation.
type Journal interface {
	Record(ctx context.Context, resp types.Response) error
}

// Config holds the dependencies of a Pool.
type Config struct {
	Store         state.KVStore
	Feed          pricefeed.Feed
	Ledger        vault.Ledger
	Journal       Journal // Optional
	AddressPrefix string  // Optional bech32 prefix enforced on every address
}

// Pool is the entry point of every pool operation and query.
type Pool struct {
	logger  zerolog.Logger
	store   state.KVStore
	feed    pricefeed.Feed
	ledger  vault.Ledger
	journal Journal
	prefix  string

	// serializes ledger delivery so a batch is sent once per process
	deliverMu sync.Mutex
}

// NewPool creates a pool over its dependencies.
func NewPool(cfg Config) (*Pool, error) {
	if err := validatePoolConfig(cfg); err != nil {
		return nil, fmt.Errorf("pool configuration validation failed: %w", err)
	}

	p := &Pool{
		logger:  logger.GetForComponent("pool"),
		store:   cfg.Store,
		feed:    cfg.Feed,
		ledger:  cfg.Ledger,
		journal: cfg.Journal,
		prefix:  cfg.AddressPrefix,
	}

	p.logger.Info().
		Bool("journal", cfg.Journal != nil).
		Str("addressPrefix", cfg.AddressPrefix).
		Msg("Pool created")
	return p, nil
}

func validatePoolConfig(cfg Config) error {
	if cfg.Store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if cfg.Feed == nil {
		return fmt.Errorf("price feed cannot be nil")
	}
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	return nil
}

func tokenKey(assetID string) string { return tokenPrefix + assetID }
func providerKey(address string) string { return providerPrefix + address }
func outboxKey(operationID string) string { return outboxPrefix + operationID }

// operation collects the effects of one call. It is rebuilt on every transaction attempt.
type operation struct {
	resp types.Response
}

func (op *operation) attr(key, value string) {
	op.resp.Attributes[key] = value
}

func (op *operation) transfer(recipient, assetID string, amount sdkmath.Int) {
	op.resp.Transfers = append(op.resp.Transfers, types.Transfer{
		Recipient: recipient,
		Coin:      sdktypes.Coin{Denom: assetID, Amount: amount},
	})
}

// execute runs fn in a store transaction. The transfers it emits are written to the outbox in the
// same transaction and handed to the ledger after commit. Failures after commit are logged, never
// returned: a refused batch stays in the outbox until DrainOutbox delivers it.
func (p *Pool) execute(ctx context.Context, action string, now time.Time, fn func(tx state.Tx, op *operation) error) (types.Response, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return types.Response{}, fmt.Errorf("failed to create operation id: %w", err)
	}
	operationID := id.String()
	opLogger := p.logger.With().Str("operation_id", operationID).Str("action", action).Logger()

	var op *operation
	err = p.store.Atomic(ctx, func(tx state.Tx) error {
		op = &operation{resp: types.Response{
			Action:      action,
			OperationID: operationID,
			Timestamp:   now.UTC(),
			Attributes:  make(map[string]string),
		}}
		if err := fn(tx, op); err != nil {
			return err
		}
		if len(op.resp.Transfers) == 0 {
			return nil
		}
		return state.Save(ctx, tx, outboxKey(operationID), pendingOf(op.resp))
	})
	if err != nil {
		opLogger.Warn().Err(err).Msg("Operation rejected")
		return types.Response{}, err
	}
	resp := op.resp

	if len(resp.Transfers) > 0 {
		if err := p.deliver(ctx, pendingOf(resp)); err != nil {
			opLogger.Error().Err(err).Int("transfers", len(resp.Transfers)).Msg("Ledger refused transfers, kept in outbox for retry")
		}
	}
	if p.journal != nil {
		if err := p.journal.Record(ctx, resp); err != nil {
			opLogger.Error().Err(err).Msg("Failed to journal operation")
		}
	}

	opLogger.Info().
		Interface("attributes", resp.Attributes).
		Int("transfers", len(resp.Transfers)).
		Msg("Operation committed")
	return resp, nil
}

func pendingOf(resp types.Response) types.PendingTransfers {
	return types.PendingTransfers{
		OperationID: resp.OperationID,
		Action:      resp.Action,
		CreatedAt:   resp.Timestamp,
		Transfers:   resp.Transfers,
	}
}

// deliver hands a batch to the ledger and removes it from the outbox once accepted.
// A batch no longer in the outbox was delivered already and is skipped.
func (p *Pool) deliver(ctx context.Context, pending types.PendingTransfers) error {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	_, ok, err := p.store.Get(ctx, outboxKey(pending.OperationID))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := p.ledger.EnqueueTransfers(ctx, pending.OperationID, pending.Transfers); err != nil {
		return fmt.Errorf("ledger refused transfers of %s: %w", pending.OperationID, err)
	}
	return p.store.Atomic(ctx, func(tx state.Tx) error {
		return tx.Delete(ctx, outboxKey(pending.OperationID))
	})
}

// DrainOutbox re-sends the batches the ledger has not accepted, oldest operation first, and returns
// how many were delivered. It stops at the first refusal so later batches never overtake it.
func (p *Pool) DrainOutbox(ctx context.Context) (int, error) {
	pending, err := p.QueryOutbox(ctx)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, batch := range pending {
		if err := p.deliver(ctx, batch); err != nil {
			return delivered, err
		}
		delivered++
	}
	if delivered > 0 {
		p.logger.Info().Int("batches", delivered).Msg("Outbox drained")
	}
	return delivered, nil
}

// --- Validation ---

func (p *Pool) validateAddress(addr string) error {
	return utils.ValidateAddress(addr, p.prefix)
}

func validateAmount(amount sdkmath.Int) error {
	if err := utils.ValidateAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	return nil
}

func validateAssetID(assetID string) error {
	if err := sdktypes.ValidateDenom(assetID); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidAsset, assetID, err)
	}
	return nil
}

// --- Loading and saving ---

func loadConfig(ctx context.Context, r state.Reader) (types.PoolConfig, error) {
	cfg, ok, err := state.Load[types.PoolConfig](ctx, r, configKey)
	if err != nil {
		return cfg, err
	}
	if !ok {
		return cfg, ErrNotInstantiated
	}
	return cfg, nil
}

func loadToken(ctx context.Context, r state.Reader, assetID string) (types.AssetAggregate, error) {
	token, ok, err := state.Load[types.AssetAggregate](ctx, r, tokenKey(assetID))
	if err != nil {
		return token, err
	}
	if !ok {
		return token, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	return token, nil
}

// loadTokens returns every registered asset in ascending id order.
func loadTokens(ctx context.Context, r state.Reader) ([]types.AssetAggregate, error) {
	entries, err := state.RangeAll[types.AssetAggregate](ctx, r, tokenPrefix)
	if err != nil {
		return nil, err
	}
	tokens := make([]types.AssetAggregate, 0, len(entries))
	for _, e := range entries {
		tokens = append(tokens, e.Value)
	}
	return tokens, nil
}

func loadProvider(ctx context.Context, r state.Reader, address string) (types.ProviderAccount, bool, error) {
	return state.Load[types.ProviderAccount](ctx, r, providerKey(address))
}

// loadProviders returns every provider in ascending address order.
func loadProviders(ctx context.Context, r state.Reader) ([]types.Provider, error) {
	entries, err := state.RangeAll[types.ProviderAccount](ctx, r, providerPrefix)
	if err != nil {
		return nil, err
	}
	providers := make([]types.Provider, 0, len(entries))
	for _, e := range entries {
		providers = append(providers, types.Provider{
			Address:   state.TrimPrefix(e.Key, providerPrefix),
			Positions: e.Value,
		})
	}
	return providers, nil
}

// saveProvider stores the account, removing the provider once no position is left.
func saveProvider(ctx context.Context, tx state.Tx, address string, account types.ProviderAccount) error {
	if len(account) == 0 {
		return tx.Delete(ctx, providerKey(address))
	}
	return state.Save(ctx, tx, providerKey(address), account)
}

// settleAccount matures the account's requests and records the moves on tracker.
func settleAccount(account types.ProviderAccount, now uint64, tracker *aggregate.Tracker) (types.ProviderAccount, bool, error) {
	settled, matured, err := bonding.SettleAccount(account, now)
	if err != nil {
		return account, false, err
	}
	// position order keeps the tracker deterministic
	for _, pos := range settled {
		if amount, ok := matured[pos.AssetID]; ok {
			tracker.Move(pos.AssetID, aggregate.Requested, aggregate.Unbonded, amount)
		}
	}
	return settled, len(matured) > 0, nil
}

// applyTracker appends the tracked changes to the touched aggregates and saves them.
// It returns the updated aggregates keyed by asset.
func applyTracker(ctx context.Context, tx state.Tx, tracker *aggregate.Tracker, now uint64, cfg types.PoolConfig) (map[string]types.AssetAggregate, error) {
	if tracker.Empty() {
		return map[string]types.AssetAggregate{}, nil
	}

	current := make(map[string]types.AssetAggregate)
	for _, assetID := range tracker.Assets() {
		token, err := loadToken(ctx, tx, assetID)
		if err != nil {
			return nil, err
		}
		current[assetID] = token
	}

	updated, err := tracker.Apply(current, now, cfg.WindowSeconds())
	if err != nil {
		return nil, err
	}

	assets := make([]string, 0, len(updated))
	for assetID := range updated {
		assets = append(assets, assetID)
	}
	sort.Strings(assets)
	for _, assetID := range assets {
		if err := state.Save(ctx, tx, tokenKey(assetID), updated[assetID]); err != nil {
			return nil, err
		}
	}
	return updated, nil
}
