/*

This file records every successful pool operation as a receipt, so that transfers and attributes
can be audited after the fact. Receipts are written after the state transaction has committed.

*/

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/fluxpool/internal/types"
	"github.com/rs/zerolog/log"
)

var ErrReceiptNotFound = errors.New("operation receipt not found")

const (
	defaultReceiptLimit = 10
	maxReceiptLimit     = 100
)

// OperationReceipt is the journaled form of a types.Response.
type OperationReceipt struct {
	ReceiptID   int64             `json:"receipt_id"`
	OperationID string            `json:"operation_id"`
	Action      string            `json:"action"`
	Timestamp   time.Time         `json:"timestamp"`
	RecordedAt  time.Time         `json:"recorded_at"`
	Transfers   []types.Transfer  `json:"transfers"`
	Attributes  map[string]string `json:"attributes"`
}

// JournalSummary counts receipts per action.
type JournalSummary struct {
	TotalOperations int            `json:"total_operations"`
	ByAction        map[string]int `json:"by_action"`
	LastOperation   *time.Time     `json:"last_operation,omitempty"`
}

func receiptLimit(limit int) int {
	if limit <= 0 || limit > maxReceiptLimit {
		return defaultReceiptLimit
	}
	return limit
}

// PostgresJournal stores receipts in the operation_receipts table.
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal wraps an open connection pool. EnsureSchema must have created the table.
func NewPostgresJournal(db *sql.DB) (*PostgresJournal, error) {
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &PostgresJournal{db: db}, nil
}

// Record saves a receipt for resp.
func (j *PostgresJournal) Record(ctx context.Context, resp types.Response) error {
	transfersJSON, err := json.Marshal(resp.Transfers)
	if err != nil {
		return fmt.Errorf("failed to marshal transfers: %w", err)
	}
	attributesJSON, err := json.Marshal(resp.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		INSERT INTO operation_receipts (operation_id, action, operation_timestamp, transfers, attributes)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)
		RETURNING receipt_id;
	`
	var receiptID int64
	err = j.db.QueryRowContext(ctx, query,
		resp.OperationID, resp.Action, resp.Timestamp, string(transfersJSON), string(attributesJSON),
	).Scan(&receiptID)
	if err != nil {
		return fmt.Errorf("failed to save operation receipt: %w", err)
	}

	log.Debug().
		Int64("receipt_id", receiptID).
		Str("operation_id", resp.OperationID).
		Str("action", resp.Action).
		Msg("Operation receipt saved to database")
	return nil
}

func scanReceipt(scan func(dest ...any) error) (OperationReceipt, error) {
	var (
		r                             OperationReceipt
		transfersJSON, attributesJSON []byte
	)
	if err := scan(&r.ReceiptID, &r.OperationID, &r.Action, &r.Timestamp, &r.RecordedAt, &transfersJSON, &attributesJSON); err != nil {
		return r, err
	}
	if len(transfersJSON) > 0 {
		if err := json.Unmarshal(transfersJSON, &r.Transfers); err != nil {
			return r, fmt.Errorf("failed to unmarshal transfers: %w", err)
		}
	}
	if len(attributesJSON) > 0 {
		if err := json.Unmarshal(attributesJSON, &r.Attributes); err != nil {
			return r, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	return r, nil
}

const receiptColumns = `receipt_id, operation_id, action, operation_timestamp, recorded_at, transfers, attributes`

// Recent returns the latest receipts, newest first.
func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]OperationReceipt, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+receiptColumns+` FROM operation_receipts ORDER BY receipt_id DESC LIMIT $1`, receiptLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent operations: %w", err)
	}
	defer rows.Close()

	var receipts []OperationReceipt
	for rows.Next() {
		r, err := scanReceipt(rows.Scan)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan operation receipt row")
			continue
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// ByOperationID returns the receipt of a single operation.
func (j *PostgresJournal) ByOperationID(ctx context.Context, operationID string) (*OperationReceipt, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM operation_receipts WHERE operation_id = $1`, operationID)
	r, err := scanReceipt(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, operationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %s: %w", operationID, err)
	}
	return &r, nil
}

// Summary counts receipts per action.
func (j *PostgresJournal) Summary(ctx context.Context) (*JournalSummary, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT action, COUNT(*), MAX(operation_timestamp) FROM operation_receipts GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize operations: %w", err)
	}
	defer rows.Close()

	summary := &JournalSummary{ByAction: make(map[string]int)}
	for rows.Next() {
		var (
			action string
			count  int
			last   time.Time
		)
		if err := rows.Scan(&action, &count, &last); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary.ByAction[action] = count
		summary.TotalOperations += count
		if summary.LastOperation == nil || last.After(*summary.LastOperation) {
			l := last
			summary.LastOperation = &l
		}
	}
	return summary, rows.Err()
}

// MemoryJournal keeps receipts in memory.
type MemoryJournal struct {
	mu       sync.RWMutex
	receipts []OperationReceipt
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Record(ctx context.Context, resp types.Response) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.receipts = append(j.receipts, OperationReceipt{
		ReceiptID:   int64(len(j.receipts) + 1),
		OperationID: resp.OperationID,
		Action:      resp.Action,
		Timestamp:   resp.Timestamp,
		RecordedAt:  time.Now().UTC(),
		Transfers:   append([]types.Transfer(nil), resp.Transfers...),
		Attributes:  resp.Attributes,
	})
	return nil
}

func (j *MemoryJournal) Recent(ctx context.Context, limit int) ([]OperationReceipt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	limit = receiptLimit(limit)
	out := make([]OperationReceipt, 0, limit)
	for i := len(j.receipts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.receipts[i])
	}
	return out, nil
}

func (j *MemoryJournal) ByOperationID(ctx context.Context, operationID string) (*OperationReceipt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, r := range j.receipts {
		if r.OperationID == operationID {
			r := r
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, operationID)
}

func (j *MemoryJournal) Summary(ctx context.Context) (*JournalSummary, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	summary := &JournalSummary{ByAction: make(map[string]int), TotalOperations: len(j.receipts)}
	for _, r := range j.receipts {
		summary.ByAction[r.Action]++
		if summary.LastOperation == nil || r.Timestamp.After(*summary.LastOperation) {
			ts := r.Timestamp
			summary.LastOperation = &ts
		}
	}
	return summary, nil
}
