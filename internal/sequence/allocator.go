// Package sequence allocates per-(type, date) document sequence numbers.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atlas-wms/atlas-wms/internal/docnum"
)

// Querier is satisfied by *pgxpool.Pool, pgx.Conn and pgx.Tx, so allocation
// can run on the pool or inside a caller's transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrInvalidKey indicates a malformed sequence type or date key.
var ErrInvalidKey = errors.New("sequence: invalid sequence type or date key")

// Next atomically allocates the next value for (seqType, dateKey). The first
// allocation creates the counter row at 1; later ones increment it. The
// upsert is a single statement, so the store's row lock serialises writers
// and the returned values for one key are gapless.
func Next(ctx context.Context, q Querier, seqType, dateKey string) (int64, error) {
	if seqType == "" || !docnum.ValidDateKey(dateKey) {
		return 0, ErrInvalidKey
	}
	var value int64
	err := q.QueryRow(ctx, `
		INSERT INTO document_sequences (seq_type, date_key, current_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (seq_type, date_key)
		DO UPDATE SET current_value = document_sequences.current_value + 1
		RETURNING current_value
	`, seqType, dateKey).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("sequence: allocate %s/%s: %w", seqType, dateKey, err)
	}
	return value, nil
}

// Allocator hands out document numbers keyed by the current calendar day.
type Allocator struct {
	db  Querier
	now func() time.Time
}

// NewAllocator constructs an Allocator. now may be nil for wall-clock time.
func NewAllocator(db Querier, now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{db: db, now: now}
}

// Allocate returns the next value for seqType scoped to today (UTC).
func (a *Allocator) Allocate(ctx context.Context, seqType string) (int64, string, error) {
	dateKey := a.now().UTC().Format("20060102")
	value, err := Next(ctx, a.db, seqType, dateKey)
	if err != nil {
		return 0, "", err
	}
	return value, dateKey, nil
}

// AllocateDocumentNumber allocates the next value for seqType and renders it
// as a document number with the given prefix.
func (a *Allocator) AllocateDocumentNumber(ctx context.Context, seqType, prefix string) (string, error) {
	if !docnum.ValidPrefix(prefix) {
		return "", fmt.Errorf("sequence: invalid prefix %q", prefix)
	}
	value, dateKey, err := a.Allocate(ctx, seqType)
	if err != nil {
		return "", err
	}
	return docnum.Format(prefix, dateKey, value), nil
}
