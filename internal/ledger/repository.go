package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-wms/atlas-wms/internal/sequence"
)

// Repository persists stock records and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
// Everything here runs on one pgx transaction so the FOR UPDATE lock taken
// by GetStockForUpdate covers the validate-allocate-write span.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, identity StockIdentity) (StockRecord, error)
	UpsertStock(ctx context.Context, record *StockRecord) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	NextSequence(ctx context.Context, seqType, dateKey string) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListMovements returns movement history, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, document_number, movement_type, product_id, variant_id, batch_key, location, delta, quantity_after, reason, actor_id, ref_id, posted_at
FROM stock_movements
WHERE product_id = $1
  AND ($2::bigint IS NULL OR variant_id = $2)
  AND ($3::timestamptz IS NULL OR posted_at >= $3)
  AND ($4::timestamptz IS NULL OR posted_at <= $4)
ORDER BY posted_at DESC, id DESC
LIMIT $5`, filter.ProductID, filter.VariantID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var actorID *int64
		var refID *string
		if err := rows.Scan(&m.ID, &m.DocumentNumber, &m.Type, &m.Identity.ProductID, &m.Identity.VariantID, &m.Identity.BatchKey, &m.Identity.Location, &m.Delta, &m.QuantityAfter, &m.Reason, &actorID, &refID, &m.PostedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			m.ActorID = *actorID
		}
		if refID != nil {
			m.RefID = *refID
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListAtOrBelow returns stock records whose quantity is at or below the
// given level. Used by the low-stock scan job.
func (r *Repository) ListAtOrBelow(ctx context.Context, level int64, limit int) ([]StockRecord, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, variant_id, batch_key, location, quantity, reserved_quantity, created_at, updated_at
FROM stock_records
WHERE quantity <= $1
ORDER BY quantity ASC, id ASC
LIMIT $2`, level, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []StockRecord{}
	for rows.Next() {
		var rec StockRecord
		if err := rows.Scan(&rec.ID, &rec.Identity.ProductID, &rec.Identity.VariantID, &rec.Identity.BatchKey, &rec.Identity.Location, &rec.Quantity, &rec.ReservedQuantity, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, identity StockIdentity) (StockRecord, error) {
	var rec StockRecord
	err := r.tx.QueryRow(ctx, `SELECT id, product_id, variant_id, batch_key, location, quantity, reserved_quantity, created_at, updated_at
FROM stock_records
WHERE product_id = $1
  AND variant_id IS NOT DISTINCT FROM $2
  AND batch_key IS NOT DISTINCT FROM $3
  AND location IS NOT DISTINCT FROM $4
FOR UPDATE`, identity.ProductID, identity.VariantID, identity.BatchKey, identity.Location).
		Scan(&rec.ID, &rec.Identity.ProductID, &rec.Identity.VariantID, &rec.Identity.BatchKey, &rec.Identity.Location, &rec.Quantity, &rec.ReservedQuantity, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{Identity: identity}, ErrStockNotFound
		}
		return StockRecord{}, err
	}
	return rec, nil
}

// UpsertStock inserts the record on first movement, otherwise updates the
// locked row by id. Two first-inserts racing on one identity trip the unique
// index; the service treats that as a retryable conflict.
func (r *txRepository) UpsertStock(ctx context.Context, record *StockRecord) error {
	if record.ID == 0 {
		return r.tx.QueryRow(ctx, `INSERT INTO stock_records (product_id, variant_id, batch_key, location, quantity, reserved_quantity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id`,
			record.Identity.ProductID, record.Identity.VariantID, record.Identity.BatchKey, record.Identity.Location,
			record.Quantity, record.ReservedQuantity).Scan(&record.ID)
	}
	_, err := r.tx.Exec(ctx, `UPDATE stock_records SET quantity = $1, reserved_quantity = $2, updated_at = NOW() WHERE id = $3`,
		record.Quantity, record.ReservedQuantity, record.ID)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (document_number, movement_type, product_id, variant_id, batch_key, location, delta, quantity_after, reason, actor_id, ref_id, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		m.DocumentNumber, string(m.Type), m.Identity.ProductID, m.Identity.VariantID, m.Identity.BatchKey, m.Identity.Location,
		m.Delta, m.QuantityAfter, m.Reason, nullInt(m.ActorID), nullStr(m.RefID), m.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) NextSequence(ctx context.Context, seqType, dateKey string) (int64, error) {
	return sequence.Next(ctx, r.tx, seqType, dateKey)
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
