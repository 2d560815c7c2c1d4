package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository abstracts catalog persistence for the gate and guard.
type Repository interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetVariant(ctx context.Context, id int64) (Variant, error)
	ProductDependentCounts(ctx context.Context, productID int64) (map[string]int64, error)
	VariantDependentCounts(ctx context.Context, variantID int64) (map[string]int64, error)
	DeleteProduct(ctx context.Context, id int64) error
	DeleteVariant(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT id, code, name, status, created_at, updated_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) GetVariant(ctx context.Context, id int64) (Variant, error) {
	var v Variant
	err := r.db.QueryRow(ctx, `SELECT id, product_id, code, name, status, created_at, updated_at FROM product_variants WHERE id = $1`, id).
		Scan(&v.ID, &v.ProductID, &v.Code, &v.Name, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variant{}, ErrNotFound
		}
		return Variant{}, err
	}
	return v, nil
}

// movementCategory maps movement types to guard category names.
func movementCategory(movementType string) string {
	switch movementType {
	case "IN":
		return "inbound_movements"
	case "OUT":
		return "outbound_movements"
	default:
		return "adjustment_movements"
	}
}

func (r *repository) ProductDependentCounts(ctx context.Context, productID int64) (map[string]int64, error) {
	counts := make(map[string]int64)

	scalars := []struct {
		category string
		query    string
	}{
		{"stock_records", `SELECT COUNT(*) FROM stock_records WHERE product_id = $1`},
		{"sales_order_lines", `SELECT COUNT(*) FROM sales_order_lines WHERE product_id = $1`},
		{"batch_specs", `SELECT COUNT(*) FROM batch_specs WHERE product_id = $1`},
		{"factory_shipment_lines", `SELECT COUNT(*) FROM factory_shipment_lines WHERE product_id = $1`},
		{"return_order_lines", `SELECT COUNT(*) FROM return_order_lines WHERE product_id = $1`},
	}
	for _, s := range scalars {
		var n int64
		if err := r.db.QueryRow(ctx, s.query, productID).Scan(&n); err != nil {
			return nil, err
		}
		counts[s.category] = n
	}

	rows, err := r.db.Query(ctx, `SELECT movement_type, COUNT(*) FROM stock_movements WHERE product_id = $1 GROUP BY movement_type`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var movementType string
		var n int64
		if err := rows.Scan(&movementType, &n); err != nil {
			return nil, err
		}
		counts[movementCategory(movementType)] = n
	}
	return counts, rows.Err()
}

func (r *repository) VariantDependentCounts(ctx context.Context, variantID int64) (map[string]int64, error) {
	counts := make(map[string]int64)

	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stock_records WHERE variant_id = $1 AND (quantity > 0 OR reserved_quantity > 0)`, variantID).Scan(&n)
	if err != nil {
		return nil, err
	}
	counts["stock_records"] = n

	rows, err := r.db.Query(ctx, `SELECT movement_type, COUNT(*) FROM stock_movements WHERE variant_id = $1 GROUP BY movement_type`, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var movementType string
		if err := rows.Scan(&movementType, &n); err != nil {
			return nil, err
		}
		counts[movementCategory(movementType)] = n
	}
	return counts, rows.Err()
}

// DeleteProduct removes the row only when no dependent record exists. The
// absence predicates run inside the DELETE itself, so a dependent row
// inserted between guard check and delete still blocks it.
func (r *repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM products p WHERE p.id = $1
		AND NOT EXISTS (SELECT 1 FROM stock_records s WHERE s.product_id = p.id)
		AND NOT EXISTS (SELECT 1 FROM stock_movements m WHERE m.product_id = p.id)
		AND NOT EXISTS (SELECT 1 FROM sales_order_lines l WHERE l.product_id = p.id)
		AND NOT EXISTS (SELECT 1 FROM batch_specs b WHERE b.product_id = p.id)
		AND NOT EXISTS (SELECT 1 FROM factory_shipment_lines f WHERE f.product_id = p.id)
		AND NOT EXISTS (SELECT 1 FROM return_order_lines o WHERE o.product_id = p.id)
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.deleteFailure(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id)
	}
	return nil
}

// DeleteVariant mirrors DeleteProduct for variants. Drained stock rows
// (zero quantity and reservation) do not block the guard, but they still
// reference the variant; that foreign key failure counts as blocked too.
func (r *repository) DeleteVariant(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM product_variants v WHERE v.id = $1
		AND NOT EXISTS (SELECT 1 FROM stock_records s WHERE s.variant_id = v.id AND (s.quantity > 0 OR s.reserved_quantity > 0))
		AND NOT EXISTS (SELECT 1 FROM stock_movements m WHERE m.variant_id = v.id)
	`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrDeleteBlocked
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.deleteFailure(ctx, `SELECT EXISTS (SELECT 1 FROM product_variants WHERE id = $1)`, id)
	}
	return nil
}

// deleteFailure tells a guarded-out delete apart from a row that was already
// gone when the statement ran.
func (r *repository) deleteFailure(ctx context.Context, existsQuery string, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, existsQuery, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrDeleteBlocked
}

// isForeignKeyViolation reports a 23503 raised by a dependent row.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
