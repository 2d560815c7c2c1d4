package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo Repository) http.Handler {
	h := NewHandler(slog.Default(), NewService(repo, nil, nil))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func do(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandleCheckOperable(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Status: StatusActive}
	repo.products[2] = Product{ID: 2, Status: StatusInactive}
	router := newTestRouter(repo)

	rr := do(t, router, http.MethodGet, "/catalog/operable?product_id=1")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, "/catalog/operable?product_id=2")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodGet, "/catalog/operable?product_id=99")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodGet, "/catalog/operable")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleDeleteProduct(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Status: StatusInactive}
	router := newTestRouter(repo)

	rr := do(t, router, http.MethodDelete, "/catalog/products/1")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, []int64{1}, repo.deleted)
}

func TestHandleDeleteProductBlocked(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Status: StatusActive}
	repo.productCounts[1] = map[string]int64{"stock_records": 2}
	router := newTestRouter(repo)

	rr := do(t, router, http.MethodDelete, "/catalog/products/1")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Empty(t, repo.deleted)
}

// vanishingRepo simulates a row deleted by a concurrent request after the
// guard check passed.
type vanishingRepo struct {
	*memoryRepo
}

func (r *vanishingRepo) DeleteProduct(ctx context.Context, id int64) error {
	return ErrNotFound
}

func TestHandleDeleteProductAlreadyGone(t *testing.T) {
	inner := newMemoryRepo()
	inner.products[1] = Product{ID: 1, Status: StatusInactive}
	router := newTestRouter(&vanishingRepo{memoryRepo: inner})

	rr := do(t, router, http.MethodDelete, "/catalog/products/1")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleCanDeleteEndpoint(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Status: StatusActive}
	repo.productCounts[1] = map[string]int64{"stock_records": 3}
	router := newTestRouter(repo)

	rr := do(t, router, http.MethodGet, "/catalog/products/1/deletable")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"allowed":false`)
	require.Contains(t, rr.Body.String(), `"stock_records":3`)
}

func TestIsForeignKeyViolation(t *testing.T) {
	require.True(t, isForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isForeignKeyViolation(context.DeadlineExceeded))
	require.False(t, isForeignKeyViolation(nil))
}
