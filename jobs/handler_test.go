package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	payloads []StockAlertScanPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueStockAlertScan(ctx context.Context, payload StockAlertScanPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func newScanRouter(enq Enqueuer) http.Handler {
	h := NewHandler(slog.Default(), enq)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func postScan(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/stock/alerts/scan", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandleStockAlertScanEnqueues(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newScanRouter(enq)

	rr := postScan(t, router, `{"batch_size": 50}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Contains(t, rr.Body.String(), `"task_id":"task-1"`)
	require.Len(t, enq.payloads, 1)
	require.Equal(t, 50, enq.payloads[0].BatchSize)
}

func TestHandleStockAlertScanEmptyBody(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newScanRouter(enq)

	rr := postScan(t, router, "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, enq.payloads, 1)
	require.Zero(t, enq.payloads[0].BatchSize)
}

func TestHandleStockAlertScanRejectsBadInput(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newScanRouter(enq)

	rr := postScan(t, router, `{"batch_size": -1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postScan(t, router, `{not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	require.Empty(t, enq.payloads)
}

func TestHandleStockAlertScanEnqueueFailure(t *testing.T) {
	router := newScanRouter(&fakeEnqueuer{err: errors.New("redis down")})

	rr := postScan(t, router, `{}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
