package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	stocks    map[string]StockRecord
	movements []Movement
	sequences map[string]int64
	nextID    int64
	stockGets int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		stocks:    make(map[string]StockRecord),
		sequences: make(map[string]int64),
	}
}

func identityKey(id StockIdentity) string {
	variant := int64(0)
	if id.VariantID != nil {
		variant = *id.VariantID
	}
	batch, location := "", ""
	if id.BatchKey != nil {
		batch = *id.BatchKey
	}
	if id.Location != nil {
		location = *id.Location
	}
	return fmt.Sprintf("%d:%d:%s:%s", id.ProductID, variant, batch, location)
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	result := make([]Movement, len(r.movements))
	copy(result, r.movements)
	return result, nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, identity StockIdentity) (StockRecord, error) {
	tx.repo.stockGets++
	if rec, ok := tx.repo.stocks[identityKey(identity)]; ok {
		return rec, nil
	}
	return StockRecord{Identity: identity}, ErrStockNotFound
}

func (tx *memoryTx) UpsertStock(ctx context.Context, record *StockRecord) error {
	if record.ID == 0 {
		tx.repo.nextID++
		record.ID = tx.repo.nextID
	}
	tx.repo.stocks[identityKey(record.Identity)] = *record
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) NextSequence(ctx context.Context, seqType, dateKey string) (int64, error) {
	key := seqType + ":" + dateKey
	tx.repo.sequences[key]++
	return tx.repo.sequences[key], nil
}

// openGate lets everything through; closedGate rejects everything.
type openGate struct{}

func (openGate) CheckOperable(ctx context.Context, productID int64, variantID *int64) error {
	return nil
}

type closedGate struct {
	err error
}

func (g closedGate) CheckOperable(ctx context.Context, productID int64, variantID *int64) error {
	return g.err
}

func newTestService(repo RepositoryPort, gate Gate) *Service {
	svc := NewService(repo, gate, nil, nil, nil, ServiceConfig{
		Thresholds: Thresholds{Min: 10, CriticalMin: 3, Max: 1000, OverstockMultiplier: 5},
	})
	svc.now = func() time.Time {
		return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestPostInboundCreatesRecord(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, openGate{})
	ctx := context.Background()

	result, err := svc.PostInbound(ctx, InboundInput{ProductID: 1, Quantity: 40, Reason: "grn"})
	require.NoError(t, err)
	require.Equal(t, "GRN-20250101-001", result.DocumentNumber)
	require.EqualValues(t, 40, result.NewQuantity)
	require.EqualValues(t, 40, result.AvailableQuantity)
	require.Empty(t, result.Warnings)
	require.Len(t, repo.movements, 1)
	require.EqualValues(t, 40, repo.movements[0].QuantityAfter)
}

func TestAdjustmentEndToEnd(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[identityKey(StockIdentity{ProductID: 1})] = StockRecord{
		ID: 1, Identity: StockIdentity{ProductID: 1}, Quantity: 100, ReservedQuantity: 20,
	}
	svc := newTestService(repo, openGate{})

	result, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ProductID: 1, Delta: -50, Reason: "sale"})
	require.NoError(t, err)
	require.EqualValues(t, 50, result.NewQuantity)
	require.EqualValues(t, 30, result.AvailableQuantity)
	require.Equal(t, "ADJ-20250101-001", result.DocumentNumber)
	require.Empty(t, result.Warnings)
}

func TestAdjustmentRejectsReservationBreach(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[identityKey(StockIdentity{ProductID: 1})] = StockRecord{
		ID: 1, Identity: StockIdentity{ProductID: 1}, Quantity: 10, ReservedQuantity: 4,
	}
	svc := newTestService(repo, openGate{})

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ProductID: 1, Delta: -7})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ReasonReservationBreach, vErr.Reason)
	require.Empty(t, repo.movements)

	_, err = svc.PostAdjustment(context.Background(), AdjustmentInput{ProductID: 1, Delta: -11})
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ReasonNegativeStock, vErr.Reason)
}

func TestAdjustmentWarnsLowStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[identityKey(StockIdentity{ProductID: 1})] = StockRecord{
		ID: 1, Identity: StockIdentity{ProductID: 1}, Quantity: 20,
	}
	svc := newTestService(repo, openGate{})

	result, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ProductID: 1, Delta: -12})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, WarnLowStock, result.Warnings[0].Code)
}

func TestLifecycleGateBlocksBeforeStockRead(t *testing.T) {
	repo := newMemoryRepo()
	gateErr := fmt.Errorf("catalog: product_inactive: product 1 is inactive")
	svc := newTestService(repo, closedGate{err: gateErr})

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ProductID: 1, Delta: 5})
	require.ErrorIs(t, err, gateErr)
	require.Zero(t, repo.stockGets, "stock must not be read when the gate fails")
	require.Empty(t, repo.movements)
}

func TestOutboundNegatesQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[identityKey(StockIdentity{ProductID: 1})] = StockRecord{
		ID: 1, Identity: StockIdentity{ProductID: 1}, Quantity: 40,
	}
	svc := newTestService(repo, openGate{})

	result, err := svc.PostOutbound(context.Background(), OutboundInput{ProductID: 1, Quantity: 15, Reason: "pick"})
	require.NoError(t, err)
	require.EqualValues(t, 25, result.NewQuantity)
	require.Equal(t, "GIN-20250101-001", result.DocumentNumber)

	_, err = svc.PostOutbound(context.Background(), OutboundInput{ProductID: 1, Quantity: 0})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ReasonInvalidInput, vErr.Reason)
}

func TestSequencePerTypeAndDay(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, openGate{})
	ctx := context.Background()

	r1, err := svc.PostInbound(ctx, InboundInput{ProductID: 1, Quantity: 10})
	require.NoError(t, err)
	r2, err := svc.PostInbound(ctx, InboundInput{ProductID: 2, Quantity: 10})
	require.NoError(t, err)
	r3, err := svc.PostAdjustment(ctx, AdjustmentInput{ProductID: 1, Delta: 1})
	require.NoError(t, err)

	require.Equal(t, "GRN-20250101-001", r1.DocumentNumber)
	require.Equal(t, "GRN-20250101-002", r2.DocumentNumber)
	require.Equal(t, "ADJ-20250101-001", r3.DocumentNumber)
}

func TestReserveAndRelease(t *testing.T) {
	repo := newMemoryRepo()
	repo.stocks[identityKey(StockIdentity{ProductID: 1})] = StockRecord{
		ID: 1, Identity: StockIdentity{ProductID: 1}, Quantity: 30,
	}
	svc := newTestService(repo, openGate{})
	ctx := context.Background()

	result, err := svc.Reserve(ctx, ReservationInput{ProductID: 1, Quantity: 20})
	require.NoError(t, err)
	require.EqualValues(t, 20, result.ReservedQuantity)
	require.EqualValues(t, 10, result.AvailableQuantity)

	_, err = svc.Reserve(ctx, ReservationInput{ProductID: 1, Quantity: 11})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ReasonInsufficientAvailable, vErr.Reason)

	result, err = svc.Release(ctx, ReservationInput{ProductID: 1, Quantity: 5})
	require.NoError(t, err)
	require.EqualValues(t, 15, result.ReservedQuantity)

	_, err = svc.Release(ctx, ReservationInput{ProductID: 1, Quantity: 16})
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ReasonReservationUnderflow, vErr.Reason)
}

// flakyRepo fails the first n transactions with a serialization failure.
type flakyRepo struct {
	*memoryRepo
	failures int
}

func (r *flakyRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.failures > 0 {
		r.failures--
		return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	}
	return r.memoryRepo.WithTx(ctx, fn)
}

func TestRetryOnSerializationFailure(t *testing.T) {
	repo := &flakyRepo{memoryRepo: newMemoryRepo(), failures: 2}
	svc := NewService(repo, openGate{}, nil, nil, nil, ServiceConfig{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})
	svc.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	result, err := svc.PostInbound(context.Background(), InboundInput{ProductID: 1, Quantity: 5})
	require.NoError(t, err)
	require.EqualValues(t, 5, result.NewQuantity)
}

func TestRetryExhaustionSurfacesConflict(t *testing.T) {
	repo := &flakyRepo{memoryRepo: newMemoryRepo(), failures: 10}
	svc := NewService(repo, openGate{}, nil, nil, nil, ServiceConfig{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
	svc.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	_, err := svc.PostInbound(context.Background(), InboundInput{ProductID: 1, Quantity: 5})
	require.ErrorIs(t, err, ErrConflict)
}

func TestValidationErrorNotRetried(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, openGate{})

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ProductID: 1, Delta: -5})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ReasonNegativeStock, vErr.Reason)
	// One read only: no retry loop for caller-correctable failures.
	require.Equal(t, 1, repo.stockGets)
}

func TestInvalidRefIDRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, openGate{})

	_, err := svc.PostInbound(context.Background(), InboundInput{ProductID: 1, Quantity: 5, RefID: "not-a-uuid"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, ReasonInvalidInput, vErr.Reason)
}
