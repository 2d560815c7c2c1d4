package sequence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// memorySequences mimics the upsert-with-increment semantics of the
// document_sequences table under a single lock.
type memorySequences struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMemorySequences() *memorySequences {
	return &memorySequences{counters: make(map[string]int64)}
}

func (m *memorySequences) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := args[0].(string) + ":" + args[1].(string)
	m.counters[key]++
	return seqRow{value: m.counters[key]}
}

type seqRow struct {
	value int64
}

func (r seqRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.value
	return nil
}

func TestNextStartsAtOneAndIncrements(t *testing.T) {
	db := newMemorySequences()
	ctx := context.Background()

	v, err := Next(ctx, db, "adjustment", "20250101")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = Next(ctx, db, "adjustment", "20250101")
	require.NoError(t, err)
	require.EqualValues(t, 2, v)

	// Independent series per type and per day.
	v, err = Next(ctx, db, "inbound", "20250101")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = Next(ctx, db, "adjustment", "20250102")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

func TestNextRejectsInvalidKeys(t *testing.T) {
	db := newMemorySequences()
	ctx := context.Background()

	_, err := Next(ctx, db, "", "20250101")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = Next(ctx, db, "adjustment", "2025-01-01")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestConcurrentAllocationIsGapless(t *testing.T) {
	db := newMemorySequences()
	const n = 100

	results := make(chan int64, n)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, err := Next(ctx, db, "adjustment", "20250101")
			if err != nil {
				return err
			}
			results <- v
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	seen := make(map[int64]bool, n)
	for v := range results {
		require.False(t, seen[v], "duplicate value %d", v)
		seen[v] = true
	}
	for i := int64(1); i <= n; i++ {
		require.True(t, seen[i], "missing value %d", i)
	}
}

func TestAllocateDocumentNumber(t *testing.T) {
	db := newMemorySequences()
	fixed := func() time.Time {
		return time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)
	}
	alloc := NewAllocator(db, fixed)
	ctx := context.Background()

	num, err := alloc.AllocateDocumentNumber(ctx, "adjustment", "ADJ")
	require.NoError(t, err)
	require.Equal(t, "ADJ-20250101-001", num)

	num, err = alloc.AllocateDocumentNumber(ctx, "adjustment", "ADJ")
	require.NoError(t, err)
	require.Equal(t, "ADJ-20250101-002", num)

	_, err = alloc.AllocateDocumentNumber(ctx, "adjustment", "bad prefix")
	require.Error(t, err)
}
