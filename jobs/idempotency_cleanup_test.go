package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	olderThan []time.Duration
	err       error
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	f.olderThan = append(f.olderThan, olderThan)
	return f.err
}

func TestIdempotencyCleanupSweeps(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, nil, 48*time.Hour)

	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, []time.Duration{48 * time.Hour}, cleaner.olderThan)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, nil, 0)

	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, []time.Duration{24 * time.Hour}, cleaner.olderThan)
}

func TestIdempotencyCleanupPropagatesError(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("connection reset")}
	job := NewIdempotencyCleanupJob(cleaner, nil, nil, time.Hour)

	err := job.Handle(context.Background(), NewIdempotencyCleanupTask())
	require.ErrorContains(t, err, "connection reset")
}

func TestIdempotencyCleanupUnconfigured(t *testing.T) {
	job := &IdempotencyCleanupJob{}
	require.Error(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
}
