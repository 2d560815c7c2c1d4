package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanDeleteBlockedByStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Status: StatusActive}
	repo.productCounts[1] = map[string]int64{
		"stock_records":     1,
		"sales_order_lines": 0,
	}
	svc := NewService(repo, nil, nil)

	eligibility, err := svc.CanDelete(context.Background(), 1, KindProduct)
	require.NoError(t, err)
	require.False(t, eligibility.Allowed)
	require.EqualValues(t, 1, eligibility.BlockingCounts["stock_records"])
	require.NotContains(t, eligibility.BlockingCounts, "sales_order_lines")
}

func TestCanDeleteAllowedWhenClean(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Status: StatusInactive}
	repo.productCounts[1] = map[string]int64{
		"stock_records":        0,
		"sales_order_lines":    0,
		"adjustment_movements": 0,
	}
	svc := NewService(repo, nil, nil)

	eligibility, err := svc.CanDelete(context.Background(), 1, KindProduct)
	require.NoError(t, err)
	require.True(t, eligibility.Allowed)
	require.Empty(t, eligibility.BlockingCounts)
}

func TestCanDeleteVariant(t *testing.T) {
	repo := newMemoryRepo()
	repo.variants[10] = Variant{ID: 10, ProductID: 1, Status: StatusActive}
	repo.variantCounts[10] = map[string]int64{
		"stock_records":     0,
		"inbound_movements": 4,
	}
	svc := NewService(repo, nil, nil)

	eligibility, err := svc.CanDelete(context.Background(), 10, KindVariant)
	require.NoError(t, err)
	require.False(t, eligibility.Allowed)
	require.EqualValues(t, 4, eligibility.BlockingCounts["inbound_movements"])
}

func TestCanDeleteMissingEntity(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.CanDelete(context.Background(), 42, KindProduct)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CanDelete(context.Background(), 0, KindProduct)
	require.Error(t, err)

	_, err = svc.CanDelete(context.Background(), 1, EntityKind("warehouse"))
	require.Error(t, err)
}

func TestDeleteRunsGuardedDelete(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Status: StatusInactive}
	svc := NewService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), 1, KindProduct, 7))
	require.Equal(t, []int64{1}, repo.deleted)
	require.NotContains(t, repo.products, int64(1))
}

func TestDeleteBlockedUpfront(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = Product{ID: 1, Status: StatusActive}
	repo.productCounts[1] = map[string]int64{"return_order_lines": 2}
	svc := NewService(repo, nil, nil)

	err := svc.Delete(context.Background(), 1, KindProduct, 7)
	require.ErrorIs(t, err, ErrDeleteBlocked)
	require.Empty(t, repo.deleted)
}
