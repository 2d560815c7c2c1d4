package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// CanDelete tallies dependent records for the entity and reports whether
// deletion is allowed. Read-only; the actual delete re-checks the same
// predicates inside its own statement.
func (s *Service) CanDelete(ctx context.Context, id int64, kind EntityKind) (Eligibility, error) {
	if id <= 0 {
		return Eligibility{}, fmt.Errorf("catalog: invalid %s id", kind)
	}
	var (
		counts map[string]int64
		err    error
	)
	switch kind {
	case KindProduct:
		if _, err = s.repo.GetProduct(ctx, id); err != nil {
			return Eligibility{}, err
		}
		counts, err = s.repo.ProductDependentCounts(ctx, id)
	case KindVariant:
		if _, err = s.repo.GetVariant(ctx, id); err != nil {
			return Eligibility{}, err
		}
		counts, err = s.repo.VariantDependentCounts(ctx, id)
	default:
		return Eligibility{}, fmt.Errorf("catalog: unknown entity kind %q", kind)
	}
	if err != nil {
		return Eligibility{}, err
	}

	blocking := make(map[string]int64)
	for category, n := range counts {
		if n > 0 {
			blocking[category] = n
		}
	}
	return Eligibility{Allowed: len(blocking) == 0, BlockingCounts: blocking}, nil
}

// Delete removes the entity after a guarded check. The conditioned DELETE in
// the repository closes the window between check and removal.
func (s *Service) Delete(ctx context.Context, id int64, kind EntityKind, actorID int64) error {
	eligibility, err := s.CanDelete(ctx, id, kind)
	if err != nil {
		return err
	}
	if !eligibility.Allowed {
		return ErrDeleteBlocked
	}

	switch kind {
	case KindProduct:
		err = s.repo.DeleteProduct(ctx, id)
	case KindVariant:
		err = s.repo.DeleteVariant(ctx, id)
	default:
		return fmt.Errorf("catalog: unknown entity kind %q", kind)
	}
	if err != nil {
		if errors.Is(err, ErrDeleteBlocked) && s.logger != nil {
			s.logger.Warn("delete blocked by concurrent dependent insert",
				slog.String("kind", string(kind)), slog.Int64("id", id))
		}
		return err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("catalog:delete_%s", kind),
			Entity:   string(kind),
			EntityID: fmt.Sprintf("%d", id),
		})
	}
	return nil
}
