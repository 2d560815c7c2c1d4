// Package ledger implements the stock ledger: validated quantity mutations
// with per-day document numbering, executed one transaction at a time per
// stock row.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-wms/atlas-wms/internal/docnum"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// Gate is the lifecycle precondition checked before any stock row is read.
type Gate interface {
	CheckOperable(ctx context.Context, productID int64, variantID *int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups tunable settings.
type ServiceConfig struct {
	Thresholds   Thresholds
	MaxRetries   int
	RetryBackoff time.Duration
}

// Service coordinates stock mutations.
type Service struct {
	repo        RepositoryPort
	gate        Gate
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	thresholds  Thresholds
	maxRetries  int
	backoff     time.Duration
	now         func() time.Time
}

// NewService builds Service. The audit and idempotency ports may be nil.
func NewService(repo RepositoryPort, gate Gate, audit AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger, cfg ServiceConfig) *Service {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	return &Service{
		repo:        repo,
		gate:        gate,
		audit:       audit,
		idempotency: idem,
		logger:      logger,
		thresholds:  cfg.Thresholds,
		maxRetries:  retries,
		backoff:     backoff,
		now:         time.Now,
	}
}

// sequence series and document prefixes per movement type
const (
	seqTypeInbound    = "inbound"
	seqTypeOutbound   = "outbound"
	seqTypeAdjustment = "adjustment"

	prefixInbound    = "GRN"
	prefixOutbound   = "GIN"
	prefixAdjustment = "ADJ"
)

// PostInbound posts a goods receipt.
func (s *Service) PostInbound(ctx context.Context, input InboundInput) (MovementResult, error) {
	if input.Quantity <= 0 {
		return MovementResult{}, &ValidationError{Reason: ReasonInvalidInput, Detail: "inbound quantity must be positive"}
	}
	return s.postMovement(ctx, movementParams{
		Identity: StockIdentity{ProductID: input.ProductID, VariantID: input.VariantID, BatchKey: input.BatchKey, Location: input.Location},
		Delta:    input.Quantity,
		Type:     MovementTypeIn,
		SeqType:  seqTypeInbound,
		Prefix:   prefixInbound,
		Reason:   input.Reason,
		ActorID:  input.ActorID,
		RefID:    input.RefID,
	})
}

// PostOutbound posts a goods issue.
func (s *Service) PostOutbound(ctx context.Context, input OutboundInput) (MovementResult, error) {
	if input.Quantity <= 0 {
		return MovementResult{}, &ValidationError{Reason: ReasonInvalidInput, Detail: "outbound quantity must be positive"}
	}
	return s.postMovement(ctx, movementParams{
		Identity: StockIdentity{ProductID: input.ProductID, VariantID: input.VariantID, BatchKey: input.BatchKey, Location: input.Location},
		Delta:    -input.Quantity,
		Type:     MovementTypeOut,
		SeqType:  seqTypeOutbound,
		Prefix:   prefixOutbound,
		Reason:   input.Reason,
		ActorID:  input.ActorID,
		RefID:    input.RefID,
	})
}

// PostAdjustment posts a manual correction which may be positive or negative.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (MovementResult, error) {
	if input.Delta == 0 {
		return MovementResult{}, &ValidationError{Reason: ReasonInvalidInput, Detail: "adjustment delta must be non-zero"}
	}
	return s.postMovement(ctx, movementParams{
		Identity: StockIdentity{ProductID: input.ProductID, VariantID: input.VariantID, BatchKey: input.BatchKey, Location: input.Location},
		Delta:    input.Delta,
		Type:     MovementTypeAdjust,
		SeqType:  seqTypeAdjustment,
		Prefix:   prefixAdjustment,
		Reason:   input.Reason,
		ActorID:  input.ActorID,
		RefID:    input.RefID,
	})
}

// Reserve commits quantity to an outstanding order.
func (s *Service) Reserve(ctx context.Context, input ReservationInput) (MovementResult, error) {
	return s.postReservation(ctx, input, input.Quantity)
}

// Release returns reserved quantity to the available pool.
func (s *Service) Release(ctx context.Context, input ReservationInput) (MovementResult, error) {
	return s.postReservation(ctx, input, -input.Quantity)
}

// GetMovements lists movement history for a product.
func (s *Service) GetMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID <= 0 {
		return nil, &ValidationError{Reason: ReasonInvalidInput, Detail: "product id required"}
	}
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.ListMovements(ctx, filter)
}

type movementParams struct {
	Identity StockIdentity
	Delta    int64
	Type     MovementType
	SeqType  string
	Prefix   string
	Reason   string
	ActorID  int64
	RefID    string
}

func (s *Service) postMovement(ctx context.Context, p movementParams) (MovementResult, error) {
	if p.Identity.ProductID <= 0 {
		return MovementResult{}, &ValidationError{Reason: ReasonInvalidInput, Detail: "product id required"}
	}
	if p.RefID != "" {
		if _, err := uuid.Parse(p.RefID); err != nil {
			return MovementResult{}, &ValidationError{Reason: ReasonInvalidInput, Detail: fmt.Sprintf("invalid ref id: %v", err)}
		}
	}
	// Lifecycle gate runs to completion before any stock row is read.
	if err := s.gate.CheckOperable(ctx, p.Identity.ProductID, p.Identity.VariantID); err != nil {
		return MovementResult{}, err
	}

	var idemKey string
	if s.idempotency != nil && p.RefID != "" {
		idemKey = fmt.Sprintf("%s:%s:%d", p.Type, p.RefID, p.Identity.ProductID)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "ledger"); err != nil {
			return MovementResult{}, err
		}
	}

	var result MovementResult
	err := s.withRetry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetStockForUpdate(ctx, p.Identity)
			if err != nil {
				if !errors.Is(err, ErrStockNotFound) {
					return err
				}
				current = StockRecord{Identity: p.Identity}
			}

			decision := Validate(current, p.Delta, s.thresholds)
			if !decision.Accepted {
				return &ValidationError{Reason: decision.Reason, Detail: decision.Detail}
			}

			now := s.now().UTC()
			dateKey := now.Format("20060102")
			seq, err := tx.NextSequence(ctx, p.SeqType, dateKey)
			if err != nil {
				return err
			}
			number := docnum.Format(p.Prefix, dateKey, seq)

			current.Quantity = decision.NewQuantity
			if err := current.CheckInvariants(); err != nil {
				return err
			}
			if err := tx.UpsertStock(ctx, &current); err != nil {
				return err
			}
			if _, err := tx.InsertMovement(ctx, Movement{
				DocumentNumber: number,
				Type:           p.Type,
				Identity:       p.Identity,
				Delta:          p.Delta,
				QuantityAfter:  current.Quantity,
				Reason:         p.Reason,
				ActorID:        p.ActorID,
				RefID:          p.RefID,
				PostedAt:       now,
			}); err != nil {
				return err
			}

			result = MovementResult{
				DocumentNumber:    number,
				NewQuantity:       current.Quantity,
				ReservedQuantity:  current.ReservedQuantity,
				AvailableQuantity: current.Available(),
				Warnings:          decision.Warnings,
			}
			return nil
		})
	})
	if err != nil {
		if idemKey != "" {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return MovementResult{}, err
	}

	s.recordAudit(ctx, p, result)
	return result, nil
}

func (s *Service) postReservation(ctx context.Context, input ReservationInput, change int64) (MovementResult, error) {
	if input.ProductID <= 0 {
		return MovementResult{}, &ValidationError{Reason: ReasonInvalidInput, Detail: "product id required"}
	}
	if input.Quantity <= 0 {
		return MovementResult{}, &ValidationError{Reason: ReasonInvalidInput, Detail: "reservation quantity must be positive"}
	}
	identity := StockIdentity{ProductID: input.ProductID, VariantID: input.VariantID, BatchKey: input.BatchKey, Location: input.Location}
	if err := s.gate.CheckOperable(ctx, identity.ProductID, identity.VariantID); err != nil {
		return MovementResult{}, err
	}

	var result MovementResult
	err := s.withRetry(ctx, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetStockForUpdate(ctx, identity)
			if err != nil {
				if !errors.Is(err, ErrStockNotFound) {
					return err
				}
				current = StockRecord{Identity: identity}
			}
			newReserved := current.ReservedQuantity + change
			if newReserved > current.Quantity {
				return &ValidationError{
					Reason: ReasonInsufficientAvailable,
					Detail: fmt.Sprintf("reservation %d would exceed quantity %d", newReserved, current.Quantity),
				}
			}
			if newReserved < 0 {
				return &ValidationError{
					Reason: ReasonReservationUnderflow,
					Detail: fmt.Sprintf("release of %d exceeds reserved %d", input.Quantity, current.ReservedQuantity),
				}
			}
			current.ReservedQuantity = newReserved
			if err := current.CheckInvariants(); err != nil {
				return err
			}
			if err := tx.UpsertStock(ctx, &current); err != nil {
				return err
			}
			result = MovementResult{
				NewQuantity:       current.Quantity,
				ReservedQuantity:  current.ReservedQuantity,
				AvailableQuantity: current.Available(),
			}
			return nil
		})
	})
	if err != nil {
		return MovementResult{}, err
	}

	if s.audit != nil {
		action := "ledger:reserve"
		if change < 0 {
			action = "ledger:release"
		}
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   action,
			Entity:   "stock_record",
			EntityID: fmt.Sprintf("%d", input.ProductID),
			Meta: map[string]any{
				"product_id": input.ProductID,
				"quantity":   input.Quantity,
				"reason":     input.Reason,
			},
		})
	}
	return result, nil
}

// withRetry reruns fn while it fails with a transient store conflict.
// Validation, lifecycle and integrity errors pass through on first failure.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if s.logger != nil {
				s.logger.Warn("retrying stock transaction",
					slog.Int("attempt", attempt), slog.Any("error", err))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

func (s *Service) recordAudit(ctx context.Context, p movementParams, result MovementResult) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.ActorID,
		Action:   fmt.Sprintf("ledger:%s", p.Type),
		Entity:   "stock_movement",
		EntityID: result.DocumentNumber,
		Meta: map[string]any{
			"product_id": p.Identity.ProductID,
			"delta":      p.Delta,
			"reason":     p.Reason,
		},
	})
}
