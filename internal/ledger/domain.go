package ledger

import (
	"errors"
	"fmt"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementTypeIn represents an inbound movement.
	MovementTypeIn MovementType = "IN"
	// MovementTypeOut represents an outbound movement.
	MovementTypeOut MovementType = "OUT"
	// MovementTypeAdjust indicates manual adjustments.
	MovementTypeAdjust MovementType = "ADJ"
)

// StockIdentity is the tuple a quantity/reservation pair is tracked against.
type StockIdentity struct {
	ProductID int64
	VariantID *int64
	BatchKey  *string
	Location  *string
}

// StockRecord is the persisted quantity state for one stock identity.
type StockRecord struct {
	ID               int64
	Identity         StockIdentity
	Quantity         int64
	ReservedQuantity int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Available returns quantity not committed to outstanding orders. It is
// always recomputed, never stored.
func (r StockRecord) Available() int64 {
	return r.Quantity - r.ReservedQuantity
}

// CheckInvariants verifies quantity >= 0 and reserved <= quantity. A failure
// after a mutation is an integrity fault, not a user error.
func (r StockRecord) CheckInvariants() error {
	if r.Quantity < 0 {
		return &IntegrityError{Detail: fmt.Sprintf("quantity %d below zero", r.Quantity)}
	}
	if r.ReservedQuantity < 0 {
		return &IntegrityError{Detail: fmt.Sprintf("reserved %d below zero", r.ReservedQuantity)}
	}
	if r.ReservedQuantity > r.Quantity {
		return &IntegrityError{Detail: fmt.Sprintf("reserved %d exceeds quantity %d", r.ReservedQuantity, r.Quantity)}
	}
	return nil
}

// Movement models one numbered mutation of a stock record.
type Movement struct {
	ID             int64
	DocumentNumber string
	Type           MovementType
	Identity       StockIdentity
	Delta          int64
	QuantityAfter  int64
	Reason         string
	ActorID        int64
	RefID          string
	PostedAt       time.Time
}

// InboundInput describes a goods receipt.
type InboundInput struct {
	ProductID int64
	VariantID *int64
	BatchKey  *string
	Location  *string
	Quantity  int64
	Reason    string
	ActorID   int64
	RefID     string
}

// OutboundInput describes a goods issue.
type OutboundInput struct {
	ProductID int64
	VariantID *int64
	BatchKey  *string
	Location  *string
	Quantity  int64
	Reason    string
	ActorID   int64
	RefID     string
}

// AdjustmentInput describes a manual correction; Delta may be negative.
type AdjustmentInput struct {
	ProductID int64
	VariantID *int64
	BatchKey  *string
	Location  *string
	Delta     int64
	Reason    string
	ActorID   int64
	RefID     string
}

// ReservationInput describes a change to reserved quantity.
type ReservationInput struct {
	ProductID int64
	VariantID *int64
	BatchKey  *string
	Location  *string
	Quantity  int64
	Reason    string
	ActorID   int64
}

// MovementResult is returned for accepted mutations. Warnings are advisory
// and never block the mutation they accompany.
type MovementResult struct {
	DocumentNumber    string
	NewQuantity       int64
	ReservedQuantity  int64
	AvailableQuantity int64
	Warnings          []Warning
}

// MovementFilter narrows movement history listings.
type MovementFilter struct {
	ProductID int64
	VariantID *int64
	From      time.Time
	To        time.Time
	Limit     int
}

// RejectReason identifies why a proposed mutation was refused.
type RejectReason string

const (
	// ReasonNegativeStock means the delta would take quantity below zero.
	ReasonNegativeStock RejectReason = "negative_stock"
	// ReasonReservationBreach means the result would undercut reservations.
	ReasonReservationBreach RejectReason = "reservation_breach"
	// ReasonCeilingExceeded means the result would pass the configured ceiling.
	ReasonCeilingExceeded RejectReason = "ceiling_exceeded"
	// ReasonInsufficientAvailable means a reservation would outgrow quantity.
	ReasonInsufficientAvailable RejectReason = "insufficient_available"
	// ReasonReservationUnderflow means a release exceeds the reservation held.
	ReasonReservationUnderflow RejectReason = "reservation_underflow"
	// ReasonInvalidInput covers malformed requests (zero delta, bad ids).
	ReasonInvalidInput RejectReason = "invalid_input"
)

// WarningCode identifies an advisory emitted alongside an accepted mutation.
type WarningCode string

const (
	// WarnCriticalLow signals imminent stockout.
	WarnCriticalLow WarningCode = "critical_low_stock"
	// WarnLowStock signals quantity at or below safety stock.
	WarnLowStock WarningCode = "low_stock"
	// WarnOverstock signals excess inventory.
	WarnOverstock WarningCode = "overstock"
)

// Warning carries one advisory for the caller.
type Warning struct {
	Code    WarningCode
	Message string
}

// ValidationError rejects a mutation the caller can correct and resubmit.
type ValidationError struct {
	Reason RejectReason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: %s: %s", e.Reason, e.Detail)
}

// IntegrityError marks a post-mutation invariant violation. It aborts the
// transaction and is never silently corrected.
type IntegrityError struct {
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger: integrity violation: %s", e.Detail)
}

// ErrConflict surfaces after transaction retries are exhausted.
var ErrConflict = errors.New("ledger: concurrent update conflict, try again")

// ErrStockNotFound indicates no stock row exists for an identity.
var ErrStockNotFound = errors.New("ledger: stock record not found")
