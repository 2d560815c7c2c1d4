// Package catalog guards product/variant lifecycle and deletion.
package catalog

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a product or variant.
type Status string

const (
	// StatusActive marks an operable product or variant.
	StatusActive Status = "active"
	// StatusInactive marks a soft-disabled product or variant.
	StatusInactive Status = "inactive"
)

// Product is the master-data record stock mutations are gated on.
type Product struct {
	ID        int64
	Code      string
	Name      string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Variant belongs to exactly one product and carries its own status.
type Variant struct {
	ID        int64
	ProductID int64
	Code      string
	Name      string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityKind selects the deletion-guard target.
type EntityKind string

const (
	// KindProduct guards product deletion.
	KindProduct EntityKind = "product"
	// KindVariant guards variant deletion.
	KindVariant EntityKind = "variant"
)

// Eligibility reports whether an entity may be deleted. BlockingCounts holds
// only the dependent-record categories with a nonzero count.
type Eligibility struct {
	Allowed        bool
	BlockingCounts map[string]int64
}

// LifecycleReason identifies why the lifecycle gate refused an operation.
type LifecycleReason string

const (
	// ReasonProductNotFound means no product exists for the id.
	ReasonProductNotFound LifecycleReason = "product_not_found"
	// ReasonProductInactive means the product is not active.
	ReasonProductInactive LifecycleReason = "product_inactive"
	// ReasonVariantNotFound means no variant exists for the id.
	ReasonVariantNotFound LifecycleReason = "variant_not_found"
	// ReasonVariantInactive means the variant is not active.
	ReasonVariantInactive LifecycleReason = "variant_inactive"
	// ReasonVariantProductMismatch means the variant belongs to another product.
	ReasonVariantProductMismatch LifecycleReason = "variant_product_mismatch"
)

// LifecycleError rejects an operation against a non-operable entity.
type LifecycleError struct {
	Reason LifecycleReason
	Detail string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("catalog: %s: %s", e.Reason, e.Detail)
}

// ErrNotFound indicates a missing catalog row.
var ErrNotFound = errors.New("catalog: not found")

// ErrDeleteBlocked indicates a guarded delete found dependent records.
var ErrDeleteBlocked = errors.New("catalog: delete blocked by dependent records")
