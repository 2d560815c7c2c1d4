package catalog

import (
	"context"
	"errors"
	"fmt"
)

// CheckOperable verifies that a product, and the variant when given, are in
// an operable state. All checks run before any stock row is touched; stock
// mutation services call this first as a hard precondition.
func (s *Service) CheckOperable(ctx context.Context, productID int64, variantID *int64) error {
	if productID <= 0 {
		return &LifecycleError{Reason: ReasonProductNotFound, Detail: "product id required"}
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &LifecycleError{Reason: ReasonProductNotFound, Detail: fmt.Sprintf("product %d does not exist", productID)}
		}
		return err
	}
	if product.Status != StatusActive {
		return &LifecycleError{Reason: ReasonProductInactive, Detail: fmt.Sprintf("product %d is %s", productID, product.Status)}
	}
	if variantID == nil {
		return nil
	}
	variant, err := s.repo.GetVariant(ctx, *variantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &LifecycleError{Reason: ReasonVariantNotFound, Detail: fmt.Sprintf("variant %d does not exist", *variantID)}
		}
		return err
	}
	if variant.Status != StatusActive {
		return &LifecycleError{Reason: ReasonVariantInactive, Detail: fmt.Sprintf("variant %d is %s", *variantID, variant.Status)}
	}
	if variant.ProductID != productID {
		return &LifecycleError{
			Reason: ReasonVariantProductMismatch,
			Detail: fmt.Sprintf("variant %d belongs to product %d, not %d", *variantID, variant.ProductID, productID),
		}
	}
	return nil
}
