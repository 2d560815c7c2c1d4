package ledger

import "fmt"

// Thresholds configures stock level checks. Values are per-deployment; Max
// and the warning levels are skipped when left at zero.
type Thresholds struct {
	Min                 int64 `json:"min"`
	CriticalMin         int64 `json:"critical_min"`
	Max                 int64 `json:"max"`
	OverstockMultiplier int64 `json:"overstock_multiplier"`
}

// Decision is the outcome of validating a proposed delta against a record.
type Decision struct {
	Accepted    bool
	Reason      RejectReason
	Detail      string
	NewQuantity int64
	Warnings    []Warning
}

// Validate decides accept/reject/accept-with-warnings for a quantity delta.
// It reads nothing but its arguments; the caller must pass a record read
// inside the transaction that will persist the mutation.
func Validate(current StockRecord, delta int64, th Thresholds) Decision {
	newQty := current.Quantity + delta

	if newQty < 0 {
		return Decision{
			Reason:      ReasonNegativeStock,
			Detail:      fmt.Sprintf("resulting quantity %d would go negative", newQty),
			NewQuantity: newQty,
		}
	}
	if newQty < current.ReservedQuantity {
		return Decision{
			Reason:      ReasonReservationBreach,
			Detail:      fmt.Sprintf("resulting quantity %d is below reserved %d", newQty, current.ReservedQuantity),
			NewQuantity: newQty,
		}
	}
	if th.Max > 0 && newQty > th.Max {
		return Decision{
			Reason:      ReasonCeilingExceeded,
			Detail:      fmt.Sprintf("resulting quantity %d exceeds ceiling %d", newQty, th.Max),
			NewQuantity: newQty,
		}
	}

	d := Decision{Accepted: true, NewQuantity: newQty}
	switch {
	case th.CriticalMin > 0 && newQty <= th.CriticalMin:
		d.Warnings = append(d.Warnings, Warning{
			Code:    WarnCriticalLow,
			Message: fmt.Sprintf("quantity %d at or below critical minimum %d", newQty, th.CriticalMin),
		})
	case th.Min > 0 && newQty <= th.Min:
		d.Warnings = append(d.Warnings, Warning{
			Code:    WarnLowStock,
			Message: fmt.Sprintf("quantity %d at or below safety stock %d", newQty, th.Min),
		})
	}
	if th.Min > 0 && th.OverstockMultiplier > 0 && newQty > th.Min*th.OverstockMultiplier {
		d.Warnings = append(d.Warnings, Warning{
			Code:    WarnOverstock,
			Message: fmt.Sprintf("quantity %d exceeds %d times safety stock", newQty, th.OverstockMultiplier),
		})
	}
	return d
}
