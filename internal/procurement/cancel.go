package procurement

import (
	"strings"
	"time"
)

// CancellationReason enumerates why an order was canceled.
type CancellationReason string

const (
	ReasonDuplicateOrder      CancellationReason = "duplicate_order"
	ReasonVendorUnavailable   CancellationReason = "vendor_unavailable"
	ReasonBudgetConstraints   CancellationReason = "budget_constraints"
	ReasonProjectCanceled     CancellationReason = "project_canceled"
	ReasonSpecificationChange CancellationReason = "specification_change"
	ReasonPricingIssue        CancellationReason = "pricing_issue"
	ReasonOther               CancellationReason = "other"
)

// CancellationReasons lists the accepted reasons in display order.
func CancellationReasons() []CancellationReason {
	return []CancellationReason{
		ReasonDuplicateOrder,
		ReasonVendorUnavailable,
		ReasonBudgetConstraints,
		ReasonProjectCanceled,
		ReasonSpecificationChange,
		ReasonPricingIssue,
		ReasonOther,
	}
}

// IsValid reports whether the reason is in the enumerated set.
func (r CancellationReason) IsValid() bool {
	for _, known := range CancellationReasons() {
		if r == known {
			return true
		}
	}
	return false
}

// CancellationRequest is what the cancellation form submits.
type CancellationRequest struct {
	Reason         CancellationReason `json:"cancellation_reason"`
	CustomReason   string             `json:"custom_reason"`
	Notes          string             `json:"cancellation_notes"`
	VendorNotified bool               `json:"vendor_notified"`
	Confirmed      bool               `json:"confirm_cancellation"`
}

// CheckCancellation validates req for an order in status. Rows are checked in
// table order and the first failure names its field.
func CheckCancellation(status OrderStatus, req CancellationRequest) error {
	if !req.Reason.IsValid() {
		return &FieldError{Field: "cancellation_reason", Message: "must be one of the listed reasons"}
	}
	if req.Reason == ReasonOther && isBlank(req.CustomReason) {
		return required("custom_reason")
	}
	if isBlank(req.Notes) {
		return required("cancellation_notes")
	}
	if status == StatusApproved && !req.VendorNotified {
		return &FieldError{Field: "vendor_notified", Message: "vendor must be notified before canceling an approved order"}
	}
	if !req.Confirmed {
		return &FieldError{Field: "confirm_cancellation", Message: "cancellation must be confirmed"}
	}
	return nil
}

func applyCancellation(o *Order, req CancellationRequest, actorID int64, at time.Time) {
	o.CancellationReason = string(req.Reason)
	o.CustomReason = strings.TrimSpace(req.CustomReason)
	o.CancellationNotes = strings.TrimSpace(req.Notes)
	o.VendorNotified = req.VendorNotified
	o.CanceledBy = actorID
	o.CanceledAt = &at
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
