package procurement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle status of a purchase order.
type OrderStatus string

const (
	StatusDraft             OrderStatus = "DRAFT"
	StatusPending           OrderStatus = "PENDING"
	StatusApproved          OrderStatus = "APPROVED"
	StatusOrdered           OrderStatus = "ORDERED"
	StatusPartiallyReceived OrderStatus = "PARTIALLY_RECEIVED"
	StatusReceived          OrderStatus = "RECEIVED"
	StatusRejected          OrderStatus = "REJECTED"
	StatusCanceled          OrderStatus = "CANCELED"
)

// IsValid reports whether the status is one of the known values.
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusOrdered,
		StatusPartiallyReceived, StatusReceived, StatusRejected, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports statuses that accept no further lifecycle actions.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusCanceled
}

// CanCancel checks if the order can still be canceled.
func (s OrderStatus) CanCancel() bool {
	return s == StatusDraft || s == StatusPending || s == StatusApproved
}

// CanReceive checks if receipts may be recorded against the order.
func (s OrderStatus) CanReceive() bool {
	return s == StatusApproved || s == StatusOrdered || s == StatusPartiallyReceived
}

// DeliveryStatus tracks physical shipment progress, independent of OrderStatus.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryScheduled DeliveryStatus = "SCHEDULED"
	DeliveryInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryDelayed   DeliveryStatus = "DELAYED"
	DeliveryFailed    DeliveryStatus = "FAILED_DELIVERY"
	DeliveryPartial   DeliveryStatus = "PARTIAL"
	DeliveryReceived  DeliveryStatus = "RECEIVED"
)

// IsValid reports whether the delivery status is one of the known values.
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliveryScheduled, DeliveryInTransit, DeliveryDelivered,
		DeliveryDelayed, DeliveryFailed, DeliveryPartial, DeliveryReceived:
		return true
	}
	return false
}

// IsArrived reports whether goods have physically reached the site.
func (s DeliveryStatus) IsArrived() bool {
	return s == DeliveryDelivered || s == DeliveryPartial || s == DeliveryReceived
}

// DiscrepancyType classifies a mismatch between ordered and received goods.
type DiscrepancyType string

const (
	DiscrepancyNone          DiscrepancyType = ""
	DiscrepancyShortShipment DiscrepancyType = "SHORT_SHIPMENT"
	DiscrepancyDamaged       DiscrepancyType = "DAMAGED"
	DiscrepancyWrongItem     DiscrepancyType = "WRONG_ITEM"
	DiscrepancyQualityIssue  DiscrepancyType = "QUALITY_ISSUE"
	DiscrepancyOther         DiscrepancyType = "OTHER"
)

// IsValid accepts the known types, including none.
func (t DiscrepancyType) IsValid() bool {
	switch t {
	case DiscrepancyNone, DiscrepancyShortShipment, DiscrepancyDamaged,
		DiscrepancyWrongItem, DiscrepancyQualityIssue, DiscrepancyOther:
		return true
	}
	return false
}

// Order is the root procurement entity.
type Order struct {
	ID             int64
	PONumber       string
	Status         OrderStatus
	DeliveryStatus DeliveryStatus
	VendorID       int64
	ProjectID      int64

	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	NetTotal       decimal.Decimal

	ScheduledDeliveryDate *time.Time
	ActualDeliveryDate    *time.Time
	DateNeeded            *time.Time

	RequestedBy     int64
	ApprovedBy      int64
	ApprovedAt      *time.Time
	RejectionReason string

	CancellationReason string
	CustomReason       string
	CancellationNotes  string
	VendorNotified     bool
	CanceledBy         int64
	CanceledAt         *time.Time

	ReceiptNotes    string
	ResolutionNotes string
	Notes           string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayNumber returns the PO number, falling back to "#id".
func (o Order) DisplayNumber() string {
	if n := strings.TrimSpace(o.PONumber); n != "" {
		return n
	}
	return fmt.Sprintf("#%d", o.ID)
}

// ComputeNetTotal returns subtotal + tax - discount.
func ComputeNetTotal(subtotal, tax, discount decimal.Decimal) decimal.Decimal {
	return subtotal.Add(tax).Sub(discount)
}

// Stored precision of quantity and money columns.
const (
	QuantityPlaces int32 = 3
	MoneyPlaces    int32 = 2
)

// fitsPlaces reports whether d can be stored with the given number of
// decimal places without rounding. Trailing zeros are accepted.
func fitsPlaces(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// LineItem is a single ordered good.
type LineItem struct {
	ID                  int64
	OrderID             int64
	Description         string
	Quantity            decimal.Decimal
	QuantityReceived    decimal.Decimal
	UnitPrice           decimal.Decimal
	DiscrepancyType     DiscrepancyType
	DiscrepancyNotes    string
	DiscrepancyResolved bool
	ResolutionNotes     string
	QualityNotes        string
}

// Remaining returns the quantity still expected.
func (li LineItem) Remaining() decimal.Decimal {
	return li.Quantity.Sub(li.QuantityReceived)
}

// IsComplete reports whether the full quantity has been received.
func (li LineItem) IsComplete() bool {
	return li.QuantityReceived.Equal(li.Quantity)
}

// HasOpenDiscrepancy reports a recorded discrepancy awaiting resolution.
func (li LineItem) HasOpenDiscrepancy() bool {
	return li.DiscrepancyType != DiscrepancyNone && !li.DiscrepancyResolved
}

// LineTotal is quantity times unit price.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// EligibleForAssets returns items with something received, the set the
// asset-generation service may turn into tracked assets.
func EligibleForAssets(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.QuantityReceived.IsPositive() {
			out = append(out, item)
		}
	}
	return out
}

// ParseOrderStatus maps any legacy spelling onto the canonical status.
// Case, spaces and hyphens are ignored; "cancelled" and "partial" are accepted.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	key := normalizeStatusKey(raw)
	switch key {
	case "CANCELLED":
		return StatusCanceled, nil
	case "PARTIAL", "PARTIALLYRECEIVED":
		return StatusPartiallyReceived, nil
	}
	status := OrderStatus(key)
	if !status.IsValid() {
		return "", &FieldError{Field: "status", Message: fmt.Sprintf("unknown order status %q", raw)}
	}
	return status, nil
}

// ParseDeliveryStatus maps any legacy spelling onto the canonical delivery status.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	key := normalizeStatusKey(raw)
	switch key {
	case "INTRANSIT":
		return DeliveryInTransit, nil
	case "FAILED", "FAILEDDELIVERY":
		return DeliveryFailed, nil
	case "PARTIALLYRECEIVED", "PARTIALLY_RECEIVED":
		return DeliveryPartial, nil
	}
	status := DeliveryStatus(key)
	if !status.IsValid() {
		return "", &FieldError{Field: "delivery_status", Message: fmt.Sprintf("unknown delivery status %q", raw)}
	}
	return status, nil
}

// ParseDiscrepancyType maps a user supplied discrepancy type.
func ParseDiscrepancyType(raw string) (DiscrepancyType, error) {
	key := normalizeStatusKey(raw)
	switch key {
	case "", "NONE":
		return DiscrepancyNone, nil
	case "SHORT", "SHORTSHIPMENT":
		return DiscrepancyShortShipment, nil
	case "WRONGITEM":
		return DiscrepancyWrongItem, nil
	case "QUALITY", "QUALITYISSUE":
		return DiscrepancyQualityIssue, nil
	}
	t := DiscrepancyType(key)
	if !t.IsValid() {
		return "", &FieldError{Field: "discrepancy_type", Message: fmt.Sprintf("unknown discrepancy type %q", raw)}
	}
	return t, nil
}

func normalizeStatusKey(raw string) string {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	// "PARTIALLY_RECEIVED" keeps its underscore, compact forms lose theirs.
	if OrderStatus(key).IsValid() || DeliveryStatus(key).IsValid() || DiscrepancyType(key).IsValid() {
		return key
	}
	return strings.ReplaceAll(key, "_", "")
}
