package procurement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ItemReceipt is the quantity received now for one line item.
type ItemReceipt struct {
	Quantity     decimal.Decimal `json:"quantity_received_now"`
	QualityNotes string          `json:"quality_notes"`
}

// ReceiptSubmission is one receiving event against an order.
type ReceiptSubmission struct {
	Items map[int64]ItemReceipt
	Notes string
	// CloseShort accepts the delivery as final even when items are short.
	// Short items are flagged as short shipments awaiting resolution.
	CloseShort bool
}

// AppliedDelta reports what a receipt changed on one item.
type AppliedDelta struct {
	ItemID           int64           `json:"item_id"`
	Applied          decimal.Decimal `json:"applied"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	Remaining        decimal.Decimal `json:"remaining"`
}

// ReceiptResult is returned to the caller for display.
type ReceiptResult struct {
	OrderID         int64          `json:"order_id"`
	Status          OrderStatus    `json:"status"`
	DeliveryStatus  DeliveryStatus `json:"delivery_status"`
	Deltas          []AppliedDelta `json:"deltas"`
	EligibleAssets  []LineItem     `json:"-"`
	AssetsRequested bool           `json:"assets_requested"`
}

// ApplyReceipt validates the whole submission before touching anything and
// returns updated copies of the order and its items.
func ApplyReceipt(order Order, items []LineItem, sub ReceiptSubmission, at time.Time) (Order, []LineItem, ReceiptResult, error) {
	if !order.Status.CanReceive() || (order.DeliveryStatus != DeliveryDelivered && order.DeliveryStatus != DeliveryPartial) {
		return order, items, ReceiptResult{}, stateError("receipt", order)
	}

	index := make(map[int64]int, len(items))
	for i, item := range items {
		index[item.ID] = i
	}

	ids := make([]int64, 0, len(sub.Items))
	for id := range sub.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	anyPositive := false
	for _, id := range ids {
		pos, ok := index[id]
		if !ok {
			return order, items, ReceiptResult{}, &FieldError{Field: "item_id", ItemID: id, Message: "does not belong to this order"}
		}
		qty := sub.Items[id].Quantity
		remaining := items[pos].Remaining()
		if qty.IsNegative() || qty.GreaterThan(remaining) {
			return order, items, ReceiptResult{}, &QuantityError{ItemID: id, Requested: qty, Min: decimal.Zero, Max: remaining}
		}
		if !fitsPlaces(qty, QuantityPlaces) {
			return order, items, ReceiptResult{}, &FieldError{Field: "quantity_received_now", ItemID: id, Message: "must have at most 3 decimal places"}
		}
		if qty.IsPositive() {
			anyPositive = true
		}
	}
	if !anyPositive {
		return order, items, ReceiptResult{}, ErrEmptyReceipt
	}

	if at.IsZero() {
		at = time.Now()
	}
	updated := make([]LineItem, len(items))
	copy(updated, items)

	deltas := make([]AppliedDelta, 0, len(ids))
	for _, id := range ids {
		receipt := sub.Items[id]
		item := &updated[index[id]]
		item.QuantityReceived = item.QuantityReceived.Add(receipt.Quantity)
		if notes := strings.TrimSpace(receipt.QualityNotes); notes != "" {
			item.QualityNotes = notes
		}
		deltas = append(deltas, AppliedDelta{
			ItemID:           id,
			Applied:          receipt.Quantity,
			QuantityReceived: item.QuantityReceived,
			Remaining:        item.Remaining(),
		})
	}

	next := order
	if notes := strings.TrimSpace(sub.Notes); notes != "" {
		next.ReceiptNotes = notes
	}
	complete := true
	for _, item := range updated {
		if !item.IsComplete() {
			complete = false
			break
		}
	}
	switch {
	case complete:
		next.Status = StatusReceived
		next.DeliveryStatus = DeliveryReceived
	case sub.CloseShort:
		flagShortItems(updated)
		next.Status = StatusReceived
		next.DeliveryStatus = DeliveryPartial
	default:
		next.Status = StatusPartiallyReceived
		next.DeliveryStatus = DeliveryPartial
	}
	next.UpdatedAt = at

	return next, updated, ReceiptResult{
		OrderID:        order.ID,
		Status:         next.Status,
		DeliveryStatus: next.DeliveryStatus,
		Deltas:         deltas,
		EligibleAssets: EligibleForAssets(updated),
	}, nil
}

func flagShortItems(items []LineItem) {
	for i := range items {
		item := &items[i]
		if item.IsComplete() || item.DiscrepancyType != DiscrepancyNone {
			continue
		}
		item.DiscrepancyType = DiscrepancyShortShipment
		item.DiscrepancyResolved = false
		item.DiscrepancyNotes = fmt.Sprintf("short by %s", item.Remaining())
	}
}
