package procurement

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ResolutionAction is the outcome chosen when resolving a partial delivery.
type ResolutionAction string

const (
	ActionDocumentOnly       ResolutionAction = "document_only"
	ActionRescheduleDelivery ResolutionAction = "reschedule_delivery"
	ActionMarkComplete       ResolutionAction = "mark_complete"
)

// IsValid reports whether the action is known.
func (a ResolutionAction) IsValid() bool {
	switch a {
	case ActionDocumentOnly, ActionRescheduleDelivery, ActionMarkComplete:
		return true
	}
	return false
}

// ResolveItems marks the selected item discrepancies resolved. Every selected
// item must belong to the order, have an open discrepancy and carry a note;
// the first failure aborts the call with nothing applied.
func ResolveItems(order Order, items []LineItem, notesByItem map[int64]string) ([]LineItem, error) {
	if len(notesByItem) == 0 {
		return items, required("item_ids")
	}
	index := make(map[int64]int, len(items))
	for i, item := range items {
		index[item.ID] = i
	}
	ids := make([]int64, 0, len(notesByItem))
	for id := range notesByItem {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		pos, ok := index[id]
		if !ok || items[pos].OrderID != order.ID {
			return items, &FieldError{Field: "item_id", ItemID: id, Message: "does not belong to this order"}
		}
		item := items[pos]
		if item.DiscrepancyType == DiscrepancyNone {
			return items, &FieldError{Field: "item_id", ItemID: id, Message: "has no recorded discrepancy"}
		}
		if item.DiscrepancyResolved {
			return items, &FieldError{Field: "item_id", ItemID: id, Message: "discrepancy already resolved"}
		}
		if isBlank(notesByItem[id]) {
			return items, &FieldError{Field: "resolution_notes", ItemID: id, Message: "is required"}
		}
	}

	updated := make([]LineItem, len(items))
	copy(updated, items)
	for _, id := range ids {
		item := &updated[index[id]]
		item.DiscrepancyResolved = true
		item.ResolutionNotes = strings.TrimSpace(notesByItem[id])
	}
	return updated, nil
}

// ResolveOrder settles a received-but-partial order as a whole.
func ResolveOrder(order Order, notes string, action ResolutionAction, at time.Time) (Order, error) {
	if order.Status != StatusReceived || order.DeliveryStatus != DeliveryPartial {
		return order, stateError("order resolution", order)
	}
	if isBlank(notes) {
		return order, required("resolution_notes")
	}
	if !action.IsValid() {
		return order, &FieldError{Field: "action", Message: fmt.Sprintf("unknown resolution action %q", action)}
	}
	if at.IsZero() {
		at = time.Now()
	}
	next := order
	next.ResolutionNotes = strings.TrimSpace(notes)
	switch action {
	case ActionRescheduleDelivery:
		next.Status = StatusApproved
		if order.ScheduledDeliveryDate != nil {
			next.DeliveryStatus = DeliveryScheduled
		} else {
			next.DeliveryStatus = DeliveryPending
		}
	case ActionMarkComplete:
		next.DeliveryStatus = DeliveryReceived
	}
	next.UpdatedAt = at
	return next, nil
}

// FlagDiscrepancy records an explicit quality or shipment problem on one item,
// independent of the received quantity.
func FlagDiscrepancy(order Order, item LineItem, kind DiscrepancyType, notes string) (LineItem, error) {
	if order.Status != StatusPartiallyReceived && order.Status != StatusReceived {
		return item, stateError("discrepancy flag", order)
	}
	if item.OrderID != order.ID {
		return item, &FieldError{Field: "item_id", ItemID: item.ID, Message: "does not belong to this order"}
	}
	if kind == DiscrepancyNone || !kind.IsValid() {
		return item, &FieldError{Field: "discrepancy_type", ItemID: item.ID, Message: "must name a discrepancy"}
	}
	if isBlank(notes) {
		return item, &FieldError{Field: "discrepancy_notes", ItemID: item.ID, Message: "is required"}
	}
	item.DiscrepancyType = kind
	item.DiscrepancyNotes = strings.TrimSpace(notes)
	item.DiscrepancyResolved = false
	item.ResolutionNotes = ""
	return item, nil
}
