package procurement

import "time"

var allowedTransitions = map[OrderStatus]map[OrderStatus]struct{}{
	StatusDraft: {
		StatusPending:  {},
		StatusCanceled: {},
	},
	StatusPending: {
		StatusApproved: {},
		StatusRejected: {},
		StatusCanceled: {},
	},
	StatusApproved: {
		StatusCanceled: {},
		StatusOrdered:  {},
	},
	StatusOrdered: {
		StatusPartiallyReceived: {},
		StatusReceived:          {},
	},
	StatusPartiallyReceived: {
		StatusReceived: {},
	},
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to OrderStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// ValidateTransition returns a *TransitionError when from -> to is illegal.
func ValidateTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// TransitionInput carries the per-target details of a status change.
type TransitionInput struct {
	To              OrderStatus
	ActorID         int64
	RejectionReason string
	Cancellation    CancellationRequest
	At              time.Time
}

// Transition applies a status change to a copy of order. Cancellation runs the
// cancellation guard; rejection requires a reason. The input order is never mutated.
func Transition(order Order, in TransitionInput) (Order, error) {
	if err := ValidateTransition(order.Status, in.To); err != nil {
		return order, err
	}
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	next := order
	switch in.To {
	case StatusCanceled:
		if err := CheckCancellation(order.Status, in.Cancellation); err != nil {
			return order, err
		}
		applyCancellation(&next, in.Cancellation, in.ActorID, at)
	case StatusRejected:
		if isBlank(in.RejectionReason) {
			return order, required("rejection_reason")
		}
		next.RejectionReason = in.RejectionReason
	case StatusApproved:
		next.ApprovedBy = in.ActorID
		next.ApprovedAt = &at
	}
	next.Status = in.To
	next.UpdatedAt = at
	return next, nil
}

var allowedDeliveryTransitions = map[DeliveryStatus]map[DeliveryStatus]struct{}{
	DeliveryPending: {
		DeliveryScheduled: {},
	},
	DeliveryScheduled: {
		DeliveryInTransit: {},
		DeliveryDelayed:   {},
	},
	DeliveryInTransit: {
		DeliveryDelivered: {},
		DeliveryDelayed:   {},
		DeliveryFailed:    {},
	},
	DeliveryDelayed: {
		DeliveryScheduled: {},
		DeliveryInTransit: {},
		DeliveryDelivered: {},
		DeliveryFailed:    {},
	},
	DeliveryFailed: {
		DeliveryScheduled: {},
	},
	DeliveryPartial: {
		DeliveryScheduled: {},
		DeliveryInTransit: {},
		DeliveryDelivered: {},
	},
}

// CanTransitionDelivery reports whether from -> to is a tracked delivery move.
func CanTransitionDelivery(from, to DeliveryStatus) bool {
	next, ok := allowedDeliveryTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// DeliveryInput carries a delivery tracking update.
type DeliveryInput struct {
	To            DeliveryStatus
	ScheduledDate *time.Time
	DeliveredAt   *time.Time
	At            time.Time
}

// TransitionDelivery applies a delivery tracking update to a copy of order.
// Partial and Received are set only by reconciliation and resolution.
func TransitionDelivery(order Order, in DeliveryInput) (Order, error) {
	if !order.Status.CanReceive() {
		return order, stateError("delivery update", order)
	}
	if !CanTransitionDelivery(order.DeliveryStatus, in.To) {
		return order, &DeliveryTransitionError{From: order.DeliveryStatus, To: in.To}
	}
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	next := order
	switch in.To {
	case DeliveryScheduled:
		if in.ScheduledDate == nil {
			return order, required("scheduled_delivery_date")
		}
		date := *in.ScheduledDate
		next.ScheduledDeliveryDate = &date
	case DeliveryDelivered:
		delivered := at
		if in.DeliveredAt != nil {
			delivered = *in.DeliveredAt
		}
		next.ActualDeliveryDate = &delivered
	}
	next.DeliveryStatus = in.To
	next.UpdatedAt = at
	return next, nil
}
