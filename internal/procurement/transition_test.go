package procurement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{StatusDraft, StatusPending, true},
		{StatusDraft, StatusCanceled, true},
		{StatusDraft, StatusApproved, false},
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusApproved, StatusOrdered, true},
		{StatusApproved, StatusPending, false},
		{StatusOrdered, StatusReceived, true},
		{StatusOrdered, StatusCanceled, false},
		{StatusPartiallyReceived, StatusReceived, true},
		{StatusReceived, StatusCanceled, false},
		{StatusRejected, StatusPending, false},
		{StatusCanceled, StatusDraft, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionInvalidLeavesOrderUntouched(t *testing.T) {
	order := Order{ID: 1, Status: StatusDraft}
	next, err := Transition(order, TransitionInput{To: StatusReceived, At: fixedNow})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, KindInvalidTransition, Kind(err))
	require.Equal(t, StatusDraft, next.Status)

	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, StatusDraft, terr.From)
	require.Equal(t, StatusReceived, terr.To)
}

func TestTransitionApproveStampsApprover(t *testing.T) {
	order := Order{ID: 1, Status: StatusPending}
	next, err := Transition(order, TransitionInput{To: StatusApproved, ActorID: 7, At: fixedNow})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, next.Status)
	require.Equal(t, int64(7), next.ApprovedBy)
	require.NotNil(t, next.ApprovedAt)
	require.True(t, next.ApprovedAt.Equal(fixedNow))
	require.Equal(t, StatusPending, order.Status)
}

func TestTransitionRejectRequiresReason(t *testing.T) {
	order := Order{ID: 1, Status: StatusPending}
	_, err := Transition(order, TransitionInput{To: StatusRejected, RejectionReason: "  ", At: fixedNow})
	require.ErrorIs(t, err, ErrValidation)

	var ferr *FieldError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, "rejection_reason", ferr.Field)

	next, err := Transition(order, TransitionInput{To: StatusRejected, RejectionReason: "over budget", At: fixedNow})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, next.Status)
	require.Equal(t, "over budget", next.RejectionReason)
}

func TestTransitionCancelDraft(t *testing.T) {
	order := Order{ID: 1, PONumber: "PO-1003", Status: StatusDraft}
	next, err := Transition(order, TransitionInput{
		To:      StatusCanceled,
		ActorID: 3,
		At:      fixedNow,
		Cancellation: CancellationRequest{
			Reason:    ReasonDuplicateOrder,
			Notes:     "dup of PO-1002",
			Confirmed: true,
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, next.Status)
	require.Equal(t, "duplicate_order", next.CancellationReason)
	require.Equal(t, "dup of PO-1002", next.CancellationNotes)
	require.Equal(t, int64(3), next.CanceledBy)
	require.NotNil(t, next.CanceledAt)
}

func TestTransitionDelivery(t *testing.T) {
	scheduled := fixedNow.AddDate(0, 0, 2)
	order := Order{ID: 1, Status: StatusOrdered, DeliveryStatus: DeliveryPending}

	_, err := TransitionDelivery(order, DeliveryInput{To: DeliveryScheduled, At: fixedNow})
	require.ErrorIs(t, err, ErrValidation)

	next, err := TransitionDelivery(order, DeliveryInput{To: DeliveryScheduled, ScheduledDate: &scheduled, At: fixedNow})
	require.NoError(t, err)
	require.Equal(t, DeliveryScheduled, next.DeliveryStatus)
	require.True(t, next.ScheduledDeliveryDate.Equal(scheduled))

	next, err = TransitionDelivery(next, DeliveryInput{To: DeliveryInTransit, At: fixedNow})
	require.NoError(t, err)
	next, err = TransitionDelivery(next, DeliveryInput{To: DeliveryDelivered, At: fixedNow})
	require.NoError(t, err)
	require.Equal(t, DeliveryDelivered, next.DeliveryStatus)
	require.NotNil(t, next.ActualDeliveryDate)
	require.True(t, next.ActualDeliveryDate.Equal(fixedNow))
}

func TestTransitionDeliveryRejectsDerivedStatesAndClosedOrders(t *testing.T) {
	order := Order{ID: 1, Status: StatusOrdered, DeliveryStatus: DeliveryDelivered}
	_, err := TransitionDelivery(order, DeliveryInput{To: DeliveryReceived, At: fixedNow})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = TransitionDelivery(Order{Status: StatusDraft, DeliveryStatus: DeliveryPending}, DeliveryInput{To: DeliveryScheduled, At: fixedNow})
	require.ErrorIs(t, err, ErrInvalidState)
}
