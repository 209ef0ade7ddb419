package procurement

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func receivableOrder() (Order, []LineItem) {
	order := Order{ID: 10, Status: StatusApproved, DeliveryStatus: DeliveryDelivered}
	items := []LineItem{{ID: 100, OrderID: 10, Description: "Rebar 12mm", Quantity: dec("10"), QuantityReceived: decimal.Zero, UnitPrice: dec("4.25")}}
	return order, items
}

func receive(qty string) ReceiptSubmission {
	return ReceiptSubmission{Items: map[int64]ItemReceipt{100: {Quantity: dec(qty)}}}
}

func TestApplyReceiptPartialThenComplete(t *testing.T) {
	order, items := receivableOrder()

	order, items, res, err := ApplyReceipt(order, items, receive("6"), fixedNow)
	require.NoError(t, err)
	require.True(t, items[0].QuantityReceived.Equal(dec("6")))
	require.Equal(t, StatusPartiallyReceived, order.Status)
	require.Equal(t, DeliveryPartial, order.DeliveryStatus)
	require.Len(t, res.Deltas, 1)
	require.True(t, res.Deltas[0].Remaining.Equal(dec("4")))

	order, items, res, err = ApplyReceipt(order, items, receive("4"), fixedNow)
	require.NoError(t, err)
	require.True(t, items[0].QuantityReceived.Equal(dec("10")))
	require.Equal(t, StatusReceived, order.Status)
	require.Equal(t, DeliveryReceived, order.DeliveryStatus)
	require.Equal(t, StatusReceived, res.Status)
	require.Len(t, res.EligibleAssets, 1)
}

func TestApplyReceiptOverReceiveRejected(t *testing.T) {
	order, items := receivableOrder()
	order, items, _, err := ApplyReceipt(order, items, receive("6"), fixedNow)
	require.NoError(t, err)

	next, after, _, err := ApplyReceipt(order, items, receive("5"), fixedNow)
	require.ErrorIs(t, err, ErrQuantityOutOfRange)
	var qerr *QuantityError
	require.True(t, errors.As(err, &qerr))
	require.Equal(t, int64(100), qerr.ItemID)
	require.True(t, qerr.Max.Equal(dec("4")))
	require.True(t, after[0].QuantityReceived.Equal(dec("6")))
	require.Equal(t, StatusPartiallyReceived, next.Status)
}

func TestApplyReceiptRejectsFinerThanStoredPrecision(t *testing.T) {
	order, items := receivableOrder()

	_, got, _, err := ApplyReceipt(order, items, receive("9.9996"), fixedNow)
	require.ErrorIs(t, err, ErrValidation)
	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	require.Equal(t, int64(100), fieldErr.ItemID)
	require.True(t, got[0].QuantityReceived.IsZero())

	order, got, _, err = ApplyReceipt(order, items, receive("9.9990"), fixedNow)
	require.NoError(t, err)
	require.True(t, got[0].QuantityReceived.Equal(dec("9.999")))
	require.Equal(t, StatusPartiallyReceived, order.Status)
}

func TestApplyReceiptIsAllOrNothing(t *testing.T) {
	order, items := receivableOrder()
	items = append(items, LineItem{ID: 101, OrderID: 10, Quantity: dec("2"), QuantityReceived: decimal.Zero, UnitPrice: dec("1")})
	sub := ReceiptSubmission{Items: map[int64]ItemReceipt{
		100: {Quantity: dec("3")},
		101: {Quantity: dec("3")},
	}}
	_, after, _, err := ApplyReceipt(order, items, sub, fixedNow)
	require.ErrorIs(t, err, ErrQuantityOutOfRange)
	for _, item := range after {
		require.True(t, item.QuantityReceived.IsZero())
	}
	require.True(t, items[0].QuantityReceived.IsZero())
}

func TestApplyReceiptRejections(t *testing.T) {
	order, items := receivableOrder()

	_, _, _, err := ApplyReceipt(order, items, receive("0"), fixedNow)
	require.ErrorIs(t, err, ErrEmptyReceipt)

	_, _, _, err = ApplyReceipt(order, items, receive("-1"), fixedNow)
	require.ErrorIs(t, err, ErrQuantityOutOfRange)

	_, _, _, err = ApplyReceipt(order, items, ReceiptSubmission{Items: map[int64]ItemReceipt{999: {Quantity: dec("1")}}}, fixedNow)
	require.ErrorIs(t, err, ErrValidation)

	inTransit := order
	inTransit.DeliveryStatus = DeliveryInTransit
	_, _, _, err = ApplyReceipt(inTransit, items, receive("1"), fixedNow)
	require.ErrorIs(t, err, ErrInvalidState)

	draft := order
	draft.Status = StatusDraft
	_, _, _, err = ApplyReceipt(draft, items, receive("1"), fixedNow)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestApplyReceiptCloseShortFlagsShortItems(t *testing.T) {
	order, items := receivableOrder()
	sub := receive("7")
	sub.CloseShort = true
	sub.Notes = "vendor out of stock"

	next, after, _, err := ApplyReceipt(order, items, sub, fixedNow)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, next.Status)
	require.Equal(t, DeliveryPartial, next.DeliveryStatus)
	require.Equal(t, "vendor out of stock", next.ReceiptNotes)
	require.Equal(t, DiscrepancyShortShipment, after[0].DiscrepancyType)
	require.True(t, after[0].HasOpenDiscrepancy())
	require.Equal(t, "short by 3", after[0].DiscrepancyNotes)
}

func TestApplyReceiptKeepsQualityNotes(t *testing.T) {
	order, items := receivableOrder()
	sub := ReceiptSubmission{Items: map[int64]ItemReceipt{100: {Quantity: dec("2"), QualityNotes: " two bent "}}}
	_, after, _, err := ApplyReceipt(order, items, sub, fixedNow)
	require.NoError(t, err)
	require.Equal(t, "two bent", after[0].QualityNotes)
}
