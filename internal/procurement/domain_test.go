package procurement

import (
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatusLegacySpellings(t *testing.T) {
	cases := map[string]OrderStatus{
		"approved":           StatusApproved,
		"Approved":           StatusApproved,
		" RECEIVED ":         StatusReceived,
		"Partially Received": StatusPartiallyReceived,
		"partially-received": StatusPartiallyReceived,
		"partial":            StatusPartiallyReceived,
		"cancelled":          StatusCanceled,
		"Canceled":           StatusCanceled,
	}
	for raw, want := range cases {
		got, err := ParseOrderStatus(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}
	_, err := ParseOrderStatus("shipped")
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseDeliveryStatusLegacySpellings(t *testing.T) {
	cases := map[string]DeliveryStatus{
		"in transit":      DeliveryInTransit,
		"In-Transit":      DeliveryInTransit,
		"intransit":       DeliveryInTransit,
		"failed":          DeliveryFailed,
		"Failed Delivery": DeliveryFailed,
		"delivered":       DeliveryDelivered,
		"PARTIAL":         DeliveryPartial,
	}
	for raw, want := range cases {
		got, err := ParseDeliveryStatus(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}
	_, err := ParseDeliveryStatus("lost")
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseDiscrepancyType(t *testing.T) {
	got, err := ParseDiscrepancyType("short shipment")
	require.NoError(t, err)
	require.Equal(t, DiscrepancyShortShipment, got)

	got, err = ParseDiscrepancyType("")
	require.NoError(t, err)
	require.Equal(t, DiscrepancyNone, got)
}

func TestComputeNetTotal(t *testing.T) {
	total := ComputeNetTotal(dec("100.10"), dec("8.25"), dec("5"))
	require.True(t, total.Equal(dec("103.35")))
}

func TestParseListFilters(t *testing.T) {
	q := url.Values{}
	q.Set("status", "approved")
	q.Set("delivery_status", "in transit")
	q.Set("vendor_id", "12")
	q.Set("overdue", "true")
	q.Set("per_page", "500")
	q.Set("search", "  rebar ")

	f, err := ParseListFilters(q)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, f.Status)
	require.Equal(t, DeliveryInTransit, f.DeliveryStatus)
	require.Equal(t, int64(12), f.VendorID)
	require.True(t, f.OverdueOnly)
	require.Equal(t, 1, f.Page)
	require.Equal(t, 100, f.PerPage)
	require.Equal(t, "rebar", f.Search)
	require.Equal(t, 0, f.Offset())

	q.Set("vendor_id", "abc")
	_, err = ParseListFilters(q)
	require.ErrorIs(t, err, ErrValidation)
}

func TestBuildOrder(t *testing.T) {
	scheduled := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	input := CreateOrderInput{
		PONumber:              " PO-2001 ",
		VendorID:              3,
		ProjectID:             9,
		TaxAmount:             dec("10"),
		DiscountAmount:        dec("2.5"),
		ScheduledDeliveryDate: &scheduled,
		Items: []CreateItemInput{
			{Description: "Cement", Quantity: dec("4"), UnitPrice: dec("12.50")},
			{Description: "Sand", Quantity: dec("1.5"), UnitPrice: dec("20")},
		},
	}
	order, items, err := buildOrder(input, 5, fixedNow)
	require.NoError(t, err)
	require.Equal(t, "PO-2001", order.PONumber)
	require.Equal(t, StatusDraft, order.Status)
	require.Equal(t, DeliveryScheduled, order.DeliveryStatus)
	require.True(t, order.Subtotal.Equal(dec("80")))
	require.True(t, order.NetTotal.Equal(dec("87.5")))
	require.Equal(t, int64(5), order.RequestedBy)
	require.Len(t, items, 2)
	require.True(t, items[0].QuantityReceived.Equal(decimal.Zero))
}

func TestBuildOrderValidation(t *testing.T) {
	base := CreateOrderInput{
		VendorID:  3,
		ProjectID: 9,
		Items:     []CreateItemInput{{Description: "Cement", Quantity: dec("1"), UnitPrice: dec("1")}},
	}

	noVendor := base
	noVendor.VendorID = 0
	_, _, err := buildOrder(noVendor, 1, fixedNow)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "vendor_id")

	noItems := base
	noItems.Items = nil
	_, _, err = buildOrder(noItems, 1, fixedNow)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "items")

	blankDesc := base
	blankDesc.Items = []CreateItemInput{{Quantity: dec("1"), UnitPrice: dec("1")}}
	_, _, err = buildOrder(blankDesc, 1, fixedNow)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "items.description")

	zeroQty := base
	zeroQty.Items = []CreateItemInput{{Description: "x", Quantity: dec("0"), UnitPrice: dec("1")}}
	_, _, err = buildOrder(zeroQty, 1, fixedNow)
	require.ErrorIs(t, err, ErrValidation)

	negTax := base
	negTax.TaxAmount = dec("-1")
	_, _, err = buildOrder(negTax, 1, fixedNow)
	require.ErrorIs(t, err, ErrValidation)

	bigDiscount := base
	bigDiscount.Items = []CreateItemInput{{Description: "Cement", Quantity: dec("1"), UnitPrice: dec("10.00")}}
	bigDiscount.DiscountAmount = dec("500")
	_, _, err = buildOrder(bigDiscount, 1, fixedNow)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "discount_amount")

	fullDiscount := bigDiscount
	fullDiscount.TaxAmount = dec("1.50")
	fullDiscount.DiscountAmount = dec("11.50")
	order, _, err := buildOrder(fullDiscount, 1, fixedNow)
	require.NoError(t, err)
	require.True(t, order.NetTotal.IsZero())

	fineQty := base
	fineQty.Items = []CreateItemInput{{Description: "Sand", Quantity: dec("1.0005"), UnitPrice: dec("1")}}
	_, _, err = buildOrder(fineQty, 1, fixedNow)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "items.quantity")

	finePrice := base
	finePrice.Items = []CreateItemInput{{Description: "Sand", Quantity: dec("1.500"), UnitPrice: dec("0.125")}}
	_, _, err = buildOrder(finePrice, 1, fixedNow)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "items.unit_price")

	fineTax := base
	fineTax.TaxAmount = dec("0.001")
	_, _, err = buildOrder(fineTax, 1, fixedNow)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "tax_amount")

	trailingZeros := base
	trailingZeros.Items = []CreateItemInput{{Description: "Sand", Quantity: dec("2.50000"), UnitPrice: dec("3.1000")}}
	_, _, err = buildOrder(trailingZeros, 1, fixedNow)
	require.NoError(t, err)

	fractional := base
	fractional.Items = []CreateItemInput{{Description: "Sand", Quantity: dec("1.333"), UnitPrice: dec("2.99")}}
	order, _, err = buildOrder(fractional, 1, fixedNow)
	require.NoError(t, err)
	require.Equal(t, "3.99", order.Subtotal.StringFixed(2))
	require.True(t, order.NetTotal.Equal(dec("3.99")))
}
