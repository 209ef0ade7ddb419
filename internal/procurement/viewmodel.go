package procurement

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// urgentWindow is how close date_needed must be for an order to count as urgent.
const urgentWindow = 3 * 24 * time.Hour

var moneyPrinter = message.NewPrinter(language.AmericanEnglish)

// Badge is a display label with a tone the templates map to colours.
type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

var statusBadges = map[OrderStatus]Badge{
	StatusDraft:             {Label: "Draft", Tone: "secondary"},
	StatusPending:           {Label: "Pending Approval", Tone: "warning"},
	StatusApproved:          {Label: "Approved", Tone: "info"},
	StatusOrdered:           {Label: "Ordered", Tone: "primary"},
	StatusPartiallyReceived: {Label: "Partially Received", Tone: "warning"},
	StatusReceived:          {Label: "Received", Tone: "success"},
	StatusRejected:          {Label: "Rejected", Tone: "danger"},
	StatusCanceled:          {Label: "Canceled", Tone: "dark"},
}

var deliveryBadges = map[DeliveryStatus]Badge{
	DeliveryPending:   {Label: "Pending", Tone: "secondary"},
	DeliveryScheduled: {Label: "Scheduled", Tone: "info"},
	DeliveryInTransit: {Label: "In Transit", Tone: "primary"},
	DeliveryDelivered: {Label: "Delivered", Tone: "success"},
	DeliveryDelayed:   {Label: "Delayed", Tone: "warning"},
	DeliveryFailed:    {Label: "Failed Delivery", Tone: "danger"},
	DeliveryPartial:   {Label: "Partial", Tone: "warning"},
	DeliveryReceived:  {Label: "Received", Tone: "success"},
}

// StatusBadge returns the display badge for an order status.
func StatusBadge(s OrderStatus) Badge {
	if b, ok := statusBadges[s]; ok {
		return b
	}
	return Badge{Label: string(s), Tone: "secondary"}
}

// DeliveryBadge returns the display badge for a delivery status.
func DeliveryBadge(s DeliveryStatus) Badge {
	if b, ok := deliveryBadges[s]; ok {
		return b
	}
	return Badge{Label: string(s), Tone: "secondary"}
}

// IsOverdue reports a scheduled delivery date in the past for goods that have
// not arrived yet.
func IsOverdue(o Order, today time.Time) bool {
	if o.ScheduledDeliveryDate == nil || !o.Status.CanReceive() || o.DeliveryStatus.IsArrived() {
		return false
	}
	return dateOnly(*o.ScheduledDeliveryDate).Before(dateOnly(today))
}

// IsUrgent reports an open order whose date_needed is at most three days away.
func IsUrgent(o Order, today time.Time) bool {
	if o.DateNeeded == nil || o.Status.IsTerminal() || o.Status == StatusReceived {
		return false
	}
	return !dateOnly(*o.DateNeeded).After(dateOnly(today).Add(urgentWindow))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatMoney renders an amount as US dollars with grouping, e.g. "$1,234.50".
func FormatMoney(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return moneyPrinter.Sprintf("$%v", number.Decimal(f, number.Scale(2)))
}

// FormatDate renders an optional calendar date.
func FormatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("Jan 2, 2006")
}

// Lifecycle actions offered to a user; each maps to a permission key.
const (
	ActionSubmit   = "submit"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionOrder    = "order"
	ActionCancel   = "cancel"
	ActionDeliver  = "deliver"
	ActionReceive  = "receive"
	ActionResolve  = "resolve"
	ActionFlagItem = "flag"
)

// AvailableActions lists what the order's current state allows, before any
// role check.
func AvailableActions(o Order, items []LineItem) []string {
	var actions []string
	switch o.Status {
	case StatusDraft:
		actions = append(actions, ActionSubmit, ActionCancel)
	case StatusPending:
		actions = append(actions, ActionApprove, ActionReject, ActionCancel)
	case StatusApproved:
		actions = append(actions, ActionOrder, ActionCancel, ActionDeliver)
	case StatusOrdered, StatusPartiallyReceived:
		actions = append(actions, ActionDeliver)
	}
	if o.Status.CanReceive() && (o.DeliveryStatus == DeliveryDelivered || o.DeliveryStatus == DeliveryPartial) {
		actions = append(actions, ActionReceive)
	}
	if o.Status == StatusPartiallyReceived || o.Status == StatusReceived {
		actions = append(actions, ActionFlagItem)
		open := o.Status == StatusReceived && o.DeliveryStatus == DeliveryPartial
		for _, item := range items {
			if item.HasOpenDiscrepancy() {
				open = true
				break
			}
		}
		if open {
			actions = append(actions, ActionResolve)
		}
	}
	return actions
}

// OrderView is the flat structure handed to the presentation layer.
type OrderView struct {
	ID                    int64    `json:"id"`
	Number                string   `json:"number"`
	Status                string   `json:"status"`
	StatusBadge           Badge    `json:"status_badge"`
	DeliveryStatus        string   `json:"delivery_status"`
	DeliveryBadge         Badge    `json:"delivery_badge"`
	VendorID              int64    `json:"vendor_id"`
	ProjectID             int64    `json:"project_id"`
	Subtotal              string   `json:"subtotal"`
	TaxAmount             string   `json:"tax_amount"`
	DiscountAmount        string   `json:"discount_amount"`
	NetTotal              string   `json:"net_total"`
	ScheduledDeliveryDate string   `json:"scheduled_delivery_date"`
	ActualDeliveryDate    string   `json:"actual_delivery_date"`
	DateNeeded            string   `json:"date_needed"`
	IsOverdue             bool     `json:"is_overdue"`
	IsUrgent              bool     `json:"is_urgent"`
	Actions               []string `json:"actions"`
}

// NewOrderView builds the display model for o as of today.
func NewOrderView(o Order, today time.Time, actions []string) OrderView {
	if actions == nil {
		actions = []string{}
	}
	return OrderView{
		ID:                    o.ID,
		Number:                o.DisplayNumber(),
		Status:                string(o.Status),
		StatusBadge:           StatusBadge(o.Status),
		DeliveryStatus:        string(o.DeliveryStatus),
		DeliveryBadge:         DeliveryBadge(o.DeliveryStatus),
		VendorID:              o.VendorID,
		ProjectID:             o.ProjectID,
		Subtotal:              FormatMoney(o.Subtotal),
		TaxAmount:             FormatMoney(o.TaxAmount),
		DiscountAmount:        FormatMoney(o.DiscountAmount),
		NetTotal:              FormatMoney(o.NetTotal),
		ScheduledDeliveryDate: FormatDate(o.ScheduledDeliveryDate),
		ActualDeliveryDate:    FormatDate(o.ActualDeliveryDate),
		DateNeeded:            FormatDate(o.DateNeeded),
		IsOverdue:             IsOverdue(o, today),
		IsUrgent:              IsUrgent(o, today),
		Actions:               actions,
	}
}

// ItemView is the display model for a line item.
type ItemView struct {
	ID                  int64  `json:"id"`
	Description         string `json:"description"`
	Quantity            string `json:"quantity"`
	QuantityReceived    string `json:"quantity_received"`
	Remaining           string `json:"remaining"`
	UnitPrice           string `json:"unit_price"`
	LineTotal           string `json:"line_total"`
	DiscrepancyType     string `json:"discrepancy_type,omitempty"`
	DiscrepancyNotes    string `json:"discrepancy_notes,omitempty"`
	DiscrepancyResolved bool   `json:"discrepancy_resolved"`
	ResolutionNotes     string `json:"resolution_notes,omitempty"`
	QualityNotes        string `json:"quality_notes,omitempty"`
}

// NewItemView builds the display model for a line item.
func NewItemView(li LineItem) ItemView {
	return ItemView{
		ID:                  li.ID,
		Description:         li.Description,
		Quantity:            li.Quantity.String(),
		QuantityReceived:    li.QuantityReceived.String(),
		Remaining:           li.Remaining().String(),
		UnitPrice:           FormatMoney(li.UnitPrice),
		LineTotal:           FormatMoney(li.LineTotal()),
		DiscrepancyType:     string(li.DiscrepancyType),
		DiscrepancyNotes:    li.DiscrepancyNotes,
		DiscrepancyResolved: li.DiscrepancyResolved,
		ResolutionNotes:     li.ResolutionNotes,
		QualityNotes:        li.QualityNotes,
	}
}

// Dashboard summarises delivery tracking for open orders.
type Dashboard struct {
	Total   int                    `json:"total"`
	Counts  map[DeliveryStatus]int `json:"counts"`
	Overdue []OrderView            `json:"overdue"`
	Urgent  []OrderView            `json:"urgent"`
}

// BuildDashboard aggregates orders by delivery status as of today.
func BuildDashboard(orders []Order, today time.Time) Dashboard {
	d := Dashboard{
		Counts:  make(map[DeliveryStatus]int),
		Overdue: []OrderView{},
		Urgent:  []OrderView{},
	}
	for _, o := range orders {
		d.Total++
		d.Counts[o.DeliveryStatus]++
		if IsOverdue(o, today) {
			d.Overdue = append(d.Overdue, NewOrderView(o, today, nil))
		}
		if IsUrgent(o, today) {
			d.Urgent = append(d.Urgent, NewOrderView(o, today, nil))
		}
	}
	return d
}
