package procurement

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// CreateOrderInput is the payload accepted when drafting a new order.
type CreateOrderInput struct {
	PONumber              string            `json:"po_number" validate:"omitempty,max=64"`
	VendorID              int64             `json:"vendor_id" validate:"required,gt=0"`
	ProjectID             int64             `json:"project_id" validate:"required,gt=0"`
	TaxAmount             decimal.Decimal   `json:"tax_amount"`
	DiscountAmount        decimal.Decimal   `json:"discount_amount"`
	ScheduledDeliveryDate *time.Time        `json:"scheduled_delivery_date"`
	DateNeeded            *time.Time        `json:"date_needed"`
	Notes                 string            `json:"notes" validate:"max=2000"`
	Items                 []CreateItemInput `json:"items" validate:"required,min=1,dive"`
}

// CreateItemInput is one line of a new order.
type CreateItemInput struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func buildOrder(input CreateOrderInput, actorID int64, at time.Time) (Order, []LineItem, error) {
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Order{}, nil, &FieldError{Field: fieldPath(verrs[0].Namespace()), Message: "failed " + verrs[0].Tag() + " check"}
		}
		return Order{}, nil, err
	}
	if input.TaxAmount.IsNegative() {
		return Order{}, nil, &FieldError{Field: "tax_amount", Message: "must not be negative"}
	}
	if input.DiscountAmount.IsNegative() {
		return Order{}, nil, &FieldError{Field: "discount_amount", Message: "must not be negative"}
	}
	if !fitsPlaces(input.TaxAmount, MoneyPlaces) {
		return Order{}, nil, &FieldError{Field: "tax_amount", Message: "must have at most 2 decimal places"}
	}
	if !fitsPlaces(input.DiscountAmount, MoneyPlaces) {
		return Order{}, nil, &FieldError{Field: "discount_amount", Message: "must have at most 2 decimal places"}
	}

	subtotal := decimal.Zero
	items := make([]LineItem, 0, len(input.Items))
	for _, in := range input.Items {
		if !in.Quantity.IsPositive() {
			return Order{}, nil, &FieldError{Field: "items.quantity", Message: "must be greater than zero"}
		}
		if in.UnitPrice.IsNegative() {
			return Order{}, nil, &FieldError{Field: "items.unit_price", Message: "must not be negative"}
		}
		if !fitsPlaces(in.Quantity, QuantityPlaces) {
			return Order{}, nil, &FieldError{Field: "items.quantity", Message: "must have at most 3 decimal places"}
		}
		if !fitsPlaces(in.UnitPrice, MoneyPlaces) {
			return Order{}, nil, &FieldError{Field: "items.unit_price", Message: "must have at most 2 decimal places"}
		}
		item := LineItem{
			Description:      strings.TrimSpace(in.Description),
			Quantity:         in.Quantity,
			QuantityReceived: decimal.Zero,
			UnitPrice:        in.UnitPrice,
		}
		subtotal = subtotal.Add(item.LineTotal())
		items = append(items, item)
	}

	subtotal = subtotal.Round(MoneyPlaces)
	netTotal := ComputeNetTotal(subtotal, input.TaxAmount, input.DiscountAmount)
	if netTotal.IsNegative() {
		return Order{}, nil, &FieldError{Field: "discount_amount", Message: "must not exceed subtotal plus tax"}
	}

	deliveryStatus := DeliveryPending
	if input.ScheduledDeliveryDate != nil {
		deliveryStatus = DeliveryScheduled
	}
	order := Order{
		PONumber:              strings.TrimSpace(input.PONumber),
		Status:                StatusDraft,
		DeliveryStatus:        deliveryStatus,
		VendorID:              input.VendorID,
		ProjectID:             input.ProjectID,
		Subtotal:              subtotal,
		TaxAmount:             input.TaxAmount,
		DiscountAmount:        input.DiscountAmount,
		NetTotal:              netTotal,
		ScheduledDeliveryDate: input.ScheduledDeliveryDate,
		DateNeeded:            input.DateNeeded,
		RequestedBy:           actorID,
		Notes:                 strings.TrimSpace(input.Notes),
		Version:               1,
		CreatedAt:             at,
		UpdatedAt:             at,
	}
	return order, items, nil
}

// fieldPath turns "CreateOrderInput.items[0].description" into "items.description".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if idx := strings.IndexByte(p, '['); idx >= 0 {
			parts[i] = p[:idx]
		}
	}
	return strings.Join(parts, ".")
}
