package procurement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTransition occurs when the requested status is not reachable.
	ErrInvalidTransition = errors.New("procurement: invalid transition")
	// ErrValidation indicates invalid or missing input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrInvalidState occurs when an action's status precondition is not met.
	ErrInvalidState = errors.New("procurement: invalid state")
	// ErrQuantityOutOfRange indicates a receipt quantity outside [0, remaining].
	ErrQuantityOutOfRange = errors.New("procurement: quantity out of range")
	// ErrEmptyReceipt indicates a receipt with nothing received.
	ErrEmptyReceipt = errors.New("procurement: empty receipt")
	// ErrConflict indicates a concurrent modification; reload and retry.
	ErrConflict = errors.New("procurement: concurrent modification")
	// ErrForbidden indicates an authorization or CSRF failure.
	ErrForbidden = errors.New("procurement: forbidden")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
)

// ErrorKind classifies procurement errors for callers and transports.
type ErrorKind string

const (
	KindInvalidTransition  ErrorKind = "invalid_transition"
	KindValidation         ErrorKind = "validation_error"
	KindInvalidState       ErrorKind = "invalid_state"
	KindQuantityOutOfRange ErrorKind = "quantity_out_of_range"
	KindEmptyReceipt       ErrorKind = "empty_receipt"
	KindConflict           ErrorKind = "conflict"
	KindForbidden          ErrorKind = "forbidden"
	KindNotFound           ErrorKind = "not_found"
	KindInternal           ErrorKind = "internal"
)

var kindBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrValidation, KindValidation},
	{ErrInvalidState, KindInvalidState},
	{ErrQuantityOutOfRange, KindQuantityOutOfRange},
	{ErrEmptyReceipt, KindEmptyReceipt},
	{ErrConflict, KindConflict},
	{ErrForbidden, KindForbidden},
	{ErrNotFound, KindNotFound},
}

// Kind returns the error kind of err, or KindInternal for anything unrecognised.
func Kind(err error) ErrorKind {
	for _, entry := range kindBySentinel {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}

// TransitionError reports an illegal status change.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("procurement: cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// DeliveryTransitionError reports an illegal delivery status change.
type DeliveryTransitionError struct {
	From DeliveryStatus
	To   DeliveryStatus
}

func (e *DeliveryTransitionError) Error() string {
	return fmt.Sprintf("procurement: cannot move delivery from %s to %s", e.From, e.To)
}

func (e *DeliveryTransitionError) Unwrap() error { return ErrInvalidTransition }

// FieldError names the input field that failed validation.
type FieldError struct {
	Field   string
	ItemID  int64
	Message string
}

func (e *FieldError) Error() string {
	if e.ItemID != 0 {
		return fmt.Sprintf("procurement: item %d %s: %s", e.ItemID, e.Field, e.Message)
	}
	return fmt.Sprintf("procurement: %s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

func required(field string) error {
	return &FieldError{Field: field, Message: "is required"}
}

// StateError reports an unmet status precondition.
type StateError struct {
	Action         string
	Status         OrderStatus
	DeliveryStatus DeliveryStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("procurement: %s not allowed with status %s and delivery %s", e.Action, e.Status, e.DeliveryStatus)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

func stateError(action string, o Order) error {
	return &StateError{Action: action, Status: o.Status, DeliveryStatus: o.DeliveryStatus}
}

// QuantityError reports a receipt quantity outside the allowed bounds.
type QuantityError struct {
	ItemID    int64
	Requested decimal.Decimal
	Min       decimal.Decimal
	Max       decimal.Decimal
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("procurement: item %d quantity %s outside [%s, %s]", e.ItemID, e.Requested, e.Min, e.Max)
}

func (e *QuantityError) Unwrap() error { return ErrQuantityOutOfRange }
