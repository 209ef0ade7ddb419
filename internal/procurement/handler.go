package procurement

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/sitetrack/internal/platform/httpx"
	"github.com/odyssey-erp/sitetrack/internal/rbac"
	"github.com/odyssey-erp/sitetrack/internal/shared"
)

// IdempotencyHeader carries the client key for receipt submissions.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers procurement order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProcurementOrdersView))
		r.Get("/", h.listOrders)
		r.Get("/dashboard", h.dashboard)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/history", h.history)

		r.With(h.rbac.RequireAny(shared.PermProcurementOrdersCreate)).Post("/", h.createOrder)
		r.Post("/{id}/transition", h.transition)
		r.With(h.rbac.RequireAny(shared.PermProcurementOrdersDeliver)).Post("/{id}/delivery", h.updateDelivery)
		r.With(h.rbac.RequireAny(shared.PermProcurementOrdersReceive)).Post("/{id}/receipts", h.recordReceipt)
		r.With(h.rbac.RequireAny(shared.PermProcurementOrdersReceive)).Post("/{id}/items/{itemID}/discrepancy", h.flagDiscrepancy)
		r.With(h.rbac.RequireAny(shared.PermProcurementOrdersResolve)).Post("/{id}/resolve-items", h.resolveItems)
		r.With(h.rbac.RequireAny(shared.PermProcurementOrdersResolve)).Post("/{id}/resolve", h.resolveOrder)
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filters, err := ParseListFilters(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.service.ListOrders(r.Context(), actor, filters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	dash, err := h.service.DeliveryDashboard(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetOrder(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	history, err := h.service.History(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var input CreateOrderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, items, err := h.service.CreateOrder(r.Context(), actor, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, NewItemView(item))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"order": NewOrderView(order, time.Now(), nil),
		"items": views,
	})
}

type transitionRequest struct {
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason"`
	CancellationRequest
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := ParseOrderStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.service.Transition(r.Context(), actor, id, TransitionInput{
		To:              to,
		RejectionReason: req.RejectionReason,
		Cancellation:    req.CancellationRequest,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": NewOrderView(order, time.Now(), nil)})
}

type deliveryRequest struct {
	DeliveryStatus        string     `json:"delivery_status"`
	ScheduledDeliveryDate *time.Time `json:"scheduled_delivery_date"`
	DeliveredAt           *time.Time `json:"delivered_at"`
}

func (h *Handler) updateDelivery(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req deliveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := ParseDeliveryStatus(req.DeliveryStatus)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.service.UpdateDelivery(r.Context(), actor, id, DeliveryInput{
		To:            to,
		ScheduledDate: req.ScheduledDeliveryDate,
		DeliveredAt:   req.DeliveredAt,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": NewOrderView(order, time.Now(), nil)})
}

type receiptRequest struct {
	Items          map[int64]ItemReceipt `json:"items"`
	ReceiptNotes   string                `json:"receipt_notes"`
	CloseShort     bool                  `json:"close_short"`
	GenerateAssets bool                  `json:"generate_assets"`
}

func (h *Handler) recordReceipt(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.service.RecordReceipt(r.Context(), actor, id, ReceiptCommand{
		Submission: ReceiptSubmission{
			Items:      req.Items,
			Notes:      req.ReceiptNotes,
			CloseShort: req.CloseShort,
		},
		GenerateAssets: req.GenerateAssets,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type discrepancyRequest struct {
	DiscrepancyType  string `json:"discrepancy_type"`
	DiscrepancyNotes string `json:"discrepancy_notes"`
}

func (h *Handler) flagDiscrepancy(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	var req discrepancyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	kind, err := ParseDiscrepancyType(req.DiscrepancyType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.service.FlagDiscrepancy(r.Context(), actor, id, itemID, kind, req.DiscrepancyNotes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewItemView(item))
}

type resolveItemsRequest struct {
	Items map[int64]string `json:"items"`
}

func (h *Handler) resolveItems(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req resolveItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.service.ResolveItems(r.Context(), actor, id, req.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, NewItemView(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": views})
}

type resolveOrderRequest struct {
	ResolutionNotes  string `json:"resolution_notes"`
	ResolutionAction string `json:"resolution_action"`
}

func (h *Handler) resolveOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req resolveOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	action := ResolutionAction(strings.ToLower(strings.TrimSpace(req.ResolutionAction)))
	order, err := h.service.ResolveOrder(r.Context(), actor, id, req.ResolutionNotes, action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": NewOrderView(order, time.Now(), nil)})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	principal, err := shared.PrincipalFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnauthorized, err))
		return Actor{}, false
	}
	return Actor{UserID: principal.UserID, Role: principal.Role, CSRFToken: r.Header.Get(shared.CSRFHeader)}, true
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (Actor, int64, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid order id", httpx.ErrValidation))
		return Actor{}, 0, false
	}
	return actor, id, true
}

var kindStatus = map[ErrorKind]int{
	KindInvalidTransition:  http.StatusConflict,
	KindValidation:         http.StatusUnprocessableEntity,
	KindInvalidState:       http.StatusConflict,
	KindQuantityOutOfRange: http.StatusUnprocessableEntity,
	KindEmptyReceipt:       http.StatusUnprocessableEntity,
	KindConflict:           http.StatusConflict,
	KindForbidden:          http.StatusForbidden,
	KindNotFound:           http.StatusNotFound,
}

var kindTitle = map[ErrorKind]string{
	KindInvalidTransition:  "Invalid Transition",
	KindValidation:         "Validation Failed",
	KindInvalidState:       "Invalid State",
	KindQuantityOutOfRange: "Quantity Out Of Range",
	KindEmptyReceipt:       "Empty Receipt",
	KindConflict:           "Conflict",
	KindForbidden:          "Forbidden",
	KindNotFound:           "Not Found",
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := Kind(err)
	status, known := kindStatus[kind]
	if !known {
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	problem := httpx.ProblemDetail{Type: string(kind), Title: kindTitle[kind], Status: status, Detail: err.Error()}
	var fieldErr *FieldError
	var qtyErr *QuantityError
	switch {
	case errors.As(err, &fieldErr):
		problem.InvalidParams = []httpx.InvalidParam{{Name: fieldErr.Field, Reason: fieldErr.Message, ItemID: fieldErr.ItemID}}
	case errors.As(err, &qtyErr):
		problem.InvalidParams = []httpx.InvalidParam{{
			Name:   "quantity_received_now",
			Reason: fmt.Sprintf("must be between %s and %s", qtyErr.Min, qtyErr.Max),
			ItemID: qtyErr.ItemID,
		}}
	}
	httpx.WriteProblem(w, problem)
}
