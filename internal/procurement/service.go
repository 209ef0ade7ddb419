package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/sitetrack/internal/shared"
)

var tracer = otel.Tracer("github.com/odyssey-erp/sitetrack/internal/procurement")

const (
	approvalModule = "PO"
	auditEntity    = "procurement_order"
	receiptModule  = "procurement.receipt"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, []LineItem, error)
	ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error)
	ListOpenDeliveries(ctx context.Context) ([]Order, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// LockOrder loads the order and its items, holding a row lock until commit.
	LockOrder(ctx context.Context, id int64) (Order, []LineItem, error)
	CreateOrder(ctx context.Context, order Order) (int64, error)
	InsertLineItem(ctx context.Context, item LineItem) (int64, error)
	// UpdateOrder writes order if its Version is still current and returns it
	// with the new version. A stale version yields ErrConflict.
	UpdateOrder(ctx context.Context, order Order) (Order, error)
	UpdateLineItems(ctx context.Context, items []LineItem) error
	InsertReceipt(ctx context.Context, rec ReceiptRecord) error
}

// ReceiptRecord is the stored history row for one receipt.
type ReceiptRecord struct {
	OrderID    int64
	ActorID    int64
	Notes      string
	CloseShort bool
	Deltas     []AppliedDelta
	At         time.Time
}

// Authorizer answers whether a role may perform an action.
type Authorizer interface {
	Can(ctx context.Context, role, action string) (bool, error)
}

// TokenVerifier validates the anti-forgery token for the session in ctx.
type TokenVerifier interface {
	VerifyContext(ctx context.Context, token string) error
}

// Locker provides per-order mutual exclusion.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// BudgetSignal tells the project budget ledger about committed funds.
type BudgetSignal struct {
	OrderID   int64           `json:"order_id"`
	ProjectID int64           `json:"project_id"`
	ActorID   int64           `json:"actor_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
}

// BudgetLedger is the project budget collaborator.
type BudgetLedger interface {
	Reserve(ctx context.Context, signal BudgetSignal) error
	Release(ctx context.Context, signal BudgetSignal) error
}

// AssetItem is a received line item offered for asset generation.
type AssetItem struct {
	LineItemID  int64           `json:"line_item_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// AssetRequest asks the asset service to create tracked assets.
type AssetRequest struct {
	OrderID   int64       `json:"order_id"`
	ProjectID int64       `json:"project_id"`
	ActorID   int64       `json:"actor_id"`
	Items     []AssetItem `json:"items"`
}

// AssetRequester is the asset-generation collaborator.
type AssetRequester interface {
	RequestAssets(ctx context.Context, req AssetRequest) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
	List(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error)
}

// ApprovalPort records submit/approve/reject history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	EnsureSubmit(ctx context.Context, module string, ref uuid.UUID, actorID int64, note string) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// IdempotencyPort guards against replayed receipt submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsRecorder counts lifecycle activity.
type MetricsRecorder interface {
	ObserveTransition(from, to string)
	ObserveOperation(op, outcome string)
}

// Actor is the caller of a service operation.
type Actor struct {
	UserID    int64
	Role      string
	CSRFToken string
}

// ServiceConfig wires collaborators. Authorizer and CSRF are required; the
// service denies every call without them.
type ServiceConfig struct {
	Authorizer  Authorizer
	CSRF        TokenVerifier
	Locker      Locker
	LockTTL     time.Duration
	Budget      BudgetLedger
	Assets      AssetRequester
	Audit       AuditPort
	Approvals   ApprovalPort
	Idempotency IdempotencyPort
	Events      EventPublisher
	Metrics     MetricsRecorder
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service orchestrates procurement order flows.
type Service struct {
	repo RepositoryPort
	cfg  ServiceConfig
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{repo: repo, cfg: cfg}
}

var actionPermissions = map[string]string{
	ActionSubmit:   shared.PermProcurementOrdersSubmit,
	ActionApprove:  shared.PermProcurementOrdersApprove,
	ActionReject:   shared.PermProcurementOrdersReject,
	ActionOrder:    shared.PermProcurementOrdersOrder,
	ActionCancel:   shared.PermProcurementOrdersCancel,
	ActionDeliver:  shared.PermProcurementOrdersDeliver,
	ActionReceive:  shared.PermProcurementOrdersReceive,
	ActionFlagItem: shared.PermProcurementOrdersReceive,
	ActionResolve:  shared.PermProcurementOrdersResolve,
}

func transitionPermission(to OrderStatus) string {
	switch to {
	case StatusPending:
		return shared.PermProcurementOrdersSubmit
	case StatusApproved:
		return shared.PermProcurementOrdersApprove
	case StatusRejected:
		return shared.PermProcurementOrdersReject
	case StatusOrdered:
		return shared.PermProcurementOrdersOrder
	case StatusCanceled:
		return shared.PermProcurementOrdersCancel
	case StatusPartiallyReceived, StatusReceived:
		return shared.PermProcurementOrdersReceive
	}
	// Unreachable targets still pass through the engine, which rejects them.
	return shared.PermProcurementOrdersView
}

// CreateOrder validates input and persists a Draft order with its items.
func (s *Service) CreateOrder(ctx context.Context, actor Actor, input CreateOrderInput) (created Order, items []LineItem, err error) {
	ctx, span := tracer.Start(ctx, "procurement.CreateOrder")
	defer func() { s.finish(span, "create", err) }()

	if err = s.authorize(ctx, actor, shared.PermProcurementOrdersCreate, true); err != nil {
		return Order{}, nil, err
	}
	order, lines, err := buildOrder(input, actor.UserID, s.now())
	if err != nil {
		return Order{}, nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		for i := range lines {
			lines[i].OrderID = id
			itemID, err := tx.InsertLineItem(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = itemID
		}
		return nil
	})
	if err != nil {
		return Order{}, nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.recordAudit(ctx, actor.UserID, "PO_CREATE", order.ID, map[string]any{"number": order.DisplayNumber(), "net_total": order.NetTotal.String()})
	s.publish(ctx, newOrderEvent(EventOrderCreated, Order{}, order, actor.UserID, order.CreatedAt))
	return order, lines, nil
}

// Transition moves an order to in.To after re-checking the caller's rights.
// Canceling an approved order releases its budget inside the same transaction,
// so a hard ledger failure leaves the order untouched.
func (s *Service) Transition(ctx context.Context, actor Actor, orderID int64, in TransitionInput) (updated Order, err error) {
	ctx, span := tracer.Start(ctx, "procurement.Transition", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("order.to", string(in.To)),
	))
	defer func() { s.finish(span, "transition", err) }()

	if err = s.authorize(ctx, actor, transitionPermission(in.To), true); err != nil {
		return Order{}, err
	}
	in.ActorID = actor.UserID
	in.At = s.now()

	var before Order
	err = s.withOrder(ctx, orderID, func(ctx context.Context, tx TxRepository, order Order, _ []LineItem) error {
		next, err := Transition(order, in)
		if err != nil {
			return err
		}
		saved, err := tx.UpdateOrder(ctx, next)
		if err != nil {
			return err
		}
		// Funds are reserved on approval, so only an approved order has any to release.
		if in.To == StatusCanceled && order.Status == StatusApproved && s.cfg.Budget != nil {
			signal := BudgetSignal{OrderID: saved.ID, ProjectID: saved.ProjectID, ActorID: actor.UserID, Amount: saved.NetTotal, Reason: saved.CancellationReason}
			if err := s.cfg.Budget.Release(ctx, signal); err != nil {
				return fmt.Errorf("procurement: release budget for order %d: %w", saved.ID, err)
			}
		}
		before, updated = order, saved
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveTransition(string(before.Status), string(updated.Status))
	}
	s.recordApproval(ctx, actor.UserID, updated, in)
	if updated.Status == StatusApproved && s.cfg.Budget != nil {
		signal := BudgetSignal{OrderID: updated.ID, ProjectID: updated.ProjectID, ActorID: actor.UserID, Amount: updated.NetTotal}
		if err := s.cfg.Budget.Reserve(ctx, signal); err != nil {
			s.cfg.Logger.Warn("budget reservation signal failed", slog.Int64("order_id", updated.ID), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actor.UserID, "PO_"+string(updated.Status), updated.ID, map[string]any{"from": string(before.Status)})
	s.publish(ctx, newOrderEvent(EventOrderTransitioned, before, updated, actor.UserID, in.At))
	return updated, nil
}

// UpdateDelivery records a delivery tracking change.
func (s *Service) UpdateDelivery(ctx context.Context, actor Actor, orderID int64, in DeliveryInput) (updated Order, err error) {
	ctx, span := tracer.Start(ctx, "procurement.UpdateDelivery", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("delivery.to", string(in.To)),
	))
	defer func() { s.finish(span, "delivery", err) }()

	if err = s.authorize(ctx, actor, shared.PermProcurementOrdersDeliver, true); err != nil {
		return Order{}, err
	}
	in.At = s.now()
	var before Order
	err = s.withOrder(ctx, orderID, func(ctx context.Context, tx TxRepository, order Order, _ []LineItem) error {
		next, err := TransitionDelivery(order, in)
		if err != nil {
			return err
		}
		saved, err := tx.UpdateOrder(ctx, next)
		if err != nil {
			return err
		}
		before, updated = order, saved
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actor.UserID, "PO_DELIVERY_"+string(updated.DeliveryStatus), updated.ID, map[string]any{"from": string(before.DeliveryStatus)})
	s.publish(ctx, newOrderEvent(EventDeliveryUpdated, before, updated, actor.UserID, in.At))
	return updated, nil
}

// ReceiptCommand wraps a receipt submission with caller options.
type ReceiptCommand struct {
	Submission     ReceiptSubmission
	GenerateAssets bool
	IdempotencyKey string
}

// RecordReceipt applies received quantities. Receipts on one order are
// serialized by the order lock and the row lock; a replayed idempotency key
// is rejected with ErrConflict.
func (s *Service) RecordReceipt(ctx context.Context, actor Actor, orderID int64, cmd ReceiptCommand) (result ReceiptResult, err error) {
	ctx, span := tracer.Start(ctx, "procurement.RecordReceipt", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int("receipt.items", len(cmd.Submission.Items)),
	))
	defer func() { s.finish(span, "receipt", err) }()

	if err = s.authorize(ctx, actor, shared.PermProcurementOrdersReceive, true); err != nil {
		return ReceiptResult{}, err
	}
	key := strings.TrimSpace(cmd.IdempotencyKey)
	claimed := false
	if key != "" && s.cfg.Idempotency != nil {
		if err = s.cfg.Idempotency.CheckAndInsert(ctx, receiptModule+":"+key, receiptModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ReceiptResult{}, fmt.Errorf("%w: receipt %s already recorded", ErrConflict, key)
			}
			return ReceiptResult{}, err
		}
		claimed = true
	}

	at := s.now()
	var before, saved Order
	err = s.withOrder(ctx, orderID, func(ctx context.Context, tx TxRepository, order Order, items []LineItem) error {
		next, updatedItems, res, err := ApplyReceipt(order, items, cmd.Submission, at)
		if err != nil {
			return err
		}
		if saved, err = tx.UpdateOrder(ctx, next); err != nil {
			return err
		}
		if err := tx.UpdateLineItems(ctx, updatedItems); err != nil {
			return err
		}
		if err := tx.InsertReceipt(ctx, ReceiptRecord{
			OrderID:    order.ID,
			ActorID:    actor.UserID,
			Notes:      strings.TrimSpace(cmd.Submission.Notes),
			CloseShort: cmd.Submission.CloseShort,
			Deltas:     res.Deltas,
			At:         at,
		}); err != nil {
			return err
		}
		before, result = order, res
		return nil
	})
	if err != nil {
		if claimed {
			if delErr := s.cfg.Idempotency.Delete(ctx, receiptModule+":"+key); delErr != nil {
				s.cfg.Logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return ReceiptResult{}, err
	}

	if s.cfg.Metrics != nil && before.Status != saved.Status {
		s.cfg.Metrics.ObserveTransition(string(before.Status), string(saved.Status))
	}
	if cmd.GenerateAssets && len(result.EligibleAssets) > 0 && s.cfg.Assets != nil {
		req := AssetRequest{OrderID: saved.ID, ProjectID: saved.ProjectID, ActorID: actor.UserID}
		for _, item := range result.EligibleAssets {
			req.Items = append(req.Items, AssetItem{LineItemID: item.ID, Description: item.Description, Quantity: item.QuantityReceived, UnitPrice: item.UnitPrice})
		}
		if err := s.cfg.Assets.RequestAssets(ctx, req); err != nil {
			s.cfg.Logger.Warn("asset generation request failed", slog.Int64("order_id", saved.ID), slog.Any("error", err))
		} else {
			result.AssetsRequested = true
		}
	}
	s.recordAudit(ctx, actor.UserID, "PO_RECEIPT", saved.ID, map[string]any{
		"status":          string(saved.Status),
		"delivery_status": string(saved.DeliveryStatus),
		"items":           len(result.Deltas),
	})
	s.publish(ctx, newOrderEvent(EventReceiptRecorded, before, saved, actor.UserID, at))
	return result, nil
}

// FlagDiscrepancy records an explicit problem on one received item.
func (s *Service) FlagDiscrepancy(ctx context.Context, actor Actor, orderID, itemID int64, kind DiscrepancyType, notes string) (flagged LineItem, err error) {
	ctx, span := tracer.Start(ctx, "procurement.FlagDiscrepancy", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("item.id", itemID),
	))
	defer func() { s.finish(span, "flag", err) }()

	if err = s.authorize(ctx, actor, shared.PermProcurementOrdersReceive, true); err != nil {
		return LineItem{}, err
	}
	var order Order
	err = s.withOrder(ctx, orderID, func(ctx context.Context, tx TxRepository, o Order, items []LineItem) error {
		var target *LineItem
		for i := range items {
			if items[i].ID == itemID {
				target = &items[i]
				break
			}
		}
		if target == nil {
			return &FieldError{Field: "item_id", ItemID: itemID, Message: "does not belong to this order"}
		}
		updated, err := FlagDiscrepancy(o, *target, kind, notes)
		if err != nil {
			return err
		}
		o.UpdatedAt = s.now()
		if _, err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.UpdateLineItems(ctx, []LineItem{updated}); err != nil {
			return err
		}
		order, flagged = o, updated
		return nil
	})
	if err != nil {
		return LineItem{}, err
	}
	s.recordAudit(ctx, actor.UserID, "PO_DISCREPANCY_FLAG", orderID, map[string]any{"item_id": itemID, "type": string(kind)})
	s.publish(ctx, newOrderEvent(EventDiscrepancyFlagged, order, order, actor.UserID, order.UpdatedAt))
	return flagged, nil
}

// ResolveItems resolves item-level discrepancies, all or nothing.
func (s *Service) ResolveItems(ctx context.Context, actor Actor, orderID int64, notesByItem map[int64]string) (resolved []LineItem, err error) {
	ctx, span := tracer.Start(ctx, "procurement.ResolveItems", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int("items", len(notesByItem)),
	))
	defer func() { s.finish(span, "resolve_items", err) }()

	if err = s.authorize(ctx, actor, shared.PermProcurementOrdersResolve, true); err != nil {
		return nil, err
	}
	var order Order
	err = s.withOrder(ctx, orderID, func(ctx context.Context, tx TxRepository, o Order, items []LineItem) error {
		updated, err := ResolveItems(o, items, notesByItem)
		if err != nil {
			return err
		}
		changed := make([]LineItem, 0, len(notesByItem))
		for _, item := range updated {
			if _, ok := notesByItem[item.ID]; ok {
				changed = append(changed, item)
			}
		}
		o.UpdatedAt = s.now()
		if _, err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.UpdateLineItems(ctx, changed); err != nil {
			return err
		}
		order, resolved = o, changed
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(resolved))
	for _, item := range resolved {
		ids = append(ids, item.ID)
	}
	s.recordAudit(ctx, actor.UserID, "PO_ITEMS_RESOLVE", orderID, map[string]any{"item_ids": ids})
	s.publish(ctx, newOrderEvent(EventItemsResolved, order, order, actor.UserID, order.UpdatedAt))
	return resolved, nil
}

// ResolveOrder settles a received order whose delivery stayed partial.
func (s *Service) ResolveOrder(ctx context.Context, actor Actor, orderID int64, notes string, action ResolutionAction) (updated Order, err error) {
	ctx, span := tracer.Start(ctx, "procurement.ResolveOrder", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("resolution.action", string(action)),
	))
	defer func() { s.finish(span, "resolve_order", err) }()

	if err = s.authorize(ctx, actor, shared.PermProcurementOrdersResolve, true); err != nil {
		return Order{}, err
	}
	at := s.now()
	var before Order
	err = s.withOrder(ctx, orderID, func(ctx context.Context, tx TxRepository, order Order, _ []LineItem) error {
		next, err := ResolveOrder(order, notes, action, at)
		if err != nil {
			return err
		}
		saved, err := tx.UpdateOrder(ctx, next)
		if err != nil {
			return err
		}
		before, updated = order, saved
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if s.cfg.Metrics != nil && before.Status != updated.Status {
		s.cfg.Metrics.ObserveTransition(string(before.Status), string(updated.Status))
	}
	s.recordAudit(ctx, actor.UserID, "PO_RESOLVE", updated.ID, map[string]any{"action": string(action)})
	s.publish(ctx, newOrderEvent(EventOrderResolved, before, updated, actor.UserID, at))
	return updated, nil
}

// OrderDetail is an order with its items and display models.
type OrderDetail struct {
	Order              Order      `json:"-"`
	Items              []LineItem `json:"-"`
	View               OrderView  `json:"order"`
	ItemViews          []ItemView `json:"items"`
	EligibleAssetCount int        `json:"eligible_asset_count"`
}

// GetOrder loads one order. View.Actions holds only what the actor's role may do.
func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID int64) (OrderDetail, error) {
	if err := s.authorize(ctx, actor, shared.PermProcurementOrdersView, false); err != nil {
		return OrderDetail{}, err
	}
	order, items, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	var permitted []string
	for _, action := range AvailableActions(order, items) {
		ok, err := s.cfg.Authorizer.Can(ctx, actor.Role, actionPermissions[action])
		if err != nil {
			return OrderDetail{}, fmt.Errorf("procurement: authorize %s: %w", action, err)
		}
		if ok {
			permitted = append(permitted, action)
		}
	}
	detail := OrderDetail{
		Order:              order,
		Items:              items,
		View:               NewOrderView(order, s.now(), permitted),
		ItemViews:          make([]ItemView, 0, len(items)),
		EligibleAssetCount: len(EligibleForAssets(items)),
	}
	for _, item := range items {
		detail.ItemViews = append(detail.ItemViews, NewItemView(item))
	}
	return detail, nil
}

// OrderPage is one page of the order listing.
type OrderPage struct {
	Orders     []OrderView       `json:"orders"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListOrders returns the filtered order listing.
func (s *Service) ListOrders(ctx context.Context, actor Actor, filters ListFilters) (OrderPage, error) {
	if err := s.authorize(ctx, actor, shared.PermProcurementOrdersView, false); err != nil {
		return OrderPage{}, err
	}
	filters = filters.Normalize()
	if filters.Today.IsZero() {
		filters.Today = s.now()
	}
	orders, total, err := s.repo.ListOrders(ctx, filters)
	if err != nil {
		return OrderPage{}, err
	}
	page := OrderPage{
		Orders:     make([]OrderView, 0, len(orders)),
		Pagination: shared.NewPagination(filters.Page, filters.PerPage, total),
	}
	for _, o := range orders {
		page.Orders = append(page.Orders, NewOrderView(o, filters.Today, nil))
	}
	return page, nil
}

// DeliveryDashboard summarises open deliveries.
func (s *Service) DeliveryDashboard(ctx context.Context, actor Actor) (Dashboard, error) {
	if err := s.authorize(ctx, actor, shared.PermProcurementOrdersView, false); err != nil {
		return Dashboard{}, err
	}
	orders, err := s.repo.ListOpenDeliveries(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return BuildDashboard(orders, s.now()), nil
}

// OrderHistory collects audit and approval entries for one order.
type OrderHistory struct {
	Audit     []shared.AuditLog    `json:"audit"`
	Approvals []shared.ApprovalLog `json:"approvals"`
}

// History returns the recorded trail of an order.
func (s *Service) History(ctx context.Context, actor Actor, orderID int64) (OrderHistory, error) {
	if err := s.authorize(ctx, actor, shared.PermProcurementOrdersView, false); err != nil {
		return OrderHistory{}, err
	}
	if _, _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return OrderHistory{}, err
	}
	history := OrderHistory{Audit: []shared.AuditLog{}, Approvals: []shared.ApprovalLog{}}
	if s.cfg.Audit != nil {
		logs, err := s.cfg.Audit.List(ctx, auditEntity, strconv.FormatInt(orderID, 10))
		if err != nil {
			return OrderHistory{}, err
		}
		history.Audit = append(history.Audit, logs...)
	}
	if s.cfg.Approvals != nil {
		logs, err := s.cfg.Approvals.List(ctx, approvalModule, shared.ApprovalRef(approvalModule, orderID))
		if err != nil {
			return OrderHistory{}, err
		}
		history.Approvals = append(history.Approvals, logs...)
	}
	return history, nil
}

func (s *Service) authorize(ctx context.Context, actor Actor, perm string, mutating bool) error {
	if s.cfg.Authorizer == nil {
		return fmt.Errorf("%w: no authorizer configured", ErrForbidden)
	}
	ok, err := s.cfg.Authorizer.Can(ctx, actor.Role, perm)
	if err != nil {
		return fmt.Errorf("procurement: authorize %s: %w", perm, err)
	}
	if !ok {
		return fmt.Errorf("%w: role %q may not %s", ErrForbidden, actor.Role, perm)
	}
	if !mutating {
		return nil
	}
	if s.cfg.CSRF == nil {
		return fmt.Errorf("%w: csrf verifier not configured", ErrForbidden)
	}
	if err := s.cfg.CSRF.VerifyContext(ctx, actor.CSRFToken); err != nil {
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	return nil
}

// withOrder runs fn in a transaction holding both the per-order lock and the
// order row lock.
func (s *Service) withOrder(ctx context.Context, orderID int64, fn func(context.Context, TxRepository, Order, []LineItem) error) error {
	if s.cfg.Locker != nil {
		release, err := s.cfg.Locker.Acquire(ctx, shared.OrderLockKey(orderID), s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, shared.ErrLockHeld) {
				return fmt.Errorf("%w: order %d is being modified", ErrConflict, orderID)
			}
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.cfg.Logger.Warn("release order lock", slog.Int64("order_id", orderID), slog.Any("error", err))
			}
		}()
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, items, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, order, items)
	})
}

func (s *Service) recordApproval(ctx context.Context, actorID int64, order Order, in TransitionInput) {
	if s.cfg.Approvals == nil {
		return
	}
	ref := shared.ApprovalRef(approvalModule, order.ID)
	var err error
	switch order.Status {
	case StatusPending:
		err = s.cfg.Approvals.EnsureSubmit(ctx, approvalModule, ref, actorID, fmt.Sprintf("PO %s submitted", order.DisplayNumber()))
	case StatusApproved:
		err = s.cfg.Approvals.Record(ctx, shared.ApprovalLog{Module: approvalModule, RefID: ref, ActorID: actorID, Action: shared.ApprovalApprove, Note: fmt.Sprintf("PO %s approved", order.DisplayNumber())})
	case StatusRejected:
		err = s.cfg.Approvals.Record(ctx, shared.ApprovalLog{Module: approvalModule, RefID: ref, ActorID: actorID, Action: shared.ApprovalReject, Note: in.RejectionReason})
	}
	if err != nil {
		s.cfg.Logger.Warn("record approval", slog.Int64("order_id", order.ID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.cfg.Audit == nil {
		return
	}
	err := s.cfg.Audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: auditEntity, EntityID: strconv.FormatInt(orderID, 10), Meta: meta, At: s.now()})
	if err != nil {
		s.cfg.Logger.Warn("record audit", slog.String("action", action), slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, evt OrderEvent) {
	if s.cfg.Events == nil {
		return
	}
	body, err := evt.payload()
	if err == nil {
		err = s.cfg.Events.Publish(ctx, evt.key(), body)
	}
	if err != nil {
		s.cfg.Logger.Warn("publish order event", slog.String("type", evt.Type), slog.Int64("order_id", evt.OrderID), slog.Any("error", err))
	}
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(Kind(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveOperation(op, outcome)
	}
	span.End()
}

func (s *Service) now() time.Time {
	return s.cfg.Now().UTC()
}
