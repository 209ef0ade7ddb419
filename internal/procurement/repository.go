package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sitetrack/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction. A serialization
// failure means another writer won the race and surfaces as ErrConflict.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return translateWriteError(err)
}

const poNumberConstraint = "purchase_orders_po_number_key"

// translateWriteError maps Postgres failures callers can act on to package errors.
func translateWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsConcurrentUpdate(err):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case db.IsUniqueViolation(err, poNumberConstraint):
		return &FieldError{Field: "po_number", Message: "already in use"}
	}
	return err
}

const orderColumns = `o.id, o.po_number, o.status, o.delivery_status, o.vendor_id, o.project_id,
	o.subtotal, o.tax_amount, o.discount_amount, o.net_total,
	o.scheduled_delivery_date, o.actual_delivery_date, o.date_needed,
	o.requested_by, COALESCE(o.approved_by, 0), o.approved_at, o.rejection_reason,
	o.cancellation_reason, o.custom_reason, o.cancellation_notes, o.vendor_notified,
	COALESCE(o.canceled_by, 0), o.canceled_at,
	o.receipt_notes, o.resolution_notes, o.notes, o.version, o.created_at, o.updated_at`

const itemColumns = `id, order_id, description, quantity, quantity_received, unit_price,
	discrepancy_type, discrepancy_notes, discrepancy_resolved, resolution_notes, quality_notes`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status, delivery string
	err := row.Scan(&o.ID, &o.PONumber, &status, &delivery, &o.VendorID, &o.ProjectID,
		&o.Subtotal, &o.TaxAmount, &o.DiscountAmount, &o.NetTotal,
		&o.ScheduledDeliveryDate, &o.ActualDeliveryDate, &o.DateNeeded,
		&o.RequestedBy, &o.ApprovedBy, &o.ApprovedAt, &o.RejectionReason,
		&o.CancellationReason, &o.CustomReason, &o.CancellationNotes, &o.VendorNotified,
		&o.CanceledBy, &o.CanceledAt,
		&o.ReceiptNotes, &o.ResolutionNotes, &o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	// Rows written before the enums were canonicalised may carry legacy spellings.
	if o.Status, err = ParseOrderStatus(status); err != nil {
		return Order{}, fmt.Errorf("procurement: order %d: %w", o.ID, err)
	}
	if o.DeliveryStatus, err = ParseDeliveryStatus(delivery); err != nil {
		return Order{}, fmt.Errorf("procurement: order %d: %w", o.ID, err)
	}
	return o, nil
}

func loadItems(ctx context.Context, q querier, orderID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM purchase_order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var item LineItem
		var kind string
		if err := rows.Scan(&item.ID, &item.OrderID, &item.Description, &item.Quantity, &item.QuantityReceived,
			&item.UnitPrice, &kind, &item.DiscrepancyNotes, &item.DiscrepancyResolved,
			&item.ResolutionNotes, &item.QualityNotes); err != nil {
			return nil, err
		}
		if item.DiscrepancyType, err = ParseDiscrepancyType(kind); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func getOrder(ctx context.Context, q querier, id int64, forUpdate bool) (Order, []LineItem, error) {
	sql := `SELECT ` + orderColumns + ` FROM purchase_orders o WHERE o.id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
		}
		return Order{}, nil, err
	}
	items, err := loadItems(ctx, q, id)
	if err != nil {
		return Order{}, nil, err
	}
	return order, items, nil
}

// GetOrder returns an order and its line items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, []LineItem, error) {
	return getOrder(ctx, r.pool, id, false)
}

// whereClause accumulates numbered predicates.
type whereClause struct {
	parts []string
	args  []any
}

func (w *whereClause) add(pred string, arg any) {
	w.args = append(w.args, arg)
	w.parts = append(w.parts, strings.ReplaceAll(pred, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *whereClause) String() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

var receivableStatuses = []string{string(StatusApproved), string(StatusOrdered), string(StatusPartiallyReceived)}

var arrivedDeliveries = []string{string(DeliveryDelivered), string(DeliveryPartial), string(DeliveryReceived)}

func listWhere(filters ListFilters) *whereClause {
	w := &whereClause{}
	if filters.Status != "" {
		w.add("o.status = ?", string(filters.Status))
	}
	if filters.DeliveryStatus != "" {
		w.add("o.delivery_status = ?", string(filters.DeliveryStatus))
	}
	if filters.VendorID > 0 {
		w.add("o.vendor_id = ?", filters.VendorID)
	}
	if filters.ProjectID > 0 {
		w.add("o.project_id = ?", filters.ProjectID)
	}
	if filters.Search != "" {
		w.add("(o.po_number ILIKE ? OR o.notes ILIKE ?)", "%"+filters.Search+"%")
	}
	if filters.OverdueOnly {
		w.add("o.scheduled_delivery_date < ?", dateOnly(filters.Today))
		w.add("o.status = ANY(?)", receivableStatuses)
		w.add("NOT (o.delivery_status = ANY(?))", arrivedDeliveries)
	}
	return w
}

// ListOrders returns a filtered page of orders and the total match count.
func (r *Repository) ListOrders(ctx context.Context, filters ListFilters) ([]Order, int, error) {
	filters = filters.Normalize()
	w := listWhere(filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders o`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(w.args)
	sql := `SELECT ` + orderColumns + ` FROM purchase_orders o` + w.String() +
		` ORDER BY o.created_at DESC, o.id DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args := append(append([]any{}, w.args...), filters.PerPage, filters.Offset())
	orders, err := r.scanOrders(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListOpenDeliveries returns receivable orders not yet fully received.
func (r *Repository) ListOpenDeliveries(ctx context.Context) ([]Order, error) {
	return r.scanOrders(ctx, `SELECT `+orderColumns+` FROM purchase_orders o
WHERE o.status = ANY($1) AND o.delivery_status <> $2
ORDER BY o.scheduled_delivery_date NULLS LAST, o.id`, receivableStatuses, string(DeliveryReceived))
}

func (r *Repository) scanOrders(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (tx *txRepo) LockOrder(ctx context.Context, id int64) (Order, []LineItem, error) {
	return getOrder(ctx, tx.tx, id, true)
}

func (tx *txRepo) CreateOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders (po_number, status, delivery_status, vendor_id, project_id,
	subtotal, tax_amount, discount_amount, net_total, scheduled_delivery_date, date_needed,
	requested_by, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
RETURNING id`,
		o.PONumber, string(o.Status), string(o.DeliveryStatus), o.VendorID, o.ProjectID,
		o.Subtotal, o.TaxAmount, o.DiscountAmount, o.NetTotal, o.ScheduledDeliveryDate, o.DateNeeded,
		o.RequestedBy, o.Notes, o.CreatedAt).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertLineItem(ctx context.Context, item LineItem) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (order_id, description, quantity, quantity_received, unit_price)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.OrderID, item.Description, item.Quantity, item.QuantityReceived, item.UnitPrice).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdateOrder(ctx context.Context, o Order) (Order, error) {
	var version int64
	err := tx.tx.QueryRow(ctx, `UPDATE purchase_orders SET
	status = $2, delivery_status = $3, scheduled_delivery_date = $4, actual_delivery_date = $5,
	approved_by = NULLIF($6, 0), approved_at = $7, rejection_reason = $8,
	cancellation_reason = $9, custom_reason = $10, cancellation_notes = $11, vendor_notified = $12,
	canceled_by = NULLIF($13, 0), canceled_at = $14,
	receipt_notes = $15, resolution_notes = $16, updated_at = $17, version = version + 1
WHERE id = $1 AND version = $18
RETURNING version`,
		o.ID, string(o.Status), string(o.DeliveryStatus), o.ScheduledDeliveryDate, o.ActualDeliveryDate,
		o.ApprovedBy, o.ApprovedAt, o.RejectionReason,
		o.CancellationReason, o.CustomReason, o.CancellationNotes, o.VendorNotified,
		o.CanceledBy, o.CanceledAt,
		o.ReceiptNotes, o.ResolutionNotes, o.UpdatedAt, o.Version).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("%w: order %d changed concurrently", ErrConflict, o.ID)
		}
		return Order{}, err
	}
	o.Version = version
	return o, nil
}

func (tx *txRepo) UpdateLineItems(ctx context.Context, items []LineItem) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`UPDATE purchase_order_items SET quantity_received = $2, discrepancy_type = $3,
	discrepancy_notes = $4, discrepancy_resolved = $5, resolution_notes = $6, quality_notes = $7
WHERE id = $1`,
			item.ID, item.QuantityReceived, string(item.DiscrepancyType),
			item.DiscrepancyNotes, item.DiscrepancyResolved, item.ResolutionNotes, item.QualityNotes)
	}
	return tx.tx.SendBatch(ctx, batch).Close()
}

func (tx *txRepo) InsertReceipt(ctx context.Context, rec ReceiptRecord) error {
	deltas, err := json.Marshal(rec.Deltas)
	if err != nil {
		return err
	}
	_, err = tx.tx.Exec(ctx, `INSERT INTO purchase_order_receipts (order_id, actor_id, notes, close_short, deltas, received_at)
VALUES ($1, $2, $3, $4, $5, $6)`, rec.OrderID, rec.ActorID, rec.Notes, rec.CloseShort, deltas, rec.At)
	return err
}
