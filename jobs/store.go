package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sitetrack/internal/procurement"
)

// Store implements LedgerStore and AssetStore on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs the worker store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// OrderStatus reads the current status of an order.
func (s *Store) OrderStatus(ctx context.Context, orderID int64) (procurement.OrderStatus, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `SELECT status FROM purchase_orders WHERE id = $1`, orderID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("order %d: %w", orderID, procurement.ErrNotFound)
		}
		return "", err
	}
	return procurement.ParseOrderStatus(raw)
}

// InsertLedgerEntry writes at most one entry per order and kind.
func (s *Store) InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `INSERT INTO project_budget_ledger (order_id, project_id, actor_id, kind, amount, reason)
VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6)
ON CONFLICT (order_id, kind) DO NOTHING`,
		entry.OrderID, entry.ProjectID, entry.ActorID, entry.Kind, entry.Amount, entry.Reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertAssetRequests stores the items of one request in a single batch.
func (s *Store) InsertAssetRequests(ctx context.Context, requestID uuid.UUID, req procurement.AssetRequest) (int, error) {
	batch := &pgx.Batch{}
	for _, item := range req.Items {
		batch.Queue(`INSERT INTO procurement_asset_requests
(request_id, order_id, project_id, line_item_id, description, quantity, unit_price, requested_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, 0))
ON CONFLICT (request_id, line_item_id) DO NOTHING`,
			requestID, req.OrderID, req.ProjectID, item.LineItemID, item.Description, item.Quantity, item.UnitPrice, req.ActorID)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	created := 0
	for range req.Items {
		tag, err := results.Exec()
		if err != nil {
			return created, err
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}
