package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const transactionColumns = `id, product_id, product_name, sku, quantity, type, balance_after,
	cost_price, selling_price, supplier, note, invoice_id, created_by, created_at`

const alertColumns = `id, product_id, type, message, severity, resolved, resolved_at, created_at`

// InsertTransaction appends a record to the transaction log
func (q queries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	if err := q.writable(); err != nil {
		return err
	}

	query, args, err := q.ext.BindNamed(`
		INSERT INTO transactions (product_id, product_name, sku, quantity, type, balance_after,
			cost_price, selling_price, supplier, note, invoice_id, created_by)
		VALUES (:product_id, :product_name, :sku, :quantity, :type, :balance_after,
			:cost_price, :selling_price, :supplier, :note, :invoice_id, :created_by)
		RETURNING id, created_at`, t)
	if err != nil {
		return err
	}

	return classifyError(sqlx.GetContext(ctx, q.ext, t, query, args...))
}

// ListTransactions returns transactions newest first
func (q queries) ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	conditions := []string{}
	args := []interface{}{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.ProductID != 0 {
		add("product_id = $%d", f.ProductID)
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.InvoiceID != 0 {
		add("invoice_id = $%d", f.InvoiceID)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit, offset := pageBounds(f.Page, f.Limit, DefaultTransactionLimit)
	query := "SELECT " + transactionColumns + " FROM transactions" + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", limit, offset)

	txs := []models.Transaction{}
	err := sqlx.SelectContext(ctx, q.ext, &txs, query, args...)
	return txs, err
}

// UnresolvedAlerts returns the open alerts of one type for a product
func (q queries) UnresolvedAlerts(ctx context.Context, productID int64, alertType string) ([]models.Alert, error) {
	alerts := []models.Alert{}
	err := sqlx.SelectContext(ctx, q.ext, &alerts,
		"SELECT "+alertColumns+" FROM alerts WHERE product_id = $1 AND type = $2 AND resolved = FALSE ORDER BY id",
		productID, alertType)
	return alerts, err
}

// ListUnresolvedAlerts returns open alerts newest first
func (q queries) ListUnresolvedAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > MaxAlertLimit {
		limit = MaxAlertLimit
	}
	alerts := []models.Alert{}
	err := sqlx.SelectContext(ctx, q.ext, &alerts,
		"SELECT "+alertColumns+" FROM alerts WHERE resolved = FALSE ORDER BY created_at DESC, id DESC LIMIT $1",
		limit)
	return alerts, err
}

// GetAlert retrieves an alert by ID
func (q queries) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	var alert models.Alert
	err := sqlx.GetContext(ctx, q.ext, &alert, "SELECT "+alertColumns+" FROM alerts WHERE id = $1", id)
	if err != nil {
		return nil, classifyError(err)
	}
	return &alert, nil
}

// InsertAlert creates an alert
func (q queries) InsertAlert(ctx context.Context, a *models.Alert) error {
	if err := q.writable(); err != nil {
		return err
	}

	query, args, err := q.ext.BindNamed(`
		INSERT INTO alerts (product_id, type, message, severity)
		VALUES (:product_id, :type, :message, :severity)
		RETURNING id, resolved, created_at`, a)
	if err != nil {
		return err
	}

	return classifyError(sqlx.GetContext(ctx, q.ext, a, query, args...))
}

// ResolveAlerts marks the given alerts resolved. Already resolved alerts keep
// their original resolved_at.
func (q queries) ResolveAlerts(ctx context.Context, ids []int64, at time.Time) error {
	if err := q.writable(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := q.ext.ExecContext(ctx,
		"UPDATE alerts SET resolved = TRUE, resolved_at = $1 WHERE id = ANY($2) AND resolved = FALSE",
		at, pq.Array(ids))
	return classifyError(err)
}

// NextSequence increments and returns the named counter, creating it at 1
func (q queries) NextSequence(ctx context.Context, name string) (int64, error) {
	if err := q.writable(); err != nil {
		return 0, err
	}

	var value int64
	err := sqlx.GetContext(ctx, q.ext, &value, `
		INSERT INTO sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value`, name)
	if err != nil {
		return 0, classifyError(err)
	}
	return value, nil
}

// CurrentSequence returns the counter value, zero when it was never used
func (q queries) CurrentSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := sqlx.GetContext(ctx, q.ext, &value, "SELECT value FROM sequences WHERE name = $1", name)
	if err != nil {
		if err = classifyError(err); errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return value, nil
}

// MarkEventProcessed records an event id. It returns false when the id was
// already recorded.
func (q queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if err := q.writable(); err != nil {
		return false, err
	}

	res, err := q.ext.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, classifyError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IsEventProcessed checks if an event has been processed
func (q queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.ext, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}
