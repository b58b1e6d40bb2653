package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const invoiceColumns = `id, invoice_number, customer_name, customer_email, customer_phone,
	customer_address, subtotal, tax, discount, total_amount, status, due_date, notes, source_ref,
	created_at, updated_at`

const invoiceItemColumns = `id, invoice_id, product_id, name, description, quantity, price, total`

// invoiceRow is the flat table shape of models.Invoice
type invoiceRow struct {
	ID              int64           `db:"id"`
	InvoiceNumber   string          `db:"invoice_number"`
	CustomerName    string          `db:"customer_name"`
	CustomerEmail   string          `db:"customer_email"`
	CustomerPhone   string          `db:"customer_phone"`
	CustomerAddress string          `db:"customer_address"`
	Subtotal        decimal.Decimal `db:"subtotal"`
	Tax             decimal.Decimal `db:"tax"`
	Discount        decimal.Decimal `db:"discount"`
	TotalAmount     decimal.Decimal `db:"total_amount"`
	Status          string          `db:"status"`
	DueDate         *time.Time      `db:"due_date"`
	Notes           string          `db:"notes"`
	SourceRef       string          `db:"source_ref"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func toInvoiceRow(inv *models.Invoice) invoiceRow {
	return invoiceRow{
		ID:              inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		CustomerName:    inv.Customer.Name,
		CustomerEmail:   inv.Customer.Email,
		CustomerPhone:   inv.Customer.Phone,
		CustomerAddress: inv.Customer.Address,
		Subtotal:        inv.Subtotal,
		Tax:             inv.Tax,
		Discount:        inv.Discount,
		TotalAmount:     inv.TotalAmount,
		Status:          inv.Status,
		DueDate:         inv.DueDate,
		Notes:           inv.Notes,
		SourceRef:       inv.SourceRef,
	}
}

func (r invoiceRow) toModel(items []models.InvoiceItem) models.Invoice {
	if items == nil {
		items = []models.InvoiceItem{}
	}
	return models.Invoice{
		ID:            r.ID,
		InvoiceNumber: r.InvoiceNumber,
		Customer: models.Customer{
			Name:    r.CustomerName,
			Email:   r.CustomerEmail,
			Phone:   r.CustomerPhone,
			Address: r.CustomerAddress,
		},
		Items:       items,
		Subtotal:    r.Subtotal,
		Tax:         r.Tax,
		Discount:    r.Discount,
		TotalAmount: r.TotalAmount,
		Status:      r.Status,
		DueDate:     r.DueDate,
		Notes:       r.Notes,
		SourceRef:   r.SourceRef,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// CreateInvoice inserts an invoice and its items
func (q queries) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if err := q.writable(); err != nil {
		return err
	}

	row := toInvoiceRow(inv)
	query, args, err := q.ext.BindNamed(`
		INSERT INTO invoices (invoice_number, customer_name, customer_email, customer_phone,
			customer_address, subtotal, tax, discount, total_amount, status, due_date, notes, source_ref)
		VALUES (:invoice_number, :customer_name, :customer_email, :customer_phone,
			:customer_address, :subtotal, :tax, :discount, :total_amount, :status, :due_date, :notes, :source_ref)
		RETURNING id, created_at, updated_at`, row)
	if err != nil {
		return err
	}
	if err := sqlx.GetContext(ctx, q.ext, &row, query, args...); err != nil {
		return classifyError(err)
	}
	inv.ID, inv.CreatedAt, inv.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt

	for i := range inv.Items {
		item := &inv.Items[i]
		item.InvoiceID = inv.ID
		query, args, err := q.ext.BindNamed(`
			INSERT INTO invoice_items (invoice_id, product_id, name, description, quantity, price, total)
			VALUES (:invoice_id, :product_id, :name, :description, :quantity, :price, :total)
			RETURNING id`, item)
		if err != nil {
			return err
		}
		if err := sqlx.GetContext(ctx, q.ext, &item.ID, query, args...); err != nil {
			return fmt.Errorf("failed to create invoice item: %w", classifyError(err))
		}
	}
	return nil
}

// GetInvoice retrieves an invoice with its items
func (q queries) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	return q.getInvoice(ctx, id, "")
}

// GetInvoiceForUpdate retrieves an invoice and locks its row
func (q queries) GetInvoiceForUpdate(ctx context.Context, id int64) (*models.Invoice, error) {
	return q.getInvoice(ctx, id, " FOR UPDATE")
}

func (q queries) getInvoice(ctx context.Context, id int64, lock string) (*models.Invoice, error) {
	var row invoiceRow
	err := sqlx.GetContext(ctx, q.ext, &row, "SELECT "+invoiceColumns+" FROM invoices WHERE id = $1"+lock, id)
	if err != nil {
		return nil, classifyError(err)
	}

	items := []models.InvoiceItem{}
	err = sqlx.SelectContext(ctx, q.ext, &items,
		"SELECT "+invoiceItemColumns+" FROM invoice_items WHERE invoice_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, err
	}

	inv := row.toModel(items)
	return &inv, nil
}

// ListInvoices returns one page of invoices, newest first, and the total count
func (q queries) ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, int, error) {
	conditions := []string{}
	args := []interface{}{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Query != "" {
		add("(customer_name ILIKE $%[1]d OR invoice_number ILIKE $%[1]d)", "%"+f.Query+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	if err := sqlx.GetContext(ctx, q.ext, &count, "SELECT count(*) FROM invoices"+whereClause, args...); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(f.Page, f.Limit, DefaultInvoiceLimit)
	var rows []invoiceRow
	query := "SELECT " + invoiceColumns + " FROM invoices" + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", limit, offset)
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, 0, err
	}

	invoices := make([]models.Invoice, 0, len(rows))
	if len(rows) == 0 {
		return invoices, count, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	itemQuery, itemArgs, err := sqlx.In(
		"SELECT "+invoiceItemColumns+" FROM invoice_items WHERE invoice_id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, 0, err
	}
	var items []models.InvoiceItem
	if err := sqlx.SelectContext(ctx, q.ext, &items, q.ext.Rebind(itemQuery), itemArgs...); err != nil {
		return nil, 0, err
	}

	byInvoice := make(map[int64][]models.InvoiceItem, len(rows))
	for _, item := range items {
		byInvoice[item.InvoiceID] = append(byInvoice[item.InvoiceID], item)
	}
	for _, r := range rows {
		invoices = append(invoices, r.toModel(byInvoice[r.ID]))
	}
	return invoices, count, nil
}

// UpdateInvoiceStatus updates invoice status
func (q queries) UpdateInvoiceStatus(ctx context.Context, inv *models.Invoice, status string) error {
	if err := q.writable(); err != nil {
		return err
	}

	err := sqlx.GetContext(ctx, q.ext, &inv.UpdatedAt,
		"UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at",
		status, inv.ID)
	if err != nil {
		return classifyError(err)
	}
	inv.Status = status
	return nil
}

// DeleteInvoice removes an invoice and its items
func (q queries) DeleteInvoice(ctx context.Context, id int64) error {
	if err := q.writable(); err != nil {
		return err
	}

	res, err := q.ext.ExecContext(ctx, "DELETE FROM invoices WHERE id = $1", id)
	if err != nil {
		return classifyError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
