package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a stocked item
type Product struct {
	ID           int64           `db:"id" json:"id"`
	SKU          string          `db:"sku" json:"sku"`
	Name         string          `db:"name" json:"name"`
	Category     string          `db:"category" json:"category"`
	SubCategory  string          `db:"sub_category" json:"subCategory,omitempty"`
	Description  string          `db:"description" json:"description,omitempty"`
	Unit         string          `db:"unit" json:"unit"`
	Supplier     string          `db:"supplier" json:"supplier,omitempty"`
	CostPrice    decimal.Decimal `db:"cost_price" json:"costPrice"`
	SellingPrice decimal.Decimal `db:"selling_price" json:"sellingPrice"`
	Quantity     int             `db:"quantity" json:"quantity"`
	ReorderLevel int             `db:"reorder_level" json:"reorderLevel"`
	Archived     bool            `db:"archived" json:"archived"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// ProductPatch is a field-level edit. Quantity is deliberately absent.
type ProductPatch struct {
	Name         *string          `json:"name,omitempty"`
	Category     *string          `json:"category,omitempty"`
	SubCategory  *string          `json:"subCategory,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
	Supplier     *string          `json:"supplier,omitempty"`
	CostPrice    *decimal.Decimal `json:"costPrice,omitempty"`
	SellingPrice *decimal.Decimal `json:"sellingPrice,omitempty"`
	ReorderLevel *int             `json:"reorderLevel,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.SubCategory == nil &&
		p.Description == nil && p.Unit == nil && p.Supplier == nil &&
		p.CostPrice == nil && p.SellingPrice == nil && p.ReorderLevel == nil
}

// Apply copies the set fields onto the product
func (p ProductPatch) Apply(product *Product) {
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Category != nil {
		product.Category = *p.Category
	}
	if p.SubCategory != nil {
		product.SubCategory = *p.SubCategory
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.Unit != nil {
		product.Unit = *p.Unit
	}
	if p.Supplier != nil {
		product.Supplier = *p.Supplier
	}
	if p.CostPrice != nil {
		product.CostPrice = *p.CostPrice
	}
	if p.SellingPrice != nil {
		product.SellingPrice = *p.SellingPrice
	}
	if p.ReorderLevel != nil {
		product.ReorderLevel = *p.ReorderLevel
	}
}

// Transaction is an immutable record of a quantity change
type Transaction struct {
	ID           int64               `db:"id" json:"id"`
	ProductID    int64               `db:"product_id" json:"productId"`
	ProductName  string              `db:"product_name" json:"productName"`
	SKU          string              `db:"sku" json:"sku"`
	Quantity     int                 `db:"quantity" json:"quantity"`
	Type         string              `db:"type" json:"type"`
	BalanceAfter int                 `db:"balance_after" json:"balanceAfter"`
	CostPrice    decimal.NullDecimal `db:"cost_price" json:"costPrice"`
	SellingPrice decimal.NullDecimal `db:"selling_price" json:"sellingPrice"`
	Supplier     string              `db:"supplier" json:"supplier,omitempty"`
	Note         string              `db:"note" json:"note,omitempty"`
	InvoiceID    *int64              `db:"invoice_id" json:"invoiceId,omitempty"`
	CreatedBy    string              `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"createdAt"`
}

// Delta returns the signed quantity change the record applied
func (t *Transaction) Delta() int {
	if t.Type == TransactionTypeSale {
		return -t.Quantity
	}
	return t.Quantity
}

// Transaction types
const (
	TransactionTypeSale    = "sale"
	TransactionTypeRestock = "restock"
	TransactionTypeAdjust  = "adjust"
)

// Alert flags a product whose stock needs attention
type Alert struct {
	ID         int64      `db:"id" json:"id"`
	ProductID  int64      `db:"product_id" json:"productId"`
	Type       string     `db:"type" json:"type"`
	Message    string     `db:"message" json:"message"`
	Severity   string     `db:"severity" json:"severity"`
	Resolved   bool       `db:"resolved" json:"resolved"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Alert types
const (
	AlertTypeLowStock = "low-stock"
)

// Alert severities
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Customer is the buyer snapshot stored on an invoice
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Invoice represents a customer invoice
type Invoice struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Customer      Customer        `json:"customer"`
	Items         []InvoiceItem   `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Discount      decimal.Decimal `json:"discount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Status        string          `json:"status"`
	DueDate       *time.Time      `json:"dueDate,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	SourceRef     string          `json:"sourceRef,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// InvoiceItem is one invoice line
type InvoiceItem struct {
	ID          int64           `db:"id" json:"id"`
	InvoiceID   int64           `db:"invoice_id" json:"-"`
	ProductID   *int64          `db:"product_id" json:"productId,omitempty"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description,omitempty"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Total       decimal.Decimal `db:"total" json:"total"`
}

// Invoice statuses
const (
	InvoiceStatusPending = "Pending"
	InvoiceStatusOverdue = "Overdue"
	InvoiceStatusPaid    = "Paid"
)

// ValidInvoiceStatus reports whether s is a known invoice status
func ValidInvoiceStatus(s string) bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusOverdue, InvoiceStatusPaid:
		return true
	}
	return false
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
