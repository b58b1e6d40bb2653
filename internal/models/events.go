package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Notification names broadcast after a successful commit
const (
	EventInventoryUpdate  = "inventory:update"
	EventInventoryDeleted = "inventory:deleted"
	EventTransactionsNew  = "transactions:new"
	EventAlertsNew        = "alerts:new"
	EventAlertsResolved   = "alerts:resolved"
	EventInvoicesNew      = "invoices:new"
	EventInvoicesUpdate   = "invoices:update"
)

// Inbound stock command types
const (
	CommandTypeStockSale    = "STOCK_SALE"
	CommandTypeStockRestock = "STOCK_RESTOCK"
	CommandTypeStockAdjust  = "STOCK_ADJUST"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StockCommand is a quantity mutation requested by another system (POS terminals,
// e-commerce order service) through the command topic.
type StockCommand struct {
	BaseEvent
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
	Supplier  string           `json:"supplier,omitempty"`
	Note      string           `json:"note,omitempty"`
	Actor     string           `json:"actor,omitempty"`
}

// AlertsResolvedPayload is the body of an alerts:resolved notification
type AlertsResolvedPayload struct {
	ProductID int64   `json:"productId"`
	AlertIDs  []int64 `json:"alertIds"`
}

// ProductDeletedPayload is the body of an inventory:deleted notification
type ProductDeletedPayload struct {
	ID int64 `json:"id"`
}
