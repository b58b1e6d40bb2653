// Package alerting decides how reorder alerts change when a product's
// quantity or reorder level moves.
package alerting

import (
	"fmt"

	"inventory-service/internal/models"
)

// Input is the quantity transition of one product plus its open low-stock alerts
type Input struct {
	ProductID    int64
	ProductName  string
	PreviousQty  int
	NewQty       int
	ReorderLevel int
	Existing     []models.Alert
}

// Decision lists the alert writes needed to match the new quantity.
// Create and ResolveIDs are never both set.
type Decision struct {
	Create     *models.Alert
	ResolveIDs []int64
}

// IsEmpty reports whether no alert changes are needed
func (d Decision) IsEmpty() bool {
	return d.Create == nil && len(d.ResolveIDs) == 0
}

// Reconcile computes the alert changes for a quantity transition. At or below
// the reorder level exactly one unresolved low-stock alert must exist; above
// it none may.
func Reconcile(in Input) Decision {
	open := make([]int64, 0, len(in.Existing))
	for _, a := range in.Existing {
		if !a.Resolved && a.Type == models.AlertTypeLowStock {
			open = append(open, a.ID)
		}
	}

	if in.NewQty <= in.ReorderLevel {
		if len(open) > 0 {
			return Decision{}
		}
		return Decision{Create: &models.Alert{
			ProductID: in.ProductID,
			Type:      models.AlertTypeLowStock,
			Message:   Message(in.ProductName, in.NewQty),
			Severity:  Severity(in.NewQty),
		}}
	}

	if len(open) == 0 {
		return Decision{}
	}
	return Decision{ResolveIDs: open}
}

// Severity grades a low-stock alert by remaining quantity
func Severity(qty int) string {
	if qty <= 0 {
		return models.SeverityCritical
	}
	return models.SeverityWarning
}

// Message is the human readable alert text
func Message(productName string, qty int) string {
	if qty <= 0 {
		return fmt.Sprintf("%s is out of stock", productName)
	}
	return fmt.Sprintf("%s is low on stock (%d left)", productName, qty)
}
