package alerting

import (
	"testing"

	"inventory-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAlert(id int64) models.Alert {
	return models.Alert{ID: id, ProductID: 1, Type: models.AlertTypeLowStock}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		input       Input
		wantCreate  bool
		wantResolve []int64
	}{
		{
			name:       "drop to reorder level creates alert",
			input:      Input{ProductID: 1, ProductName: "Widget", PreviousQty: 10, NewQty: 5, ReorderLevel: 5},
			wantCreate: true,
		},
		{
			name:  "already alerted does not duplicate",
			input: Input{ProductID: 1, PreviousQty: 4, NewQty: 3, ReorderLevel: 5, Existing: []models.Alert{openAlert(7)}},
		},
		{
			name:        "recovery resolves every open alert",
			input:       Input{ProductID: 1, PreviousQty: 3, NewQty: 20, ReorderLevel: 5, Existing: []models.Alert{openAlert(7), openAlert(9)}},
			wantResolve: []int64{7, 9},
		},
		{
			name:  "healthy stock without alerts is a no-op",
			input: Input{ProductID: 1, PreviousQty: 20, NewQty: 19, ReorderLevel: 5},
		},
		{
			name: "resolved alerts are ignored",
			input: Input{ProductID: 1, PreviousQty: 20, NewQty: 2, ReorderLevel: 5,
				Existing: []models.Alert{{ID: 3, Type: models.AlertTypeLowStock, Resolved: true}}},
			wantCreate: true,
		},
		{
			name:       "threshold change with unchanged quantity",
			input:      Input{ProductID: 1, PreviousQty: 8, NewQty: 8, ReorderLevel: 10},
			wantCreate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Reconcile(tt.input)
			if tt.wantCreate {
				require.NotNil(t, d.Create)
				assert.Equal(t, tt.input.ProductID, d.Create.ProductID)
				assert.Equal(t, models.AlertTypeLowStock, d.Create.Type)
			} else {
				assert.Nil(t, d.Create)
			}
			assert.Equal(t, tt.wantResolve, d.ResolveIDs)
			assert.Equal(t, !tt.wantCreate && tt.wantResolve == nil, d.IsEmpty())
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	in := Input{ProductID: 1, ProductName: "Widget", PreviousQty: 6, NewQty: 2, ReorderLevel: 5}

	first := Reconcile(in)
	require.NotNil(t, first.Create)

	first.Create.ID = 42
	in.Existing = []models.Alert{*first.Create}
	assert.True(t, Reconcile(in).IsEmpty())
}

func TestSeverityAndMessage(t *testing.T) {
	assert.Equal(t, models.SeverityCritical, Severity(0))
	assert.Equal(t, models.SeverityWarning, Severity(3))
	assert.Equal(t, "Widget is out of stock", Message("Widget", 0))
	assert.Contains(t, Message("Widget", 3), "Widget")
	assert.Contains(t, Message("Widget", 3), "3")
}
