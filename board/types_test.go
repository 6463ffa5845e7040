package board_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/order-board/board"
)

func TestClassifyDelivery(t *testing.T) {
	tests := []struct {
		notes string
		want  board.DeliveryMethod
	}{
		{"enviar 1 por favor", board.DeliveryParcel},
		{"ruta 2", board.DeliveryCourier},
		{"recoge 3", board.DeliveryBranchPickup},
		{"sin marca", board.DeliveryUnknown},
		{"", board.DeliveryUnknown},
		// First match wins, checked in the fixed order 1, 2, 3.
		{"3 2 1", board.DeliveryParcel},
		{"32", board.DeliveryCourier},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, board.ClassifyDelivery(tt.notes), "notes=%q", tt.notes)
	}
}

func TestWarehouseDisplay(t *testing.T) {
	assert.Equal(t, "4", board.SingleWarehouse("4").Display())
	assert.Equal(t, "Mixed", board.MixedWarehouse().Display())
}

func TestSupplyStatus(t *testing.T) {
	order := func(pending string) board.SourceOrder {
		d, _ := decimal.NewFromString(pending)
		return board.SourceOrder{TotalUnits: decimal.NewFromInt(10), PendingUnits: d}
	}

	assert.Equal(t, board.StatusPending, order("3").SupplyStatus())
	assert.Equal(t, board.StatusPending, order("0.5").SupplyStatus())
	assert.Equal(t, board.StatusFulfilled, order("0").SupplyStatus())
	assert.Equal(t, board.StatusFulfilled, order("-1").SupplyStatus())
}

func TestParseFolio(t *testing.T) {
	tests := []struct {
		raw     string
		numeric bool
		display string
	}{
		{"10", true, "10"},
		{" 42 ", true, "42"},
		{"007", true, "7"},
		{"abc", false, "abc"},
		{"12a", false, "12a"},
		{"", false, ""},
	}

	for _, tt := range tests {
		f := board.ParseFolio(tt.raw)
		assert.Equal(t, tt.numeric, f.Numeric, "raw=%q", tt.raw)
		assert.Equal(t, tt.display, f.String(), "raw=%q", tt.raw)
	}
}

func TestFolioSortKey_NonNumericSortsLast(t *testing.T) {
	numeric := board.ParseFolio("999999")
	text := board.ParseFolio("zzz")
	assert.Less(t, numeric.SortKey(), text.SortKey())
}
