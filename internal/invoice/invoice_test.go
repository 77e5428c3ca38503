package invoice_test

import (
	"testing"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
)

func TestLineItemTotal(t *testing.T) {
	tests := []struct {
		name string
		line invoice.LineItem
		want float64
	}{
		{"explicit amount", invoice.LineItem{Quantity: 2, UnitPrice: 10, Amount: 25}, 25},
		{"extension", invoice.LineItem{Quantity: 3, UnitPrice: 12.5}, 37.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.line.Total(); got != tt.want {
				t.Errorf("Total() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPurchaseOrderLineTotal(t *testing.T) {
	po := invoice.PurchaseOrder{Lines: []invoice.POLine{
		{Ref: "1", Quantity: 10, UnitPrice: 100},
		{Ref: "2", Quantity: 1, UnitPrice: 250},
	}}
	if got := po.LineTotal(); got != 1250 {
		t.Errorf("LineTotal() = %v, want 1250", got)
	}

	po.Total = 1300
	if got := po.LineTotal(); got != 1300 {
		t.Errorf("LineTotal() with total = %v, want 1300", got)
	}
}

func TestGoodsReceiptReceived(t *testing.T) {
	grn := invoice.GoodsReceipt{Lines: []invoice.ReceiptLine{
		{POLineRef: "1", QuantityReceived: 4},
		{POLineRef: "1", QuantityReceived: 6},
		{SKU: "W-2", QuantityReceived: 3},
	}}

	if got := grn.Received("1", ""); got != 10 {
		t.Errorf("by ref = %v, want 10", got)
	}
	if got := grn.Received("", "w-2"); got != 3 {
		t.Errorf("by sku = %v, want 3", got)
	}
	if got := grn.Received("9", ""); got != 0 {
		t.Errorf("missing = %v, want 0", got)
	}
}

func TestCents(t *testing.T) {
	if got := invoice.Cents(0.1 + 0.2); got != 30 {
		t.Errorf("Cents(0.3) = %d, want 30", got)
	}
	if got := invoice.FromCents(123456); got != 1234.56 {
		t.Errorf("FromCents = %v", got)
	}
}
