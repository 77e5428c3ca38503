package workflow_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
	"github.com/JaimeStill/invoiceflow/internal/tools"
	"github.com/JaimeStill/invoiceflow/internal/workflow"
)

func TestParseText(t *testing.T) {
	text := `ACME SUPPLIES PVT LTD
Invoice No: INV/2026/77
Supplier: Acme Supplies Pvt Ltd
GSTIN: 27aaaca1234a1z5
PO Number: po-1001
Date: 2026-10-01
Due Date: 2026-10-31
Currency: INR
Item: Widget | 10 | 100.00 | w-1 | 1
Item: Bracket | 2 | 1,250.50
Tax: 180.00
Grand Total: 3,681.00`

	inv := workflow.ParseText(text)

	checks := []struct {
		field, got, want string
	}{
		{"number", inv.Number, "INV/2026/77"},
		{"vendor", inv.VendorName, "Acme Supplies Pvt Ltd"},
		{"tax id", inv.VendorTaxID, "27AAACA1234A1Z5"},
		{"po", inv.PORef, "PO-1001"},
		{"issue date", inv.IssueDate, "2026-10-01"},
		{"due date", inv.DueDate, "2026-10-31"},
		{"currency", inv.Currency, "INR"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}

	if inv.Total != 3681 || inv.Tax != 180 {
		t.Errorf("total %v tax %v", inv.Total, inv.Tax)
	}
	if len(inv.LineItems) != 2 {
		t.Fatalf("lines = %d, want 2", len(inv.LineItems))
	}
	if l := inv.LineItems[0]; l.SKU != "W-1" || l.POLineRef != "1" || l.Quantity != 10 || l.UnitPrice != 100 {
		t.Errorf("line 0 = %+v", l)
	}
	if l := inv.LineItems[1]; l.Description != "Bracket" || l.UnitPrice != 1250.5 || l.SKU != "" {
		t.Errorf("line 1 = %+v", l)
	}
}

func TestParseTextEmpty(t *testing.T) {
	inv := workflow.ParseText("nothing useful here")
	if inv.Number != "" || inv.Total != 0 || len(inv.LineItems) != 0 {
		t.Errorf("inv = %+v", inv)
	}
}

func TestNormalizeVendor(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Acme Supplies Pvt. Ltd.", "ACME SUPPLIES"},
		{"acme supplies private limited", "ACME SUPPLIES"},
		{"  Acme   Supplies, Inc ", "ACME SUPPLIES"},
		{"Johnson & Johnson LLC", "JOHNSON & JOHNSON"},
		{"Ltd", "LTD"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := workflow.NormalizeVendor(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeVendor(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := workflow.NormalizeVendor(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestScoreMatch(t *testing.T) {
	cfg := workflow.DefaultConfig()
	po := &invoice.PurchaseOrder{
		Number:     "PO-1",
		VendorName: "Acme Supplies Ltd",
		Currency:   "INR",
		Lines: []invoice.POLine{
			{Ref: "1", SKU: "W-1", Description: "Widget", Quantity: 10, UnitPrice: 100},
		},
	}
	grn := &invoice.GoodsReceipt{PORef: "PO-1", Lines: []invoice.ReceiptLine{{POLineRef: "1", QuantityReceived: 10}}}

	inv := func(qty, price, tax float64, currency string) invoice.Invoice {
		return invoice.Invoice{
			Number:    "INV-1",
			Currency:  currency,
			Tax:       tax,
			Total:     qty*price + tax,
			LineItems: []invoice.LineItem{{Description: "Widget", SKU: "W-1", Quantity: qty, UnitPrice: price}},
		}
	}

	tests := []struct {
		name   string
		inv    invoice.Invoice
		vendor string
		recs   invoice.ERPRecords
		want   float64
		pass   bool
	}{
		{"exact", inv(10, 100, 180, "INR"), "ACME SUPPLIES", invoice.ERPRecords{PO: po, GRN: grn}, 1, true},
		{"within tolerance", inv(10, 100.5, 0, "INR"), "ACME SUPPLIES", invoice.ERPRecords{PO: po, GRN: grn}, 1, true},
		{"no receipt", inv(10, 100, 0, "INR"), "ACME SUPPLIES", invoice.ERPRecords{PO: po}, 0.9, true},
		{"wrong vendor", inv(10, 100, 0, "INR"), "GLOBEX", invoice.ERPRecords{PO: po, GRN: grn}, 0.9, true},
		{"currency mismatch", inv(10, 100, 0, "USD"), "ACME SUPPLIES", invoice.ERPRecords{PO: po, GRN: grn}, 0.5, false},
		{"no purchase order", inv(10, 100, 0, "INR"), "ACME SUPPLIES", invoice.ERPRecords{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, breakdown := workflow.ScoreMatch(tt.inv, tt.vendor, tt.recs, cfg)
			if score != tt.want {
				t.Errorf("score = %v, want %v (breakdown %+v)", score, tt.want, breakdown)
			}
			if (score >= cfg.MatchThreshold) != tt.pass {
				t.Errorf("pass = %v, want %v", score >= cfg.MatchThreshold, tt.pass)
			}
			if score < 0 || score > 1 {
				t.Errorf("score %v out of range", score)
			}
		})
	}
}

func TestScoreMatchOverbilled(t *testing.T) {
	po := &invoice.PurchaseOrder{
		VendorName: "Acme",
		Lines:      []invoice.POLine{{Ref: "1", Description: "Widget", Quantity: 10, UnitPrice: 100}},
	}
	grn := &invoice.GoodsReceipt{Lines: []invoice.ReceiptLine{{POLineRef: "1", QuantityReceived: 10}}}
	inv := invoice.Invoice{
		Total:     2000,
		LineItems: []invoice.LineItem{{Description: "Widget", Quantity: 20, UnitPrice: 100, POLineRef: "1"}},
	}

	score, b := workflow.ScoreMatch(inv, "ACME", invoice.ERPRecords{PO: po, GRN: grn}, workflow.DefaultConfig())
	if b.Amount != 0.5 || b.Lines != 0.75 || b.Vendor != 1 || b.Receipt != 0.5 {
		t.Errorf("breakdown = %+v", b)
	}
	if score != 0.6250 {
		t.Errorf("score = %v, want 0.625", score)
	}
	if len(b.Notes) == 0 {
		t.Error("expected mismatch notes")
	}
}

func TestBuildEntries(t *testing.T) {
	cfg := workflow.DefaultConfig()
	inv := invoice.Invoice{
		Number:     "INV-1",
		VendorName: "Acme",
		Tax:        0.3,
		LineItems: []invoice.LineItem{
			{Description: "a", Quantity: 3, UnitPrice: 0.1},
			{Description: "b", Quantity: 1, UnitPrice: 0.2, GLAccount: "Office Supplies"},
			{Description: "free", Quantity: 1, UnitPrice: 0},
		},
	}

	entries := workflow.BuildEntries(inv, cfg)
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4: %+v", len(entries), entries)
	}

	var debits, credits int64
	for _, e := range entries {
		if e.Type == invoice.Debit {
			debits += invoice.Cents(e.Amount)
		} else {
			credits += invoice.Cents(e.Amount)
		}
	}
	if debits != credits || debits != 80 {
		t.Errorf("debits %d credits %d, want 80", debits, credits)
	}
	if entries[1].Account != "Office Supplies" || entries[0].Account != cfg.ExpenseAccount {
		t.Errorf("accounts = %s, %s", entries[0].Account, entries[1].Account)
	}
	if last := entries[len(entries)-1]; last.Type != invoice.Credit || last.Account != cfg.PayableAccount {
		t.Errorf("credit = %+v", last)
	}
}

func TestCloneIsolation(t *testing.T) {
	score := 0.5
	d := workflow.Accept
	s := workflow.RunState{
		Invoice:    &invoice.Invoice{Number: "A", LineItems: []invoice.LineItem{{Description: "x"}}},
		MatchScore: &score,
		Decision:   &d,
		Audit:      []workflow.AuditEntry{{Event: "one"}},
		Payload:    workflow.Payload{PreferredTools: map[string]string{"OCR": "a"}},
	}

	c := s.Clone()
	c.Invoice.Number = "B"
	c.Invoice.LineItems[0].Description = "y"
	*c.MatchScore = 0.9
	*c.Decision = workflow.Reject
	c.Audit[0].Event = "two"
	c.Payload.PreferredTools["OCR"] = "b"

	if s.Invoice.Number != "A" || s.Invoice.LineItems[0].Description != "x" {
		t.Error("invoice shared")
	}
	if score != 0.5 || d != workflow.Accept {
		t.Error("pointers shared")
	}
	if s.Audit[0].Event != "one" || s.Payload.PreferredTools["OCR"] != "a" {
		t.Error("slices or maps shared")
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to workflow.Status
		want     bool
	}{
		{workflow.StatusRunning, workflow.StatusPaused, true},
		{workflow.StatusRunning, workflow.StatusCompleted, true},
		{workflow.StatusPaused, workflow.StatusRunning, true},
		{workflow.StatusPaused, workflow.StatusFailed, true},
		{workflow.StatusPaused, workflow.StatusCompleted, false},
		{workflow.StatusCompleted, workflow.StatusRunning, false},
		{workflow.StatusFailed, workflow.StatusFailed, false},
		{workflow.StatusRequiresManual, workflow.StatusRunning, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSuccessor(t *testing.T) {
	stage := workflow.StageIntake
	var path []workflow.Stage
	for stage != "" {
		path = append(path, stage)
		stage = workflow.Successor(stage)
	}

	want := []workflow.Stage{
		workflow.StageIntake, workflow.StageUnderstand, workflow.StagePrepare, workflow.StageRetrieve,
		workflow.StageMatch, workflow.StageReconcile, workflow.StageApprove, workflow.StagePost,
		workflow.StageSchedulePayment, workflow.StageNotify, workflow.StageFinalize,
	}
	if fmt.Sprint(path) != fmt.Sprint(want) {
		t.Errorf("path = %v", path)
	}
	if workflow.Successor(workflow.StageDecision) != workflow.StageReconcile {
		t.Error("HITL_DECISION must continue to RECONCILE")
	}
	for _, s := range path {
		if got := workflow.SideEffecting(s); got != (s == workflow.StagePost || s == workflow.StageSchedulePayment) {
			t.Errorf("SideEffecting(%s) = %v", s, got)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want workflow.ErrorKind
	}{
		{fmt.Errorf("%w: bad", workflow.ErrValidation), workflow.KindValidation},
		{fmt.Errorf("%w: missing total", workflow.ErrParse), workflow.KindParse},
		{fmt.Errorf("select: %w", tools.ErrNoEligibleTool), workflow.KindNoEligibleTool},
		{fmt.Errorf("%w: %w", workflow.ErrERPUnavailable, tools.ErrUnavailable), workflow.KindERPUnavailable},
		{fmt.Errorf("%w: %w", workflow.ErrPosting, workflow.ErrToolTimeout), workflow.KindPosting},
		{workflow.ErrToolTimeout, workflow.KindToolTimeout},
		{fmt.Errorf("%w: %w", workflow.ErrToolFailed, tools.ErrRejected), workflow.KindToolError},
		{workflow.ErrCancelled, workflow.KindCancelled},
		{errors.New("boom"), workflow.KindInternal},
	}

	for _, tt := range tests {
		if got := workflow.KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestConfigFinalize(t *testing.T) {
	t.Setenv("TEST_ENGINE_MAX_ATTEMPTS", "5")
	t.Setenv("TEST_ENGINE_ESCALATION", "manual")

	var cfg workflow.Config
	err := cfg.Finalize(&workflow.ConfigEnv{
		MaxAttempts:    "TEST_ENGINE_MAX_ATTEMPTS",
		EscalationMode: "TEST_ENGINE_ESCALATION",
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if cfg.MaxAttempts != 5 || cfg.EscalationMode != workflow.EscalateManual {
		t.Errorf("env not applied: %d %s", cfg.MaxAttempts, cfg.EscalationMode)
	}
	if cfg.MatchThreshold != 0.85 || cfg.AutoApproveLimit != 250000 || cfg.ApproverRole != "FINANCE_MANAGER" {
		t.Errorf("defaults = %+v", cfg)
	}

	cfg.Merge(&workflow.Config{MatchThreshold: 0.9, Recipients: []string{"ap"}})
	if cfg.MatchThreshold != 0.9 || len(cfg.Recipients) != 1 || cfg.MaxAttempts != 5 {
		t.Errorf("merge = %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  workflow.Config
	}{
		{"threshold above one", workflow.Config{MatchThreshold: 1.5}},
		{"bad backoff", workflow.Config{BaseBackoff: "soon"}},
		{"bad escalation", workflow.Config{EscalationMode: "email"}},
		{"negative weights", workflow.Config{Weights: workflow.MatchWeights{Amount: 1, Lines: -0.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
