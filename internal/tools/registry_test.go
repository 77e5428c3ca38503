package tools_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JaimeStill/invoiceflow/internal/tools"
)

func ocr(name string, priority int, mods ...func(*tools.Descriptor)) tools.Descriptor {
	d := tools.Descriptor{
		Name:       name,
		Capability: tools.OCR,
		Priority:   priority,
		OCR:        tools.EmbeddedText{},
	}
	for _, m := range mods {
		m(&d)
	}
	return d
}

func regions(r ...string) func(*tools.Descriptor) {
	return func(d *tools.Descriptor) { d.Regions = r }
}

func docTypes(t ...string) func(*tools.Descriptor) {
	return func(d *tools.Descriptor) { d.DocumentTypes = t }
}

func health(h tools.Health) func(*tools.Descriptor) {
	return func(d *tools.Descriptor) { d.Health = h }
}

func newRegistry(t *testing.T, ds ...tools.Descriptor) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			t.Fatalf("Register(%s): %v", d.Name, err)
		}
	}
	return r
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		d    tools.Descriptor
		want error
	}{
		{"missing name", tools.Descriptor{Capability: tools.OCR, OCR: tools.EmbeddedText{}}, tools.ErrInvalidDescriptor},
		{"missing connector", tools.Descriptor{Name: "x", Capability: tools.ERP}, tools.ErrInvalidDescriptor},
		{"unknown capability", tools.Descriptor{Name: "x", Capability: "FAX"}, tools.ErrInvalidDescriptor},
		{"unknown health", ocr("x", 1, health("sleepy")), tools.ErrInvalidDescriptor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tools.NewRegistry().Register(tt.d)
			if !errors.Is(err, tt.want) {
				t.Errorf("Register() err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := newRegistry(t, ocr("a", 1))
	if err := r.Register(ocr("a", 2)); !errors.Is(err, tools.ErrDuplicateTool) {
		t.Errorf("err = %v, want ErrDuplicateTool", err)
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name  string
		tools []tools.Descriptor
		sc    tools.SelectionContext
		want  string
	}{
		{
			name:  "lowest priority wins",
			tools: []tools.Descriptor{ocr("slow", 20), ocr("fast", 10)},
			want:  "fast",
		},
		{
			name:  "registration order breaks ties",
			tools: []tools.Descriptor{ocr("first", 10), ocr("second", 10)},
			want:  "first",
		},
		{
			name:  "region match outranks priority",
			tools: []tools.Descriptor{ocr("generic", 1), ocr("india", 50, regions("IN"))},
			sc:    tools.SelectionContext{Region: "in"},
			want:  "india",
		},
		{
			name:  "region beats document type",
			tools: []tools.Descriptor{ocr("doc", 1, docTypes("utility")), ocr("region", 5, regions("EU"))},
			sc:    tools.SelectionContext{Region: "EU", DocumentType: "utility"},
			want:  "region",
		},
		{
			name:  "region-restricted tool filtered out",
			tools: []tools.Descriptor{ocr("us-only", 1, regions("US")), ocr("generic", 9)},
			sc:    tools.SelectionContext{Region: "EU"},
			want:  "generic",
		},
		{
			name:  "degraded tool demoted",
			tools: []tools.Descriptor{ocr("flaky", 1, health(tools.Degraded)), ocr("steady", 9)},
			want:  "steady",
		},
		{
			name:  "unhealthy tool skipped",
			tools: []tools.Descriptor{ocr("down", 1, health(tools.Unhealthy)), ocr("up", 9)},
			want:  "up",
		},
		{
			name:  "preferred tool wins when eligible",
			tools: []tools.Descriptor{ocr("a", 1), ocr("b", 9)},
			sc:    tools.SelectionContext{Preferred: "b"},
			want:  "b",
		},
		{
			name:  "ineligible preferred tool ignored",
			tools: []tools.Descriptor{ocr("a", 1), ocr("b", 9, health(tools.Unhealthy))},
			sc:    tools.SelectionContext{Preferred: "b"},
			want:  "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t, tt.tools...)
			sel, err := r.Select(tools.OCR, tt.sc)
			if err != nil {
				t.Fatalf("Select() error: %v", err)
			}
			if sel.Tool != tt.want {
				t.Errorf("Select() = %s (%s), want %s", sel.Tool, sel.Reason, tt.want)
			}
			if sel.Descriptor().Name != sel.Tool {
				t.Errorf("Descriptor().Name = %s, want %s", sel.Descriptor().Name, sel.Tool)
			}
			if len(sel.Rejected) != len(tt.tools)-1 {
				t.Errorf("Rejected = %d entries, want %d", len(sel.Rejected), len(tt.tools)-1)
			}
		})
	}
}

func TestSelectDeterministic(t *testing.T) {
	r := newRegistry(t, ocr("a", 5), ocr("b", 5, docTypes("utility")), ocr("c", 5))
	sc := tools.SelectionContext{DocumentType: "utility"}

	first, err := r.Select(tools.OCR, sc)
	if err != nil {
		t.Fatal(err)
	}
	for range 50 {
		sel, err := r.Select(tools.OCR, sc)
		if err != nil {
			t.Fatal(err)
		}
		if sel.Tool != first.Tool || sel.Reason != first.Reason {
			t.Fatalf("selection changed: %s/%s vs %s/%s", sel.Tool, sel.Reason, first.Tool, first.Reason)
		}
	}
}

func TestSelectNoEligibleTool(t *testing.T) {
	r := newRegistry(t, ocr("down", 1, health(tools.Unhealthy)))

	sel, err := r.Select(tools.OCR, tools.SelectionContext{})
	if !errors.Is(err, tools.ErrNoEligibleTool) {
		t.Fatalf("err = %v, want ErrNoEligibleTool", err)
	}
	if len(sel.Rejected) != 1 || sel.Rejected[0].Reason != "unhealthy" {
		t.Errorf("Rejected = %+v", sel.Rejected)
	}

	if _, err := r.Select(tools.ERP, tools.SelectionContext{}); !errors.Is(err, tools.ErrNoEligibleTool) {
		t.Errorf("ERP err = %v, want ErrNoEligibleTool", err)
	}
}

func TestReplace(t *testing.T) {
	r := newRegistry(t, ocr("old", 1))

	before, err := r.Select(tools.OCR, tools.SelectionContext{})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Replace([]tools.Descriptor{ocr("new", 1)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	after, err := r.Select(tools.OCR, tools.SelectionContext{})
	if err != nil {
		t.Fatal(err)
	}
	if before.Tool != "old" || after.Tool != "new" {
		t.Errorf("before=%s after=%s", before.Tool, after.Tool)
	}
	if before.Descriptor().Name != "old" {
		t.Error("held selection changed after Replace")
	}

	if err := r.Replace([]tools.Descriptor{ocr("x", 1), ocr("x", 2)}); !errors.Is(err, tools.ErrDuplicateTool) {
		t.Errorf("duplicate Replace err = %v", err)
	}
	if got := r.List(tools.OCR); len(got) != 1 || got[0].Name != "new" {
		t.Errorf("failed Replace modified registry: %+v", got)
	}
}

func TestList(t *testing.T) {
	r := newRegistry(t,
		ocr("a", 1),
		tools.Descriptor{Name: "erp", Capability: tools.ERP, ERP: tools.NewFixtures(nil, nil)},
	)

	if got := r.List(""); len(got) != 2 {
		t.Errorf("List(all) = %d, want 2", len(got))
	}
	got := r.List(tools.ERP)
	if len(got) != 1 || got[0].Name != "erp" || got[0].Health != tools.Healthy {
		t.Errorf("List(ERP) = %+v", got)
	}
}

func TestParseCapability(t *testing.T) {
	for _, in := range []string{"ocr", " Enrichment ", "ERP"} {
		if _, err := tools.ParseCapability(in); err != nil {
			t.Errorf("ParseCapability(%q): %v", in, err)
		}
	}
	if _, err := tools.ParseCapability("fax"); err == nil {
		t.Error("expected error for unknown capability")
	}
}

func TestEmbeddedText(t *testing.T) {
	ext, err := tools.EmbeddedText{}.Extract(context.Background(), tools.Document{Text: "Invoice Number: 1"})
	if err != nil {
		t.Fatal(err)
	}
	if ext.Confidence != 1 || !strings.Contains(ext.Text, "Invoice Number") {
		t.Errorf("Extract() = %+v", ext)
	}

	empty, err := tools.EmbeddedText{}.Extract(context.Background(), tools.Document{})
	if err != nil || empty.Text != "" {
		t.Errorf("empty Extract() = %+v, %v", empty, err)
	}
}
