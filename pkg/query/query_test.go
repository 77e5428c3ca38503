package query_test

import (
	"reflect"
	"testing"

	"github.com/JaimeStill/invoiceflow/pkg/query"
)

func projection() *query.ProjectionMap {
	return query.NewProjectionMap("runs", "r").
		Project("run_id", "RunID").
		Project("status", "Status").
		Project("vendor_name", "VendorName").
		Project("updated_at", "UpdatedAt")
}

func TestBuildPage(t *testing.T) {
	qb := query.NewBuilder(projection(), query.SortField{Field: "UpdatedAt", Descending: true}).
		WhereEquals("Status", "PAUSED").
		WhereEquals("Stage", "").
		WhereContains("VendorName", "Acme")

	sql, args := qb.BuildPage(2, 10)

	want := "SELECT r.run_id, r.status, r.vendor_name, r.updated_at FROM runs r" +
		" WHERE r.status = ? AND LOWER(r.vendor_name) LIKE ? ORDER BY r.updated_at DESC LIMIT 10 OFFSET 10"
	if sql != want {
		t.Errorf("sql =\n%s\nwant\n%s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"PAUSED", "%acme%"}) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildCount(t *testing.T) {
	sql, args := query.NewBuilder(projection()).
		WhereIn("Status", []any{"RUNNING", "PAUSED"}).
		BuildCount()

	if sql != "SELECT COUNT(*) FROM runs r WHERE r.status IN (?, ?)" {
		t.Errorf("sql = %s", sql)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}

func TestOrderByOverride(t *testing.T) {
	sql, _ := query.NewBuilder(projection(), query.SortField{Field: "UpdatedAt"}).
		OrderByFields(query.ParseSortFields("Status,-RunID")).
		Build()

	want := "SELECT r.run_id, r.status, r.vendor_name, r.updated_at FROM runs r ORDER BY r.status ASC, r.run_id DESC"
	if sql != want {
		t.Errorf("sql = %s", sql)
	}
}

func TestParseSortFields(t *testing.T) {
	tests := []struct {
		in   string
		want []query.SortField
	}{
		{"", nil},
		{"a", []query.SortField{{Field: "a"}}},
		{"-a, b ,", []query.SortField{{Field: "a", Descending: true}, {Field: "b"}}},
	}

	for _, tt := range tests {
		if got := query.ParseSortFields(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseSortFields(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
