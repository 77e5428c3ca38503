package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/invoiceflow/pkg/routes"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRegisterNestedGroups(t *testing.T) {
	mux := http.NewServeMux()

	routes.Register(mux, routes.Group{
		Prefix: "/runs",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: ok},
			{Method: "GET", Pattern: "/{id}", Handler: ok},
		},
		Children: []routes.Group{
			{
				Prefix: "/{id}/decision",
				Routes: []routes.Route{{Method: "POST", Pattern: "", Handler: ok}},
			},
		},
	})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"list", "GET", "/runs", http.StatusOK},
		{"find", "GET", "/runs/123", http.StatusOK},
		{"nested", "POST", "/runs/123/decision", http.StatusOK},
		{"wrong method", "DELETE", "/runs/123", http.StatusMethodNotAllowed},
		{"unknown", "GET", "/other", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
