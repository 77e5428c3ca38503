package runs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/checkpoints"
	"github.com/JaimeStill/invoiceflow/internal/invoice"
	"github.com/JaimeStill/invoiceflow/internal/notify"
	"github.com/JaimeStill/invoiceflow/internal/runs"
	"github.com/JaimeStill/invoiceflow/internal/tools"
	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/middleware"
	"github.com/JaimeStill/invoiceflow/pkg/pagination"
	"github.com/JaimeStill/invoiceflow/pkg/routes"
	"github.com/JaimeStill/invoiceflow/pkg/storage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newServerWith(t, workflow.DefaultConfig())
}

func newServerWith(t *testing.T, cfg workflow.Config, opts ...workflow.EngineOption) *httptest.Server {
	t.Helper()
	logger := discard()

	registry := tools.NewRegistry()
	for _, d := range []tools.Descriptor{
		{Name: "embedded-text", Capability: tools.OCR, Priority: 10, OCR: tools.EmbeddedText{}},
		{Name: "vendor-master", Capability: tools.Enrichment, Priority: 10,
			Enrichment: tools.NewVendorTable("vendor-master", 0.2, nil)},
		{Name: "erp-fixtures", Capability: tools.ERP, Priority: 10, ERP: tools.NewFixtures(
			[]invoice.PurchaseOrder{{
				Number:     "PO-1001",
				VendorName: "Acme Supplies Ltd",
				Currency:   "INR",
				Lines:      []invoice.POLine{{Ref: "1", SKU: "W-1", Description: "Widget", Quantity: 10, UnitPrice: 100}},
			}},
			[]invoice.GoodsReceipt{{
				Number: "GRN-1001",
				PORef:  "PO-1001",
				Lines:  []invoice.ReceiptLine{{POLineRef: "1", QuantityReceived: 10}},
			}},
		)},
	} {
		if err := registry.Register(d); err != nil {
			t.Fatalf("register %s: %v", d.Name, err)
		}
	}

	rt := workflow.NewRuntime(cfg, registry, storage.NewMemory(logger), notify.NewLog(logger), logger)
	engine := workflow.NewEngine(rt, checkpoints.NewMemory(nil, logger), opts...)

	sys := runs.New(engine, logger, pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})

	mux := http.NewServeMux()
	handler := sys.Handler(1 << 20)
	routes.Register(mux, handler.Routes(), handler.ReviewRoutes())

	withReviewer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sub := r.Header.Get("X-Test-Reviewer"); sub != "" {
			r = r.WithContext(middleware.WithIdentity(r.Context(), middleware.Identity{Subject: sub}))
		}
		mux.ServeHTTP(w, r)
	})

	srv := httptest.NewServer(withReviewer)
	t.Cleanup(srv.Close)
	return srv
}

func payload(price float64) map[string]any {
	return map[string]any{
		"invoice_number": "INV-1001",
		"vendor_name":    "Acme Supplies Pvt Ltd",
		"currency":       "INR",
		"po_ref":         "PO-1001",
		"tax_amount":     180,
		"amount":         10*price + 180,
		"line_items": []map[string]any{
			{"description": "Widget", "sku": "W-1", "quantity": 10, "unit_price": price, "po_line_ref": "1"},
		},
	}
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, header map[string]string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func create(t *testing.T, srv *httptest.Server, body any) runs.Created {
	t.Helper()
	code, data := do(t, srv, "POST", "/runs", body, nil)
	if code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", code, data)
	}
	return decode[runs.Created](t, data)
}

func TestCreateCompletes(t *testing.T) {
	srv := newServer(t)

	created := create(t, srv, payload(100))
	if created.Status != workflow.StatusCompleted || created.Error != nil {
		t.Fatalf("created = %+v", created)
	}

	code, data := do(t, srv, "GET", "/runs/"+created.RunID.String(), nil, nil)
	if code != http.StatusOK {
		t.Fatalf("find: status %d", code)
	}
	p := decode[runs.Projection](t, data)
	if p.Final == nil || p.MatchScore == nil || *p.MatchScore < 0.85 {
		t.Errorf("projection = %+v", p)
	}
	if len(p.Audit) == 0 || len(p.ToolSelections) != 5 {
		t.Errorf("audit %d selections %d", len(p.Audit), len(p.ToolSelections))
	}
}

func TestCreateFailedRunIsCreated(t *testing.T) {
	srv := newServer(t)

	created := create(t, srv, map[string]any{"vendor_name": "Nobody"})
	if created.Status != workflow.StatusFailed {
		t.Fatalf("status = %s", created.Status)
	}
	if created.Error == nil || created.Error.Kind != workflow.KindValidation || created.Error.Stage != workflow.StageIntake {
		t.Errorf("error = %+v", created.Error)
	}
}

func TestCreateRejectsMalformedBody(t *testing.T) {
	srv := newServer(t)

	for _, body := range []string{"{", `{"unknown_field": 1}`, `{"amount": "lots"}`} {
		code, _ := do(t, srv, "POST", "/runs", body, nil)
		if code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", body, code)
		}
	}
}

func TestReviewAndDecide(t *testing.T) {
	srv := newServer(t)

	created := create(t, srv, payload(150))
	if created.Status != workflow.StatusPaused || created.Pause == nil {
		t.Fatalf("created = %+v", created)
	}
	id := created.RunID.String()

	code, data := do(t, srv, "GET", "/runs?status=paused&pause_kind=HITL_REVIEW", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("list: status %d", code)
	}
	queue := decode[pagination.PageResult[workflow.Summary]](t, data)
	if queue.Total != 1 || queue.Data[0].RunID != created.RunID || queue.Data[0].PauseKind != workflow.PauseReview {
		t.Fatalf("queue = %+v", queue)
	}

	code, data = do(t, srv, "GET", "/runs/"+id+"/checkpoints", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("checkpoints: status %d", code)
	}
	cps := decode[[]workflow.Checkpoint](t, data)
	if len(cps) != 1 || cps[0].ResumeStage != workflow.StageDecision || cps[0].Status != workflow.CheckpointOpen {
		t.Fatalf("checkpoints = %+v", cps)
	}
	if !strings.HasSuffix(cps[0].ReviewURL, "/"+cps[0].ID.String()) {
		t.Errorf("review url = %s", cps[0].ReviewURL)
	}

	reviewer := map[string]string{"X-Test-Reviewer": "ap.lead@example.com"}
	code, data = do(t, srv, "POST", "/runs/"+id+"/decision", map[string]string{"decision": "accept"}, reviewer)
	if code != http.StatusOK {
		t.Fatalf("decide: status %d: %s", code, data)
	}
	ack := decode[runs.Acknowledgement](t, data)
	if ack.Decision != workflow.Accept || ack.Status != workflow.StatusCompleted || ack.DecidedBy != "ap.lead@example.com" {
		t.Errorf("ack = %+v", ack)
	}

	_, data = do(t, srv, "GET", "/runs/"+id, nil, nil)
	before := decode[runs.Projection](t, data)

	code, _ = do(t, srv, "POST", "/runs/"+id+"/decision", map[string]string{"decision": "REJECT"}, nil)
	if code != http.StatusConflict {
		t.Errorf("second decision: status %d, want 409", code)
	}

	_, data = do(t, srv, "GET", "/runs/"+id, nil, nil)
	after := decode[runs.Projection](t, data)
	if after.Seq != before.Seq || after.Status != before.Status {
		t.Errorf("state changed by rejected decision: seq %d -> %d", before.Seq, after.Seq)
	}

	code, data = do(t, srv, "GET", "/runs/"+id+"/checkpoints", nil, nil)
	cps = decode[[]workflow.Checkpoint](t, data)
	if code != http.StatusOK || cps[0].Status != workflow.CheckpointResolved || cps[0].DecidedBy != "ap.lead@example.com" {
		t.Errorf("resolved checkpoint = %+v", cps)
	}
}

func TestDecideErrors(t *testing.T) {
	srv := newServer(t)

	paused := create(t, srv, payload(150))
	completed := create(t, srv, payload(100))

	tests := []struct {
		name string
		id   string
		body any
		want int
	}{
		{"invalid decision", paused.RunID.String(), map[string]string{"decision": "MAYBE"}, http.StatusBadRequest},
		{"malformed body", paused.RunID.String(), "{", http.StatusBadRequest},
		{"malformed id", "not-a-uuid", map[string]string{"decision": "ACCEPT"}, http.StatusBadRequest},
		{"unknown run", uuid.NewString(), map[string]string{"decision": "ACCEPT"}, http.StatusNotFound},
		{"not paused", completed.RunID.String(), map[string]string{"decision": "ACCEPT"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, data := do(t, srv, "POST", "/runs/"+tt.id+"/decision", tt.body, nil)
			if code != tt.want {
				t.Errorf("status %d, want %d: %s", code, tt.want, data)
			}
		})
	}
}

func TestRejectRequiresManualHandling(t *testing.T) {
	srv := newServer(t)
	created := create(t, srv, payload(150))

	code, data := do(t, srv, "POST", "/runs/"+created.RunID.String()+"/decision", map[string]string{"decision": "REJECT"}, nil)
	if code != http.StatusOK {
		t.Fatalf("decide: status %d: %s", code, data)
	}
	ack := decode[runs.Acknowledgement](t, data)
	if ack.Status != workflow.StatusRequiresManual || ack.DecidedBy != runs.DefaultReviewer {
		t.Errorf("ack = %+v", ack)
	}
}

func TestCancel(t *testing.T) {
	srv := newServer(t)
	created := create(t, srv, payload(150))
	path := "/runs/" + created.RunID.String() + "/cancel"

	code, data := do(t, srv, "POST", path, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("cancel: status %d: %s", code, data)
	}
	p := decode[runs.Projection](t, data)
	if p.Status != workflow.StatusFailed || p.ErrorKind != workflow.KindCancelled {
		t.Errorf("projection = %+v", p)
	}

	code, _ = do(t, srv, "POST", path, map[string]string{"reason": "again"}, nil)
	if code != http.StatusConflict {
		t.Errorf("second cancel: status %d, want 409", code)
	}

	code, _ = do(t, srv, "GET", "/runs/"+uuid.NewString()+"/checkpoints", nil, nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown checkpoints: status %d, want 404", code)
	}
}

func TestCancelWhileCreating(t *testing.T) {
	started := make(chan struct{})
	blocking := func(ctx context.Context, rt *workflow.Runtime, s workflow.RunState) (workflow.RunState, workflow.Outcome, error) {
		close(started)
		<-ctx.Done()
		return s, workflow.Halt, ctx.Err()
	}
	srv := newServerWith(t, workflow.DefaultConfig(), workflow.WithStage(workflow.StageUnderstand, blocking))

	type response struct {
		code int
		body []byte
		err  error
	}
	done := make(chan response, 1)
	go func() {
		data, _ := json.Marshal(payload(100))
		resp, err := srv.Client().Post(srv.URL+"/runs", "application/json", bytes.NewReader(data))
		if err != nil {
			done <- response{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		done <- response{code: resp.StatusCode, body: body, err: err}
	}()
	<-started

	_, data := do(t, srv, "GET", "/runs?status=RUNNING", nil, nil)
	running := decode[pagination.PageResult[workflow.Summary]](t, data)
	if running.Total != 1 {
		t.Fatalf("running = %+v", running)
	}
	id := running.Data[0].RunID

	code, data := do(t, srv, "POST", "/runs/"+id.String()+"/cancel", map[string]string{"reason": "duplicate"}, nil)
	if code != http.StatusOK {
		t.Fatalf("cancel: status %d: %s", code, data)
	}

	r := <-done
	if r.err != nil {
		t.Fatalf("create: %v", r.err)
	}
	if r.code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", r.code, r.body)
	}
	created := decode[runs.Created](t, r.body)
	if created.RunID != id || created.Status != workflow.StatusFailed {
		t.Fatalf("created = %+v", created)
	}
	if created.Error == nil || created.Error.Kind != workflow.KindCancelled || created.Error.Message != "duplicate" {
		t.Errorf("error = %+v", created.Error)
	}
}

func TestReviewRoutes(t *testing.T) {
	cfg := workflow.DefaultConfig()
	cfg.AutoApproveLimit = 1000
	srv := newServerWith(t, cfg)

	created := create(t, srv, payload(150))
	if created.Status != workflow.StatusPaused || created.Pause.Kind != workflow.PauseReview {
		t.Fatalf("created = %+v", created)
	}
	id := created.RunID.String()
	reviewID := created.Pause.CheckpointID.String()
	if !strings.HasSuffix(created.Pause.ReviewURL, "/review/"+reviewID) {
		t.Errorf("review url = %s", created.Pause.ReviewURL)
	}

	code, data := do(t, srv, "GET", "/review/"+reviewID, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("review: status %d: %s", code, data)
	}
	review := decode[runs.Review](t, data)
	if review.Checkpoint.Kind != workflow.PauseReview || review.Checkpoint.Status != workflow.CheckpointOpen || review.Run.RunID != created.RunID {
		t.Errorf("review = %+v", review)
	}

	code, data = do(t, srv, "POST", "/review/"+reviewID+"/decision", map[string]string{"decision": "ACCEPT"},
		map[string]string{"X-Test-Reviewer": "ap.lead@example.com"})
	if code != http.StatusOK {
		t.Fatalf("decide review: status %d: %s", code, data)
	}
	ack := decode[runs.Acknowledgement](t, data)
	if ack.CheckpointID.String() != reviewID || ack.Status != workflow.StatusPaused ||
		ack.Pause == nil || ack.Pause.Kind != workflow.PauseEscalation {
		t.Fatalf("ack = %+v", ack)
	}
	escalationID := ack.Pause.CheckpointID.String()

	_, data = do(t, srv, "GET", "/runs/"+id, nil, nil)
	before := decode[runs.Projection](t, data)

	duplicates := []struct {
		name string
		path string
		body map[string]string
		want int
	}{
		{"same checkpoint", "/review/" + reviewID + "/decision", map[string]string{"decision": "ACCEPT"}, http.StatusConflict},
		{"run without checkpoint", "/runs/" + id + "/decision", map[string]string{"decision": "ACCEPT"}, http.StatusConflict},
		{"run naming resolved checkpoint", "/runs/" + id + "/decision",
			map[string]string{"decision": "ACCEPT", "checkpoint_id": reviewID}, http.StatusConflict},
		{"run naming unknown checkpoint", "/runs/" + id + "/decision",
			map[string]string{"decision": "ACCEPT", "checkpoint_id": uuid.NewString()}, http.StatusNotFound},
	}

	for _, tt := range duplicates {
		t.Run(tt.name, func(t *testing.T) {
			code, data := do(t, srv, "POST", tt.path, tt.body, nil)
			if code != tt.want {
				t.Fatalf("status %d, want %d: %s", code, tt.want, data)
			}
			_, data = do(t, srv, "GET", "/runs/"+id, nil, nil)
			after := decode[runs.Projection](t, data)
			if after.Seq != before.Seq || after.Status != workflow.StatusPaused {
				t.Errorf("state changed: seq %d -> %d, status %s", before.Seq, after.Seq, after.Status)
			}
		})
	}

	code, data = do(t, srv, "POST", "/runs/"+id+"/decision",
		map[string]string{"decision": "ACCEPT", "checkpoint_id": escalationID},
		map[string]string{"X-Test-Reviewer": "cfo@example.com"})
	if code != http.StatusOK {
		t.Fatalf("decide escalation: status %d: %s", code, data)
	}
	ack = decode[runs.Acknowledgement](t, data)
	if ack.Status != workflow.StatusCompleted || ack.DecidedBy != "cfo@example.com" {
		t.Errorf("ack = %+v", ack)
	}

	code, data = do(t, srv, "GET", "/review/"+escalationID, nil, nil)
	review = decode[runs.Review](t, data)
	if code != http.StatusOK || review.Checkpoint.Status != workflow.CheckpointResolved || review.Run.Status != workflow.StatusCompleted {
		t.Errorf("resolved review = %+v", review)
	}

	for path, want := range map[string]int{
		"/review/" + uuid.NewString(): http.StatusNotFound,
		"/review/not-a-uuid":          http.StatusBadRequest,
	} {
		if code, _ := do(t, srv, "GET", path, nil, nil); code != want {
			t.Errorf("GET %s: status %d, want %d", path, code, want)
		}
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{runs.ErrNotFound, http.StatusNotFound},
		{runs.ErrCheckpointNotFound, http.StatusNotFound},
		{runs.ErrAlreadyDecided, http.StatusConflict},
		{runs.ErrInvalidState, http.StatusConflict},
		{runs.ErrInvalidDecision, http.StatusBadRequest},
		{runs.ErrInvalidRequest, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := runs.MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFilters(t *testing.T) {
	f := runs.Filters{Status: " paused ", Stage: "hitl_checkpoint", PauseKind: "approval_escalation"}.ListFilter()
	if f.Status != workflow.StatusPaused || f.Stage != workflow.StageCheckpoint || f.PauseKind != workflow.PauseEscalation {
		t.Errorf("filter = %+v", f)
	}
}
