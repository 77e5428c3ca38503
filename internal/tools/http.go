package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
)

// HTTP is a connector that forwards every capability to a remote service as
// JSON over HTTP. Gateway errors and transport failures are ErrUnavailable.
//
// Routes relative to Endpoint:
//
//	POST /ocr/extract
//	POST /vendors/enrich
//	POST /erp/retrieve
//	POST /erp/post
//	POST /erp/payments
type HTTP struct {
	Endpoint string
	Headers  map[string]string
	client   *http.Client
}

// NewHTTP creates an HTTP connector with the given request timeout.
func NewHTTP(endpoint string, timeout time.Duration, headers map[string]string) *HTTP {
	return &HTTP{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) Extract(ctx context.Context, doc Document) (Extraction, error) {
	var out Extraction
	err := h.do(ctx, "/ocr/extract", doc, &out)
	return out, err
}

func (h *HTTP) Enrich(ctx context.Context, q VendorQuery) (invoice.VendorProfile, error) {
	var out invoice.VendorProfile
	err := h.do(ctx, "/vendors/enrich", q, &out)
	return out, err
}

// Retrieve treats 404 as an empty record set rather than an error.
func (h *HTTP) Retrieve(ctx context.Context, q ERPQuery) (invoice.ERPRecords, error) {
	var out invoice.ERPRecords
	err := h.do(ctx, "/erp/retrieve", q, &out)
	if errors.Is(err, errNotFound) {
		return invoice.ERPRecords{}, nil
	}
	return out, err
}

func (h *HTTP) Post(ctx context.Context, req PostingRequest) (invoice.PostingReceipt, error) {
	var out invoice.PostingReceipt
	err := h.do(ctx, "/erp/post", req, &out)
	return out, err
}

func (h *HTTP) SchedulePayment(ctx context.Context, req PaymentRequest) (invoice.PaymentSchedule, error) {
	var out invoice.PaymentSchedule
	err := h.do(ctx, "/erp/payments", req, &out)
	return out, err
}

var errNotFound = errors.New("not found")

func (h *HTTP) do(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if key, ok := in.(interface{ idempotencyKey() string }); ok && key.idempotencyKey() != "" {
		req.Header.Set("Idempotency-Key", key.idempotencyKey())
	}
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s: status %d", ErrUnavailable, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s: status %d: %s", ErrRejected, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", ErrRejected, path, err)
	}
	return nil
}

func (r PostingRequest) idempotencyKey() string { return r.IdempotencyKey }
func (r PaymentRequest) idempotencyKey() string { return r.IdempotencyKey }
