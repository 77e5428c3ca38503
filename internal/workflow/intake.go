package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/invoiceflow/internal/invoice"
	"github.com/JaimeStill/invoiceflow/pkg/formatting"
)

// Intake validates the payload, inspects attachments, and archives the raw
// submission to blob storage. Archive failures are audited, not fatal;
// attachment content stays in state until it has been archived.
func Intake(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error) {
	if err := rt.validatePayload(s.Payload); err != nil {
		return s, Halt, err
	}

	for i := range s.Payload.Attachments {
		a := &s.Payload.Attachments[i]
		if err := inspectAttachment(a); err != nil {
			return s, Halt, err
		}
		if a.Size > 0 {
			rt.Logger.DebugContext(
				ctx, "attachment inspected",
				"run_id", s.RunID,
				"filename", a.Filename,
				"size", formatting.FormatBytes(a.Size, 1),
				"pages", a.Pages,
			)
		}
	}

	rt.archiveAttachments(ctx, &s)
	rt.archiveJSON(ctx, &s, payloadKey(s), s.Payload)

	rt.Logger.InfoContext(
		ctx, "intake complete",
		"run_id", s.RunID,
		"attachments", len(s.Payload.Attachments),
		"source", s.Payload.Source,
	)
	return s, Advance, nil
}

func (rt *Runtime) validatePayload(p Payload) error {
	if err := rt.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	for _, a := range p.Attachments {
		if len(a.Content) == 0 && a.URL == "" && a.StorageKey == "" {
			return fmt.Errorf("%w: attachment %s has no content or url", ErrValidation, a.Filename)
		}
	}
	return nil
}

func inspectAttachment(a *invoice.Attachment) error {
	if len(a.Content) == 0 {
		return nil
	}

	a.Size = int64(len(a.Content))
	if a.ContentType == "" {
		a.ContentType = http.DetectContentType(a.Content)
	}

	if a.ContentType != "application/pdf" {
		return nil
	}

	pages, err := api.PageCount(bytes.NewReader(a.Content), nil)
	if err != nil {
		return fmt.Errorf("%w: attachment %s is not a readable pdf: %w", ErrValidation, a.Filename, err)
	}
	a.Pages = pages
	return nil
}

func (rt *Runtime) archiveAttachments(ctx context.Context, s *RunState) {
	for i := range s.Payload.Attachments {
		a := &s.Payload.Attachments[i]
		if len(a.Content) == 0 || a.StorageKey != "" {
			continue
		}

		key := fmt.Sprintf("runs/%s/attachments/%02d-%s", s.RunID, i, safeName(a.Filename))
		if err := rt.Storage.Upload(ctx, key, bytes.NewReader(a.Content), a.ContentType); err != nil {
			rt.record(ctx, s, EventArchiveFailed, map[string]any{"key": key, "error": err.Error()})
			continue
		}

		a.StorageKey = key
		a.Content = nil
		rt.record(ctx, s, EventArchived, map[string]any{"key": key, "size": a.Size})
	}
}

func (rt *Runtime) archiveJSON(ctx context.Context, s *RunState, key string, v any) bool {
	data, err := json.Marshal(v)
	if err == nil {
		err = rt.Storage.Upload(ctx, key, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		rt.record(ctx, s, EventArchiveFailed, map[string]any{"key": key, "error": err.Error()})
		return false
	}
	rt.record(ctx, s, EventArchived, map[string]any{"key": key, "size": len(data)})
	return true
}

func payloadKey(s RunState) string {
	return fmt.Sprintf("runs/%s/payload.json", s.RunID)
}

func finalKey(s RunState) string {
	return fmt.Sprintf("runs/%s/final.json", s.RunID)
}

func safeName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.ReplaceAll(clean, "..", "_")
}
