// Package notify delivers workflow notifications as CloudEvents over HTTP,
// or to the log when no sink endpoint is configured.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/workflow"
)

// EventTypePrefix is prepended to a notification event to form the
// CloudEvents type.
const EventTypePrefix = "com.invoiceflow."

// ErrUndelivered is returned when the sink does not acknowledge an event.
var ErrUndelivered = errors.New("notification not delivered")

// New returns the notifier selected by cfg.
func New(cfg *Config, logger *slog.Logger) (workflow.Notifier, error) {
	if cfg.Endpoint == "" {
		return NewLog(logger), nil
	}
	return NewCloudEvents(cfg, logger)
}

// CloudEvents posts each notification to an HTTP endpoint in binary
// content mode.
type CloudEvents struct {
	client cloudevents.Client
	cfg    Config
	logger *slog.Logger
	newID  func() string
}

// NewCloudEvents creates a CloudEvents HTTP sink for cfg.Endpoint.
func NewCloudEvents(cfg *Config, logger *slog.Logger) (*CloudEvents, error) {
	client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("create cloudevents client: %w", err)
	}
	return &CloudEvents{
		client: client,
		cfg:    *cfg,
		logger: logger.With("system", "notify"),
		newID:  func() string { return uuid.NewString() },
	}, nil
}

func (c *CloudEvents) Name() string {
	return "cloudevents"
}

func (c *CloudEvents) Notify(ctx context.Context, n workflow.Notification) error {
	e := Event(n, c.cfg.Source, c.newID())

	if d := c.cfg.TimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	result := c.client.Send(ctx, e)
	if !cloudevents.IsACK(result) {
		c.logger.WarnContext(ctx, "notification rejected",
			"run_id", n.RunID, "recipient", n.Recipient, "error", result)
		return fmt.Errorf("%w: %s: %w", ErrUndelivered, n.Recipient, result)
	}

	c.logger.InfoContext(ctx, "notification sent",
		"run_id", n.RunID, "recipient", n.Recipient, "event_id", e.ID())
	return nil
}

// Event converts a notification into a CloudEvent. The run ID is the
// subject and the recipient travels as an extension attribute.
func Event(n workflow.Notification, source, id string) cloudevents.Event {
	e := cloudevents.NewEvent()
	e.SetID(id)
	e.SetSource(source)
	e.SetType(EventTypePrefix + n.Event)
	e.SetSubject(n.RunID.String())
	e.SetExtension("recipient", n.Recipient)
	_ = e.SetData(cloudevents.ApplicationJSON, n)
	return e
}

// Log writes notifications to the logger. It never fails.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log sink.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("system", "notify")}
}

func (l *Log) Name() string {
	return "log"
}

func (l *Log) Notify(ctx context.Context, n workflow.Notification) error {
	l.logger.InfoContext(ctx, n.Subject,
		"run_id", n.RunID,
		"recipient", n.Recipient,
		"event", n.Event,
		"message", n.Message,
	)
	return nil
}
