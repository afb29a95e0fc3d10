// Package notify delivers applied-record notifications to downstream
// subscribers. Every sink implements core.Notifier; Dispatcher decouples
// delivery from the batch that produced it.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/storesync/internal/core"
)

// Message is the wire form of a notification.
type Message struct {
	BatchID   string         `json:"batchId"`
	Entity    string         `json:"entity"`
	Operation string         `json:"operation,omitempty"`
	Terminal  string         `json:"terminal,omitempty"`
	Count     int            `json:"count"`
	Records   []*core.Record `json:"data"`
	SentAt    time.Time      `json:"sentAt"`
}

func newMessage(n core.Notification) Message {
	return Message{
		BatchID:   n.BatchID,
		Entity:    n.Entity,
		Operation: string(n.Operation),
		Terminal:  n.Terminal,
		Count:     len(n.Records),
		Records:   n.Records,
		SentAt:    time.Now().UTC(),
	}
}

func encode(n core.Notification) ([]byte, error) {
	body, err := json.Marshal(newMessage(n))
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return body, nil
}

// LogSink writes a summary line per notification.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, n core.Notification) error {
	s.logger.InfoContext(ctx, "records applied",
		"batch_id", n.BatchID,
		"entity", n.Entity,
		"operation", string(n.Operation),
		"terminal", n.Terminal,
		"records", len(n.Records),
	)
	return nil
}

// Fanout delivers each notification to every sink. A failing sink does not
// stop delivery to the others.
type Fanout []core.Notifier

func (f Fanout) Notify(ctx context.Context, n core.Notification) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
