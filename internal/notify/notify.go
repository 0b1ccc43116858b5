package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Notification is one push message bound for a user's device.
type Notification struct {
	Recipient string
	Title     string
	Body      string
	Data      map[string]string
}

// Sender delivers a batch of notifications to the push provider.
// Batches passed to Send never exceed the provider cap.
type Sender interface {
	Send(ctx context.Context, batch []Notification) error
}

// maxBatchSize is the provider's per-request recipient cap.
const maxBatchSize = 100

// Dispatcher chunks notifications to the provider cap and forwards them.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher around the given Sender.
func NewDispatcher(sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, logger: logger}
}

// Dispatch sends all notifications in provider-sized chunks. A failing chunk
// does not stop the rest; all chunk errors are joined and returned.
func (d *Dispatcher) Dispatch(ctx context.Context, notifications []Notification) error {
	var errs []error
	for start := 0; start < len(notifications); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(notifications) {
			end = len(notifications)
		}
		if err := d.sender.Send(ctx, notifications[start:end]); err != nil {
			d.logger.Error("notification batch failed", "from", start, "to", end, "error", err)
			errs = append(errs, fmt.Errorf("batch [%d:%d]: %w", start, end, err))
		}
	}
	return errors.Join(errs...)
}

// LogSender is the default Sender; it records notifications in the log
// instead of calling a push provider.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, batch []Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, n := range batch {
		logger.Info("notification", "recipient", n.Recipient, "title", n.Title, "body", n.Body)
	}
	return nil
}
