// Package notify fans committed lifecycle events out to external sinks
// (Kafka, Slack, Discord). Delivery is best effort: a failing sink is
// logged and never affects the transition that produced the event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zulandar/reactoryard/internal/models"
)

// Event kinds.
const (
	KindTransition = "transition"
	KindOverrun    = "overrun"
)

// Event describes one committed status change, or an overrun alert raised
// by the monitor.
type Event struct {
	EventID       string        `json:"event_id"`
	Kind          string        `json:"kind"`
	TransactionID uint          `json:"transaction_id"`
	ReactorID     uint          `json:"reactor_id"`
	ProductID     uint          `json:"product_id"`
	WorkOrderNo   string        `json:"work_order_no,omitempty"`
	LotNo         string        `json:"lot_no,omitempty"`
	From          models.Status `json:"from,omitempty"`
	To            models.Status `json:"to"`
	Note          string        `json:"note,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Fanout delivers each event to every registered sink in order.
type Fanout struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
}

// DefaultPublishTimeout bounds one Publish call across all sinks.
const DefaultPublishTimeout = 5 * time.Second

// NewFanout creates a Fanout. A nil logger means slog.Default().
func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{sinks: sinks, logger: logger, timeout: DefaultPublishTimeout}
}

// Add registers another sink.
func (f *Fanout) Add(s Sink) { f.sinks = append(f.sinks, s) }

// Len returns the number of registered sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish sends ev to all sinks. Failures are logged and returned joined;
// a failing sink does not stop delivery to the rest.
func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	if f == nil || len(f.sinks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			f.logger.Warn("notify: publish failed",
				"sink", s.Name(), "transaction_id", ev.TransactionID, "kind", ev.Kind, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and returns the joined errors.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Color constants for chat attachments.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Field is a key-value pair displayed in a chat attachment.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Message is an event rendered for chat platforms.
type Message struct {
	Title  string
	Body   string
	Color  string
	Fields []Field
}

func statusVerb(s models.Status) string {
	switch s {
	case models.StatusPlanned:
		return "planned"
	case models.StatusInProgress:
		return "started"
	case models.StatusProductionCompleted:
		return "finished production"
	case models.StatusWashing:
		return "started washing"
	case models.StatusWashingCompleted:
		return "finished washing"
	case models.StatusCompleted:
		return "completed"
	case models.StatusCancelled:
		return "cancelled"
	default:
		return string(s)
	}
}

func statusColor(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return ColorSuccess
	case models.StatusCancelled:
		return ColorWarning
	default:
		return ColorInfo
	}
}

// Format renders ev for Slack and Discord.
func Format(ev Event) Message {
	if ev.Kind == KindOverrun {
		return Message{
			Title: fmt.Sprintf("Batch %d on reactor %d is overrunning", ev.TransactionID, ev.ReactorID),
			Body:  fmt.Sprintf("In production for %s", ev.Elapsed.Round(time.Minute)),
			Color: ColorError,
			Fields: []Field{
				{Name: "Work order", Value: orDash(ev.WorkOrderNo), Short: true},
				{Name: "Lot", Value: orDash(ev.LotNo), Short: true},
			},
		}
	}

	msg := Message{
		Title: fmt.Sprintf("Batch %d %s", ev.TransactionID, statusVerb(ev.To)),
		Color: statusColor(ev.To),
		Fields: []Field{
			{Name: "Reactor", Value: fmt.Sprint(ev.ReactorID), Short: true},
			{Name: "Work order", Value: orDash(ev.WorkOrderNo), Short: true},
			{Name: "Lot", Value: orDash(ev.LotNo), Short: true},
		},
	}
	var body []string
	if ev.From != "" {
		body = append(body, fmt.Sprintf("%s → %s", ev.From, ev.To))
	}
	if ev.Note != "" {
		body = append(body, ev.Note)
	}
	msg.Body = strings.Join(body, "\n")
	return msg
}

// Text renders msg as a single plain-text line block, used as a fallback.
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Body != "" {
		b.WriteString("\n")
		b.WriteString(m.Body)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
