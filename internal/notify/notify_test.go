package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/reactoryard/internal/models"
)

type recordingSink struct {
	name   string
	err    error
	mu     sync.Mutex
	events []Event
	closed bool
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	f := NewFanout(nil, a, b)

	ev := Event{Kind: KindTransition, TransactionID: 7, To: models.StatusInProgress}
	if err := f.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events = %d, %d; want 1, 1", len(a.events), len(b.events))
	}
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("broker down")}
	good := &recordingSink{name: "good"}
	f := NewFanout(nil, bad, good)

	err := f.Publish(context.Background(), Event{TransactionID: 1})
	if err == nil || !strings.Contains(err.Error(), "bad: broker down") {
		t.Errorf("err = %v, want joined sink error", err)
	}
	if len(good.events) != 1 {
		t.Errorf("good sink got %d events, want 1", len(good.events))
	}
}

func TestFanout_NilAndEmpty(t *testing.T) {
	var f *Fanout
	if err := f.Publish(context.Background(), Event{}); err != nil {
		t.Errorf("nil fanout Publish = %v", err)
	}
	if err := NewFanout(nil).Publish(context.Background(), Event{}); err != nil {
		t.Errorf("empty fanout Publish = %v", err)
	}
}

func TestFanout_Close(t *testing.T) {
	a := &recordingSink{name: "a"}
	f := NewFanout(nil)
	f.Add(a)
	if f.Len() != 1 {
		t.Fatalf("Len = %d", f.Len())
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed {
		t.Error("sink not closed")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name      string
		ev        Event
		wantTitle string
		wantColor string
	}{
		{"start", Event{TransactionID: 3, From: models.StatusPlanned, To: models.StatusInProgress}, "Batch 3 started", ColorInfo},
		{"finish", Event{TransactionID: 3, From: models.StatusWashingCompleted, To: models.StatusCompleted}, "Batch 3 completed", ColorSuccess},
		{"cancel", Event{TransactionID: 4, From: models.StatusWashing, To: models.StatusCancelled, Note: "pump failure"}, "Batch 4 cancelled", ColorWarning},
		{"overrun", Event{Kind: KindOverrun, TransactionID: 5, ReactorID: 2, Elapsed: 3 * time.Hour}, "Batch 5 on reactor 2 is overrunning", ColorError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Format(tt.ev)
			if msg.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", msg.Title, tt.wantTitle)
			}
			if msg.Color != tt.wantColor {
				t.Errorf("Color = %q, want %q", msg.Color, tt.wantColor)
			}
		})
	}
}

func TestFormat_BodyIncludesNote(t *testing.T) {
	msg := Format(Event{TransactionID: 4, From: models.StatusWashing, To: models.StatusCancelled, Note: "pump failure"})
	if !strings.Contains(msg.Body, "washing → cancelled") || !strings.Contains(msg.Body, "pump failure") {
		t.Errorf("Body = %q", msg.Body)
	}
	if !strings.HasPrefix(msg.Text(), "Batch 4 cancelled\n") {
		t.Errorf("Text = %q", msg.Text())
	}
}
