package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"whatshound/pkg/whatshound/channels"
	"whatshound/pkg/whatshound/store"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
	to   []string
	fail bool
}

func (f *fakeMessenger) Name() string { return "fake" }

func (f *fakeMessenger) Send(_ context.Context, to string, msg *channels.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, msg.Content)
	return nil
}

type reminderStore struct {
	store.Store // only the reminder methods are implemented

	mu        sync.Mutex
	reminders []store.Reminder
	completed []int64
}

func (r *reminderStore) DueReminders(now time.Time) ([]store.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []store.Reminder
	for _, rem := range r.reminders {
		if !rem.Completed && rem.DueAt != nil && !rem.DueAt.After(now) {
			due = append(due, rem)
		}
	}
	return due, nil
}

func (r *reminderStore) CompleteReminder(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.reminders {
		if r.reminders[i].ID == id {
			r.reminders[i].Completed = true
			r.completed = append(r.completed, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepDeliversDueReminders(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	st := &reminderStore{reminders: []store.Reminder{
		{ID: 1, UserID: "whatsapp:+1555", Task: "call mom", DueAt: &past},
		{ID: 2, UserID: "whatsapp:+1555", Task: "later", DueAt: &future},
		{ID: 3, UserID: "whatsapp:+1666", Task: "no due date"},
	}}
	msg := &fakeMessenger{}

	s := New(Config{}, st, msg, testLogger())
	s.Sweep()

	if len(msg.sent) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(msg.sent))
	}
	if !strings.Contains(msg.sent[0], "call mom") {
		t.Errorf("notification = %q", msg.sent[0])
	}
	if msg.to[0] != "whatsapp:+1555" {
		t.Errorf("recipient = %q", msg.to[0])
	}
	if len(st.completed) != 1 || st.completed[0] != 1 {
		t.Errorf("completed = %v, want [1]", st.completed)
	}
}

func TestSweepRetriesFailedSends(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Minute)
	st := &reminderStore{reminders: []store.Reminder{
		{ID: 1, UserID: "u", Task: "x", DueAt: &past},
	}}
	msg := &fakeMessenger{fail: true}

	s := New(Config{}, st, msg, testLogger())
	s.Sweep()

	if len(st.completed) != 0 {
		t.Errorf("failed delivery must not complete the reminder: %v", st.completed)
	}

	// Next sweep succeeds and completes it.
	msg.fail = false
	s.Sweep()
	if len(st.completed) != 1 {
		t.Errorf("retry did not complete the reminder: %v", st.completed)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &reminderStore{}, &fakeMessenger{}, testLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
	s.Stop()
	s.Stop() // idempotent
}
