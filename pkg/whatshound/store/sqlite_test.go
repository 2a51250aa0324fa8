package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecentConversations(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	for i, msg := range []string{"first", "second", "third"} {
		err := s.AppendConversation(ConversationRecord{
			RecordID:  uuid.NewString(),
			UserID:    "whatsapp:+15550001111",
			Message:   msg,
			Response:  "reply to " + msg,
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendConversation(%q) error: %v", msg, err)
		}
	}

	recs, err := s.RecentConversations("whatsapp:+15550001111", 2)
	if err != nil {
		t.Fatalf("RecentConversations() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// Chronological order: oldest of the two kept comes first.
	if recs[0].Message != "second" || recs[1].Message != "third" {
		t.Errorf("wrong order: %q, %q", recs[0].Message, recs[1].Message)
	}
}

func TestRecentConversations_UnknownUser(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	recs, err := s.RecentConversations("whatsapp:+19990000000", 10)
	if err != nil {
		t.Fatalf("RecentConversations() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d records for unknown user, want 0", len(recs))
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	// Missing row means new user, not an error.
	data, err := s.LoadContext("u1")
	if err != nil {
		t.Fatalf("LoadContext() error: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty context, got %v", data)
	}

	in := map[string]any{
		"tasks": []any{
			map[string]any{"task": "call mom", "completed": false},
		},
	}
	if err := s.SaveContext("u1", in); err != nil {
		t.Fatalf("SaveContext() error: %v", err)
	}

	out, err := s.LoadContext("u1")
	if err != nil {
		t.Fatalf("LoadContext() error: %v", err)
	}
	tasks, ok := out["tasks"].([]any)
	if !ok || len(tasks) != 1 {
		t.Fatalf("context tasks not preserved: %v", out)
	}
}

func TestSaveContext_Upsert(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.SaveContext("u2", map[string]any{"lang": "en"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveContext("u2", map[string]any{"lang": "pt"}); err != nil {
		t.Fatal(err)
	}
	out, err := s.LoadContext("u2")
	if err != nil {
		t.Fatal(err)
	}
	if out["lang"] != "pt" {
		t.Errorf("lang = %v, want pt", out["lang"])
	}
}

func TestProfileLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if _, err := s.Profile("nobody"); err != ErrNotFound {
		t.Errorf("Profile(missing) = %v, want ErrNotFound", err)
	}

	// First contact creates the row with defaults.
	if err := s.TouchProfile("u3", time.Now()); err != nil {
		t.Fatalf("TouchProfile() error: %v", err)
	}
	p, err := s.Profile("u3")
	if err != nil {
		t.Fatalf("Profile() error: %v", err)
	}
	if p.PreferredLanguage != "en" || p.Timezone != "UTC" {
		t.Errorf("defaults not applied: %+v", p)
	}

	p.Name = "Ana"
	if err := s.SaveProfile(p); err != nil {
		t.Fatalf("SaveProfile() error: %v", err)
	}
	p2, err := s.Profile("u3")
	if err != nil {
		t.Fatal(err)
	}
	if p2.Name != "Ana" {
		t.Errorf("Name = %q, want Ana", p2.Name)
	}
}

func TestReminders(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	dueID, err := s.AddReminder(&Reminder{UserID: "u4", Task: "pay rent", DueAt: &past})
	if err != nil {
		t.Fatalf("AddReminder() error: %v", err)
	}
	if _, err := s.AddReminder(&Reminder{UserID: "u4", Task: "later", DueAt: &future}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddReminder(&Reminder{UserID: "u4", Task: "no due date"}); err != nil {
		t.Fatal(err)
	}

	due, err := s.DueReminders(time.Now())
	if err != nil {
		t.Fatalf("DueReminders() error: %v", err)
	}
	if len(due) != 1 || due[0].Task != "pay rent" {
		t.Fatalf("due = %+v, want only 'pay rent'", due)
	}

	if err := s.CompleteReminder(dueID); err != nil {
		t.Fatalf("CompleteReminder() error: %v", err)
	}
	due, err = s.DueReminders(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("completed reminder still due: %+v", due)
	}
}

func TestConversationStats(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	users := []string{"a", "a", "a", "b", "b", "c"}
	for _, u := range users {
		if err := s.AppendConversation(ConversationRecord{
			RecordID: uuid.NewString(),
			UserID:   u,
			Message:  "hi",
			Response: "hello",
		}); err != nil {
			t.Fatal(err)
		}
	}

	st, err := s.ConversationStats(2)
	if err != nil {
		t.Fatalf("ConversationStats() error: %v", err)
	}
	if st.TotalMessages != 6 {
		t.Errorf("TotalMessages = %d, want 6", st.TotalMessages)
	}
	if st.UniqueUsers != 3 {
		t.Errorf("UniqueUsers = %d, want 3", st.UniqueUsers)
	}
	if len(st.TopUsers) != 2 || st.TopUsers[0].UserID != "a" || st.TopUsers[0].Messages != 3 {
		t.Errorf("TopUsers = %+v", st.TopUsers)
	}
}

func TestClearConversations(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.AppendConversation(ConversationRecord{
			RecordID: uuid.NewString(),
			UserID:   "u5",
			Message:  "m",
			Response: "r",
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.ClearConversations("u5"); err != nil {
		t.Fatalf("ClearConversations() error: %v", err)
	}
	recs, err := s.RecentConversations("u5", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("records remain after clear: %d", len(recs))
	}
}
