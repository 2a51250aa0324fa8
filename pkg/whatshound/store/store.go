// Package store provides the durable persistence layer for WhatsHound:
// an append-only conversation log, per-user context blobs, user profiles,
// and reminders. All tables live in a single SQLite database.
package store

import (
	"errors"
	"time"
)

// ConversationRecord is one user/assistant exchange. Records are append-only
// and never mutated after creation; they are the source of truth for history
// hydration and statistics.
type ConversationRecord struct {
	// RecordID is a unique identifier for the exchange (UUID).
	RecordID string

	// UserID is the stable external identifier (phone number / conversation id).
	UserID string

	// Message is the inbound user text.
	Message string

	// Response is the outbound assistant text.
	Response string

	// Timestamp is when the exchange was recorded.
	Timestamp time.Time
}

// UserProfile holds per-user preferences. Upserted: created on first contact,
// updated thereafter.
type UserProfile struct {
	UserID            string
	Name              string
	PreferredLanguage string
	Timezone          string
	Preferences       map[string]any
	CreatedAt         time.Time
	LastActiveAt      time.Time
}

// Reminder is a persisted reminder row. DueAt is optional; reminders without
// a due date are never swept by the scheduler and only show up in listings.
type Reminder struct {
	ID        int64
	UserID    string
	Task      string
	DueAt     *time.Time
	Completed bool
	CreatedAt time.Time
}

// Stats summarizes the conversation log.
type Stats struct {
	TotalMessages int
	UniqueUsers   int
	TopUsers      []UserCount
}

// UserCount pairs a user with their message count.
type UserCount struct {
	UserID   string
	Messages int
}

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract consumed by the session registry,
// the router, and the reminder scheduler.
type Store interface {
	// AppendConversation appends one record to the conversation log.
	AppendConversation(rec ConversationRecord) error

	// RecentConversations returns the most recent records for a user in
	// chronological order (oldest first). A missing user yields an empty
	// slice, not an error.
	RecentConversations(userID string, limit int) ([]ConversationRecord, error)

	// ClearConversations deletes all conversation records for a user.
	ClearConversations(userID string) error

	// LoadContext returns the persisted context blob for a user. A missing
	// row yields an empty map, not an error.
	LoadContext(userID string) (map[string]any, error)

	// SaveContext upserts the context blob for a user.
	SaveContext(userID string, data map[string]any) error

	// Profile returns the stored profile, or ErrNotFound.
	Profile(userID string) (*UserProfile, error)

	// SaveProfile upserts a profile row.
	SaveProfile(p *UserProfile) error

	// TouchProfile updates last_active for a user, creating the profile
	// row on first contact.
	TouchProfile(userID string, at time.Time) error

	// AddReminder inserts a reminder row and returns its ID.
	AddReminder(r *Reminder) (int64, error)

	// DueReminders returns uncompleted reminders whose due date has passed.
	DueReminders(now time.Time) ([]Reminder, error)

	// CompleteReminder marks a reminder completed.
	CompleteReminder(id int64) error

	// ConversationStats aggregates message counts across the log.
	ConversationStats(topN int) (*Stats, error)

	// Ping verifies connectivity to the underlying database.
	Ping() error

	// Close releases the database handle.
	Close() error
}
