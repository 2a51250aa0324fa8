package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds SQLite-specific configuration.
type Config struct {
	Path        string `yaml:"path"`
	JournalMode string `yaml:"journal_mode"`
	BusyTimeout int    `yaml:"busy_timeout_ms"`
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = "./data/whatshound.db"
	}
	if c.JournalMode == "" {
		c.JournalMode = "WAL"
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5000
	}
}

// SQLite implements Store on top of a single SQLite database file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLite)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id    TEXT NOT NULL UNIQUE,
	phone_number TEXT NOT NULL,
	message      TEXT NOT NULL,
	response     TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user
	ON conversations(phone_number, id);

CREATE TABLE IF NOT EXISTS user_context (
	phone_number TEXT PRIMARY KEY,
	context_data TEXT NOT NULL DEFAULT '{}',
	last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_profiles (
	phone_number       TEXT PRIMARY KEY,
	name               TEXT NOT NULL DEFAULT '',
	preferred_language TEXT NOT NULL DEFAULT 'en',
	timezone           TEXT NOT NULL DEFAULT 'UTC',
	preferences        TEXT NOT NULL DEFAULT '{}',
	created_at         TEXT NOT NULL,
	last_active        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reminders (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	phone_number TEXT NOT NULL,
	task         TEXT NOT NULL,
	due_at       TEXT,
	completed    INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reminders_due
	ON reminders(completed, due_at);
`

// Open opens or creates the WhatsHound database with the given configuration.
func Open(cfg Config, logger *slog.Logger) (*SQLite, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d&_foreign_keys=ON",
		cfg.Path, cfg.JournalMode, cfg.BusyTimeout)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger = logger.With("component", "store")
	logger.Info("database opened", "path", cfg.Path, "journal_mode", cfg.JournalMode)

	return &SQLite{db: db, logger: logger}, nil
}

// AppendConversation appends one record to the conversation log.
func (s *SQLite) AppendConversation(rec ConversationRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO conversations (record_id, phone_number, message, response, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.RecordID, rec.UserID, rec.Message, rec.Response,
		ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Error("failed to append conversation", "user", rec.UserID, "err", err)
		return fmt.Errorf("append conversation: %w", err)
	}
	return nil
}

// RecentConversations returns the latest records for a user, oldest first.
func (s *SQLite) RecentConversations(userID string, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT record_id, message, response, created_at
		FROM conversations
		WHERE phone_number = ?
		ORDER BY id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	defer rows.Close()

	var recs []ConversationRecord
	for rows.Next() {
		var (
			r         ConversationRecord
			createdAt string
		)
		if err := rows.Scan(&r.RecordID, &r.Message, &r.Response, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		r.UserID = userID
		r.Timestamp, _ = time.Parse(time.RFC3339, createdAt)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	// Query returned newest-first; callers want chronological order.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// ClearConversations deletes all conversation records for a user.
func (s *SQLite) ClearConversations(userID string) error {
	if _, err := s.db.Exec(
		"DELETE FROM conversations WHERE phone_number = ?", userID,
	); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	return nil
}

// LoadContext returns the persisted context blob for a user. Missing rows
// mean "new user" and yield an empty map.
func (s *SQLite) LoadContext(userID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRow(
		"SELECT context_data FROM user_context WHERE phone_number = ?", userID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}

	data := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		// A corrupt blob should not lock the user out; start fresh.
		s.logger.Warn("corrupt context blob, resetting", "user", userID, "err", err)
		return map[string]any{}, nil
	}
	return data, nil
}

// SaveContext upserts the context blob for a user.
func (s *SQLite) SaveContext(userID string, data map[string]any) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO user_context (phone_number, context_data, last_updated)
		VALUES (?, ?, ?)`,
		userID, string(blob), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Error("failed to save context", "user", userID, "err", err)
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

// Profile returns the stored profile for a user, or ErrNotFound.
func (s *SQLite) Profile(userID string) (*UserProfile, error) {
	var (
		p                    UserProfile
		prefsJSON            string
		createdAt, lastActive string
	)
	err := s.db.QueryRow(`
		SELECT phone_number, name, preferred_language, timezone, preferences, created_at, last_active
		FROM user_profiles WHERE phone_number = ?`, userID,
	).Scan(&p.UserID, &p.Name, &p.PreferredLanguage, &p.Timezone, &prefsJSON, &createdAt, &lastActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	p.Preferences = map[string]any{}
	_ = json.Unmarshal([]byte(prefsJSON), &p.Preferences)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.LastActiveAt, _ = time.Parse(time.RFC3339, lastActive)
	return &p, nil
}

// SaveProfile upserts a profile row.
func (s *SQLite) SaveProfile(p *UserProfile) error {
	if p.PreferredLanguage == "" {
		p.PreferredLanguage = "en"
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.LastActiveAt.IsZero() {
		p.LastActiveAt = time.Now()
	}
	prefsJSON, _ := json.Marshal(p.Preferences)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO user_profiles
			(phone_number, name, preferred_language, timezone, preferences, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.PreferredLanguage, p.Timezone, string(prefsJSON),
		p.CreatedAt.UTC().Format(time.RFC3339),
		p.LastActiveAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Error("failed to save profile", "user", p.UserID, "err", err)
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// TouchProfile updates last_active, creating the row on first contact.
func (s *SQLite) TouchProfile(userID string, at time.Time) error {
	now := at.UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		"UPDATE user_profiles SET last_active = ? WHERE phone_number = ?", now, userID,
	)
	if err != nil {
		return fmt.Errorf("touch profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO user_profiles
			(phone_number, created_at, last_active)
		VALUES (?, ?, ?)`, userID, now, now)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// AddReminder inserts a reminder row and returns its ID.
func (s *SQLite) AddReminder(r *Reminder) (int64, error) {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var due any
	if r.DueAt != nil {
		due = r.DueAt.UTC().Format(time.RFC3339)
	}
	res, err := s.db.Exec(`
		INSERT INTO reminders (phone_number, task, due_at, completed, created_at)
		VALUES (?, ?, ?, 0, ?)`,
		r.UserID, r.Task, due, created.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("add reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reminder id: %w", err)
	}
	r.ID = id
	return id, nil
}

// DueReminders returns uncompleted reminders whose due date has passed.
func (s *SQLite) DueReminders(now time.Time) ([]Reminder, error) {
	rows, err := s.db.Query(`
		SELECT id, phone_number, task, due_at, created_at
		FROM reminders
		WHERE completed = 0 AND due_at IS NOT NULL AND due_at <= ?
		ORDER BY due_at ASC`,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var (
			r              Reminder
			due, createdAt string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Task, &due, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, due); err == nil {
			r.DueAt = &t
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompleteReminder marks a reminder completed.
func (s *SQLite) CompleteReminder(id int64) error {
	if _, err := s.db.Exec(
		"UPDATE reminders SET completed = 1 WHERE id = ?", id,
	); err != nil {
		return fmt.Errorf("complete reminder: %w", err)
	}
	return nil
}

// ConversationStats aggregates message counts across the log.
func (s *SQLite) ConversationStats(topN int) (*Stats, error) {
	if topN <= 0 {
		topN = 5
	}
	st := &Stats{}
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM conversations",
	).Scan(&st.TotalMessages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if err := s.db.QueryRow(
		"SELECT COUNT(DISTINCT phone_number) FROM conversations",
	).Scan(&st.UniqueUsers); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT phone_number, COUNT(*) AS n
		FROM conversations
		GROUP BY phone_number
		ORDER BY n DESC
		LIMIT ?`, topN)
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uc UserCount
		if err := rows.Scan(&uc.UserID, &uc.Messages); err != nil {
			return nil, fmt.Errorf("scan top user: %w", err)
		}
		st.TopUsers = append(st.TopUsers, uc)
	}
	return st, rows.Err()
}

// Ping verifies connectivity to the database.
func (s *SQLite) Ping() error {
	return s.db.Ping()
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
