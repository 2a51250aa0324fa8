// session.go implements per-user conversation sessions and the in-memory
// session registry. Sessions are lazily hydrated from the store (context
// blob plus recent conversation records) and pruned after inactivity;
// durable state always lives in the store, so eviction never loses data.
package assistant

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"whatshound/pkg/whatshound/store"
)

// DefaultMaxHistory is the default cap on history entries per session.
// One exchange contributes two entries (user + assistant).
const DefaultMaxHistory = 20

// DefaultHydrateLimit is how many conversation records are loaded from the
// store when a session is first hydrated.
const DefaultHydrateLimit = 10

// DefaultSessionTTL is the inactivity window before a session is evicted
// from the registry.
const DefaultSessionTTL = 24 * time.Hour

// HistoryEntry is one turn in the session history.
type HistoryEntry struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Task is a reminder stored inside the session context under "tasks".
type Task struct {
	Task      string    `json:"task"`
	CreatedAt time.Time `json:"created"`
	Completed bool      `json:"completed"`
}

// Session holds the in-memory state for one user: bounded history, the
// open-ended context map, and the last-activity timestamp.
type Session struct {
	// UserID is the stable external identifier (phone number).
	UserID string

	// CreatedAt is when this in-memory session was built.
	CreatedAt time.Time

	history      []HistoryEntry
	context      map[string]any
	maxHistory   int
	lastActivity time.Time

	mu sync.RWMutex
}

// AddExchange appends a user/assistant pair to the history, evicting the
// oldest entries beyond the cap, and bumps last activity.
func (s *Session) AddExchange(userMsg, assistantMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		HistoryEntry{Role: "user", Content: userMsg},
		HistoryEntry{Role: "assistant", Content: assistantMsg},
	)
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	s.lastActivity = time.Now()
}

// History returns a copy of the session history.
func (s *Session) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLen returns the number of history entries.
func (s *Session) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// ClearHistory drops the in-memory history.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// LastActivity returns the last activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Touch bumps the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// ContextValue returns the value stored under key, if any.
func (s *Session) ContextValue(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.context[key]
	return v, ok
}

// SetContextValue stores a value under key.
func (s *Session) SetContextValue(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.context == nil {
		s.context = map[string]any{}
	}
	s.context[key] = v
}

// ContextSnapshot returns a shallow copy of the context map for persistence.
func (s *Session) ContextSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.context))
	for k, v := range s.context {
		out[k] = v
	}
	return out
}

// Tasks decodes the "tasks" context entry. The entry may hold []Task (set
// in this process) or []any of maps (hydrated from the persisted JSON blob);
// both shapes decode to the same slice.
func (s *Session) Tasks() []Task {
	v, ok := s.ContextValue("tasks")
	if !ok {
		return nil
	}
	return decodeTasks(v)
}

// AddTask appends a task to the session context.
func (s *Session) AddTask(t Task) {
	tasks := append(s.Tasks(), t)
	s.SetContextValue("tasks", tasks)
}

// SetTasks replaces the task list in the session context.
func (s *Session) SetTasks(tasks []Task) {
	s.SetContextValue("tasks", tasks)
}

func decodeTasks(v any) []Task {
	if tasks, ok := v.([]Task); ok {
		out := make([]Task, len(tasks))
		copy(out, tasks)
		return out
	}
	// Round-trip through JSON for the hydrated []any shape.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var tasks []Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil
	}
	return tasks
}

// Registry caches active sessions, hydrating them lazily from the store.
// It also provides the per-user serialization primitive used by the router:
// concurrent messages from one user are processed one at a time, while
// different users proceed in parallel.
type Registry struct {
	store        store.Store
	sessions     map[string]*Session
	locks        map[string]*sync.Mutex
	maxHistory   int
	hydrateLimit int
	ttl          time.Duration
	logger       *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
}

// RegistryOptions tune registry behavior. Zero values mean defaults.
type RegistryOptions struct {
	MaxHistory   int
	HydrateLimit int
	SessionTTL   time.Duration
}

// NewRegistry creates a session registry backed by the given store.
func NewRegistry(st store.Store, opts RegistryOptions, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxHistory == 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.HydrateLimit == 0 {
		opts.HydrateLimit = DefaultHydrateLimit
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	return &Registry{
		store:        st,
		sessions:     make(map[string]*Session),
		locks:        make(map[string]*sync.Mutex),
		maxHistory:   opts.MaxHistory,
		hydrateLimit: opts.HydrateLimit,
		ttl:          opts.SessionTTL,
		logger:       logger.With("component", "registry"),
	}
}

// GetSession returns the cached session for a user, hydrating it from the
// store on first access. Missing persisted data means "new user", never an
// error; store failures degrade to an empty session and are logged.
// Concurrent hydrations for the same user collapse into one store read.
func (r *Registry) GetSession(userID string) *Session {
	r.mu.RLock()
	if s, ok := r.sessions[userID]; ok {
		r.mu.RUnlock()
		return s
	}
	r.mu.RUnlock()

	v, _, _ := r.group.Do(userID, func() (any, error) {
		// Double-check after winning the flight.
		r.mu.RLock()
		if s, ok := r.sessions[userID]; ok {
			r.mu.RUnlock()
			return s, nil
		}
		r.mu.RUnlock()

		s := r.hydrate(userID)

		r.mu.Lock()
		r.sessions[userID] = s
		r.mu.Unlock()
		return s, nil
	})
	return v.(*Session)
}

// hydrate builds a session from the persisted context blob and the most
// recent conversation records, synthesized as alternating user/assistant
// entries in chronological order.
func (r *Registry) hydrate(userID string) *Session {
	ctxData, err := r.store.LoadContext(userID)
	if err != nil {
		r.logger.Warn("context hydration failed, starting empty", "user", userID, "err", err)
		ctxData = map[string]any{}
	}

	var history []HistoryEntry
	recs, err := r.store.RecentConversations(userID, r.hydrateLimit)
	if err != nil {
		r.logger.Warn("history hydration failed, starting empty", "user", userID, "err", err)
	} else {
		for _, rec := range recs {
			history = append(history,
				HistoryEntry{Role: "user", Content: rec.Message},
				HistoryEntry{Role: "assistant", Content: rec.Response},
			)
		}
		if len(history) > r.maxHistory {
			history = history[len(history)-r.maxHistory:]
		}
	}

	now := time.Now()
	if len(recs) > 0 || len(ctxData) > 0 {
		r.logger.Info("session restored from store", "user", userID, "history", len(history))
	} else {
		r.logger.Info("new session created", "user", userID)
	}

	return &Session{
		UserID:       userID,
		CreatedAt:    now,
		history:      history,
		context:      ctxData,
		maxHistory:   r.maxHistory,
		lastActivity: now,
	}
}

// UserLock returns the serialization mutex for a user, creating it on
// first use. The lock survives session eviction so an in-flight router
// invocation and a re-hydration cannot interleave.
func (r *Registry) UserLock(userID string) *sync.Mutex {
	r.mu.RLock()
	if l, ok := r.locks[userID]; ok {
		r.mu.RUnlock()
		return l
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[userID]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[userID] = l
	return l
}

// PersistExchange appends one conversation record. It does not touch the
// context blob.
func (r *Registry) PersistExchange(rec store.ConversationRecord) error {
	return r.store.AppendConversation(rec)
}

// SaveContext upserts the context blob for a user.
func (r *Registry) SaveContext(userID string, data map[string]any) error {
	return r.store.SaveContext(userID, data)
}

// Evict drops a user's session from the cache. Durable state is untouched.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// Count returns the number of cached sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Prune evicts sessions idle for longer than the TTL. Safe because durable
// state is re-hydrated on demand.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.ttl)
	pruned := 0
	for id, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
			pruned++
		}
	}
	if pruned > 0 {
		r.logger.Info("idle sessions pruned", "pruned", pruned, "remaining", len(r.sessions))
	}
	return pruned
}
