package assistant

import (
	"sync"
	"time"

	"whatshound/pkg/whatshound/store"
)

// memStore is an in-memory store.Store for router and registry tests.
// failWrites makes every write return failErr so persistence failure
// handling can be exercised.
type memStore struct {
	mu         sync.Mutex
	records    map[string][]store.ConversationRecord
	contexts   map[string]map[string]any
	profiles   map[string]*store.UserProfile
	reminders  []store.Reminder
	nextRemID  int64
	failWrites bool
	failErr    error
}

func newMemStore() *memStore {
	return &memStore{
		records:  make(map[string][]store.ConversationRecord),
		contexts: make(map[string]map[string]any),
		profiles: make(map[string]*store.UserProfile),
	}
}

func (m *memStore) writeErr() error {
	if m.failWrites {
		return m.failErr
	}
	return nil
}

func (m *memStore) AppendConversation(rec store.ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.records[rec.UserID] = append(m.records[rec.UserID], rec)
	return nil
}

func (m *memStore) RecentConversations(userID string, limit int) ([]store.ConversationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[userID]
	if len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	out := make([]store.ConversationRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *memStore) ClearConversations(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}

func (m *memStore) LoadContext(userID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[userID]
	if !ok {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SaveContext(userID string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	m.contexts[userID] = data
	return nil
}

func (m *memStore) Profile(userID string) (*store.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) SaveProfile(p *store.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return err
	}
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *memStore) TouchProfile(userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		p.LastActiveAt = at
		return nil
	}
	m.profiles[userID] = &store.UserProfile{UserID: userID, LastActiveAt: at}
	return nil
}

func (m *memStore) AddReminder(r *store.Reminder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr(); err != nil {
		return 0, err
	}
	m.nextRemID++
	r.ID = m.nextRemID
	m.reminders = append(m.reminders, *r)
	return r.ID, nil
}

func (m *memStore) DueReminders(now time.Time) ([]store.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []store.Reminder
	for _, r := range m.reminders {
		if !r.Completed && r.DueAt != nil && !r.DueAt.After(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (m *memStore) CompleteReminder(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.reminders {
		if m.reminders[i].ID == id {
			m.reminders[i].Completed = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) ConversationStats(topN int) (*store.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &store.Stats{}
	for user, recs := range m.records {
		st.TotalMessages += len(recs)
		st.UniqueUsers++
		st.TopUsers = append(st.TopUsers, store.UserCount{UserID: user, Messages: len(recs)})
	}
	if len(st.TopUsers) > topN {
		st.TopUsers = st.TopUsers[:topN]
	}
	return st, nil
}

func (m *memStore) Ping() error  { return nil }
func (m *memStore) Close() error { return nil }
