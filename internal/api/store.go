package api

import (
	"sort"
	"sync"
	"time"

	"github.com/tmashinini/quotewise/internal/services"
)

// memoryStore is the non-persistent Store used in tests and when no sqlite
// path is configured. Transactions are serialized and roll back via a full
// snapshot, which is fine at this store's scale.
type memoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	sessions  map[string]*services.Session
	questions map[string]*services.Question
	responses map[string]*services.ResponseRecord

	now func() time.Time
}

func NewMemoryStore() Store { return newMemoryStore() }

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions:  map[string]*services.Session{},
		questions: map[string]*services.Question{},
		responses: map[string]*services.ResponseRecord{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func sessionKeyOf(sessionKey string, category services.Category) string {
	return sessionKey + "|" + string(category)
}

func questionKeyOf(category services.Category, fieldName string) string {
	return string(category) + "|" + fieldName
}

func responseKeyOf(sessionKey string, category services.Category, fieldName string) string {
	return sessionKey + "|" + string(category) + "|" + fieldName
}

func (s *memoryStore) GetSession(sessionKey string, category services.Category) (*services.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionKeyOf(sessionKey, category)].Clone(), nil
}

func (s *memoryStore) FindSession(sessionKey string, category services.Category) (*services.Session, error) {
	if category != "" {
		return s.GetSession(sessionKey, category)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.SessionKey == sessionKey {
			return sess.Clone(), nil
		}
	}
	return nil, nil
}

func (s *memoryStore) InsertSession(sess *services.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKeyOf(sess.SessionKey, sess.Category)] = sess.Clone()
	return nil
}

func (s *memoryStore) UpdateSessionExpiry(sessionKey string, category services.Category, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKeyOf(sessionKey, category)]
	if !ok {
		return false, nil
	}
	sess.ExpiresAt = expiresAt
	return true, nil
}

func (s *memoryStore) UpdateSessionCriteria(sessionKey string, category services.Category, criteria map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKeyOf(sessionKey, category)]
	if !ok {
		return false, nil
	}
	sess.UserCriteria = criteria
	return true, nil
}

func (s *memoryStore) MarkSessionCompleted(sessionKey string, category services.Category) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKeyOf(sessionKey, category)]
	if !ok {
		return false, nil
	}
	sess.IsCompleted = true
	return true, nil
}

func (s *memoryStore) DeleteSession(sessionKey string, category services.Category) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKeyOf(sessionKey, category)
	if _, ok := s.sessions[key]; !ok {
		return false, nil
	}
	delete(s.sessions, key)
	return true, nil
}

func (s *memoryStore) ListExpiredSessions(now time.Time, limit int) ([]*services.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Session{}
	for _, sess := range s.sessions {
		if sess.IsExpired(now) {
			out = append(out, sess.Clone())
		}
	}
	// Oldest first for deterministic sweeps.
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) CountSessions(now time.Time) (services.SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := services.SessionStats{}
	for _, sess := range s.sessions {
		stats.Total++
		if sess.IsExpired(now) {
			stats.Expired++
		} else {
			stats.Active++
		}
		if sess.IsCompleted {
			stats.Completed++
		}
	}
	return stats, nil
}

func (s *memoryStore) ListQuestions(category services.Category) ([]*services.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Question{}
	for _, q := range s.questions {
		if q.Category == category {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (s *memoryStore) GetQuestion(category services.Category, fieldName string) (*services.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionKeyOf(category, fieldName)]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (s *memoryStore) UpsertQuestion(q *services.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	s.questions[questionKeyOf(q.Category, q.FieldName)] = &cp
	return nil
}

func (s *memoryStore) ListResponses(sessionKey string, category services.Category) ([]*services.ResponseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.ResponseRecord{}
	for _, r := range s.responses {
		if r.SessionKey == sessionKey && r.Category == category {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldName < out[j].FieldName })
	return out, nil
}

func (s *memoryStore) UpsertResponse(r *services.ResponseRecord) (*services.ResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKeyOf(r.SessionKey, r.Category, r.FieldName)
	now := s.now()
	cp := *r
	if existing, ok := s.responses[key]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.responses[key] = &cp
	stored := cp
	return &stored, nil
}

func (s *memoryStore) DeleteResponses(sessionKey string, category services.Category, fields ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, r := range s.responses {
		if r.SessionKey != sessionKey || r.Category != category {
			continue
		}
		if len(fields) > 0 && !containsField(fields, r.FieldName) {
			continue
		}
		delete(s.responses, key)
		n++
	}
	return n, nil
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// InTx serializes the callback against other transactions and restores the
// pre-transaction state if it returns an error. The callback receives a
// transaction handle; reentrant InTx calls on that handle join the
// transaction, while InTx calls on the store itself always wait their turn.
func (s *memoryStore) InTx(fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(&memoryTx{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// memoryTx is the view of the store handed to a transaction callback.
type memoryTx struct {
	*memoryStore
}

func (t *memoryTx) InTx(fn func(Store) error) error {
	return fn(t)
}

type memorySnapshot struct {
	sessions  map[string]*services.Session
	questions map[string]*services.Question
	responses map[string]*services.ResponseRecord
}

func (s *memoryStore) snapshot() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memorySnapshot{
		sessions:  make(map[string]*services.Session, len(s.sessions)),
		questions: make(map[string]*services.Question, len(s.questions)),
		responses: make(map[string]*services.ResponseRecord, len(s.responses)),
	}
	for k, v := range s.sessions {
		snap.sessions[k] = v.Clone()
	}
	for k, v := range s.questions {
		cp := *v
		snap.questions[k] = &cp
	}
	for k, v := range s.responses {
		cp := *v
		snap.responses[k] = &cp
	}
	return snap
}

func (s *memoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = snap.sessions
	s.questions = snap.questions
	s.responses = snap.responses
}
