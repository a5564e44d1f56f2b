package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type stubSessionStore struct {
	sessions  map[string]*Session
	responses map[string]int

	deleteSessionErr map[string]error
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{
		sessions:         map[string]*Session{},
		responses:        map[string]int{},
		deleteSessionErr: map[string]error{},
	}
}

func sessionStoreKey(sessionKey string, category Category) string {
	return sessionKey + "|" + string(category)
}

func (s *stubSessionStore) GetSession(sessionKey string, category Category) (*Session, error) {
	if sess, ok := s.sessions[sessionStoreKey(sessionKey, category)]; ok {
		return sess.Clone(), nil
	}
	return nil, nil
}

func (s *stubSessionStore) FindSession(sessionKey string, category Category) (*Session, error) {
	if category != "" {
		return s.GetSession(sessionKey, category)
	}
	for _, sess := range s.sessions {
		if sess.SessionKey == sessionKey {
			return sess.Clone(), nil
		}
	}
	return nil, nil
}

func (s *stubSessionStore) InsertSession(sess *Session) error {
	s.sessions[sessionStoreKey(sess.SessionKey, sess.Category)] = sess.Clone()
	return nil
}

func (s *stubSessionStore) UpdateSessionExpiry(sessionKey string, category Category, expiresAt time.Time) (bool, error) {
	sess, ok := s.sessions[sessionStoreKey(sessionKey, category)]
	if !ok {
		return false, nil
	}
	sess.ExpiresAt = expiresAt
	return true, nil
}

func (s *stubSessionStore) UpdateSessionCriteria(sessionKey string, category Category, criteria map[string]any) (bool, error) {
	sess, ok := s.sessions[sessionStoreKey(sessionKey, category)]
	if !ok {
		return false, nil
	}
	sess.UserCriteria = criteria
	return true, nil
}

func (s *stubSessionStore) MarkSessionCompleted(sessionKey string, category Category) (bool, error) {
	sess, ok := s.sessions[sessionStoreKey(sessionKey, category)]
	if !ok {
		return false, nil
	}
	sess.IsCompleted = true
	return true, nil
}

func (s *stubSessionStore) DeleteSession(sessionKey string, category Category) (bool, error) {
	key := sessionStoreKey(sessionKey, category)
	if err, ok := s.deleteSessionErr[key]; ok {
		return false, err
	}
	if _, ok := s.sessions[key]; !ok {
		return false, nil
	}
	delete(s.sessions, key)
	return true, nil
}

func (s *stubSessionStore) ListExpiredSessions(now time.Time, limit int) ([]*Session, error) {
	out := []*Session{}
	for _, sess := range s.sessions {
		if sess.IsExpired(now) {
			out = append(out, sess.Clone())
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubSessionStore) DeleteResponses(sessionKey string, category Category, fields ...string) (int, error) {
	key := sessionStoreKey(sessionKey, category)
	n := s.responses[key]
	delete(s.responses, key)
	return n, nil
}

func (s *stubSessionStore) CountSessions(now time.Time) (SessionStats, error) {
	stats := SessionStats{}
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

func (s *stubSessionStore) InTx(fn func(SessionStore) error) error {
	return fn(s)
}

func TestCreateOrGetSessionCreatesFresh(t *testing.T) {
	store := newStubSessionStore()
	svc := NewSessionService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	sess, created, err := svc.CreateOrGetSession("key1", CategoryHealth)
	if err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true for new session")
	}
	if got, want := sess.ExpiresAt, base.Add(24*time.Hour); !got.Equal(want) {
		t.Fatalf("expires at = %v, want %v", got, want)
	}
	if sess.UserCriteria == nil {
		t.Fatalf("expected initialized criteria map")
	}
}

func TestCreateOrGetSessionExtendsLive(t *testing.T) {
	store := newStubSessionStore()
	svc := NewSessionService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	first, _, err := svc.CreateOrGetSession("key1", CategoryHealth)
	if err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}

	svc.now = func() time.Time { return base.Add(6 * time.Hour) }
	second, created, err := svc.CreateOrGetSession("key1", CategoryHealth)
	if err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}
	if created {
		t.Fatalf("expected existing session, got created=true")
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatalf("expiry not extended: %v -> %v", first.ExpiresAt, second.ExpiresAt)
	}
	if got, want := second.ExpiresAt, base.Add(30*time.Hour); !got.Equal(want) {
		t.Fatalf("expires at = %v, want %v", got, want)
	}
}

func TestCreateOrGetSessionReplacesExpired(t *testing.T) {
	store := newStubSessionStore()
	svc := NewSessionService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	if _, _, err := svc.CreateOrGetSession("key1", CategoryHealth); err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}
	store.responses[sessionStoreKey("key1", CategoryHealth)] = 4

	svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	sess, created, err := svc.CreateOrGetSession("key1", CategoryHealth)
	if err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected expired session to be replaced")
	}
	if !sess.CreatedAt.Equal(base.Add(25 * time.Hour)) {
		t.Fatalf("created at = %v, want reset to now", sess.CreatedAt)
	}
	if n := store.responses[sessionStoreKey("key1", CategoryHealth)]; n != 0 {
		t.Fatalf("stale responses survived replacement: %d", n)
	}
}

func TestCreateOrGetSessionValidation(t *testing.T) {
	svc := NewSessionService(newStubSessionStore())

	if _, _, err := svc.CreateOrGetSession("key1", "car"); err == nil {
		t.Fatalf("expected invalid category error")
	}
	_, _, err := svc.CreateOrGetSession("", CategoryHealth)
	if err == nil {
		t.Fatalf("expected error for empty session key")
	}
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestValidateSessionReasons(t *testing.T) {
	store := newStubSessionStore()
	svc := NewSessionService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	v, err := svc.ValidateSession("missing", CategoryHealth)
	if err != nil {
		t.Fatalf("ValidateSession returned error: %v", err)
	}
	if v.Valid || v.Reason != ReasonNotFound {
		t.Fatalf("validation = %+v, want not_found", v)
	}

	if _, _, err := svc.CreateOrGetSession("key1", CategoryHealth); err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}
	v, err = svc.ValidateSession("key1", CategoryHealth)
	if err != nil {
		t.Fatalf("ValidateSession returned error: %v", err)
	}
	if !v.Valid || v.Session == nil {
		t.Fatalf("validation = %+v, want valid with session", v)
	}

	svc.now = func() time.Time { return base.Add(24*time.Hour + time.Minute) }
	v, err = svc.ValidateSession("key1", CategoryHealth)
	if err != nil {
		t.Fatalf("ValidateSession returned error: %v", err)
	}
	if v.Valid || v.Reason != ReasonExpired {
		t.Fatalf("validation = %+v, want expired", v)
	}

	// Empty category matches any category for the key.
	v, err = svc.ValidateSession("key1", "")
	if err != nil {
		t.Fatalf("ValidateSession returned error: %v", err)
	}
	if v.Reason != ReasonExpired {
		t.Fatalf("validation = %+v, want expired via any-category lookup", v)
	}
}

func TestExtendSessionDefaultsHours(t *testing.T) {
	store := newStubSessionStore()
	svc := NewSessionService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	if _, _, err := svc.CreateOrGetSession("key1", CategoryFuneral); err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}

	found, err := svc.ExtendSession("key1", CategoryFuneral, 0)
	if err != nil {
		t.Fatalf("ExtendSession returned error: %v", err)
	}
	if !found {
		t.Fatalf("expected session to be found")
	}
	sess := store.sessions[sessionStoreKey("key1", CategoryFuneral)]
	if got, want := sess.ExpiresAt, base.Add(24*time.Hour); !got.Equal(want) {
		t.Fatalf("expires at = %v, want %v", got, want)
	}

	found, err = svc.ExtendSession("absent", CategoryFuneral, 2)
	if err != nil || found {
		t.Fatalf("extend absent = (%v, %v), want (false, nil)", found, err)
	}
}

func TestUpdateCriteriaMerges(t *testing.T) {
	store := newStubSessionStore()
	svc := NewSessionService(store)

	if _, _, err := svc.CreateOrGetSession("key1", CategoryHealth); err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}
	if _, err := svc.UpdateCriteria("key1", CategoryHealth, map[string]any{"age": 30}); err != nil {
		t.Fatalf("UpdateCriteria returned error: %v", err)
	}
	if _, err := svc.UpdateCriteria("key1", CategoryHealth, map[string]any{"family_size": 2, "age": 31}); err != nil {
		t.Fatalf("UpdateCriteria returned error: %v", err)
	}

	sess := store.sessions[sessionStoreKey("key1", CategoryHealth)]
	if sess.UserCriteria["age"] != 31 {
		t.Fatalf("age = %v, want merged value 31", sess.UserCriteria["age"])
	}
	if sess.UserCriteria["family_size"] != 2 {
		t.Fatalf("family_size = %v, want 2", sess.UserCriteria["family_size"])
	}
}

func TestCleanupExpiredSessionsBatch(t *testing.T) {
	store := newStubSessionStore()
	svc := NewSessionService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("old%d", i)
		if _, _, err := svc.CreateOrGetSession(key, CategoryHealth); err != nil {
			t.Fatalf("CreateOrGetSession returned error: %v", err)
		}
		store.responses[sessionStoreKey(key, CategoryHealth)] = 2
	}
	if _, _, err := svc.CreateOrGetSession("fresh", CategoryHealth); err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}

	// One record fails but must not abort the batch.
	store.deleteSessionErr[sessionStoreKey("old2", CategoryHealth)] = errors.New("disk error")

	svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	stats := svc.CleanupExpiredSessions(10)

	if stats.SessionsDeleted != 4 {
		t.Fatalf("sessions deleted = %d, want 4", stats.SessionsDeleted)
	}
	if stats.ResponsesDeleted != 8 {
		t.Fatalf("responses deleted = %d, want 8", stats.ResponsesDeleted)
	}
	if len(stats.Errors) != 1 || !strings.Contains(stats.Errors[0], "disk error") {
		t.Fatalf("errors = %v, want one disk error", stats.Errors)
	}
	if _, ok := store.sessions[sessionStoreKey("fresh", CategoryHealth)]; !ok {
		t.Fatalf("live session was deleted by cleanup")
	}
}

func TestCleanupRespectsBatchSize(t *testing.T) {
	store := newStubSessionStore()
	svc := NewSessionService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	for i := 0; i < 7; i++ {
		if _, _, err := svc.CreateOrGetSession(fmt.Sprintf("old%d", i), CategoryFuneral); err != nil {
			t.Fatalf("CreateOrGetSession returned error: %v", err)
		}
	}

	svc.now = func() time.Time { return base.Add(48 * time.Hour) }
	stats := svc.CleanupExpiredSessions(3)
	if stats.SessionsDeleted != 3 {
		t.Fatalf("first batch deleted = %d, want 3", stats.SessionsDeleted)
	}

	total := stats.SessionsDeleted
	for i := 0; i < 5; i++ {
		stats = svc.CleanupExpiredSessions(3)
		total += stats.SessionsDeleted
		if stats.SessionsDeleted == 0 {
			break
		}
	}
	if total != 7 {
		t.Fatalf("total deleted = %d, want 7", total)
	}
}

func TestSessionStats(t *testing.T) {
	store := newStubSessionStore()
	svc := NewSessionService(store)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	if _, _, err := svc.CreateOrGetSession("a", CategoryHealth); err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}
	if _, _, err := svc.CreateOrGetSession("b", CategoryHealth); err != nil {
		t.Fatalf("CreateOrGetSession returned error: %v", err)
	}
	if _, err := svc.MarkCompleted("a", CategoryHealth); err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}

	// Age one of them past expiry.
	store.sessions[sessionStoreKey("b", CategoryHealth)].ExpiresAt = base.Add(-time.Hour)

	stats, err := svc.SessionStats()
	if err != nil {
		t.Fatalf("SessionStats returned error: %v", err)
	}
	want := SessionStats{Total: 2, Active: 1, Expired: 1, Completed: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestNewSessionKeyUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key := NewSessionKey()
		if key == "" {
			t.Fatalf("empty session key")
		}
		if seen[key] {
			t.Fatalf("duplicate session key %q", key)
		}
		seen[key] = true
	}
}
