package services

import (
	"fmt"
	"log/slog"
	"time"
)

// SessionStore abstracts persistence operations required by SessionService.
type SessionStore interface {
	GetSession(sessionKey string, category Category) (*Session, error)
	// FindSession matches any category when category is empty.
	FindSession(sessionKey string, category Category) (*Session, error)
	InsertSession(s *Session) error
	UpdateSessionExpiry(sessionKey string, category Category, expiresAt time.Time) (bool, error)
	UpdateSessionCriteria(sessionKey string, category Category, criteria map[string]any) (bool, error)
	MarkSessionCompleted(sessionKey string, category Category) (bool, error)
	DeleteSession(sessionKey string, category Category) (bool, error)
	ListExpiredSessions(now time.Time, limit int) ([]*Session, error)
	DeleteResponses(sessionKey string, category Category, fields ...string) (int, error)
	CountSessions(now time.Time) (SessionStats, error)
	InTx(fn func(SessionStore) error) error
}

// Validation reason codes returned by ValidateSession.
const (
	ReasonNotFound = "not_found"
	ReasonExpired  = "expired"
)

// SessionValidation is the structured result of a non-mutating session check.
type SessionValidation struct {
	Valid   bool     `json:"valid"`
	Reason  string   `json:"error,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// CleanupStats reports one batch of expired-session cleanup.
type CleanupStats struct {
	SessionsDeleted  int      `json:"sessions_deleted"`
	ResponsesDeleted int      `json:"responses_deleted"`
	Errors           []string `json:"errors"`
}

// SessionStats are aggregate counts for observability.
type SessionStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Expired   int `json:"expired"`
	Completed int `json:"completed"`
}

// SessionService manages the survey session lifecycle: creation with 24-hour
// expiry, sliding renewal, validation, and garbage collection of expired
// sessions together with their responses.
type SessionService struct {
	store  SessionStore
	now    func() time.Time
	logger *slog.Logger
}

func NewSessionService(store SessionStore) *SessionService {
	return &SessionService{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
}

// CreateOrGetSession returns the live session for (sessionKey, category),
// creating one if none exists and replacing one that has expired. A live
// session has its expiry pushed forward. The whole decision runs in one
// transaction so concurrent callers cannot produce duplicate records.
func (s *SessionService) CreateOrGetSession(sessionKey string, category Category) (*Session, bool, error) {
	if _, err := ParseCategory(string(category)); err != nil {
		return nil, false, err
	}
	if sessionKey == "" {
		return nil, false, NewInvalidError("session key required")
	}

	now := s.now()
	var (
		session *Session
		created bool
	)
	err := s.store.InTx(func(tx SessionStore) error {
		existing, err := tx.GetSession(sessionKey, category)
		if err != nil {
			return err
		}
		if existing == nil {
			session, err = s.insertFresh(tx, sessionKey, category, now)
			created = true
			return err
		}
		if existing.IsExpired(now) {
			if _, err := tx.DeleteResponses(sessionKey, category); err != nil {
				return err
			}
			if _, err := tx.DeleteSession(sessionKey, category); err != nil {
				return err
			}
			session, err = s.insertFresh(tx, sessionKey, category, now)
			created = true
			return err
		}
		expiresAt := now.Add(SessionLifetime)
		if _, err := tx.UpdateSessionExpiry(sessionKey, category, expiresAt); err != nil {
			return err
		}
		session = existing.Clone()
		session.ExpiresAt = expiresAt
		created = false
		return nil
	})
	if err != nil {
		s.logger.Error("create or get session", "session_key", shortKey(sessionKey), "category", category, "err", err)
		return nil, false, err
	}
	return session, created, nil
}

func (s *SessionService) insertFresh(tx SessionStore, sessionKey string, category Category, now time.Time) (*Session, error) {
	session := &Session{
		SessionKey:   sessionKey,
		Category:     category,
		UserCriteria: map[string]any{},
		CreatedAt:    now,
		ExpiresAt:    now.Add(SessionLifetime),
	}
	if err := tx.InsertSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// ValidateSession checks existence and non-expiry without mutating state.
// Category may be empty to match any category for the key. Absence is an
// expected outcome and is reported in the result, not as an error.
func (s *SessionService) ValidateSession(sessionKey string, category Category) (SessionValidation, error) {
	session, err := s.store.FindSession(sessionKey, category)
	if err != nil {
		return SessionValidation{}, err
	}
	if session == nil {
		return SessionValidation{Valid: false, Reason: ReasonNotFound}, nil
	}
	if session.IsExpired(s.now()) {
		return SessionValidation{Valid: false, Reason: ReasonExpired, Session: session}, nil
	}
	return SessionValidation{Valid: true, Session: session}, nil
}

// ExtendSession pushes a session's expiry forward from now. Returns false if
// no such session exists.
func (s *SessionService) ExtendSession(sessionKey string, category Category, hours int) (bool, error) {
	if hours <= 0 {
		hours = int(SessionLifetime / time.Hour)
	}
	found, err := s.store.UpdateSessionExpiry(sessionKey, category, s.now().Add(time.Duration(hours)*time.Hour))
	if err != nil {
		return false, err
	}
	if !found {
		s.logger.Warn("attempted to extend non-existent session", "session_key", shortKey(sessionKey), "category", category)
	}
	return found, nil
}

// UpdateCriteria merges processed answers into the session's accumulated
// criteria.
func (s *SessionService) UpdateCriteria(sessionKey string, category Category, criteria map[string]any) (bool, error) {
	if len(criteria) == 0 {
		return true, nil
	}
	var found bool
	err := s.store.InTx(func(tx SessionStore) error {
		session, err := tx.GetSession(sessionKey, category)
		if err != nil {
			return err
		}
		if session == nil {
			return nil
		}
		merged := session.Clone().UserCriteria
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range criteria {
			merged[k] = v
		}
		found, err = tx.UpdateSessionCriteria(sessionKey, category, merged)
		return err
	})
	return found, err
}

// MarkCompleted flags the session as having finished its survey.
func (s *SessionService) MarkCompleted(sessionKey string, category Category) (bool, error) {
	return s.store.MarkSessionCompleted(sessionKey, category)
}

// CleanupExpiredSessions deletes up to batchSize expired sessions and their
// responses. Each record is handled independently: a record that fails, or
// disappears between selection and deletion, never aborts the batch. Callers
// invoke this repeatedly until SessionsDeleted is zero.
func (s *SessionService) CleanupExpiredSessions(batchSize int) CleanupStats {
	if batchSize <= 0 {
		batchSize = DefaultCleanupBatchSize
	}
	stats := CleanupStats{Errors: []string{}}

	expired, err := s.store.ListExpiredSessions(s.now(), batchSize)
	if err != nil {
		msg := fmt.Sprintf("list expired sessions: %v", err)
		s.logger.Error("session cleanup", "err", err)
		stats.Errors = append(stats.Errors, msg)
		return stats
	}

	for _, session := range expired {
		responsesDeleted := 0
		sessionDeleted := false
		err := s.store.InTx(func(tx SessionStore) error {
			n, err := tx.DeleteResponses(session.SessionKey, session.Category)
			if err != nil {
				return err
			}
			responsesDeleted = n
			sessionDeleted, err = tx.DeleteSession(session.SessionKey, session.Category)
			return err
		})
		if err != nil {
			msg := fmt.Sprintf("cleanup session %s: %v", shortKey(session.SessionKey), err)
			s.logger.Error("session cleanup", "session_key", shortKey(session.SessionKey), "err", err)
			stats.Errors = append(stats.Errors, msg)
			continue
		}
		if !sessionDeleted {
			// Another cleanup caller got there first; already clean.
			continue
		}
		stats.SessionsDeleted++
		stats.ResponsesDeleted += responsesDeleted
		s.logger.Info("cleaned up expired session",
			"session_key", shortKey(session.SessionKey),
			"category", session.Category,
			"responses_deleted", responsesDeleted)
	}
	return stats
}

// SessionStats returns aggregate counts over all sessions.
func (s *SessionService) SessionStats() (SessionStats, error) {
	return s.store.CountSessions(s.now())
}

func shortKey(sessionKey string) string {
	if len(sessionKey) > 8 {
		return sessionKey[:8]
	}
	return sessionKey
}
