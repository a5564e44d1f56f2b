package api

import (
	"time"

	"github.com/tmashinini/quotewise/internal/services"
)

type sessionStoreAdapter struct {
	store Store
}

func newSessionStoreAdapter(store Store) services.SessionStore {
	return &sessionStoreAdapter{store: store}
}

func (a *sessionStoreAdapter) GetSession(sessionKey string, category services.Category) (*services.Session, error) {
	return a.store.GetSession(sessionKey, category)
}

func (a *sessionStoreAdapter) FindSession(sessionKey string, category services.Category) (*services.Session, error) {
	return a.store.FindSession(sessionKey, category)
}

func (a *sessionStoreAdapter) InsertSession(s *services.Session) error {
	if s == nil {
		return services.NewInvalidError("session required")
	}
	return a.store.InsertSession(s)
}

func (a *sessionStoreAdapter) UpdateSessionExpiry(sessionKey string, category services.Category, expiresAt time.Time) (bool, error) {
	return a.store.UpdateSessionExpiry(sessionKey, category, expiresAt)
}

func (a *sessionStoreAdapter) UpdateSessionCriteria(sessionKey string, category services.Category, criteria map[string]any) (bool, error) {
	return a.store.UpdateSessionCriteria(sessionKey, category, criteria)
}

func (a *sessionStoreAdapter) MarkSessionCompleted(sessionKey string, category services.Category) (bool, error) {
	return a.store.MarkSessionCompleted(sessionKey, category)
}

func (a *sessionStoreAdapter) DeleteSession(sessionKey string, category services.Category) (bool, error) {
	return a.store.DeleteSession(sessionKey, category)
}

func (a *sessionStoreAdapter) ListExpiredSessions(now time.Time, limit int) ([]*services.Session, error) {
	return a.store.ListExpiredSessions(now, limit)
}

func (a *sessionStoreAdapter) DeleteResponses(sessionKey string, category services.Category, fields ...string) (int, error) {
	return a.store.DeleteResponses(sessionKey, category, fields...)
}

func (a *sessionStoreAdapter) CountSessions(now time.Time) (services.SessionStats, error) {
	return a.store.CountSessions(now)
}

func (a *sessionStoreAdapter) InTx(fn func(services.SessionStore) error) error {
	return a.store.InTx(func(tx Store) error {
		return fn(newSessionStoreAdapter(tx))
	})
}

var _ services.SessionStore = (*sessionStoreAdapter)(nil)
