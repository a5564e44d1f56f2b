package api

import (
	"time"

	"github.com/tmashinini/quotewise/internal/services"
)

// Store is the aggregate persistence surface the HTTP layer is wired
// against. Both the in-memory store and the sqlite store implement it; the
// per-service adapters below it narrow it to what each service needs.
type Store interface {
	GetSession(sessionKey string, category services.Category) (*services.Session, error)
	FindSession(sessionKey string, category services.Category) (*services.Session, error)
	InsertSession(s *services.Session) error
	UpdateSessionExpiry(sessionKey string, category services.Category, expiresAt time.Time) (bool, error)
	UpdateSessionCriteria(sessionKey string, category services.Category, criteria map[string]any) (bool, error)
	MarkSessionCompleted(sessionKey string, category services.Category) (bool, error)
	DeleteSession(sessionKey string, category services.Category) (bool, error)
	ListExpiredSessions(now time.Time, limit int) ([]*services.Session, error)
	CountSessions(now time.Time) (services.SessionStats, error)

	ListQuestions(category services.Category) ([]*services.Question, error)
	GetQuestion(category services.Category, fieldName string) (*services.Question, error)
	UpsertQuestion(q *services.Question) error

	ListResponses(sessionKey string, category services.Category) ([]*services.ResponseRecord, error)
	UpsertResponse(r *services.ResponseRecord) (*services.ResponseRecord, error)
	DeleteResponses(sessionKey string, category services.Category, fields ...string) (int, error)

	InTx(fn func(Store) error) error
}

var _ Store = (*memoryStore)(nil)
