package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tmashinini/quotewise/internal/api"
	"github.com/tmashinini/quotewise/internal/services"
)

// queryer is the surface shared by *sql.DB and *sql.Tx, so store methods run
// unchanged inside a transaction.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type SQLiteStore struct {
	db   *sql.DB
	q    queryer
	inTx bool
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

var _ api.Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("sqlite store: %s: %v", prefix, err)
	}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeCriteria(ns sql.NullString) map[string]any {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sqlite store: decode criteria: %v", err)
		return nil
	}
	return out
}

func decodeChoices(ns sql.NullString) []services.Choice {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	var out []services.Choice
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.Printf("sqlite store: decode choices: %v", err)
		return nil
	}
	return out
}

func decodeValue(raw string) services.AnswerValue {
	var v services.AnswerValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Printf("sqlite store: decode answer value: %v", err)
		return services.StringValue(raw)
	}
	return v
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

// --- Sessions (sqlite) ---

const sessionColumns = `session_key, category, user_criteria, is_completed, created_at, expires_at`

func scanSession(row interface{ Scan(...any) error }) (*services.Session, error) {
	var (
		sess      services.Session
		criteria  sql.NullString
		completed int64
		created   string
		expires   string
	)
	if err := row.Scan(&sess.SessionKey, &sess.Category, &criteria, &completed, &created, &expires); err != nil {
		return nil, err
	}
	sess.UserCriteria = decodeCriteria(criteria)
	sess.IsCompleted = int64ToBool(completed)
	sess.CreatedAt = parseTime(created)
	sess.ExpiresAt = parseTime(expires)
	return &sess, nil
}

func (s *SQLiteStore) GetSession(sessionKey string, category services.Category) (*services.Session, error) {
	row := s.q.QueryRow(`SELECT `+sessionColumns+` FROM quotation_sessions
      WHERE session_key = ? AND category = ?`, sessionKey, string(category))
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) FindSession(sessionKey string, category services.Category) (*services.Session, error) {
	if category != "" {
		return s.GetSession(sessionKey, category)
	}
	row := s.q.QueryRow(`SELECT `+sessionColumns+` FROM quotation_sessions
      WHERE session_key = ? LIMIT 1`, sessionKey)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) InsertSession(sess *services.Session) error {
	criteria, err := encodeJSON(sess.UserCriteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	_, err = s.q.Exec(`INSERT INTO quotation_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?)
      ON CONFLICT(session_key, category) DO UPDATE SET
        user_criteria = excluded.user_criteria,
        is_completed = excluded.is_completed,
        created_at = excluded.created_at,
        expires_at = excluded.expires_at`,
		sess.SessionKey, string(sess.Category), criteria, boolToInt64(sess.IsCompleted),
		formatTime(sess.CreatedAt), formatTime(sess.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSessionExpiry(sessionKey string, category services.Category, expiresAt time.Time) (bool, error) {
	res, err := s.q.Exec(`UPDATE quotation_sessions SET expires_at = ?
      WHERE session_key = ? AND category = ?`, formatTime(expiresAt), sessionKey, string(category))
	if err != nil {
		return false, fmt.Errorf("update session expiry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) UpdateSessionCriteria(sessionKey string, category services.Category, criteria map[string]any) (bool, error) {
	enc, err := encodeJSON(criteria)
	if err != nil {
		return false, fmt.Errorf("encode criteria: %w", err)
	}
	res, err := s.q.Exec(`UPDATE quotation_sessions SET user_criteria = ?
      WHERE session_key = ? AND category = ?`, enc, sessionKey, string(category))
	if err != nil {
		return false, fmt.Errorf("update session criteria: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) MarkSessionCompleted(sessionKey string, category services.Category) (bool, error) {
	res, err := s.q.Exec(`UPDATE quotation_sessions SET is_completed = 1
      WHERE session_key = ? AND category = ?`, sessionKey, string(category))
	if err != nil {
		return false, fmt.Errorf("mark session completed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) DeleteSession(sessionKey string, category services.Category) (bool, error) {
	res, err := s.q.Exec(`DELETE FROM quotation_sessions
      WHERE session_key = ? AND category = ?`, sessionKey, string(category))
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) ListExpiredSessions(now time.Time, limit int) ([]*services.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM quotation_sessions
      WHERE expires_at < ? ORDER BY expires_at ASC`
	args := []any{formatTime(now)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListExpiredSessions: rows.Close", cerr)
		}
	}()
	out := []*services.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CountSessions(now time.Time) (services.SessionStats, error) {
	rows, err := s.q.Query(`SELECT expires_at, is_completed FROM quotation_sessions`)
	if err != nil {
		return services.SessionStats{}, fmt.Errorf("count sessions: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("CountSessions: rows.Close", cerr)
		}
	}()
	stats := services.SessionStats{}
	for rows.Next() {
		var (
			expires   string
			completed int64
		)
		if err := rows.Scan(&expires, &completed); err != nil {
			return services.SessionStats{}, fmt.Errorf("scan session counts: %w", err)
		}
		stats.Total++
		if now.After(parseTime(expires)) {
			stats.Expired++
		} else {
			stats.Active++
		}
		if int64ToBool(completed) {
			stats.Completed++
		}
	}
	if err := rows.Err(); err != nil {
		return services.SessionStats{}, fmt.Errorf("count sessions: %w", err)
	}
	return stats, nil
}

// --- Questions (sqlite) ---

const questionColumns = `id, category, text, field_name, input_type, choices, required, display_order, min_value, max_value, max_length`

func scanQuestion(row interface{ Scan(...any) error }) (*services.Question, error) {
	var (
		q         services.Question
		choices   sql.NullString
		required  int64
		minValue  sql.NullFloat64
		maxValue  sql.NullFloat64
		maxLength sql.NullInt64
	)
	if err := row.Scan(&q.ID, &q.Category, &q.Text, &q.FieldName, &q.InputType,
		&choices, &required, &q.DisplayOrder, &minValue, &maxValue, &maxLength); err != nil {
		return nil, err
	}
	q.Choices = decodeChoices(choices)
	q.Required = int64ToBool(required)
	if minValue.Valid {
		v := minValue.Float64
		q.MinValue = &v
	}
	if maxValue.Valid {
		v := maxValue.Float64
		q.MaxValue = &v
	}
	q.MaxLength = int(maxLength.Int64)
	return &q, nil
}

func (s *SQLiteStore) ListQuestions(category services.Category) ([]*services.Question, error) {
	rows, err := s.q.Query(`SELECT `+questionColumns+` FROM survey_questions
      WHERE category = ? ORDER BY display_order ASC, field_name ASC`, string(category))
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListQuestions: rows.Close", cerr)
		}
	}()
	out := []*services.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetQuestion(category services.Category, fieldName string) (*services.Question, error) {
	row := s.q.QueryRow(`SELECT `+questionColumns+` FROM survey_questions
      WHERE category = ? AND field_name = ?`, string(category), fieldName)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *SQLiteStore) UpsertQuestion(q *services.Question) error {
	choices, err := encodeJSON(q.Choices)
	if err != nil {
		return fmt.Errorf("encode choices: %w", err)
	}
	var minValue, maxValue sql.NullFloat64
	if q.MinValue != nil {
		minValue = sql.NullFloat64{Float64: *q.MinValue, Valid: true}
	}
	if q.MaxValue != nil {
		maxValue = sql.NullFloat64{Float64: *q.MaxValue, Valid: true}
	}
	var maxLength sql.NullInt64
	if q.MaxLength > 0 {
		maxLength = sql.NullInt64{Int64: int64(q.MaxLength), Valid: true}
	}
	_, err = s.q.Exec(`INSERT INTO survey_questions (`+questionColumns+`)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
      ON CONFLICT(category, field_name) DO UPDATE SET
        id = excluded.id,
        text = excluded.text,
        input_type = excluded.input_type,
        choices = excluded.choices,
        required = excluded.required,
        display_order = excluded.display_order,
        min_value = excluded.min_value,
        max_value = excluded.max_value,
        max_length = excluded.max_length`,
		q.ID, string(q.Category), q.Text, q.FieldName, string(q.InputType),
		choices, boolToInt64(q.Required), q.DisplayOrder, minValue, maxValue, maxLength)
	if err != nil {
		return fmt.Errorf("upsert question: %w", err)
	}
	return nil
}

// --- Responses (sqlite) ---

func (s *SQLiteStore) ListResponses(sessionKey string, category services.Category) ([]*services.ResponseRecord, error) {
	rows, err := s.q.Query(`SELECT session_key, category, field_name, value, created_at, updated_at
      FROM survey_responses WHERE session_key = ? AND category = ? ORDER BY field_name ASC`,
		sessionKey, string(category))
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logErr("ListResponses: rows.Close", cerr)
		}
	}()
	out := []*services.ResponseRecord{}
	for rows.Next() {
		var (
			rec     services.ResponseRecord
			raw     string
			created string
			updated string
		)
		if err := rows.Scan(&rec.SessionKey, &rec.Category, &rec.FieldName, &raw, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		rec.Value = decodeValue(raw)
		rec.CreatedAt = parseTime(created)
		rec.UpdatedAt = parseTime(updated)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpsertResponse(r *services.ResponseRecord) (*services.ResponseRecord, error) {
	raw, err := json.Marshal(r.Value)
	if err != nil {
		return nil, fmt.Errorf("encode answer value: %w", err)
	}
	now := formatTime(time.Now().UTC())
	// ON CONFLICT leaves created_at alone, so first-write time survives updates.
	_, err = s.q.Exec(`INSERT INTO survey_responses (session_key, category, field_name, value, created_at, updated_at)
      VALUES (?, ?, ?, ?, ?, ?)
      ON CONFLICT(session_key, category, field_name) DO UPDATE SET
        value = excluded.value,
        updated_at = excluded.updated_at`,
		r.SessionKey, string(r.Category), r.FieldName, string(raw), now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert response: %w", err)
	}

	row := s.q.QueryRow(`SELECT created_at, updated_at FROM survey_responses
      WHERE session_key = ? AND category = ? AND field_name = ?`,
		r.SessionKey, string(r.Category), r.FieldName)
	var created, updated string
	if err := row.Scan(&created, &updated); err != nil {
		return nil, fmt.Errorf("read back response: %w", err)
	}
	stored := *r
	stored.CreatedAt = parseTime(created)
	stored.UpdatedAt = parseTime(updated)
	return &stored, nil
}

func (s *SQLiteStore) DeleteResponses(sessionKey string, category services.Category, fields ...string) (int, error) {
	query := `DELETE FROM survey_responses WHERE session_key = ? AND category = ?`
	args := []any{sessionKey, string(category)}
	if len(fields) > 0 {
		query += ` AND field_name IN (?` + strings.Repeat(", ?", len(fields)-1) + `)`
		for _, f := range fields {
			args = append(args, f)
		}
	}
	res, err := s.q.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete responses: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// InTx runs fn against a *sql.Tx-backed view of the store. Nested calls join
// the outer transaction.
func (s *SQLiteStore) InTx(fn func(api.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	child := &SQLiteStore{db: s.db, q: tx, inTx: true}
	if err := fn(child); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logErr("InTx: rollback", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
