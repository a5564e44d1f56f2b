package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tmashinini/quotewise/internal/middleware"
	"github.com/tmashinini/quotewise/internal/services"
)

type Router struct {
	store      Store
	sessions   *services.SessionService
	surveys    *services.SurveyService
	migrations *services.MigrationService
	criteria   *services.CriteriaService
	auth       *services.AdminAuthService
}

func NewRouter(store Store, auth *services.AdminAuthService) *Router {
	sessions := services.NewSessionService(newSessionStoreAdapter(store))
	migrations := services.NewMigrationService(newMigrationStoreAdapter(store))
	return &Router{
		store:      store,
		sessions:   sessions,
		surveys:    services.NewSurveyService(newSurveyStoreAdapter(store), sessions),
		migrations: migrations,
		criteria:   services.NewCriteriaService(newCriteriaStoreAdapter(store), migrations),
		auth:       auth,
	}
}

// Sessions exposes the session service for the background cleanup sweeper.
func (rt *Router) Sessions() *services.SessionService { return rt.sessions }

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/surveys/", rt.handleSurveyScoped)
	mux.HandleFunc("/api/admin/login", rt.handleAdminLogin)
	mux.HandleFunc("/api/admin/sessions/stats", rt.handleAdminStats)
	mux.HandleFunc("/api/admin/sessions/cleanup", rt.handleAdminCleanup)
}

// Survey routes are category-scoped:
//
//	POST /api/surveys/{category}/session
//	GET  /api/surveys/{category}/session
//	GET  /api/surveys/{category}/questions
//	POST /api/surveys/{category}/responses
//	GET  /api/surveys/{category}/completion
//	GET  /api/surveys/{category}/criteria
//	GET  /api/surveys/{category}/migration/status
//	POST /api/surveys/{category}/migration/auto
//	GET  /api/surveys/{category}/migration/form
//	GET  /api/surveys/{category}/migration/prompt
//	GET  /api/surveys/{category}/migration/notification
func (rt *Router) handleSurveyScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/surveys/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 {
		http.NotFound(w, r)
		return
	}
	category, err := services.ParseCategory(parts[0])
	if err != nil {
		writeError(w, err)
		return
	}

	switch parts[1] {
	case "session":
		switch r.Method {
		case http.MethodPost:
			rt.handleCreateSession(w, r, category)
		case http.MethodGet:
			rt.handleValidateSession(w, r, category)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case "questions":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rt.handleQuestions(w, r, category)
	case "responses":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rt.handleSubmitResponses(w, r, category)
	case "completion":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rt.handleCompletion(w, r, category)
	case "criteria":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rt.handleCriteria(w, r, category)
	case "migration":
		if len(parts) < 3 {
			http.NotFound(w, r)
			return
		}
		rt.handleMigration(w, r, category, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) handleCreateSession(w http.ResponseWriter, r *http.Request, category services.Category) {
	var req struct {
		SessionKey string `json:"session_key"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means a new session
	}
	key := req.SessionKey
	if key == "" {
		key = sessionKeyFrom(r)
	}
	if key == "" {
		key = services.NewSessionKey()
	}

	session, created, err := rt.sessions.CreateOrGetSession(key, category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"session_key": session.SessionKey,
		"created":     created,
		"session":     session,
	})
}

func (rt *Router) handleValidateSession(w http.ResponseWriter, r *http.Request, category services.Category) {
	key := sessionKeyFrom(r)
	if key == "" {
		writeError(w, services.NewInvalidError("session key required"))
		return
	}
	validation, err := rt.sessions.ValidateSession(key, category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, validation)
}

func (rt *Router) handleQuestions(w http.ResponseWriter, r *http.Request, category services.Category) {
	questions, err := rt.surveys.Questions(category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"category": category, "questions": questions})
}

func (rt *Router) handleSubmitResponses(w http.ResponseWriter, r *http.Request, category services.Category) {
	var req struct {
		SessionKey string                          `json:"session_key"`
		Answers    map[string]services.AnswerValue `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := req.SessionKey
	if key == "" {
		key = sessionKeyFrom(r)
	}
	if key == "" {
		key = services.NewSessionKey()
	}

	result, err := rt.surveys.SubmitAnswers(key, category, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"session_key":  key,
		"saved":        result.Saved,
		"field_errors": result.FieldErrors,
		"completion":   result.Completion,
	})
}

func (rt *Router) handleCompletion(w http.ResponseWriter, r *http.Request, category services.Category) {
	key := sessionKeyFrom(r)
	if key == "" {
		writeError(w, services.NewInvalidError("session key required"))
		return
	}
	status, err := rt.surveys.CompletionStatus(key, category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status)
}

func (rt *Router) handleCriteria(w http.ResponseWriter, r *http.Request, category services.Category) {
	key := sessionKeyFrom(r)
	if key == "" {
		writeError(w, services.NewInvalidError("session key required"))
		return
	}
	result, err := rt.criteria.BuildCriteria(key, category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (rt *Router) handleMigration(w http.ResponseWriter, r *http.Request, category services.Category, action string) {
	key := sessionKeyFrom(r)
	if key == "" {
		writeError(w, services.NewInvalidError("session key required"))
		return
	}

	switch action {
	case "status":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, rt.migrations.CheckMigrationStatus(key, category))
	case "auto":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, rt.migrations.AutoMigrateResponses(key, category))
	case "form":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		form, err := rt.migrations.GetMigrationFormData(key, category)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, form)
	case "prompt":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		prompt, err := rt.migrations.GetUserMigrationPrompt(key, category)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, prompt)
	case "notification":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		notification, err := rt.migrations.CreateMigrationNotification(key, category)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, notification)
	default:
		http.NotFound(w, r)
	}
}

// POST /api/admin/login
func (rt *Router) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": res.Token, "email": res.Email})
}

// GET /api/admin/sessions/stats
func (rt *Router) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := middleware.AdminFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	stats, err := rt.sessions.SessionStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

// POST /api/admin/sessions/cleanup — drain all expired sessions in batches.
func (rt *Router) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := middleware.AdminFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		BatchSize int `json:"batch_size"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	total := services.CleanupStats{Errors: []string{}}
	for i := 0; i < 1000; i++ {
		stats := rt.sessions.CleanupExpiredSessions(req.BatchSize)
		total.SessionsDeleted += stats.SessionsDeleted
		total.ResponsesDeleted += stats.ResponsesDeleted
		total.Errors = append(total.Errors, stats.Errors...)
		if stats.SessionsDeleted == 0 {
			break
		}
	}
	writeJSON(w, total)
}

func sessionKeyFrom(r *http.Request) string {
	if key := r.Header.Get("X-Session-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("session_key")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if se, ok := services.AsServiceError(err); ok {
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		}
	}
	http.Error(w, err.Error(), status)
}
