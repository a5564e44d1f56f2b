package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tmashinini/quotewise/internal/api"
	"github.com/tmashinini/quotewise/internal/db"
	"github.com/tmashinini/quotewise/internal/middleware"
	"github.com/tmashinini/quotewise/internal/services"
	"github.com/tmashinini/quotewise/internal/utils"
)

func main() {
	_ = godotenv.Load()

	addr := utils.SafeEnv("QUOTEWISE_ADDR", ":8080")

	store, err := openStore()
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	auth := services.NewAdminAuthService(
		os.Getenv("QUOTEWISE_ADMIN_EMAIL"),
		os.Getenv("QUOTEWISE_ADMIN_PASSWORD_HASH"),
		middleware.SignToken,
	)

	mux := http.NewServeMux()
	router := api.NewRouter(store, auth)
	router.Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"name": "QuoteWise API",
		})
	})

	interval := utils.SafeEnvDuration("QUOTEWISE_CLEANUP_INTERVAL", time.Hour)
	go runCleanupSweeper(router.Sessions(), interval)

	handler := middleware.NoStore(middleware.SecureHeaders(middleware.CORS(middleware.WithAuth(mux))))

	log.Printf("QuoteWise server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStore opens the sqlite store when QUOTEWISE_SQLITE_PATH is set and
// falls back to the in-memory store otherwise.
func openStore() (api.Store, error) {
	path := os.Getenv("QUOTEWISE_SQLITE_PATH")
	if path == "" {
		log.Printf("QUOTEWISE_SQLITE_PATH not set, using in-memory store")
		store := api.NewMemoryStore()
		if err := db.SeedDefaultQuestions(store); err != nil {
			return nil, err
		}
		return store, nil
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", path)
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.RunMigrations(sqldb, os.Getenv("QUOTEWISE_MIGRATIONS_DIR")); err != nil {
		return nil, err
	}
	store, err := db.NewStore(sqldb)
	if err != nil {
		return nil, err
	}
	if err := db.SeedDefaultQuestions(store); err != nil {
		return nil, err
	}
	return store, nil
}

// runCleanupSweeper drains expired sessions in batches on a fixed interval.
func runCleanupSweeper(sessions *services.SessionService, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		for {
			stats := sessions.CleanupExpiredSessions(services.DefaultCleanupBatchSize)
			if stats.SessionsDeleted > 0 || len(stats.Errors) > 0 {
				log.Printf("session cleanup: deleted %d sessions, %d responses, %d errors",
					stats.SessionsDeleted, stats.ResponsesDeleted, len(stats.Errors))
			}
			if stats.SessionsDeleted == 0 {
				break
			}
		}
	}
}
