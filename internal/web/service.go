// Package web exposes the REST API: account management, import
// enqueueing, job polling and analytics reads.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/chesslog/chesslog/internal/analytics"
	"github.com/chesslog/chesslog/internal/ingest"
	"github.com/chesslog/chesslog/internal/model"
	"github.com/chesslog/chesslog/internal/store"
)

// PlayerChecker verifies that a username exists on Chess.com before an
// account is created for it. A nil checker skips the lookup.
type PlayerChecker interface {
	PlayerExists(ctx context.Context, username string) (bool, error)
}

type Service struct {
	accounts    store.AccountStore
	games       store.GameStore
	jobs        store.JobStore
	coordinator *ingest.Coordinator
	analytics   *analytics.Service
	players     PlayerChecker
}

func NewService(accounts store.AccountStore, games store.GameStore, jobs store.JobStore, coordinator *ingest.Coordinator, analyticsSvc *analytics.Service, players PlayerChecker) *Service {
	return &Service{
		accounts:    accounts,
		games:       games,
		jobs:        jobs,
		coordinator: coordinator,
		analytics:   analyticsSvc,
		players:     players,
	}
}

// Router builds the full route table.
func (s *Service) Router() *mux.Router {
	router := mux.NewRouter()

	// Add CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.HealthHandler).Methods("GET")

	api.HandleFunc("/accounts", s.CreateAccountHandler).Methods("POST")
	api.HandleFunc("/accounts", s.ListAccountsHandler).Methods("GET")
	api.HandleFunc("/accounts/{id:[0-9]+}", s.GetAccountHandler).Methods("GET")
	api.HandleFunc("/accounts/{id:[0-9]+}", s.UpdateAccountHandler).Methods("PUT")
	api.HandleFunc("/accounts/{id:[0-9]+}", s.DeleteAccountHandler).Methods("DELETE")

	api.HandleFunc("/accounts/{id:[0-9]+}/upload", s.UploadHandler).Methods("POST")
	api.HandleFunc("/accounts/{id:[0-9]+}/import/chesscom", s.ImportChessComHandler).Methods("POST")
	api.HandleFunc("/accounts/{id:[0-9]+}/import/lichess", s.ImportLichessHandler).Methods("POST")
	api.HandleFunc("/accounts/{id:[0-9]+}/jobs", s.ListJobsHandler).Methods("GET")
	api.HandleFunc("/accounts/{id:[0-9]+}/jobs/{jobID:[0-9]+}", s.GetJobHandler).Methods("GET")

	api.HandleFunc("/analytics/calendar", s.CalendarHandler).Methods("GET")
	api.HandleFunc("/analytics/stats", s.StatsHandler).Methods("GET")
	api.HandleFunc("/analytics/stats/multi-account", s.MultiAccountStatsHandler).Methods("GET")

	return router
}

func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil
}

// jobResponse is the wire shape of a job, with the derived progress field.
type jobResponse struct {
	*model.Job
	ProgressPercent *int `json:"progress_percent"`
}

func toJobResponse(j *model.Job) jobResponse {
	return jobResponse{Job: j, ProgressPercent: j.ProgressPercent()}
}
