package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chesslog/chesslog/internal/analytics"
	"github.com/chesslog/chesslog/internal/ingest"
	"github.com/chesslog/chesslog/internal/model"
	"github.com/chesslog/chesslog/internal/store"
)

const maxUploadBytes = 64 << 20

type CreateAccountRequest struct {
	Platform string `json:"platform"`
	Username string `json:"username"`
	Label    string `json:"label,omitempty"`
}

func (s *Service) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	platform := model.Platform(strings.ToUpper(req.Platform))
	if !platform.Valid() {
		http.Error(w, "Unknown platform", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		http.Error(w, "Username is required", http.StatusBadRequest)
		return
	}

	if platform == model.PlatformChessCom && s.players != nil {
		exists, err := s.players.PlayerExists(r.Context(), username)
		if err != nil {
			log.Error().Err(err).Str("username", username).Msg("Failed to validate username")
			http.Error(w, "Failed to validate username", http.StatusInternalServerError)
			return
		}
		if !exists {
			http.Error(w, "User not found on Chess.com", http.StatusBadRequest)
			return
		}
	}

	account, err := s.accounts.Create(r.Context(), platform, username, req.Label)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateAccount) {
			http.Error(w, "Account already exists for this platform", http.StatusConflict)
			return
		}
		log.Error().Err(err).Msg("Failed to create account")
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (s *Service) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list accounts")
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []*model.Account{}
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (s *Service) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}
	account, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("account_id", id).Msg("Failed to load account")
		http.Error(w, "Failed to load account", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

type UpdateAccountRequest struct {
	Label string `json:"label"`
}

func (s *Service) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}
	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.accounts.UpdateLabel(r.Context(), id, req.Label); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("account_id", id).Msg("Failed to update account")
		http.Error(w, "Failed to update account", http.StatusInternalServerError)
		return
	}

	account, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("Failed to reload account")
		http.Error(w, "Failed to load account", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// DeleteAccountHandler removes the account with its games and jobs.
func (s *Service) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}

	if err := s.games.DeleteByAccount(r.Context(), id); err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("Failed to delete games")
		http.Error(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}
	if err := s.jobs.DeleteByAccount(r.Context(), id); err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("Failed to delete jobs")
		http.Error(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}
	if err := s.accounts.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("account_id", id).Msg("Failed to delete account")
		http.Error(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) UploadHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size == 0 {
		http.Error(w, "Uploaded file is empty", http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pgn") {
		http.Error(w, "Only .pgn files are accepted", http.StatusBadRequest)
		return
	}

	job, err := s.coordinator.EnqueueFileImport(r.Context(), id, header.Filename, file)
	if err != nil {
		s.respondEnqueueError(w, err, id)
		return
	}
	respondJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Service) ImportChessComHandler(w http.ResponseWriter, r *http.Request) {
	s.importHandler(w, r, s.coordinator.EnqueueChessComImport)
}

func (s *Service) ImportLichessHandler(w http.ResponseWriter, r *http.Request) {
	s.importHandler(w, r, s.coordinator.EnqueueLichessImport)
}

func (s *Service) importHandler(w http.ResponseWriter, r *http.Request, enqueue func(context.Context, int64) (*model.Job, error)) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}

	job, err := enqueue(r.Context(), id)
	if err != nil {
		s.respondEnqueueError(w, err, id)
		return
	}
	respondJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Service) respondEnqueueError(w http.ResponseWriter, err error, accountID int64) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Account not found", http.StatusNotFound)
	case errors.Is(err, ingest.ErrWrongPlatform):
		http.Error(w, "Account is not registered on this platform", http.StatusBadRequest)
	case errors.Is(err, ingest.ErrImportActive):
		http.Error(w, "An import is already running for this account", http.StatusBadRequest)
	default:
		log.Error().Err(err).Int64("account_id", accountID).Msg("Failed to enqueue import")
		http.Error(w, "Failed to start import", http.StatusInternalServerError)
	}
}

func (s *Service) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}
	if _, err := s.accounts.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("account_id", id).Msg("Failed to load account")
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	jobs, err := s.jobs.ListByAccount(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("account_id", id).Msg("Failed to list jobs")
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Service) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}
	jobID, ok := pathID(r, "jobID")
	if !ok {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil || job.AccountID != accountID {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Int64("job_id", jobID).Msg("Failed to load job")
			http.Error(w, "Failed to load job", http.StatusInternalServerError)
			return
		}
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(job))
}

const dayLayout = "2006-01-02"

func (s *Service) CalendarHandler(w http.ResponseWriter, r *http.Request) {
	from, err := time.ParseInLocation(dayLayout, r.URL.Query().Get("from"), time.UTC)
	if err != nil {
		http.Error(w, "Invalid or missing from date", http.StatusBadRequest)
		return
	}
	to, err := time.ParseInLocation(dayLayout, r.URL.Query().Get("to"), time.UTC)
	if err != nil {
		http.Error(w, "Invalid or missing to date", http.StatusBadRequest)
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The to date is inclusive on the wire.
	days, err := s.analytics.Calendar(r.Context(), from, to.AddDate(0, 0, 1), filter)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidRange) {
			http.Error(w, "from must not be after to", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("Failed to build calendar")
		http.Error(w, "Failed to build calendar", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, days)
}

func (s *Service) StatsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := s.analytics.Stats(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute stats")
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// MultiAccountStatsHandler compares win/loss/draw breakdowns across the
// accounts named in the account_ids query parameter.
func (s *Service) MultiAccountStatsHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("account_ids")
	if raw == "" {
		http.Error(w, "account_ids is required", http.StatusBadRequest)
		return
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			http.Error(w, "Invalid account_ids", http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := s.analytics.StatsByAccount(r.Context(), ids, filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute multi-account stats")
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func filterFromQuery(r *http.Request) (store.Filter, error) {
	var f store.Filter
	q := r.URL.Query()

	if raw := q.Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, errors.New("Invalid account_id")
		}
		f.AccountID = &id
	}
	if raw := q.Get("time_control"); raw != "" {
		tc := model.TimeControlCategory(strings.ToUpper(raw))
		f.TimeControl = &tc
	}
	if raw := q.Get("color"); raw != "" {
		switch c := model.Color(strings.ToUpper(raw)); c {
		case model.ColorWhite, model.ColorBlack:
			f.Color = &c
		default:
			return f, errors.New("Invalid color")
		}
	}
	return f, nil
}
