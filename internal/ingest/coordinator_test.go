package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chesslog/chesslog/internal/model"
	"github.com/chesslog/chesslog/internal/provider"
	"github.com/chesslog/chesslog/internal/store/memory"
)

const twoGamePGN = `[Event "Casual Game"]
[Date "2024.01.15"]
[White "alice"]
[Black "bob"]
[Result "1-0"]
[TimeControl "300"]

1. e4 e5 2. Nf3 Nc6 1-0

[Event "Casual Game"]
[Date "2024.01.16"]
[White "carol"]
[Black "alice"]
[Result "0-1"]
[TimeControl "60"]

1. d4 d5 2. c4 c6 0-1
`

func newTestCoordinator(t *testing.T, db *memory.DB, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{
		WithUploadDir(t.TempDir()),
		WithWorkers(1),
	}, opts...)
	c, err := New(db.Accounts(), db.Games(), db.Jobs(), opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func waitForTerminal(t *testing.T, db *memory.DB, jobID int64) *model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := db.Jobs().Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Get job: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status in time")
	return nil
}

func TestFileImportIsIdempotent(t *testing.T) {
	db := memory.New()
	account, err := db.Accounts().Create(context.Background(), model.PlatformOther, "alice", "")
	if err != nil {
		t.Fatalf("Create account: %v", err)
	}
	c := newTestCoordinator(t, db)

	first, err := c.EnqueueFileImport(context.Background(), account.ID, "games.pgn", strings.NewReader(twoGamePGN))
	if err != nil {
		t.Fatalf("EnqueueFileImport: %v", err)
	}
	job := waitForTerminal(t, db, first.ID)
	if job.Status != model.JobCompleted {
		t.Fatalf("first run status = %s (%s), want COMPLETED", job.Status, job.ErrorMessage)
	}
	if job.ProcessedGames != 2 || job.DuplicateGames != 0 {
		t.Errorf("first run processed=%d duplicates=%d, want 2/0", job.ProcessedGames, job.DuplicateGames)
	}

	second, err := c.EnqueueFileImport(context.Background(), account.ID, "games.pgn", strings.NewReader(twoGamePGN))
	if err != nil {
		t.Fatalf("EnqueueFileImport (rerun): %v", err)
	}
	job = waitForTerminal(t, db, second.ID)
	if job.ProcessedGames != 2 || job.DuplicateGames != 2 {
		t.Errorf("rerun processed=%d duplicates=%d, want 2/2", job.ProcessedGames, job.DuplicateGames)
	}

	count, err := db.Games().CountByAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("CountByAccount: %v", err)
	}
	if count != 2 {
		t.Errorf("stored games = %d, want 2", count)
	}
}

func TestFileImportSetsTotalAndLastSync(t *testing.T) {
	db := memory.New()
	account, _ := db.Accounts().Create(context.Background(), model.PlatformOther, "alice", "")
	c := newTestCoordinator(t, db)

	before := time.Now().UTC()
	job, err := c.EnqueueFileImport(context.Background(), account.ID, "games.pgn", strings.NewReader(twoGamePGN))
	if err != nil {
		t.Fatalf("EnqueueFileImport: %v", err)
	}
	if job.Status != model.JobPending {
		t.Errorf("enqueued status = %s, want PENDING", job.Status)
	}

	done := waitForTerminal(t, db, job.ID)
	if done.TotalGames == nil || *done.TotalGames != 2 {
		t.Errorf("total_games = %v, want 2", done.TotalGames)
	}
	if pct := done.ProgressPercent(); pct == nil || *pct != 100 {
		t.Errorf("progress_percent = %v, want 100", pct)
	}

	refreshed, _ := db.Accounts().Get(context.Background(), account.ID)
	if refreshed.LastSyncAt == nil || refreshed.LastSyncAt.Before(before) {
		t.Errorf("last_sync_at = %v, want >= %v", refreshed.LastSyncAt, before)
	}
}

func TestEnqueueRejectsWrongPlatform(t *testing.T) {
	db := memory.New()
	account, _ := db.Accounts().Create(context.Background(), model.PlatformLichess, "alice", "")
	c := newTestCoordinator(t, db)

	if _, err := c.EnqueueChessComImport(context.Background(), account.ID); !errors.Is(err, ErrWrongPlatform) {
		t.Errorf("EnqueueChessComImport error = %v, want ErrWrongPlatform", err)
	}
}

func TestEnqueueRejectsActiveImport(t *testing.T) {
	db := memory.New()
	account, _ := db.Accounts().Create(context.Background(), model.PlatformLichess, "alice", "")
	if _, err := db.Jobs().Create(context.Background(), account.ID, ""); err != nil {
		t.Fatalf("Create job: %v", err)
	}
	c := newTestCoordinator(t, db)

	if _, err := c.EnqueueLichessImport(context.Background(), account.ID); !errors.Is(err, ErrImportActive) {
		t.Errorf("EnqueueLichessImport error = %v, want ErrImportActive", err)
	}
}

func TestChessComImportToleratesArchiveFailure(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/pub/player/alice/games/archives", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"archives":["` + srv.URL + `/pub/player/alice/games/2024/01","` + srv.URL + `/pub/player/alice/games/2024/02"]}`))
	})
	mux.HandleFunc("/pub/player/alice/games/2024/01", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/pub/player/alice/games/2024/02", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"games":[{"pgn":"[Event \"Live Chess\"]\n[Date \"2024.02.01\"]\n[White \"alice\"]\n[Black \"bob\"]\n[Result \"1-0\"]\n[TimeControl \"600\"]\n\n1. e4 e5 1-0"}]}`))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	fetcher := provider.NewFetcher(provider.Profile{MaxRetries: 1, Timeout: 5 * time.Second})
	src := provider.NewChessComSource(fetcher, provider.WithChessComBaseURL(srv.URL))

	db := memory.New()
	account, _ := db.Accounts().Create(context.Background(), model.PlatformChessCom, "alice", "")
	c := newTestCoordinator(t, db, WithChessComSource(src))

	job, err := c.EnqueueChessComImport(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("EnqueueChessComImport: %v", err)
	}
	done := waitForTerminal(t, db, job.ID)

	if done.Status != model.JobCompleted {
		t.Fatalf("status = %s (%s), want COMPLETED despite failed archive", done.Status, done.ErrorMessage)
	}
	if done.ArchivesProcessed == nil || *done.ArchivesProcessed != 2 {
		t.Errorf("archives_processed = %v, want 2", done.ArchivesProcessed)
	}
	if done.TotalArchives == nil || *done.TotalArchives != 2 {
		t.Errorf("total_archives = %v, want 2", done.TotalArchives)
	}
	if done.ProcessedGames != 1 {
		t.Errorf("processed_games = %d, want 1", done.ProcessedGames)
	}
}

func TestChessComImportFailsOnUnknownUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	fetcher := provider.NewFetcher(provider.Profile{MaxRetries: 1, Timeout: 5 * time.Second})
	src := provider.NewChessComSource(fetcher, provider.WithChessComBaseURL(srv.URL))

	db := memory.New()
	account, _ := db.Accounts().Create(context.Background(), model.PlatformChessCom, "ghost", "")
	c := newTestCoordinator(t, db, WithChessComSource(src))

	job, err := c.EnqueueChessComImport(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("EnqueueChessComImport: %v", err)
	}
	done := waitForTerminal(t, db, job.ID)

	if done.Status != model.JobFailed {
		t.Fatalf("status = %s, want FAILED", done.Status)
	}
	if done.ErrorMessage != "User not found on Chess.com: ghost" {
		t.Errorf("error_message = %q", done.ErrorMessage)
	}

	refreshed, _ := db.Accounts().Get(context.Background(), account.ID)
	if refreshed.LastSyncAt != nil {
		t.Errorf("last_sync_at = %v, want nil after failure", refreshed.LastSyncAt)
	}
}

func TestLichessImportMirrorsTotalGames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(twoGamePGN))
	}))
	defer srv.Close()

	fetcher := provider.NewFetcher(provider.Profile{MaxRetries: 1, Timeout: 5 * time.Second})
	src := provider.NewLichessSource(fetcher, provider.WithLichessBaseURL(srv.URL))

	db := memory.New()
	account, _ := db.Accounts().Create(context.Background(), model.PlatformLichess, "alice", "")
	c := newTestCoordinator(t, db, WithLichessSource(src))

	job, err := c.EnqueueLichessImport(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("EnqueueLichessImport: %v", err)
	}
	done := waitForTerminal(t, db, job.ID)

	if done.Status != model.JobCompleted {
		t.Fatalf("status = %s (%s), want COMPLETED", done.Status, done.ErrorMessage)
	}
	if done.TotalGames == nil || *done.TotalGames != done.ProcessedGames {
		t.Errorf("total_games = %v, want mirror of processed %d", done.TotalGames, done.ProcessedGames)
	}
	if done.ProcessedGames != 2 {
		t.Errorf("processed_games = %d, want 2", done.ProcessedGames)
	}
}

func TestImportCountersNeverDecrease(t *testing.T) {
	// Enough games that progress flushes several times mid-import, with
	// the response trickled out so polls land between flushes.
	const gameCount = 250
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for i := 0; i < gameCount; i++ {
			fmt.Fprintf(w, "[White \"alice\"]\n[Black \"bob%d\"]\n[Result \"1-0\"]\n[Date \"2024.01.05\"]\n[TimeControl \"300\"]\n\n1. e4 e5 2. Nf3 1-0\n\n", i)
			if i%25 == 24 {
				if flusher != nil {
					flusher.Flush()
				}
				time.Sleep(2 * time.Millisecond)
			}
		}
	}))
	defer srv.Close()

	fetcher := provider.NewFetcher(provider.Profile{MaxRetries: 1, Timeout: 30 * time.Second})
	src := provider.NewLichessSource(fetcher, provider.WithLichessBaseURL(srv.URL))

	db := memory.New()
	account, _ := db.Accounts().Create(context.Background(), model.PlatformLichess, "alice", "")
	c := newTestCoordinator(t, db, WithLichessSource(src))

	job, err := c.EnqueueLichessImport(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("EnqueueLichessImport: %v", err)
	}

	var lastProcessed, lastDuplicates, lastTotal int
	deadline := time.Now().Add(10 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("job did not reach a terminal status in time")
		}
		snap, err := db.Jobs().Get(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("Get job: %v", err)
		}
		if snap.ProcessedGames < lastProcessed {
			t.Fatalf("processed_games went backwards: %d after %d", snap.ProcessedGames, lastProcessed)
		}
		if snap.DuplicateGames < lastDuplicates {
			t.Fatalf("duplicate_games went backwards: %d after %d", snap.DuplicateGames, lastDuplicates)
		}
		if snap.TotalGames != nil && *snap.TotalGames < lastTotal {
			t.Fatalf("total_games went backwards: %d after %d", *snap.TotalGames, lastTotal)
		}
		lastProcessed = snap.ProcessedGames
		lastDuplicates = snap.DuplicateGames
		if snap.TotalGames != nil {
			lastTotal = *snap.TotalGames
		}
		if snap.Status.Terminal() {
			if snap.Status != model.JobCompleted {
				t.Fatalf("status = %s (%s), want COMPLETED", snap.Status, snap.ErrorMessage)
			}
			if snap.ProcessedGames != gameCount {
				t.Errorf("processed_games = %d, want %d", snap.ProcessedGames, gameCount)
			}
			return
		}
	}
}

func TestShutdownMarksInterrupted(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	fetcher := provider.NewFetcher(provider.Profile{MaxRetries: 1, Timeout: time.Minute})
	src := provider.NewLichessSource(fetcher, provider.WithLichessBaseURL(srv.URL))

	db := memory.New()
	account, _ := db.Accounts().Create(context.Background(), model.PlatformLichess, "alice", "")
	c, err := New(db.Accounts(), db.Games(), db.Jobs(),
		WithUploadDir(t.TempDir()), WithWorkers(1), WithLichessSource(src))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	job, err := c.EnqueueLichessImport(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("EnqueueLichessImport: %v", err)
	}

	<-started
	c.Close()

	done := waitForTerminal(t, db, job.ID)
	if done.Status != model.JobFailed {
		t.Fatalf("status = %s, want FAILED", done.Status)
	}
	if done.ErrorMessage != "Request interrupted" {
		t.Errorf("error_message = %q, want %q", done.ErrorMessage, "Request interrupted")
	}
}
