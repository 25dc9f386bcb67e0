// Package ingest runs import jobs: it accepts enqueue requests, persists
// the PENDING job, and drives the source pipeline on a bounded worker
// pool. At most one job may be active per account at any time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chesslog/chesslog/internal/model"
	"github.com/chesslog/chesslog/internal/pgn"
	"github.com/chesslog/chesslog/internal/provider"
	"github.com/chesslog/chesslog/internal/store"
)

const (
	// fileFlushInterval is how many games pass between counter flushes
	// for file imports; apiFlushInterval for the remote sources.
	fileFlushInterval = 50
	apiFlushInterval  = 100

	defaultWorkers   = 4
	defaultUploadDir = "uploads"

	// terminalWriteTimeout bounds the final status write after a job
	// ends, including after the coordinator's own context is gone.
	terminalWriteTimeout = 10 * time.Second

	interruptedMessage = "Request interrupted"
)

var (
	// ErrWrongPlatform is returned when a platform import is requested
	// for an account registered on a different platform.
	ErrWrongPlatform = errors.New("ingest: account platform does not match import source")
	// ErrImportActive is returned when the account already has a
	// PENDING or PROCESSING job.
	ErrImportActive = errors.New("ingest: an import is already running for this account")
)

// Coordinator owns the import job lifecycle.
type Coordinator struct {
	accounts store.AccountStore
	games    store.GameStore
	jobs     store.JobStore

	chesscom *provider.ChessComSource
	lichess  *provider.LichessSource

	uploadDir string
	slots     chan struct{}
	logger    zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithChessComSource overrides the Chess.com source, for tests.
func WithChessComSource(src *provider.ChessComSource) Option {
	return func(c *Coordinator) {
		c.chesscom = src
	}
}

// WithLichessSource overrides the Lichess source, for tests.
func WithLichessSource(src *provider.LichessSource) Option {
	return func(c *Coordinator) {
		c.lichess = src
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.slots = make(chan struct{}, n)
		}
	}
}

// WithUploadDir sets where uploaded files are stored.
func WithUploadDir(dir string) Option {
	return func(c *Coordinator) {
		c.uploadDir = dir
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a Coordinator and ensures the upload directory exists.
func New(accounts store.AccountStore, games store.GameStore, jobs store.JobStore, opts ...Option) (*Coordinator, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		accounts:  accounts,
		games:     games,
		jobs:      jobs,
		chesscom:  provider.NewChessComSource(provider.NewFetcher(provider.ChessComProfile)),
		lichess:   provider.NewLichessSource(provider.NewFetcher(provider.LichessProfile)),
		uploadDir: defaultUploadDir,
		slots:     make(chan struct{}, defaultWorkers),
		logger:    zerolog.Nop(),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := os.MkdirAll(c.uploadDir, 0o755); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create upload dir %s: %w", c.uploadDir, err)
	}
	return c, nil
}

// Close stops accepting work and waits for in-flight jobs to finish
// marking themselves FAILED.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// EnqueueFileImport stores the uploaded content and starts a background
// import of it. The returned job is PENDING.
func (c *Coordinator) EnqueueFileImport(ctx context.Context, accountID int64, originalName string, content io.Reader) (*model.Job, error) {
	account, err := c.checkAccount(ctx, accountID, "")
	if err != nil {
		return nil, err
	}

	storedPath, err := c.saveUpload(originalName, content)
	if err != nil {
		return nil, err
	}

	job, err := c.jobs.Create(ctx, accountID, filepath.Base(originalName))
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Int64("job_id", job.ID).
		Int64("account_id", accountID).
		Str("file", job.FileName).
		Msg("File import enqueued")

	c.dispatch(job.ID, account, func(ctx context.Context) error {
		return c.runFile(ctx, job.ID, account, storedPath)
	})
	return job, nil
}

// EnqueueChessComImport starts a background sync from Chess.com.
func (c *Coordinator) EnqueueChessComImport(ctx context.Context, accountID int64) (*model.Job, error) {
	account, err := c.checkAccount(ctx, accountID, model.PlatformChessCom)
	if err != nil {
		return nil, err
	}

	job, err := c.jobs.Create(ctx, accountID, "")
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Int64("job_id", job.ID).
		Int64("account_id", accountID).
		Str("username", account.Username).
		Msg("Chess.com import enqueued")

	c.dispatch(job.ID, account, func(ctx context.Context) error {
		return c.runChessCom(ctx, job.ID, account)
	})
	return job, nil
}

// EnqueueLichessImport starts a background sync from Lichess.
func (c *Coordinator) EnqueueLichessImport(ctx context.Context, accountID int64) (*model.Job, error) {
	account, err := c.checkAccount(ctx, accountID, model.PlatformLichess)
	if err != nil {
		return nil, err
	}

	job, err := c.jobs.Create(ctx, accountID, "")
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Int64("job_id", job.ID).
		Int64("account_id", accountID).
		Str("username", account.Username).
		Msg("Lichess import enqueued")

	c.dispatch(job.ID, account, func(ctx context.Context) error {
		return c.runLichess(ctx, job.ID, account)
	})
	return job, nil
}

// checkAccount loads the account and enforces the enqueue preconditions:
// the account exists, matches the required platform (when not empty),
// and has no active job.
func (c *Coordinator) checkAccount(ctx context.Context, accountID int64, platform model.Platform) (*model.Account, error) {
	account, err := c.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if platform != "" && account.Platform != platform {
		return nil, ErrWrongPlatform
	}
	active, err := c.jobs.ExistsActive(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrImportActive
	}
	return account, nil
}

// saveUpload writes the content under a UUID-prefixed name so repeated
// uploads of the same file never collide.
func (c *Coordinator) saveUpload(originalName string, content io.Reader) (string, error) {
	name := uuid.NewString() + "_" + filepath.Base(originalName)
	path := filepath.Join(c.uploadDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

// dispatch hands the job to the worker pool. The sync start time is
// captured when processing begins and becomes last_sync_at on success.
func (c *Coordinator) dispatch(jobID int64, account *model.Account, run func(context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		select {
		case c.slots <- struct{}{}:
			defer func() { <-c.slots }()
		case <-c.baseCtx.Done():
			c.finishFailed(jobID, interruptedMessage)
			return
		}

		start := time.Now().UTC()
		if err := c.jobs.SetStatus(c.baseCtx, jobID, model.JobProcessing); err != nil {
			c.logger.Error().Err(err).Int64("job_id", jobID).Msg("Failed to mark job processing")
			c.finishFailed(jobID, err.Error())
			return
		}

		err := run(c.baseCtx)
		switch {
		case err == nil:
			c.finishCompleted(jobID, account.ID, start)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			c.finishFailed(jobID, interruptedMessage)
		default:
			c.logger.Error().Err(err).Int64("job_id", jobID).Msg("Import failed")
			c.finishFailed(jobID, err.Error())
		}
	}()
}

// finishCompleted and finishFailed use a fresh context so terminal
// writes land even when the coordinator itself is shutting down.
func (c *Coordinator) finishCompleted(jobID, accountID int64, syncStart time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()
	if err := c.jobs.MarkCompleted(ctx, jobID); err != nil {
		c.logger.Error().Err(err).Int64("job_id", jobID).Msg("Failed to mark job completed")
		return
	}
	if err := c.accounts.SetLastSyncAt(ctx, accountID, syncStart); err != nil {
		c.logger.Error().Err(err).Int64("account_id", accountID).Msg("Failed to record sync time")
	}
	c.logger.Info().Int64("job_id", jobID).Msg("Import completed")
}

func (c *Coordinator) finishFailed(jobID int64, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()
	if err := c.jobs.MarkFailed(ctx, jobID, message); err != nil {
		c.logger.Error().Err(err).Int64("job_id", jobID).Msg("Failed to mark job failed")
	}
}

// progress tracks per-job counters and flushes them at an interval.
// mirrorTotal makes total_games follow processed_games for sources
// whose totals are unknown up front.
type progress struct {
	jobs        store.JobStore
	jobID       int64
	interval    int
	mirrorTotal bool
	processed   int
	duplicates  int
}

func (p *progress) record(ctx context.Context, duplicate bool) error {
	p.processed++
	if duplicate {
		p.duplicates++
	}
	if p.processed%p.interval == 0 {
		return p.flush(ctx)
	}
	return nil
}

func (p *progress) flush(ctx context.Context) error {
	if err := p.jobs.UpdateProgress(ctx, p.jobID, p.processed, p.duplicates); err != nil {
		return err
	}
	if p.mirrorTotal {
		return p.jobs.SetTotalGames(ctx, p.jobID, p.processed)
	}
	return nil
}

// ingestGame runs the dedup protocol for one parsed game. A row already
// present, whether found by the exists check or rejected by the unique
// index, counts as a duplicate.
func (c *Coordinator) ingestGame(ctx context.Context, accountID int64, g *pgn.ParsedGame, p *progress) error {
	exists, err := c.games.Exists(ctx, accountID, g.PgnHash)
	if err != nil {
		return err
	}
	if exists {
		return p.record(ctx, true)
	}

	inserted, err := c.games.Insert(ctx, &model.Game{
		AccountID:           accountID,
		PlayedAt:            g.PlayedAt,
		Result:              g.Result,
		Color:               g.Color,
		TimeControlRaw:      g.TimeControlRaw,
		TimeControlCategory: g.TimeControlCategory,
		EcoCode:             g.EcoCode,
		OpeningName:         g.OpeningName,
		Opponent:            g.Opponent,
		PgnHash:             g.PgnHash,
	})
	if err != nil {
		return err
	}
	return p.record(ctx, !inserted)
}

func (c *Coordinator) runFile(ctx context.Context, jobID int64, account *model.Account, path string) error {
	src := provider.FileSource{Path: path}
	total, err := src.Count()
	if err != nil {
		return err
	}
	if err := c.jobs.SetTotalGames(ctx, jobID, total); err != nil {
		return err
	}

	f, err := src.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	p := &progress{jobs: c.jobs, jobID: jobID, interval: fileFlushInterval}
	var handlerErr error
	_, err = pgn.ParseStream(f, account.Username, func(g *pgn.ParsedGame) {
		if handlerErr != nil {
			return
		}
		handlerErr = c.ingestGame(ctx, account.ID, g, p)
	})
	if err != nil {
		return err
	}
	if handlerErr != nil {
		return handlerErr
	}
	return p.flush(ctx)
}

func (c *Coordinator) runChessCom(ctx context.Context, jobID int64, account *model.Account) error {
	archives, err := c.chesscom.Archives(ctx, account.Username, account.LastSyncAt)
	if err != nil {
		return userNotFound(err, "Chess.com", account.Username)
	}
	if err := c.jobs.InitArchives(ctx, jobID, len(archives)); err != nil {
		return err
	}

	p := &progress{jobs: c.jobs, jobID: jobID, interval: apiFlushInterval}
	totalSeen := 0
	for i, archiveURL := range archives {
		pgns, err := c.chesscom.ArchivePGNs(ctx, archiveURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// One bad month does not sink the whole sync.
			c.logger.Warn().Err(err).Str("archive", archiveURL).Msg("Archive fetch failed, continuing")
			if err := c.jobs.SetArchivesProcessed(ctx, jobID, i+1); err != nil {
				return err
			}
			continue
		}

		for _, text := range pgns {
			g := pgn.ParseOne(text, account.Username)
			if g == nil {
				continue
			}
			if err := c.ingestGame(ctx, account.ID, g, p); err != nil {
				return err
			}
		}

		totalSeen += len(pgns)
		if err := c.jobs.SetArchivesProcessed(ctx, jobID, i+1); err != nil {
			return err
		}
		if err := c.jobs.SetTotalGames(ctx, jobID, totalSeen); err != nil {
			return err
		}
	}
	return p.flush(ctx)
}

func (c *Coordinator) runLichess(ctx context.Context, jobID int64, account *model.Account) error {
	stream, err := c.lichess.Export(ctx, account.Username, account.LastSyncAt)
	if err != nil {
		return userNotFound(err, "Lichess", account.Username)
	}
	defer stream.Close()

	p := &progress{jobs: c.jobs, jobID: jobID, interval: apiFlushInterval, mirrorTotal: true}
	var handlerErr error
	_, err = pgn.ParseStream(stream, account.Username, func(g *pgn.ParsedGame) {
		if handlerErr != nil {
			return
		}
		handlerErr = c.ingestGame(ctx, account.ID, g, p)
	})
	if err != nil {
		return err
	}
	if handlerErr != nil {
		return handlerErr
	}
	return p.flush(ctx)
}

// userNotFound rewrites a provider 404 on the user-level endpoint into
// the message shown on the failed job.
func userNotFound(err error, providerName, username string) error {
	var nfe *provider.NotFoundError
	if errors.As(err, &nfe) {
		return fmt.Errorf("User not found on %s: %s", providerName, username)
	}
	return err
}
