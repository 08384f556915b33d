package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/pushrelay/internal/config"
	"github.com/newthinker/pushrelay/internal/core"
	"github.com/newthinker/pushrelay/internal/dispatcher"
	"github.com/newthinker/pushrelay/internal/notifier"
	"github.com/newthinker/pushrelay/internal/storage/archive"
	"github.com/newthinker/pushrelay/internal/storage/delivery"
	"go.uber.org/zap"
)

// Recorder receives dispatch and archive observations.
type Recorder interface {
	dispatcher.Recorder
	RecordArchiveFailure()
}

// App is the main application orchestrator. It resolves projects by slug,
// runs the dispatcher and keeps the delivery history and archive.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	projects   map[string]core.Configuration
	dispatcher *dispatcher.Dispatcher
	history    delivery.Store
	archive    archive.Storage
	recorder   Recorder

	pruneInterval time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
}

// New creates a new App instance. The archive backend is built from the
// config when enabled.
func New(cfg *config.Config, sender notifier.Sender, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	projects := make(map[string]core.Configuration, len(cfg.Projects))
	for _, slug := range cfg.ProjectSlugs() {
		pc, err := cfg.Projects[slug].Configuration(slug)
		if err != nil {
			return nil, err
		}
		if !pc.Configured() {
			logger.Warn("project is not configured, its notifications will be skipped",
				zap.String("project", slug))
		}
		projects[slug] = pc
	}

	a := &App{
		cfg:           cfg,
		logger:        logger,
		projects:      projects,
		dispatcher:    dispatcher.New(sender, logger.Named("dispatcher")),
		history:       delivery.NewMemoryStore(cfg.History.MaxEntries),
		pruneInterval: 24 * time.Hour,
	}

	if cfg.Archive.Enabled {
		storage, err := archive.New(archive.Options{
			Type: cfg.Archive.Type,
			Path: cfg.Archive.Path,
			S3: archive.S3Config{
				Bucket:    cfg.Archive.S3.Bucket,
				Endpoint:  cfg.Archive.S3.Endpoint,
				Region:    cfg.Archive.S3.Region,
				AccessKey: cfg.Archive.S3.AccessKey,
				SecretKey: cfg.Archive.S3.SecretKey,
				Prefix:    cfg.Archive.S3.Prefix,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("creating archive: %w", err)
		}
		a.archive = storage
	}

	return a, nil
}

// SetRecorder sets the metrics recorder
func (a *App) SetRecorder(r Recorder) {
	a.recorder = r
	a.dispatcher.SetRecorder(r)
}

// SetArchive replaces the archive backend. A nil storage disables archiving.
func (a *App) SetArchive(s archive.Storage) {
	a.archive = s
}

// HandleEvent dispatches an error event for the project. An event without
// a URL gets a link to its group when link_prefix is configured.
func (a *App) HandleEvent(ctx context.Context, slug string, event core.ErrorEvent, isNew bool) (core.Result, error) {
	cfg, err := a.project(slug)
	if err != nil {
		return core.Result{}, err
	}

	if event.URL == "" {
		event.URL = core.GroupLink(a.cfg.LinkPrefix, slug, event.GroupID)
	}

	result := a.dispatcher.OnEvent(ctx, event, isNew, cfg)
	a.record(ctx, result)
	return result, nil
}

// HandleAlert dispatches an alert for the project.
func (a *App) HandleAlert(ctx context.Context, slug string, alert core.Alert) (core.Result, error) {
	cfg, err := a.project(slug)
	if err != nil {
		return core.Result{}, err
	}

	result := a.dispatcher.OnAlert(ctx, alert, cfg)
	a.record(ctx, result)
	return result, nil
}

// Projects returns the configured project slugs.
func (a *App) Projects() []string {
	return a.cfg.ProjectSlugs()
}

// Project returns the dispatch configuration of a project.
func (a *App) Project(slug string) (core.Configuration, bool) {
	cfg, ok := a.projects[slug]
	return cfg, ok
}

// History returns the delivery history store.
func (a *App) History() delivery.Store {
	return a.history
}

// Archive returns the archive backend, or nil when archiving is disabled.
func (a *App) Archive() archive.Storage {
	return a.archive
}

func (a *App) project(slug string) (core.Configuration, error) {
	cfg, ok := a.projects[slug]
	if !ok {
		return core.Configuration{}, core.WrapError(core.ErrProjectNotFound, fmt.Errorf("project %q", slug))
	}
	return cfg, nil
}

// record stores the result in history and the archive. Archive failures are
// logged and counted; they never change the dispatch result.
func (a *App) record(ctx context.Context, result core.Result) {
	if err := a.history.Save(ctx, result); err != nil {
		a.logger.Error("failed to save delivery", zap.String("id", result.ID), zap.Error(err))
	}

	if a.archive == nil {
		return
	}
	if err := archive.ArchiveResult(ctx, a.archive, result); err != nil {
		a.logger.Error("failed to archive delivery",
			zap.String("id", result.ID),
			zap.String("project", result.Project),
			zap.Error(err),
		)
		if a.recorder != nil {
			a.recorder.RecordArchiveFailure()
		}
	}
}

// Start runs archive maintenance until the context is cancelled. Without an
// archive retention it only waits for shutdown.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.logger.Info("pushrelay starting",
		zap.Int("projects", len(a.projects)),
		zap.Bool("archive", a.archive != nil),
	)

	var tick <-chan time.Time
	if a.archive != nil && a.cfg.Archive.RetentionDays > 0 {
		a.pruneArchive(ctx)
		ticker := time.NewTicker(a.pruneInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("pushrelay shutting down")
			a.mu.Lock()
			a.running = false
			a.mu.Unlock()
			return ctx.Err()
		case <-tick:
			a.pruneArchive(ctx)
		}
	}
}

// Stop stops the maintenance loop
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// PruneArchive removes archived records older than the retention period.
func (a *App) PruneArchive(ctx context.Context) (int, error) {
	if a.archive == nil || a.cfg.Archive.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	return archive.Prune(ctx, a.archive, cutoff)
}

func (a *App) pruneArchive(ctx context.Context) {
	removed, err := a.PruneArchive(ctx)
	if err != nil {
		a.logger.Error("archive prune failed", zap.Error(err))
		return
	}
	if removed > 0 {
		a.logger.Info("archive pruned", zap.Int("removed", removed))
	}
}

// GetStats returns application statistics
func (a *App) GetStats(ctx context.Context) map[string]any {
	a.mu.RLock()
	running := a.running
	a.mu.RUnlock()

	stats := map[string]any{
		"running":  running,
		"projects": len(a.projects),
		"archive":  a.archive != nil,
	}
	for _, outcome := range []core.Outcome{core.OutcomeDelivered, core.OutcomeSkipped, core.OutcomeFailed} {
		n, _ := a.history.Count(ctx, delivery.ListFilter{Outcome: outcome})
		stats[string(outcome)] = n
	}
	return stats
}
