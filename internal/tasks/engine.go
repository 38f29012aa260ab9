package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/dlx/internal/media"
	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/services"
	"github.com/desertthunder/dlx/internal/shared"
)

// skipReportInterval is how many skipped items pass between listing progress updates.
const skipReportInterval = 20

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EngineConfig is the configuration for the sync engine.
type EngineConfig struct {
	Store    Store
	Provider services.Provider
	Prober   media.Processor // Optional; nil leaves durations at 0
	Slots    *media.SlotPool // Shared across engines; defaults to a single slot
	Sessions *Registry[*Session]
	Sink     ProgressSink
	Settings Settings
	Sleep    SleepFunc // Cooldown wait, replaceable in tests
	Logger   *log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if c.Slots == nil {
		c.Slots = media.NewSlotPool(1)
	}
	if c.Prober != nil {
		c.Prober = media.NewSlotProber(c.Slots, c.Prober)
	}
	if c.Sessions == nil {
		c.Sessions = NewRegistry[*Session]()
	}
	if c.Sink == nil {
		c.Sink = nopSink{}
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
	c.Logger = shared.WithLogger(c.Logger, "svc", "tasks.Engine")
	return nil
}

// SyncRequest identifies a parent sync and, when run under a task, the task that owns it.
type SyncRequest struct {
	ParentID string
	TaskID   string
	Abort    <-chan struct{} // Stopping the owning task closes this
}

// SyncResult is the terminal outcome of one parent sync.
type SyncResult struct {
	ParentID   string
	TaskID     string
	Status     models.SyncStatus // completed, stopped or failed
	Downloaded int
	Skipped    int
	Failed     int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Engine syncs one parent at a time per parent id: list, dedupe, download in batches.
type Engine struct {
	store    Store
	provider services.Provider
	prober   media.Processor
	slots    *media.SlotPool
	sessions *Registry[*Session]
	sink     ProgressSink
	settings Settings
	sleep    SleepFunc
	logger   *log.Logger
	active   inflight
}

// NewEngine creates a new sync engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		store:    cfg.Store,
		provider: cfg.Provider,
		prober:   cfg.Prober,
		slots:    cfg.Slots,
		sessions: cfg.Sessions,
		sink:     cfg.Sink,
		settings: cfg.Settings,
		sleep:    cfg.Sleep,
		logger:   cfg.Logger,
	}, nil
}

// Ready returns [shared.ErrConfiguration] if no sync can start.
func (e *Engine) Ready() error {
	return e.settings.Validate()
}

// Sync runs a parent sync to completion.
//
// Start guards fail synchronously with [shared.ErrConfiguration] or [shared.ErrAlreadyRunning] and a nil result.
// Afterwards the result is always set; a failed sync also returns its error.
func (e *Engine) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	sess, err := e.begin(req)
	if err != nil {
		return nil, err
	}
	res := e.run(ctx, sess)
	return res, res.Err
}

// Start checks the start guards and then runs the sync in the background.
// The sync outlives ctx cancellation; use [Engine.Stop] to end it.
func (e *Engine) Start(ctx context.Context, req SyncRequest) error {
	sess, err := e.begin(req)
	if err != nil {
		return err
	}
	go e.run(context.WithoutCancel(ctx), sess)
	return nil
}

// Stop requests cancellation of the parent's session. It returns false if none is active.
func (e *Engine) Stop(parentID string) bool {
	sess, ok := e.sessions.Get(parentID)
	if !ok {
		return false
	}
	sess.Stop()
	e.logger.Info("stop requested", "parent", parentID)
	return true
}

// StopAll requests cancellation of every active session.
func (e *Engine) StopAll() {
	for _, sess := range e.sessions.Values() {
		sess.Stop()
	}
}

// Wait blocks until every sync started by this engine has recorded its final status, or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	return e.active.wait(ctx)
}

func (e *Engine) IsRunning(parentID string) bool {
	return e.sessions.Has(parentID)
}

// ActiveCount returns the number of sessions in flight anywhere in the process.
func (e *Engine) ActiveCount() int {
	return e.sessions.Len()
}

// Sessions snapshots every active session.
func (e *Engine) Sessions() []SessionStats {
	sessions := e.sessions.Values()
	stats := make([]SessionStats, 0, len(sessions))
	for _, s := range sessions {
		stats = append(stats, s.Stats())
	}
	return stats
}

func (e *Engine) begin(req SyncRequest) (*Session, error) {
	if err := e.settings.Validate(); err != nil {
		return nil, err
	}
	if req.ParentID == "" {
		return nil, fmt.Errorf("%w: parent id", shared.ErrMissingArgument)
	}

	sess := newSession(req.ParentID, req.TaskID, req.Abort)
	if err := e.sessions.Register(req.ParentID, sess); err != nil {
		return nil, err
	}
	e.active.add()
	return sess, nil
}

// run drives a registered session to a terminal state and deregisters it.
func (e *Engine) run(ctx context.Context, sess *Session) (res *SyncResult) {
	defer e.active.done()
	res = &SyncResult{ParentID: sess.ParentID, TaskID: sess.TaskID, StartedAt: sess.StartedAt}
	logger := e.logger.With("parent", sess.ParentID)
	if sess.TaskID != "" {
		logger = logger.With("task", sess.TaskID)
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}

		phase := PhaseCompleted
		switch {
		case err == nil:
		case errors.Is(err, shared.ErrSessionAborted):
			phase = PhaseStopped
		default:
			phase = PhaseFailed
			res.Err = err
		}

		res.Status = phase.syncStatus()
		res.Downloaded = int(sess.downloaded.Load())
		res.Skipped = int(sess.skipped.Load())
		res.Failed = int(sess.failed.Load())
		res.FinishedAt = time.Now().UTC()

		func() {
			defer e.sessions.Remove(sess.ParentID)
			var at *time.Time
			if phase == PhaseCompleted {
				at = &res.FinishedAt
			}
			if werr := e.store.UpdateParentSyncStatus(context.WithoutCancel(ctx), sess.ParentID, res.Status, at); werr != nil {
				logger.Warn("failed to record sync status", "status", res.Status, "error", werr)
			}
		}()

		e.sink.Publish(syncFinishedUpdate(sess, phase, err))
		switch phase {
		case PhaseFailed:
			logger.Error("sync failed", "error", err, "downloaded", res.Downloaded)
		default:
			logger.Info("sync finished", "status", res.Status,
				"downloaded", res.Downloaded, "skipped", res.Skipped, "failed", res.Failed,
				"elapsed", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
		}
	}()

	err = e.execute(ctx, sess, logger)
	return res
}

func (e *Engine) execute(ctx context.Context, sess *Session, logger *log.Logger) error {
	parent, err := e.store.GetParent(ctx, sess.ParentID)
	if err != nil {
		return fmt.Errorf("failed to load parent: %w", err)
	}
	folder, err := services.SafeName(parent.ExternalID)
	if err != nil {
		return fmt.Errorf("unusable download folder: %w", err)
	}
	if err := e.store.UpdateParentSyncStatus(ctx, parent.ID, models.SyncSyncing, nil); err != nil {
		return fmt.Errorf("failed to mark parent syncing: %w", err)
	}

	limit := parent.EffectiveCap(e.settings.DefaultMaxItems)
	logger.Info("sync started", "account", parent.ExternalID, "cap", limit)
	e.sink.Publish(listingUpdate(sess, parent.DisplayName(), limit))

	queue, err := e.list(ctx, sess, parent, limit)
	if err != nil {
		return err
	}
	if err := e.checkpoint(ctx, sess); err != nil {
		return err
	}

	sess.queued.Store(int64(len(queue)))
	batches := partition(queue, e.settings.DownloadConcurrency)
	e.sink.Publish(batchingUpdate(sess, len(queue), len(batches)))
	logger.Debug("listing finished", "queued", len(queue), "skipped", sess.skipped.Load(), "batches", len(batches))

	dir := filepath.Join(e.settings.DownloadDir, folder)
	for i, batch := range batches {
		if err := e.checkpoint(ctx, sess); err != nil {
			return err
		}

		e.sink.Publish(batchStartUpdate(sess, i+1, len(batches), len(batch)))
		err := e.downloadBatch(ctx, sess, parent, batch, dir, logger)
		e.sink.Publish(batchDoneUpdate(sess, i+1, len(batches)))
		if err != nil {
			return err
		}

		if i < len(batches)-1 {
			if err := e.cooldown(ctx, sess); err != nil {
				return err
			}
		}
	}
	return nil
}

// list pulls pages until the cap is reached or the listing ends, returning the new items in listing order.
func (e *Engine) list(ctx context.Context, sess *Session, parent *models.Parent, limit int) ([]models.ItemDescriptor, error) {
	pager := e.provider.ListItems(ctx, parent.ExternalID, limit)
	seen := make(map[string]struct{})
	var queue []models.ItemDescriptor

	for {
		if err := e.checkpoint(ctx, sess); err != nil {
			return nil, err
		}

		page, err := pager.Next(ctx)
		if errors.Is(err, io.EOF) {
			return queue, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list items for %s: %w", parent.ExternalID, err)
		}

		for _, d := range page {
			if err := e.checkpoint(ctx, sess); err != nil {
				return nil, err
			}
			if d.ID == "" {
				continue
			}
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}

			exists, err := e.store.ItemExists(ctx, d.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to check item %s: %w", d.ID, err)
			}
			if exists {
				if n := sess.skipped.Add(1); n%skipReportInterval == 0 {
					e.sink.Publish(skippedUpdate(sess, int(n)))
				}
				continue
			}

			queue = append(queue, d)
			if limit > 0 && len(queue) >= limit {
				return queue, nil
			}
		}
	}
}

// downloadBatch downloads every item of the batch concurrently and waits for all of them.
// Item failures are counted, not returned. The error is set only when abort stopped further launches.
func (e *Engine) downloadBatch(
	ctx context.Context,
	sess *Session,
	parent *models.Parent,
	batch []models.ItemDescriptor,
	dir string,
	logger *log.Logger,
) error {
	var wg sync.WaitGroup
	var stopped error

	for _, d := range batch {
		if err := e.checkpoint(ctx, sess); err != nil {
			stopped = err
			break
		}

		wg.Add(1)
		go func(d models.ItemDescriptor) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					sess.failed.Add(1)
					logger.Error("item download panicked", "item", d.ID, "panic", r)
				}
			}()

			if err := e.downloadItem(ctx, parent, d, dir, logger); err != nil {
				sess.failed.Add(1)
				logger.Warn("item failed", "item", d.ID, "error", err)
				return
			}
			sess.downloaded.Add(1)
		}(d)
	}

	wg.Wait()
	return stopped
}

// downloadItem fetches the media, probes non-gallery durations and persists the item.
func (e *Engine) downloadItem(ctx context.Context, parent *models.Parent, d models.ItemDescriptor, dir string, logger *log.Logger) error {
	paths, err := e.provider.DownloadItem(ctx, d, dir)
	if err != nil {
		if errors.Is(err, shared.ErrItemDownload) {
			return err
		}
		return fmt.Errorf("%w: %v", shared.ErrItemDownload, err)
	}

	item := models.NewItem(parent.ID, d, paths)
	if e.prober != nil && !d.IsGallery() && len(paths) > 0 {
		duration, err := e.prober.ProbeDuration(ctx, paths[0])
		if err != nil {
			logger.Warn("duration probe failed", "item", d.ID, "path", paths[0], "error", err)
		} else {
			item.DurationSeconds = duration
		}
	}

	if err := e.store.PersistItem(ctx, item); err != nil {
		return fmt.Errorf("%w: persist %s: %v", shared.ErrItemDownload, d.ID, err)
	}
	logger.Debug("item downloaded", "item", d.ID, "files", len(paths), "duration", item.DurationSeconds)
	return nil
}

// cooldown pauses between batches. Abort or ctx cancellation cut the wait short.
func (e *Engine) cooldown(ctx context.Context, sess *Session) error {
	if err := e.checkpoint(ctx, sess); err != nil {
		return err
	}
	d := e.settings.BatchCooldown
	if d <= 0 {
		return nil
	}

	e.sink.Publish(cooldownUpdate(sess, d))
	wctx, cancel := sess.bind(ctx)
	defer cancel()
	_ = e.sleep(wctx, d)
	return e.checkpoint(ctx, sess)
}

// checkpoint returns [shared.ErrSessionAborted] once the session is stopped or ctx is done.
func (e *Engine) checkpoint(ctx context.Context, sess *Session) error {
	if sess.Aborted() {
		return shared.ErrSessionAborted
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrSessionAborted, err)
	}
	return nil
}

// partition splits items into consecutive batches of at most size.
func partition(items []models.ItemDescriptor, size int) [][]models.ItemDescriptor {
	if size < 1 {
		size = 1
	}
	batches := make([][]models.ItemDescriptor, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}
