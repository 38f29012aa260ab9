package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

// ParentSyncer runs one parent sync. Implemented by [Engine].
type ParentSyncer interface {
	Ready() error
	Sync(ctx context.Context, req SyncRequest) (*SyncResult, error)
}

// OrchestratorConfig is the configuration for the task orchestrator.
type OrchestratorConfig struct {
	Store  Store
	Syncer ParentSyncer
	Runs   *Registry[*TaskRun]
	Sink   ProgressSink
	Logger *log.Logger
}

func (c *OrchestratorConfig) defaults() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Syncer == nil {
		return fmt.Errorf("syncer is required")
	}
	if c.Runs == nil {
		c.Runs = NewRegistry[*TaskRun]()
	}
	if c.Sink == nil {
		c.Sink = nopSink{}
	}
	c.Logger = shared.WithLogger(c.Logger, "svc", "tasks.Orchestrator")
	return nil
}

// TaskResult is the terminal outcome of one task run.
type TaskResult struct {
	TaskID     string
	Status     models.TaskStatus // completed or failed
	Cancelled  bool
	Baseline   int // Items already downloaded for the member parents when the run started
	Downloaded int
	Parents    []*SyncResult // One per parent that started a sync, in completion order
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Orchestrator runs tasks by fanning member parents out over a fixed worker pool.
type Orchestrator struct {
	store  Store
	syncer ParentSyncer
	runs   *Registry[*TaskRun]
	sink   ProgressSink
	logger *log.Logger
	active inflight
}

// NewOrchestrator creates a new task orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Orchestrator{
		store:  cfg.Store,
		syncer: cfg.Syncer,
		runs:   cfg.Runs,
		sink:   cfg.Sink,
		logger: cfg.Logger,
	}, nil
}

// Run executes a task to completion.
//
// Start guards fail with a nil result. Afterwards the result is always set; a driver failure also returns its error.
func (o *Orchestrator) Run(ctx context.Context, taskID string) (*TaskResult, error) {
	run, task, err := o.begin(ctx, taskID)
	if err != nil {
		return nil, err
	}
	res := o.execute(ctx, run, task)
	return res, res.Err
}

// Start checks the start guards and then runs the task in the background.
func (o *Orchestrator) Start(ctx context.Context, taskID string) error {
	run, task, err := o.begin(ctx, taskID)
	if err != nil {
		return err
	}
	go o.execute(context.WithoutCancel(ctx), run, task)
	return nil
}

// Stop requests cancellation of a running task. It returns false if the task is not running.
func (o *Orchestrator) Stop(taskID string) bool {
	run, ok := o.runs.Get(taskID)
	if !ok {
		return false
	}
	run.Stop()
	o.logger.Info("stop requested", "task", taskID)
	return true
}

// StopAll requests cancellation of every running task.
func (o *Orchestrator) StopAll() {
	for _, run := range o.runs.Values() {
		run.Stop()
	}
}

// Wait blocks until every task run has recorded its final status, or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	return o.active.wait(ctx)
}

func (o *Orchestrator) IsRunning(taskID string) bool {
	return o.runs.Has(taskID)
}

// Runs snapshots every running task.
func (o *Orchestrator) Runs() []TaskRunStats {
	runs := o.runs.Values()
	stats := make([]TaskRunStats, 0, len(runs))
	for _, r := range runs {
		stats = append(stats, r.Stats())
	}
	return stats
}

func (o *Orchestrator) begin(ctx context.Context, taskID string) (*TaskRun, *models.Task, error) {
	if err := o.syncer.Ready(); err != nil {
		return nil, nil, err
	}

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load task: %w", err)
	}

	run := newTaskRun(task.ID, len(task.ParentIDs))
	if err := o.runs.Register(task.ID, run); err != nil {
		return nil, nil, err
	}
	o.active.add()
	return run, task, nil
}

// execute drives a registered run to a terminal state and deregisters it.
func (o *Orchestrator) execute(ctx context.Context, run *TaskRun, task *models.Task) (res *TaskResult) {
	defer o.active.done()
	res = &TaskResult{TaskID: task.ID, StartedAt: run.StartedAt}
	logger := o.logger.With("task", task.ID)

	var final ProgressUpdate
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("task panicked: %v", r)
		}
		res.Downloaded = int(run.downloaded.Load())
		res.FinishedAt = time.Now().UTC()

		func() {
			defer o.runs.Remove(task.ID)
			if res.Err != nil {
				final = o.fail(ctx, run, res, logger)
			}
		}()
		o.sink.Publish(final)
	}()

	res.Baseline = o.baseline(ctx, task, logger)
	err := o.store.UpdateTask(ctx, task.ID, models.TaskUpdate{
		Status:          models.TaskRunning,
		TotalCount:      res.Baseline,
		DownloadedCount: 0,
	})
	if err != nil {
		res.Err = fmt.Errorf("failed to mark task running: %w", err)
		return res
	}

	logger.Info("task started", "name", task.Name, "parents", len(task.ParentIDs), "concurrency", task.Concurrency)
	o.sink.Publish(taskStartedUpdate(run, task.Name, res.Baseline))

	res.Parents = o.fanOut(ctx, run, task, logger)

	downloaded := int(run.downloaded.Load())
	update := models.TaskUpdate{
		Status:          models.TaskCompleted,
		TotalCount:      res.Baseline + downloaded,
		DownloadedCount: downloaded,
	}
	final = taskUpdate(run, PhaseCompleted, fmt.Sprintf("✓ Task completed: %d downloaded", downloaded))
	if run.Aborted() || ctx.Err() != nil {
		res.Cancelled = true
		update.Status = models.TaskFailed
		update.ErrorMessage = "cancelled"
		final = taskUpdate(run, PhaseCancelled, fmt.Sprintf("Task cancelled: %d downloaded before stop", downloaded))
	}

	if err := o.store.UpdateTask(context.WithoutCancel(ctx), task.ID, update); err != nil {
		res.Err = fmt.Errorf("failed to record task result: %w", err)
		return res
	}

	res.Status = update.Status
	logger.Info("task finished", "status", update.Status, "cancelled", res.Cancelled, "downloaded", downloaded)
	return res
}

// fanOut feeds member parents to task.Concurrency workers until the list ends or the run is stopped.
func (o *Orchestrator) fanOut(ctx context.Context, run *TaskRun, task *models.Task, logger *log.Logger) []*SyncResult {
	workers := min(max(task.Concurrency, 1), len(task.ParentIDs))
	parents := make(chan string)

	var mu sync.Mutex
	var results []*SyncResult

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for parentID := range parents {
				r := o.syncParent(ctx, run, parentID, logger)
				if r != nil {
					mu.Lock()
					results = append(results, r)
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, parentID := range task.ParentIDs {
		select {
		case <-run.abort.ch:
			break feed
		case <-ctx.Done():
			break feed
		case parents <- parentID:
		}
	}
	close(parents)
	wg.Wait()

	return results
}

// syncParent runs one member sync in isolation. Errors count as zero downloads.
func (o *Orchestrator) syncParent(ctx context.Context, run *TaskRun, parentID string, logger *log.Logger) (res *SyncResult) {
	counted := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("parent sync panicked", "parent", parentID, "panic", r)
			res = nil
		}
		if !counted {
			run.finished.Add(1)
		}
	}()

	res, err := o.syncer.Sync(ctx, SyncRequest{ParentID: parentID, TaskID: run.TaskID, Abort: run.abort.ch})
	switch {
	case errors.Is(err, shared.ErrAlreadyRunning):
		logger.Warn("parent already syncing, skipped", "parent", parentID)
	case err != nil:
		logger.Error("parent sync failed", "parent", parentID, "error", err)
	case res != nil:
		run.downloaded.Add(int64(res.Downloaded))
	}

	downloaded := 0
	if err == nil && res != nil {
		downloaded = res.Downloaded
	}
	finished := int(run.finished.Add(1))
	counted = true
	o.sink.Publish(taskParentDoneUpdate(run, finished, parentID, downloaded))
	return res
}

// baseline sums the items already stored for every member parent.
func (o *Orchestrator) baseline(ctx context.Context, task *models.Task, logger *log.Logger) int {
	total := 0
	for _, parentID := range task.ParentIDs {
		n, err := o.store.CountParentItems(ctx, parentID)
		if err != nil {
			logger.Warn("failed to count items", "parent", parentID, "error", err)
			continue
		}
		total += n
	}
	return total
}

func (o *Orchestrator) fail(ctx context.Context, run *TaskRun, res *TaskResult, logger *log.Logger) ProgressUpdate {
	res.Status = models.TaskFailed
	err := o.store.UpdateTask(context.WithoutCancel(ctx), run.TaskID, models.TaskUpdate{
		Status:          models.TaskFailed,
		TotalCount:      res.Baseline + res.Downloaded,
		DownloadedCount: res.Downloaded,
		ErrorMessage:    res.Err.Error(),
	})
	if err != nil {
		logger.Error("failed to record task failure", "error", err)
	}
	logger.Error("task failed", "error", res.Err)
	return taskUpdate(run, PhaseFailed, fmt.Sprintf("✗ Task failed: %v", res.Err))
}
