package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
	"github.com/desertthunder/dlx/internal/tasks"
)

// Syncer runs parent syncs. Implemented by [tasks.Engine].
type Syncer interface {
	Sync(ctx context.Context, req tasks.SyncRequest) (*tasks.SyncResult, error)
	IsRunning(parentID string) bool
	ActiveCount() int
}

// TaskRunner runs tasks. Implemented by [tasks.Orchestrator].
type TaskRunner interface {
	Run(ctx context.Context, taskID string) (*tasks.TaskResult, error)
	IsRunning(taskID string) bool
}

// Store loads scheduled entities and records task runs.
type Store interface {
	ListAutoSyncParents(ctx context.Context) ([]*models.Parent, error)
	ListAutoSyncTasks(ctx context.Context) ([]*models.Task, error)
	SetTaskLastRun(ctx context.Context, id string, at time.Time) error
}

// Kind distinguishes parent entries from task entries.
type Kind string

const (
	KindParent Kind = "parent"
	KindTask   Kind = "task"
)

// Entry describes one registered schedule.
type Entry struct {
	Kind     Kind      `json:"kind"`
	ID       string    `json:"id"`
	CronExpr string    `json:"cron_expr"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitzero"`
}

// ValidateCronExpression checks expr against the standard 5-field syntax.
func ValidateCronExpression(expr string) error {
	_, err := parse(expr)
	return err
}

// NextFires returns the next n activation times of expr after from.
func NextFires(expr string, from time.Time, n int) ([]time.Time, error) {
	sched, err := parse(expr)
	if err != nil {
		return nil, err
	}
	fires := make([]time.Time, 0, max(n, 0))
	for t := from; len(fires) < n; {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		fires = append(fires, t)
	}
	return fires, nil
}

func parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty cron expression", shared.ErrInvalidSchedule)
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", shared.ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// Config is the configuration for the scheduler.
type Config struct {
	Store    Store
	Syncer   Syncer
	Runner   TaskRunner
	Location *time.Location
	Logger   *log.Logger
}

func (c *Config) defaults() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Syncer == nil {
		return fmt.Errorf("syncer is required")
	}
	if c.Runner == nil {
		return fmt.Errorf("task runner is required")
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	c.Logger = shared.WithLogger(c.Logger, "svc", "scheduler")
	return nil
}

type registration struct {
	entryID cron.EntryID
	expr    string
}

// Scheduler owns the cron loop and the parent and task schedule registries.
type Scheduler struct {
	cron     *cron.Cron
	store    Store
	syncer   Syncer
	runner   TaskRunner
	location *time.Location
	logger   *log.Logger

	// ctx is handed to every fire and cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	parents map[string]registration
	tasks   map[string]registration
	started bool
}

// New creates a stopped scheduler. [Scheduler.Init] loads schedules and starts it.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cl := cronLogger{cfg.Logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		store:    cfg.Store,
		syncer:   cfg.Syncer,
		runner:   cfg.Runner,
		location: cfg.Location,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		parents:  make(map[string]registration),
		tasks:    make(map[string]registration),
	}, nil
}

// Init schedules every auto-sync parent and auto-run task in the store, then starts the cron loop.
func (s *Scheduler) Init(ctx context.Context) error {
	parents, err := s.store.ListAutoSyncParents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled parents: %w", err)
	}
	for _, p := range parents {
		s.ScheduleParent(p)
	}

	taskList, err := s.store.ListAutoSyncTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled tasks: %w", err)
	}
	for _, t := range taskList {
		s.ScheduleTask(t)
	}

	s.Start()
	nParents, nTasks := s.counts()
	s.logger.Info("scheduler started", "parents", nParents, "tasks", nTasks)
	return nil
}

func (s *Scheduler) counts() (parents, tasks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parents), len(s.tasks)
}

// Start runs the cron loop. Calling it again is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// ScheduleParent registers or replaces the parent's entry.
// A disabled schedule unschedules the parent; an invalid one is logged and ignored.
func (s *Scheduler) ScheduleParent(p *models.Parent) {
	if !p.Schedule.Enabled || strings.TrimSpace(p.Schedule.CronExpr) == "" {
		s.UnscheduleParent(p.ID)
		return
	}

	sched, err := parse(p.Schedule.CronExpr)
	if err != nil {
		s.logger.Warn("invalid parent schedule ignored", "parent", p.ID, "error", err)
		return
	}

	id := p.ID
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(s.parents, id, p.Schedule.CronExpr, sched, func() { s.fireParent(id) })
	s.logger.Debug("parent scheduled", "parent", id, "cron", p.Schedule.CronExpr)
}

// ScheduleTask registers or replaces the task's entry.
// A disabled schedule unschedules the task; an invalid one is logged and ignored.
func (s *Scheduler) ScheduleTask(t *models.Task) {
	if !t.Schedule.Enabled || strings.TrimSpace(t.Schedule.CronExpr) == "" {
		s.UnscheduleTask(t.ID)
		return
	}

	sched, err := parse(t.Schedule.CronExpr)
	if err != nil {
		s.logger.Warn("invalid task schedule ignored", "task", t.ID, "error", err)
		return
	}

	id := t.ID
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(s.tasks, id, t.Schedule.CronExpr, sched, func() { s.fireTask(id) })
	s.logger.Debug("task scheduled", "task", id, "cron", t.Schedule.CronExpr)
}

// replace must be called with s.mu held.
func (s *Scheduler) replace(reg map[string]registration, id, expr string, sched cron.Schedule, fn func()) {
	if old, ok := reg[id]; ok {
		s.cron.Remove(old.entryID)
	}
	reg[id] = registration{entryID: s.cron.Schedule(sched, cron.FuncJob(fn)), expr: expr}
}

// UnscheduleParent removes the parent's entry if present.
func (s *Scheduler) UnscheduleParent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.parents[id]; ok {
		s.cron.Remove(r.entryID)
		delete(s.parents, id)
		s.logger.Debug("parent unscheduled", "parent", id)
	}
}

// UnscheduleTask removes the task's entry if present.
func (s *Scheduler) UnscheduleTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.tasks[id]; ok {
		s.cron.Remove(r.entryID)
		delete(s.tasks, id)
		s.logger.Debug("task unscheduled", "task", id)
	}
}

// Entries lists every registered schedule, parents first, then by id.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.parents)+len(s.tasks))
	collect := func(kind Kind, reg map[string]registration) {
		for id, r := range reg {
			ce := s.cron.Entry(r.entryID)
			next := ce.Next
			if next.IsZero() && ce.Schedule != nil {
				// The cron loop fills Next only once it is running.
				next = ce.Schedule.Next(time.Now().In(s.location))
			}
			entries = append(entries, Entry{Kind: kind, ID: id, CronExpr: r.expr, Next: next, Prev: ce.Prev})
		}
	}
	collect(KindParent, s.parents)
	collect(KindTask, s.tasks)

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == KindParent
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Shutdown removes every entry, cancels running fires and waits for them until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id, r := range s.parents {
		s.cron.Remove(r.entryID)
		delete(s.parents, id)
	}
	for id, r := range s.tasks {
		s.cron.Remove(r.entryID)
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// fireParent runs a scheduled sync unless the parent, or any other parent, is already syncing.
func (s *Scheduler) fireParent(parentID string) {
	logger := s.logger.With("parent", parentID)

	if s.syncer.IsRunning(parentID) {
		logger.Info("scheduled sync skipped: parent already syncing")
		return
	}
	if n := s.syncer.ActiveCount(); n > 0 {
		logger.Info("scheduled sync skipped: another sync is active", "active", n)
		return
	}

	res, err := s.syncer.Sync(s.ctx, tasks.SyncRequest{ParentID: parentID})
	if err != nil {
		logger.Error("scheduled sync failed", "error", err)
		return
	}
	logger.Info("scheduled sync finished", "status", res.Status, "downloaded", res.Downloaded, "skipped", res.Skipped)
}

// fireTask runs a scheduled task unless it is already running, recording the run time on success.
func (s *Scheduler) fireTask(taskID string) {
	logger := s.logger.With("task", taskID)

	if s.runner.IsRunning(taskID) {
		logger.Info("scheduled run skipped: task already running")
		return
	}

	res, err := s.runner.Run(s.ctx, taskID)
	if err != nil {
		logger.Error("scheduled run failed", "error", err)
		return
	}
	if res.Status != models.TaskCompleted {
		logger.Warn("scheduled run did not complete", "status", res.Status, "cancelled", res.Cancelled)
		return
	}

	if err := s.store.SetTaskLastRun(context.WithoutCancel(s.ctx), taskID, res.FinishedAt); err != nil {
		logger.Error("failed to record last run", "error", err)
		return
	}
	logger.Info("scheduled run finished", "downloaded", res.Downloaded)
}

// cronLogger adapts a charmbracelet logger to [cron.Logger].
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
