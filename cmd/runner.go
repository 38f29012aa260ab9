package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/dlx/internal/media"
	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/repositories"
	"github.com/desertthunder/dlx/internal/services"
	"github.com/desertthunder/dlx/internal/shared"
	"github.com/desertthunder/dlx/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and sync stack are opened on first use so config-only commands work without them.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer

	db           *sql.DB
	store        *repositories.Store
	provider     services.Provider
	prober       media.Processor
	slots        *media.SlotPool
	broadcaster  *tasks.Broadcaster
	engine       *tasks.Engine
	orchestrator *tasks.Orchestrator
	sleep        tasks.SleepFunc
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB           // Optional; opened from Config.Database otherwise
	Provider   services.Provider // Optional; an HTTP provider is built from the credentials otherwise
	Prober     media.Processor   // Optional; ffprobe otherwise
	Sleep      tasks.SleepFunc   // Optional cooldown override
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		logger:      opts.Logger,
		output:      opts.Output,
		db:          opts.DB,
		provider:    opts.Provider,
		prober:      opts.Prober,
		broadcaster: tasks.NewBroadcaster(256),
		sleep:       opts.Sleep,
	}
}

// SetLogger swaps the logger before the sync stack is built.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Before loads the configuration named by --config. A missing file keeps the defaults.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	r.configPath = cmd.String("config")
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return ctx, nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return ctx, fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
	}
	r.config = config
	return ctx, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, parentCommand, taskCommand, syncCommand, watchCommand, runCommand,
		itemsCommand, scheduleCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openStore opens the database and repositories.
func (r *Runner) openStore() (*repositories.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	if r.db == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		r.db = db
	}
	r.store = repositories.NewStore(r.db)
	return r.store, nil
}

// openEngine builds the sync engine and orchestrator on top of the store.
func (r *Runner) openEngine() error {
	if r.engine != nil {
		return nil
	}
	store, err := r.openStore()
	if err != nil {
		return err
	}
	if err := r.config.Sync.Validate(); err != nil {
		return err
	}

	if r.provider == nil {
		provider, err := services.NewHTTPProvider(r.config.Credentials.Provider, r.config.Sync.RequestsPerSecond, r.logger)
		if err != nil {
			return fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
		}
		r.provider = provider
	}
	if r.prober == nil {
		r.prober = media.NewFFProbe(r.config.Media.FFprobePath, r.logger)
	}
	r.slots = media.NewSlotPool(r.config.Sync.ProbeSlots)

	engine, err := tasks.NewEngine(tasks.EngineConfig{
		Store:    store,
		Provider: r.provider,
		Prober:   r.prober,
		Slots:    r.slots,
		Sink:     r.broadcaster,
		Settings: tasks.SettingsFromConfig(r.config),
		Sleep:    r.sleep,
		Logger:   r.logger,
	})
	if err != nil {
		return err
	}

	orchestrator, err := tasks.NewOrchestrator(tasks.OrchestratorConfig{
		Store:  store,
		Syncer: engine,
		Sink:   r.broadcaster,
		Logger: r.logger,
	})
	if err != nil {
		return err
	}

	r.engine, r.orchestrator = engine, orchestrator
	return nil
}

// Close stops active work and releases the database.
func (r *Runner) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := r.drain(ctx); err != nil {
		r.logger.Warn("active work did not finish before shutdown", "error", err)
	}
	r.broadcaster.Close()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// drain stops every task run and sync, then waits for their final status writes.
func (r *Runner) drain(ctx context.Context) error {
	if r.orchestrator != nil {
		r.orchestrator.StopAll()
	}
	if r.engine != nil {
		r.engine.StopAll()
	}
	if r.orchestrator != nil {
		if err := r.orchestrator.Wait(ctx); err != nil {
			return err
		}
	}
	if r.engine != nil {
		return r.engine.Wait(ctx)
	}
	return nil
}

// resolveParent accepts either a parent id or its external account id.
func (r *Runner) resolveParent(ctx context.Context, ref string) (*models.Parent, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: parent id or account is required", shared.ErrMissingArgument)
	}
	store, err := r.openStore()
	if err != nil {
		return nil, err
	}
	p, err := store.Parents.Get(ctx, ref)
	if errors.Is(err, shared.ErrNotFound) {
		return store.Parents.GetByExternalID(ctx, ref)
	}
	return p, err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
