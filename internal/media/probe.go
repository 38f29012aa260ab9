package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/dlx/internal/shared"
)

const (
	FFprobeCommand      = "ffprobe"
	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration"
	FFprobeOutputFormat = "csv=p=0"
)

// Processor extracts metadata from a downloaded media file.
type Processor interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// FFProbe implements [Processor] with the ffprobe binary.
type FFProbe struct {
	binary string
	run    runFunc
	logger *log.Logger
}

// NewFFProbe creates a prober for binary, defaulting to ffprobe on PATH.
func NewFFProbe(binary string, logger *log.Logger) *FFProbe {
	if strings.TrimSpace(binary) == "" {
		binary = FFprobeCommand
	}
	return &FFProbe{
		binary: binary,
		run:    execOutput,
		logger: shared.WithLogger(logger, "svc", "media.ffprobe"),
	}
}

// ProbeDuration returns the container duration of path in seconds.
func (f *FFProbe) ProbeDuration(ctx context.Context, path string) (float64, error) {
	output, err := f.run(ctx, f.binary,
		"-v", FFprobeLogLevel,
		"-show_entries", FFprobeShowEntries,
		"-of", FFprobeOutputFormat,
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to run ffprobe on %s: %v", shared.ErrMediaProbe, path, err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to parse duration %q: %v", shared.ErrMediaProbe, durationStr, err)
	}

	f.logger.Debug("probed", "path", path, "duration", duration)
	return duration, nil
}

// SlotProber runs every probe of the wrapped [Processor] while holding a pool slot.
type SlotProber struct {
	pool *SlotPool
	next Processor
}

func NewSlotProber(pool *SlotPool, next Processor) *SlotProber {
	return &SlotProber{pool: pool, next: next}
}

func (s *SlotProber) ProbeDuration(ctx context.Context, path string) (float64, error) {
	var duration float64
	err := s.pool.WithSlot(ctx, func(ctx context.Context) error {
		var err error
		duration, err = s.next.ProbeDuration(ctx, path)
		return err
	})
	return duration, err
}
