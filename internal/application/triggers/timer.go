package triggers

import (
	"context"
	"errors"
	"time"

	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/ports"
)

// ErrSweepInProgress is returned when another run holds the sweep lease
var ErrSweepInProgress = errors.New("sweep already in progress")

const sweepLease = "sweep"

// TimerTrigger runs a full sweep on a fixed interval
type TimerTrigger struct {
	processor  ports.Processor
	lease      ports.Lease
	interval   time.Duration
	leaseTTL   time.Duration
	runOnStart bool
	logger     *logger.Logger
	now        func() time.Time
}

// NewTimerTrigger creates a new timer trigger. lease may be nil.
func NewTimerTrigger(processor ports.Processor, lease ports.Lease, cfg config.SchedulerConfig, leaseTTL time.Duration, logger *logger.Logger) *TimerTrigger {
	if leaseTTL <= 0 {
		leaseTTL = cfg.Interval
	}
	return &TimerTrigger{
		processor:  processor,
		lease:      lease,
		interval:   cfg.Interval,
		leaseTTL:   leaseTTL,
		runOnStart: cfg.RunOnStart,
		logger:     logger.WithComponent("timer_trigger"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (t *TimerTrigger) Name() string { return "timer" }

func (t *TimerTrigger) Run(ctx context.Context) error {
	t.logger.Infow("Timer trigger started", "interval", t.interval.String())

	if t.runOnStart {
		t.tick(ctx)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Timer trigger stopped")
			return nil
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// Tick runs one sweep now, unless another instance holds the lease.
func (t *TimerTrigger) Tick(ctx context.Context) (*ports.SweepReport, error) {
	if t.lease != nil {
		release, ok, err := t.lease.Acquire(ctx, sweepLease, t.leaseTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrSweepInProgress
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				t.logger.WithError(err).Warn("Failed to release sweep lease")
			}
		}()
	}

	return t.processor.Sweep(ctx, t.now())
}

func (t *TimerTrigger) tick(ctx context.Context) {
	_, err := t.Tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSweepInProgress):
		t.logger.Info("Sweep skipped, lease held elsewhere")
	default:
		t.logger.WithError(err).Error("Sweep failed")
	}
}
