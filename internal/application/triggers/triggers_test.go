package triggers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/domain/notification"
	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/ports"
)

type fakeProcessor struct {
	mu        sync.Mutex
	sweeps    int
	changes   []string
	changeErr map[string]error
	sweepErr  error
}

func (p *fakeProcessor) ProcessDue(ctx context.Context, todo *entities.TodoItem, now time.Time) (*ports.ProcessResult, error) {
	return &ports.ProcessResult{TodoID: todo.ID}, nil
}

func (p *fakeProcessor) ProcessChange(ctx context.Context, doc, prior *entities.TodoItem, now time.Time) (*ports.ProcessResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, doc.ID)
	if err := p.changeErr[doc.ID]; err != nil {
		return nil, err
	}
	return &ports.ProcessResult{TodoID: doc.ID, Change: notification.ChangeNew}, nil
}

func (p *fakeProcessor) ProcessByID(ctx context.Context, id string, now time.Time) (*ports.ProcessResult, error) {
	return &ports.ProcessResult{TodoID: id}, nil
}

func (p *fakeProcessor) Sweep(ctx context.Context, now time.Time) (*ports.SweepReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweeps++
	if p.sweepErr != nil {
		return nil, p.sweepErr
	}
	return &ports.SweepReport{RunID: "run"}, nil
}

func (p *fakeProcessor) sweepCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sweeps
}

func (p *fakeProcessor) changeIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.changes...)
}

type fakeLease struct {
	held     bool
	released int
}

func (l *fakeLease) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, true, nil
}

type fakeFeed struct {
	mu         sync.Mutex
	events     []ports.ChangeEvent
	checkpoint int64
	saved      []int64
	pendingErr error
	pruned     int
}

func (f *fakeFeed) Pending(ctx context.Context, afterSeq int64, limit int) ([]ports.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	var out []ports.ChangeEvent
	for _, ev := range f.events {
		if ev.Seq > afterSeq && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeFeed) Checkpoint(ctx context.Context, consumer string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkpoint, nil
}

func (f *fakeFeed) SaveCheckpoint(ctx context.Context, consumer string, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, seq)
	if seq > f.checkpoint {
		f.checkpoint = seq
	}
	return nil
}

func (f *fakeFeed) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned++
	return 0, nil
}

func (f *fakeFeed) add(seq int64, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ports.ChangeEvent{Seq: seq, TodoID: id, Operation: "INSERT", Document: &entities.TodoItem{ID: id}})
}

func schedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{Interval: time.Hour, RunOnStart: true, Concurrency: 1, ItemTimeout: time.Second}
}

func feedConfig(batch int) config.ChangeFeedConfig {
	return config.ChangeFeedConfig{Consumer: "notifier", PollInterval: time.Hour, BatchSize: batch, Retention: time.Hour}
}

func TestTimerTickHoldsLease(t *testing.T) {
	proc := &fakeProcessor{}
	lease := &fakeLease{}
	timer := NewTimerTrigger(proc, lease, schedulerConfig(), time.Minute, logger.NewNop())

	if _, err := timer.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if lease.released != 1 || lease.held {
		t.Fatalf("lease not released after sweep")
	}

	lease.held = true
	if _, err := timer.Tick(context.Background()); !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}
	if proc.sweepCount() != 1 {
		t.Fatalf("sweep must not run while the lease is held")
	}
}

func TestTimerWithoutLease(t *testing.T) {
	proc := &fakeProcessor{}
	timer := NewTimerTrigger(proc, nil, schedulerConfig(), 0, logger.NewNop())

	if _, err := timer.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if proc.sweepCount() != 1 {
		t.Fatalf("expected one sweep")
	}
}

func TestTimerRunSweepsOnStartAndStops(t *testing.T) {
	proc := &fakeProcessor{sweepErr: errors.New("store down")}
	timer := NewTimerTrigger(proc, nil, schedulerConfig(), 0, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- timer.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for proc.sweepCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if proc.sweepCount() != 1 {
		t.Fatalf("expected the start-up sweep, got %d", proc.sweepCount())
	}
}

func TestDrainProcessesInOrderAndCheckpoints(t *testing.T) {
	feed := &fakeFeed{}
	for i := int64(1); i <= 5; i++ {
		feed.add(i, string(rune('a'+i-1)))
	}
	feed.events[2].Document = nil
	proc := &fakeProcessor{changeErr: map[string]error{"b": errors.New("transport down")}}
	trig := NewChangeFeedTrigger(proc, feed, nil, feedConfig(2), logger.NewNop())

	if n := trig.Drain(context.Background()); n != 5 {
		t.Fatalf("expected 5 handled, got %d", n)
	}
	ids := proc.changeIDs()
	want := []string{"a", "b", "d", "e"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
	if trig.Cursor() != 5 || feed.checkpoint != 5 {
		t.Fatalf("cursor %d checkpoint %d, want 5", trig.Cursor(), feed.checkpoint)
	}
	if len(feed.saved) != 3 {
		t.Fatalf("expected a checkpoint per batch, got %v", feed.saved)
	}
}

func TestDrainStopsOnReadFailure(t *testing.T) {
	feed := &fakeFeed{pendingErr: errors.New("conn reset")}
	trig := NewChangeFeedTrigger(&fakeProcessor{}, feed, nil, feedConfig(10), logger.NewNop())

	if n := trig.Drain(context.Background()); n != 0 || len(feed.saved) != 0 {
		t.Fatalf("nothing should be handled or saved")
	}
}

func TestChangeFeedRunResumesFromCheckpoint(t *testing.T) {
	feed := &fakeFeed{checkpoint: 2}
	feed.add(1, "old1")
	feed.add(2, "old2")
	feed.add(3, "new")

	notify := make(chan *pq.Notification, 1)
	proc := &fakeProcessor{}
	trig := NewChangeFeedTrigger(proc, feed, notify, feedConfig(10), logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- trig.Run(ctx) }()

	waitFor(t, func() bool { return len(proc.changeIDs()) == 1 })

	feed.add(4, "pushed")
	notify <- &pq.Notification{Channel: "todo_changes", Extra: "4"}
	waitFor(t, func() bool { return len(proc.changeIDs()) == 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	ids := proc.changeIDs()
	if ids[0] != "new" || ids[1] != "pushed" {
		t.Fatalf("unexpected processing order %v", ids)
	}
}

func TestPruneHonorsRetention(t *testing.T) {
	feed := &fakeFeed{}
	cfg := feedConfig(10)
	trig := NewChangeFeedTrigger(&fakeProcessor{}, feed, nil, cfg, logger.NewNop())
	trig.prune(context.Background())

	cfg.Retention = 0
	NewChangeFeedTrigger(&fakeProcessor{}, feed, nil, cfg, logger.NewNop()).prune(context.Background())

	if feed.pruned != 1 {
		t.Fatalf("expected exactly one prune, got %d", feed.pruned)
	}
}

type fakeServer struct {
	stop     chan struct{}
	startErr error
	shutdown bool
}

func (s *fakeServer) Start(address string) error {
	if s.startErr != nil {
		return s.startErr
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(ctx context.Context) error {
	s.shutdown = true
	close(s.stop)
	return nil
}

func TestHTTPTriggerShutsDownOnCancel(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewHTTPTrigger(srv, ":0").Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !srv.shutdown {
		t.Fatalf("server not shut down")
	}
}

func TestRunAllStopsOnFirstFailure(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{}), startErr: errors.New("address in use")}
	timer := NewTimerTrigger(&fakeProcessor{}, nil, schedulerConfig(), 0, logger.NewNop())

	err := RunAll(context.Background(), NewHTTPTrigger(srv, ":0"), timer)
	if err == nil || err.Error() != "http trigger: address in use" {
		t.Fatalf("unexpected error %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
