package triggers

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/ports"
)

const pruneInterval = time.Hour

// ChangeFeedTrigger consumes todo_changes in sequence order. It wakes on
// LISTEN notifications and polls as a fallback. Progress is checkpointed
// per consumer, so delivery is at-least-once across restarts.
type ChangeFeedTrigger struct {
	processor     ports.Processor
	feed          ports.ChangeFeedRepository
	cfg           config.ChangeFeedConfig
	notifications <-chan *pq.Notification
	logger        *logger.Logger
	now           func() time.Time

	cursor int64
}

// NewChangeFeedTrigger creates a new change feed trigger. notifications may
// be nil, in which case the trigger only polls.
func NewChangeFeedTrigger(processor ports.Processor, feed ports.ChangeFeedRepository, notifications <-chan *pq.Notification, cfg config.ChangeFeedConfig, logger *logger.Logger) *ChangeFeedTrigger {
	return &ChangeFeedTrigger{
		processor:     processor,
		feed:          feed,
		cfg:           cfg,
		notifications: notifications,
		logger:        logger.WithComponent("change_feed_trigger"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (t *ChangeFeedTrigger) Name() string { return "change_feed" }

func (t *ChangeFeedTrigger) Run(ctx context.Context) error {
	cursor, err := t.feed.Checkpoint(ctx, t.cfg.Consumer)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	t.cursor = cursor
	t.logger.Infow("Change feed trigger started", "consumer", t.cfg.Consumer, "cursor", cursor)

	t.Drain(ctx)

	poll := time.NewTicker(t.cfg.PollInterval)
	defer poll.Stop()
	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Change feed trigger stopped")
			return nil
		case n, ok := <-t.notifications:
			if !ok {
				t.notifications = nil
				t.logger.Warn("Notification channel closed, falling back to polling")
				continue
			}
			// A nil notification follows a reconnect; changes may have been missed.
			if n != nil {
				t.logger.Debugw("Change notification", "seq", n.Extra)
			}
			t.Drain(ctx)
		case <-poll.C:
			t.Drain(ctx)
		case <-prune.C:
			t.prune(ctx)
		}
	}
}

// Drain processes every pending change after the cursor. Each change is
// handled in isolation; only a failed read stops the drain early.
func (t *ChangeFeedTrigger) Drain(ctx context.Context) int {
	handled := 0
	for ctx.Err() == nil {
		events, err := t.feed.Pending(ctx, t.cursor, t.cfg.BatchSize)
		if err != nil {
			t.logger.WithError(err).Error("Failed to read change feed")
			return handled
		}
		if len(events) == 0 {
			return handled
		}

		for _, ev := range events {
			t.handle(ctx, ev)
			t.cursor = ev.Seq
			handled++
		}

		if err := t.feed.SaveCheckpoint(ctx, t.cfg.Consumer, t.cursor); err != nil {
			t.logger.WithError(err).Errorw("Failed to save checkpoint", "cursor", t.cursor)
		}

		if len(events) < t.cfg.BatchSize {
			return handled
		}
	}
	return handled
}

// Cursor returns the last sequence handled
func (t *ChangeFeedTrigger) Cursor() int64 {
	return t.cursor
}

func (t *ChangeFeedTrigger) handle(ctx context.Context, ev ports.ChangeEvent) {
	log := t.logger.WithTodo(ev.TodoID).WithFields("seq", ev.Seq, "operation", ev.Operation)
	if ev.Document == nil {
		log.Warn("Skipping change with undecodable document")
		return
	}

	result, err := t.processor.ProcessChange(ctx, ev.Document, ev.Prior, t.now())
	if err != nil {
		log.WithError(err).Error("Failed to process change")
		return
	}
	log.Debugw("Change processed", "change", result.Change, "kind", result.Kind, "sent", result.Sent)
}

func (t *ChangeFeedTrigger) prune(ctx context.Context) {
	if t.cfg.Retention <= 0 {
		return
	}
	n, err := t.feed.Prune(ctx, t.now().Add(-t.cfg.Retention))
	if err != nil {
		t.logger.WithError(err).Warn("Failed to prune change feed")
		return
	}
	if n > 0 {
		t.logger.Infow("Pruned change feed", "deleted", n)
	}
}

// NewListener opens a LISTEN connection on channel.
func NewListener(dsn, channel string, log *logger.Logger) (*pq.Listener, error) {
	log = log.WithComponent("pq_listener")
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Debug("Listener connected")
		case pq.ListenerEventDisconnected:
			log.Warnw("Listener disconnected", "error", errString(err))
		case pq.ListenerEventReconnected:
			log.Info("Listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Warnw("Listener connection attempt failed", "error", errString(err))
		}
	})

	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen on %s: %w", channel, err)
	}
	return listener, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
