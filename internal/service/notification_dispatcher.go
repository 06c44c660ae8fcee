package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/observability"
	"github.com/noah-isme/judging-integrity-api/internal/repository"
)

// DispatcherConfig tunes the outbox dispatcher.
type DispatcherConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// ClaimTTL is how long a claimed batch stays invisible to other
	// dispatchers before it can be picked up again.
	ClaimTTL time.Duration
}

// NotificationDispatcher drains pending outbox rows to the configured sinks.
// Delivery happens after the originating transaction commits, so a sink
// failure never rolls back a lock or unlock.
type NotificationDispatcher struct {
	repo   repository.NotificationRepository
	sinks  []NotificationSink
	cfg    DispatcherConfig
	kick   chan struct{}
	mu     sync.Mutex
	logger zerolog.Logger
	now    func() time.Time
}

// NewNotificationDispatcher constructs a dispatcher over the given sinks.
func NewNotificationDispatcher(repo repository.NotificationRepository, sinks []NotificationSink, cfg DispatcherConfig, logger zerolog.Logger) *NotificationDispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = time.Minute
	}

	return &NotificationDispatcher{
		repo:   repo,
		sinks:  sinks,
		cfg:    cfg,
		kick:   make(chan struct{}, 1),
		logger: logger.With().Str("component", "notification_dispatcher").Logger(),
		now:    time.Now,
	}
}

// Kick requests an immediate drain without blocking the caller.
func (d *NotificationDispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Start runs the drain loop until ctx is cancelled.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-d.kick:
			}

			if _, err := d.DispatchPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error().Err(err).Msg("failed to drain notification outbox")
			}
		}
	}()
}

// DispatchPending delivers one batch of pending rows and returns how many
// were marked dispatched.
func (d *NotificationDispatcher) DispatchPending(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending, err := d.repo.ClaimPending(ctx, d.cfg.BatchSize, d.now().UTC(), d.cfg.ClaimTTL)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, row := range pending {
		notification := dto.NewNotificationResponse(row)
		delivered, failures := d.deliver(ctx, notification, row.DeliveredSinks)
		if len(failures) > 0 {
			reason := strings.Join(failures, "; ")
			if err := d.repo.RecordFailure(ctx, row.ID, reason, delivered, d.cfg.MaxAttempts); err != nil {
				return dispatched, err
			}
			observability.NotificationsDispatched().WithLabelValues("failed").Inc()
			d.logger.Warn().Uint("notification_id", row.ID).Str("reason", reason).Msg("notification delivery failed")
			continue
		}

		if err := d.repo.MarkDispatched(ctx, row.ID, d.now().UTC()); err != nil {
			return dispatched, err
		}
		observability.NotificationsDispatched().WithLabelValues("dispatched").Inc()
		dispatched++
	}

	return dispatched, nil
}

// deliver sends the notification to every sink not already in delivered and
// returns the updated delivered set alongside the failures.
func (d *NotificationDispatcher) deliver(ctx context.Context, notification dto.NotificationResponse, delivered []string) ([]string, []string) {
	done := append([]string(nil), delivered...)
	var failures []string
	for _, sink := range d.sinks {
		if slices.Contains(done, sink.Name()) {
			continue
		}
		if err := sink.Deliver(ctx, notification); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", sink.Name(), err))
			continue
		}
		done = append(done, sink.Name())
	}
	return done, failures
}
