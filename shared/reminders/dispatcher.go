package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DispatchConfig holds configuration for the channel dispatcher.
type DispatchConfig struct {
	// Workers bounds how many users are dispatched in parallel per pass.
	Workers int
	// RateLimiter throttles every outbound send.
	RateLimiter RateLimiterConfig
}

// DefaultDispatchConfig returns the default configuration.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Workers:     10,
		RateLimiter: DefaultRateLimiterConfig(),
	}
}

// DispatchReport summarizes delivery for one user aggregate.
type DispatchReport struct {
	UserID    int64
	Attempted int
	Sent      int
	Failed    int
	// Skipped names why nothing was attempted, empty otherwise.
	Skipped string
}

// Dispatcher delivers a user aggregate to all of the user's push
// subscriptions. Each subscription gets exactly one attempt: a failed
// delivery is logged and recorded, never retried, and the subscription is
// never removed.
type Dispatcher struct {
	push       PushSender
	subs       SubscriptionStore
	deliveries DeliveryRecorder
	limiter    *RateLimiter
	metrics    *Metrics
	logger     zerolog.Logger
	now        func() time.Time

	missingOnce sync.Map // runID -> struct{}
}

// NewDispatcher creates a dispatcher. push may be nil when no signing keys
// are configured; the push channel is then skipped for every run.
func NewDispatcher(
	push PushSender,
	subs SubscriptionStore,
	deliveries DeliveryRecorder,
	limiter *RateLimiter,
	metrics *Metrics,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		push:       push,
		subs:       subs,
		deliveries: deliveries,
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
		now:        time.Now,
	}
}

// Dispatch sends one push payload for agg to every subscription of the user.
func (d *Dispatcher) Dispatch(ctx context.Context, runID string, agg UserAggregate) DispatchReport {
	report := DispatchReport{UserID: agg.UserID}

	if !agg.Profile.PushEnabled {
		report.Skipped = "push_disabled"
		return report
	}
	if d.push == nil {
		report.Skipped = "push_not_configured"
		if _, seen := d.missingOnce.LoadOrStore(runID, struct{}{}); !seen {
			d.logger.Warn().Str("run_id", runID).Err(ErrChannelNotConfigured).
				Str("channel", string(ChannelPush)).
				Msg("push channel skipped for this run")
		}
		return report
	}

	subs, err := d.subs.ListPushSubscriptions(ctx, agg.UserID)
	if err != nil {
		d.logger.Error().Err(err).Str("run_id", runID).Int64("user_id", agg.UserID).
			Msg("failed to list push subscriptions")
		report.Skipped = "subscriptions_unavailable"
		return report
	}
	if len(subs) == 0 {
		report.Skipped = "no_subscriptions"
		return report
	}

	payload, err := BuildPushPayload(agg.UserID, agg.Notifications)
	if err != nil {
		d.logger.Error().Err(err).Str("run_id", runID).Int64("user_id", agg.UserID).Msg("failed to build payload")
		report.Skipped = "payload"
		return report
	}
	body, err := payload.Encode()
	if err != nil {
		d.logger.Error().Err(err).Str("run_id", runID).Int64("user_id", agg.UserID).Msg("failed to encode payload")
		report.Skipped = "payload"
		return report
	}

	primary := agg.Notifications[0]
	results := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub PushSubscription) {
			defer wg.Done()
			results[i] = d.attempt(ctx, runID, agg.UserID, primary, sub, body)
		}(i, sub)
	}
	wg.Wait()

	for _, err := range results {
		report.Attempted++
		if err != nil {
			report.Failed++
		} else {
			report.Sent++
		}
	}
	return report
}

// attempt performs one delivery and emits exactly one log record and one
// delivery record for it.
func (d *Dispatcher) attempt(ctx context.Context, runID string, userID int64, primary DueNotification, sub PushSubscription, body []byte) error {
	start := d.now()

	var err error
	if d.limiter != nil {
		var waited bool
		waited, err = d.limiter.Wait(ctx)
		if waited {
			d.metrics.IncRateLimitWaits()
		}
		if err != nil {
			err = fmt.Errorf("rate limiter: %w", err)
		}
	}
	if err == nil {
		err = d.push.SendPush(ctx, sub, body)
	}
	elapsed := d.now().Sub(start)

	status := DeliveryStatusSent
	if err != nil {
		status = DeliveryStatusFailed
	}

	level := zerolog.InfoLevel
	if err != nil {
		level = zerolog.WarnLevel
	}
	d.logger.WithLevel(level).Err(err).
		Str("run_id", runID).
		Int64("user_id", userID).
		Str("channel", string(ChannelPush)).
		Str("endpoint", sub.Endpoint).
		Str("status", string(status)).
		Int("attempt", 1).
		Dur("duration", elapsed).
		Msg("push delivery attempt")

	d.metrics.IncDelivery(ChannelPush, status)
	d.metrics.ObserveDelivery(ChannelPush, elapsed)

	if d.deliveries != nil {
		rec := DeliveryRecord{
			ID:          uuid.NewString(),
			RunID:       runID,
			UserID:      userID,
			Channel:     ChannelPush,
			Target:      sub.Endpoint,
			EntityType:  primary.Origin,
			EntityID:    primary.EntityID,
			Status:      status,
			AttemptedAt: start,
			Duration:    elapsed,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if recErr := d.deliveries.RecordDelivery(ctx, rec); recErr != nil {
			d.logger.Error().Err(recErr).Str("run_id", runID).Msg("failed to record delivery")
		}
	}

	return err
}

// forgetRun drops the once-per-run bookkeeping for runID.
func (d *Dispatcher) forgetRun(runID string) {
	d.missingOnce.Delete(runID)
}
