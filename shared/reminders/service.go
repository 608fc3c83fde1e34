package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunReport summarizes one due pass.
type RunReport struct {
	RunID            string
	Due              int
	Users            int
	Attempted        int
	Sent             int
	Failed           int
	Mutated          int
	MutationFailures int
	Duration         time.Duration
}

// Service runs the due pass: resolve, aggregate per user, dispatch, then
// update every fired entity. It owns no timer; callers trigger ProcessDue.
type Service struct {
	config     DispatchConfig
	resolver   *Resolver
	profiles   ProfileStore
	dispatcher *Dispatcher
	items      ItemStore
	reminders  ReminderStore
	metrics    *Metrics
	logger     zerolog.Logger
}

// NewService creates a due-pass service.
func NewService(
	config DispatchConfig,
	resolver *Resolver,
	profiles ProfileStore,
	dispatcher *Dispatcher,
	items ItemStore,
	reminders ReminderStore,
	metrics *Metrics,
	logger zerolog.Logger,
) *Service {
	if config.Workers <= 0 {
		config.Workers = DefaultDispatchConfig().Workers
	}
	return &Service{
		config:     config,
		resolver:   resolver,
		profiles:   profiles,
		dispatcher: dispatcher,
		items:      items,
		reminders:  reminders,
		metrics:    metrics,
		logger:     logger.With().Str("component", "due-pass").Logger(),
	}
}

// ProcessDue delivers everything due at now. Only a failure to read the due
// set is returned; per-user and per-entity failures are logged and counted.
func (s *Service) ProcessDue(ctx context.Context, now time.Time) (RunReport, error) {
	start := time.Now()
	report := RunReport{RunID: uuid.NewString()}
	defer s.dispatcher.forgetRun(report.RunID)

	due, err := s.resolver.Resolve(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", report.RunID).Msg("failed to resolve due notifications")
		return report, err
	}
	report.Due = len(due)
	s.metrics.SetDue(len(due))
	if len(due) == 0 {
		report.Duration = time.Since(start)
		return report, nil
	}

	aggs := Aggregate(ctx, s.profiles, due, s.logger)
	report.Users = len(aggs)

	s.logger.Info().
		Str("run_id", report.RunID).
		Int("due", report.Due).
		Int("users", report.Users).
		Msg("processing due notifications")

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.config.Workers)
	)

	for _, agg := range aggs {
		select {
		case <-ctx.Done():
			s.logger.Warn().Str("run_id", report.RunID).Msg("due pass interrupted")
			wg.Wait()
			report.Duration = time.Since(start)
			return report, nil
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(agg UserAggregate) {
			defer wg.Done()
			defer func() { <-sem }()

			dr := s.dispatcher.Dispatch(ctx, report.RunID, agg)
			mutated, failed := s.mutate(ctx, report.RunID, agg.Notifications)

			mu.Lock()
			report.Attempted += dr.Attempted
			report.Sent += dr.Sent
			report.Failed += dr.Failed
			report.Mutated += mutated
			report.MutationFailures += failed
			mu.Unlock()
		}(agg)
	}
	wg.Wait()

	report.Duration = time.Since(start)
	s.logger.Info().
		Str("run_id", report.RunID).
		Int("attempted", report.Attempted).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("mutated", report.Mutated).
		Int("mutation_failures", report.MutationFailures).
		Dur("duration", report.Duration).
		Msg("due pass finished")

	return report, nil
}

// mutate applies the post-fire update to each entity whether or not the
// delivery succeeded, so nothing fires twice.
func (s *Service) mutate(ctx context.Context, runID string, ns []DueNotification) (mutated, failed int) {
	for _, n := range ns {
		if err := s.mutateOne(ctx, n); err != nil {
			failed++
			s.metrics.IncMutationFailure(n.Origin)
			s.logger.Error().Err(err).
				Str("run_id", runID).
				Int64("user_id", n.UserID).
				Str("origin", string(n.Origin)).
				Int64("entity_id", n.EntityID).
				Msg("failed to update fired entity")
			continue
		}
		mutated++
	}
	return mutated, failed
}

func (s *Service) mutateOne(ctx context.Context, n DueNotification) error {
	switch n.Origin {
	case OriginItem:
		return s.items.SetItemReminder(ctx, n.UserID, n.EntityID, nil)
	case OriginReminder:
		next, ok := Advance(n.ScheduledAt, n.Recurrence)
		if !ok {
			return s.reminders.DeleteReminder(ctx, n.UserID, n.EntityID)
		}
		return s.reminders.RescheduleReminder(ctx, n.UserID, n.EntityID, next)
	default:
		return fmt.Errorf("unknown origin %q", n.Origin)
	}
}
