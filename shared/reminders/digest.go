package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Digest outcomes, also used as metric labels.
const (
	DigestSent           = "sent"
	DigestSkippedSameDay = "skipped_same_day"
	DigestSkippedEmpty   = "skipped_empty"
	DigestFailed         = "failed"
)

// DigestConfig holds configuration for the daily digest.
type DigestConfig struct {
	// Timezone decides what "the same calendar day" means.
	Timezone string
	// Lookahead bounds upcoming meetings and reminders.
	Lookahead time.Duration
	// Lookback bounds recently saved items.
	Lookback time.Duration
	// MaxEntries caps each digest section.
	MaxEntries int
	// Subject is the email subject line.
	Subject string
}

// DefaultDigestConfig returns the default configuration.
func DefaultDigestConfig() DigestConfig {
	return DigestConfig{
		Timezone:   "UTC",
		Lookahead:  24 * time.Hour,
		Lookback:   24 * time.Hour,
		MaxEntries: 10,
		Subject:    "Your daily digest",
	}
}

// DigestReport summarizes one digest pass.
type DigestReport struct {
	Recipients     int
	Sent           int
	SkippedSameDay int
	SkippedEmpty   int
	Failed         int
}

// DigestContent is what one user's digest lists.
type DigestContent struct {
	Meetings  []DigestEntry
	Reminders []DigestEntry
	Items     []DigestEntry
}

// Empty reports whether there is nothing worth sending.
func (c DigestContent) Empty() bool {
	return len(c.Meetings) == 0 && len(c.Reminders) == 0 && len(c.Items) == 0
}

// DigestService sends at most one digest email per user per calendar day.
type DigestService struct {
	config   DigestConfig
	profiles ProfileStore
	source   DigestSource
	email    EmailSender
	records  DeliveryRecorder
	location *time.Location
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewDigestService creates a digest service. email may be nil when SMTP is
// not configured; every pass is then skipped.
func NewDigestService(
	config DigestConfig,
	profiles ProfileStore,
	source DigestSource,
	email EmailSender,
	records DeliveryRecorder,
	metrics *Metrics,
	logger zerolog.Logger,
) (*DigestService, error) {
	def := DefaultDigestConfig()
	if config.Timezone == "" {
		config.Timezone = def.Timezone
	}
	if config.Lookahead <= 0 {
		config.Lookahead = def.Lookahead
	}
	if config.Lookback <= 0 {
		config.Lookback = def.Lookback
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = def.MaxEntries
	}
	if config.Subject == "" {
		config.Subject = def.Subject
	}

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load digest timezone %q: %w", config.Timezone, err)
	}

	return &DigestService{
		config:   config,
		profiles: profiles,
		source:   source,
		email:    email,
		records:  records,
		location: loc,
		metrics:  metrics,
		logger:   logger.With().Str("component", "digest").Logger(),
	}, nil
}

// SendDailyDigests runs one digest pass for every email-enabled user.
// The sent marker is written only after the send succeeds, so a crash in
// between can produce a second digest the same day.
func (s *DigestService) SendDailyDigests(ctx context.Context, now time.Time) (DigestReport, error) {
	var report DigestReport

	if s.email == nil {
		s.logger.Warn().Err(ErrChannelNotConfigured).
			Str("channel", string(ChannelEmail)).
			Msg("email channel skipped for this run")
		return report, nil
	}

	recipients, err := s.profiles.ListDigestRecipients(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list digest recipients")
		return report, fmt.Errorf("list digest recipients: %w", err)
	}
	report.Recipients = len(recipients)

	for _, p := range recipients {
		select {
		case <-ctx.Done():
			s.logger.Info().Int("processed", report.Sent+report.Failed).Msg("digest pass interrupted")
			return report, ctx.Err()
		default:
		}

		outcome := s.sendOne(ctx, p, now)
		s.metrics.IncDigest(outcome)
		switch outcome {
		case DigestSent:
			report.Sent++
		case DigestSkippedSameDay:
			report.SkippedSameDay++
		case DigestSkippedEmpty:
			report.SkippedEmpty++
		default:
			report.Failed++
		}
	}

	s.logger.Info().
		Int("recipients", report.Recipients).
		Int("sent", report.Sent).
		Int("skipped_same_day", report.SkippedSameDay).
		Int("skipped_empty", report.SkippedEmpty).
		Int("failed", report.Failed).
		Msg("daily digests processed")

	return report, nil
}

func (s *DigestService) sendOne(ctx context.Context, p NotificationProfile, now time.Time) string {
	if p.LastDigestSentAt != nil && s.sameDay(*p.LastDigestSentAt, now) {
		return DigestSkippedSameDay
	}
	if p.Email == "" {
		s.logger.Warn().Int64("user_id", p.UserID).Msg("email channel enabled without an address, skipping")
		return DigestFailed
	}

	content, err := s.gather(ctx, p.UserID, now)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", p.UserID).Msg("failed to gather digest content")
		return DigestFailed
	}
	if content.Empty() {
		return DigestSkippedEmpty
	}

	body := ComposeDigest(content, s.location)
	start := time.Now()
	err = s.email.SendEmail(ctx, p.Email, s.config.Subject, body)
	elapsed := time.Since(start)
	s.record(ctx, p, start, elapsed, err)

	if err != nil {
		return DigestFailed
	}

	if err := s.profiles.MarkDigestSent(ctx, p.UserID, now); err != nil {
		s.logger.Error().Err(err).Int64("user_id", p.UserID).Msg("digest sent but marker not persisted")
	}
	return DigestSent
}

func (s *DigestService) gather(ctx context.Context, userID int64, now time.Time) (DigestContent, error) {
	var (
		c   DigestContent
		err error
	)
	limit := s.config.MaxEntries

	if c.Meetings, err = s.source.UpcomingMeetings(ctx, userID, now, now.Add(s.config.Lookahead), limit); err != nil {
		return c, fmt.Errorf("upcoming meetings: %w", err)
	}
	if c.Reminders, err = s.source.UpcomingReminders(ctx, userID, now.Add(s.config.Lookahead), limit); err != nil {
		return c, fmt.Errorf("upcoming reminders: %w", err)
	}
	if c.Items, err = s.source.RecentItems(ctx, userID, now.Add(-s.config.Lookback), limit); err != nil {
		return c, fmt.Errorf("recent items: %w", err)
	}
	return c, nil
}

func (s *DigestService) record(ctx context.Context, p NotificationProfile, start time.Time, elapsed time.Duration, err error) {
	status, level := DeliveryStatusSent, zerolog.InfoLevel
	if err != nil {
		status, level = DeliveryStatusFailed, zerolog.WarnLevel
	}
	s.logger.WithLevel(level).Err(err).
		Int64("user_id", p.UserID).
		Str("channel", string(ChannelEmail)).
		Str("endpoint", p.Email).
		Str("status", string(status)).
		Int("attempt", 1).
		Dur("duration", elapsed).
		Msg("digest delivery attempt")

	s.metrics.IncDelivery(ChannelEmail, status)
	s.metrics.ObserveDelivery(ChannelEmail, elapsed)

	if s.records == nil {
		return
	}
	rec := DeliveryRecord{
		ID:          uuid.NewString(),
		UserID:      p.UserID,
		Channel:     ChannelEmail,
		Target:      p.Email,
		Status:      status,
		AttemptedAt: start,
		Duration:    elapsed,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if recErr := s.records.RecordDelivery(ctx, rec); recErr != nil {
		s.logger.Error().Err(recErr).Int64("user_id", p.UserID).Msg("failed to record delivery")
	}
}

func (s *DigestService) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(s.location).Date()
	by, bm, bd := b.In(s.location).Date()
	return ay == by && am == bm && ad == bd
}

// ComposeDigest renders the plain-text digest body.
func ComposeDigest(c DigestContent, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("Here is what's coming up.\n")
	writeSection(&b, "Upcoming meetings", c.Meetings, loc)
	writeSection(&b, "Reminders", c.Reminders, loc)
	writeSection(&b, "Recently saved", c.Items, loc)
	return b.String()
}

func writeSection(b *strings.Builder, heading string, entries []DigestEntry, loc *time.Location) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", heading)
	for _, e := range entries {
		fmt.Fprintf(b, "- %s (%s)", e.Title, e.At.In(loc).Format("Mon Jan 2 15:04"))
		if e.Link != "" {
			fmt.Fprintf(b, " %s", e.Link)
		}
		b.WriteString("\n")
	}
}
