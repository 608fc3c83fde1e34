package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"recall/shared/reminders"
)

// Config holds configuration for the audit service.
type Config struct {
	// ExportDir receives one workbook per month.
	ExportDir string

	// DataRetentionDays is how many days of delivery log to keep.
	// Default: 90 days.
	DataRetentionDays int

	// Timezone decides month boundaries.
	Timezone string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ExportDir:         "data/exports",
		DataRetentionDays: 90,
		Timezone:          "UTC",
	}
}

// Service exports the delivery log monthly and prunes it afterwards.
type Service struct {
	config   Config
	source   DeliverySource
	writer   func() ExcelWriter // factory for creating new Excel writers
	cleaner  DataCleaner
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a new audit service. cleaner may be nil to keep all data.
func NewService(
	config Config,
	source DeliverySource,
	writerFactory func() ExcelWriter,
	cleaner DataCleaner,
	logger zerolog.Logger,
) (*Service, error) {
	def := DefaultConfig()
	if config.ExportDir == "" {
		config.ExportDir = def.ExportDir
	}
	if config.DataRetentionDays <= 0 {
		config.DataRetentionDays = def.DataRetentionDays
	}
	if config.Timezone == "" {
		config.Timezone = def.Timezone
	}
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load audit timezone %q: %w", config.Timezone, err)
	}
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}

	return &Service{
		config:   config,
		source:   source,
		writer:   writerFactory,
		cleaner:  cleaner,
		location: loc,
		now:      time.Now,
		logger:   logger.With().Str("component", "audit").Logger(),
	}, nil
}

// RunExportAndCleanup exports the previous month, then prunes old rows.
// Cleanup is skipped when the export fails so nothing is lost unexported.
func (s *Service) RunExportAndCleanup(ctx context.Context) error {
	start, end := PreviousMonth(s.now(), s.location)

	if _, err := s.ExportRange(ctx, start, end); err != nil {
		return fmt.Errorf("export deliveries: %w", err)
	}

	if err := s.cleanupOldData(ctx); err != nil {
		return fmt.Errorf("cleanup deliveries: %w", err)
	}
	return nil
}

// ExportRange writes the attempts in [start, end) to a workbook named after
// the month of start and returns its path.
func (s *Service) ExportRange(ctx context.Context, start, end time.Time) (string, error) {
	records, err := s.source.ListDeliveries(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("list deliveries: %w", err)
	}

	excel := s.writer()
	if excel == nil {
		return "", fmt.Errorf("failed to create excel writer")
	}
	if c, ok := excel.(interface{ Close() error }); ok {
		defer c.Close()
	}

	if err := excel.AddSheet("Summary"); err != nil {
		return "", err
	}
	if err := excel.WriteHeader(SummaryColumns); err != nil {
		return "", err
	}
	for _, row := range summarize(records) {
		if err := excel.WriteRow(row); err != nil {
			return "", fmt.Errorf("write summary row: %w", err)
		}
	}

	if err := excel.AddSheet("Deliveries"); err != nil {
		return "", err
	}
	if err := excel.WriteHeader(DeliveryColumns); err != nil {
		return "", err
	}
	for _, rec := range records {
		if err := excel.WriteRow(deliveryRow(rec, s.location)); err != nil {
			s.logger.Error().Err(err).Str("delivery_id", rec.ID).Msg("Failed to write row")
		}
	}

	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(s.config.ExportDir, GenerateFilename(start.In(s.location)))
	if err := excel.SaveToFile(path); err != nil {
		return "", fmt.Errorf("save excel: %w", err)
	}

	s.logger.Info().
		Str("path", path).
		Int("rows", len(records)).
		Time("from", start).
		Time("to", end).
		Msg("Delivery log exported")
	return path, nil
}

func (s *Service) cleanupOldData(ctx context.Context) error {
	if s.cleaner == nil {
		return nil
	}

	retention := time.Duration(s.config.DataRetentionDays) * 24 * time.Hour
	deleted, err := s.cleaner.DeleteOldDeliveries(ctx, retention)
	if err != nil {
		return fmt.Errorf("delete old deliveries: %w", err)
	}

	s.logger.Info().
		Int64("deleted_count", deleted).
		Int("retention_days", s.config.DataRetentionDays).
		Msg("Cleaned up old data")
	return nil
}

func summarize(records []reminders.DeliveryRecord) [][]interface{} {
	type key struct {
		channel reminders.Channel
		status  reminders.DeliveryStatus
	}
	counts := make(map[key]int)
	for _, r := range records {
		counts[key{r.Channel, r.Status}]++
	}

	keys := make([]key, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel != keys[j].channel {
			return keys[i].channel < keys[j].channel
		}
		return keys[i].status < keys[j].status
	})

	rows := make([][]interface{}, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []interface{}{string(k.channel), string(k.status), counts[k]})
	}
	return rows
}
