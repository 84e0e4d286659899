package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ArchiveService ships purged positions, grouped by period, together with
// that period's price history to the archiver.
type ArchiveService struct {
	archiver domain.PeriodArchiver
	history  *PriceHistory
	logger   *slog.Logger
}

// NewArchiveService accepts a nil history; periods are then archived
// without price lines.
func NewArchiveService(archiver domain.PeriodArchiver, history *PriceHistory, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		archiver: archiver,
		history:  history,
		logger:   logger.With(slog.String("component", "archive")),
	}
}

// Archive uploads one archive per period found in positions, plus the
// price history of finished, which may have no positions at all.
func (s *ArchiveService) Archive(ctx context.Context, finished int64, positions []domain.Position) error {
	byPeriod := make(map[int64][]domain.Position)
	if finished > 0 {
		byPeriod[finished] = nil
	}
	for _, p := range positions {
		byPeriod[p.PeriodTimestamp] = append(byPeriod[p.PeriodTimestamp], p)
	}
	periods := make([]int64, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })

	var errs []error
	for _, period := range periods {
		var lines []string
		if s.history != nil {
			var err error
			if lines, err = s.history.Lines(period); err != nil {
				s.logger.WarnContext(ctx, "price history unavailable", slog.Int64("period", period), slog.String("error", err.Error()))
			}
		}
		if err := s.archiver.ArchivePeriod(ctx, period, byPeriod[period], lines); err != nil {
			errs = append(errs, fmt.Errorf("period %d: %w", period, err))
			continue
		}
		s.logger.InfoContext(ctx, "period archived",
			slog.Int64("period", period),
			slog.Int("positions", len(byPeriod[period])),
			slog.Int("price_lines", len(lines)),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("service: archive: %w", err)
	}
	return nil
}
