package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jinzhu/now"

	"github.com/BradenHooton/riskauth/internal/models"
)

const (
	DefaultTrendDays = 30
	MaxTrendDays     = 90
)

// RiskStatsRepository is the aggregate side of the risk history.
type RiskStatsRepository interface {
	CountByRiskLevel(ctx context.Context) ([]models.RiskLevelCount, error)
	CountDailySince(ctx context.Context, since time.Time) ([]models.DailyLoginCount, error)
}

// AnalyticsService aggregates risk records for the admin dashboards.
type AnalyticsService struct {
	repo   RiskStatsRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewAnalyticsService(repo RiskStatsRepository, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// RiskDistribution returns the number of snapshots per level. Every level is
// present, in low, medium, high order.
func (s *AnalyticsService) RiskDistribution(ctx context.Context) ([]models.RiskLevelCount, error) {
	counts, err := s.repo.CountByRiskLevel(ctx)
	if err != nil {
		s.logger.Error("failed to count risk levels", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	byLevel := make(map[models.RiskLevel]int64, len(counts))
	for _, c := range counts {
		byLevel[c.RiskLevel] += c.Count
	}

	levels := []models.RiskLevel{models.RiskLevelLow, models.RiskLevelMedium, models.RiskLevelHigh}
	out := make([]models.RiskLevelCount, 0, len(levels))
	for _, l := range levels {
		out = append(out, models.RiskLevelCount{RiskLevel: l, Count: byLevel[l]})
	}
	return out, nil
}

// LoginTrend returns one entry per UTC day for the last days days, today
// included, with zero-filled gaps.
func (s *AnalyticsService) LoginTrend(ctx context.Context, days int) ([]models.DailyLoginCount, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}
	if days > MaxTrendDays {
		return nil, models.ErrBadRequest
	}

	today := now.With(s.now().UTC()).BeginningOfDay()
	since := today.AddDate(0, 0, -(days - 1))

	counts, err := s.repo.CountDailySince(ctx, since)
	if err != nil {
		s.logger.Error("failed to count daily logins", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	byDay := make(map[string]int64, len(counts))
	for _, c := range counts {
		byDay[c.Date] = c.Count
	}

	out := make([]models.DailyLoginCount, 0, days)
	for day := since; !day.After(today); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		out = append(out, models.DailyLoginCount{Date: key, Count: byDay[key]})
	}
	return out, nil
}
