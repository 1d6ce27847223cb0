package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/seva-hours-api/internal/dto"
	"github.com/noah-isme/seva-hours-api/internal/models"
	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
)

type dashboardRepository interface {
	Overview(ctx context.Context, now, recentSince time.Time) (*dto.DashboardOverview, error)
	TopPerformers(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	EventTypeStats(ctx context.Context) ([]dto.EventTypeStat, error)
	MonthlyRegistrations(ctx context.Context, year int) ([]dto.MonthlyRegistrationStat, error)
	BranchStats(ctx context.Context) ([]dto.BranchStat, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL         time.Duration
	TopPerformers    int
	RecentWindowDays int
}

// DashboardService composes the admin dashboard payload.
type DashboardService struct {
	repo   dashboardRepository
	cache  *CacheService
	logger *zap.Logger
	config DashboardServiceConfig
	now    func() time.Time
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(repo dashboardRepository, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.TopPerformers <= 0 {
		cfg.TopPerformers = 10
	}
	if cfg.RecentWindowDays <= 0 {
		cfg.RecentWindowDays = 7
	}
	return &DashboardService{repo: repo, cache: cache, logger: logger, config: cfg, now: time.Now}
}

// Admin returns the aggregated admin dashboard. The boolean reports whether
// the payload was served from cache.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	var cached dto.AdminDashboardResponse
	if s.cache.Get(ctx, cacheKeyDashboard, &cached) {
		return &cached, true, nil
	}

	now := s.now().UTC()
	overview, err := s.repo.Overview(ctx, now, now.AddDate(0, 0, -s.config.RecentWindowDays))
	if err != nil {
		return nil, false, s.internal(err, "overview")
	}
	top, err := s.repo.TopPerformers(ctx, s.config.TopPerformers)
	if err != nil {
		return nil, false, s.internal(err, "top performers")
	}
	types, err := s.repo.EventTypeStats(ctx)
	if err != nil {
		return nil, false, s.internal(err, "event types")
	}
	monthly, err := s.repo.MonthlyRegistrations(ctx, now.Year())
	if err != nil {
		return nil, false, s.internal(err, "monthly registrations")
	}
	branches, err := s.repo.BranchStats(ctx)
	if err != nil {
		return nil, false, s.internal(err, "branches")
	}

	resp := &dto.AdminDashboardResponse{
		Overview:      *overview,
		TopPerformers: nonNil(top),
		EventTypes:    nonNil(types),
		Monthly:       nonNil(monthly),
		Branches:      nonNil(branches),
		GeneratedAt:   now,
	}
	s.cache.Set(ctx, cacheKeyDashboard, resp, s.config.CacheTTL)
	return resp, false, nil
}

func (s *DashboardService) internal(err error, section string) error {
	s.logger.Error("dashboard query failed", zap.String("section", section), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard")
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
