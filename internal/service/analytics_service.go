package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	CountByCategory(ctx context.Context, filter models.AnalyticsIssueFilter) ([]models.AnalyticsCategoryCount, error)
	CountByStatus(ctx context.Context, filter models.AnalyticsIssueFilter) ([]models.AnalyticsStatusCount, error)
	AvgResolutionHours(ctx context.Context, filter models.AnalyticsIssueFilter) (float64, error)
}

type mergeCounter interface {
	CountByAction(ctx context.Context, action string, from, to *time.Time) (int, error)
}

// AnalyticsService provides read-optimised access to analytics datasets with cache integration.
type AnalyticsService struct {
	repo    AnalyticsRepository
	audits  mergeCounter
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, audits mergeCounter, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{repo: repo, audits: audits, cache: cache, metrics: metrics, logger: logger}
}

// IssueSummary returns aggregated issue analytics for a hostel (or all
// hostels when the filter is empty). The boolean indicates whether data
// originated from cache.
func (s *AnalyticsService) IssueSummary(ctx context.Context, filter models.AnalyticsIssueFilter) (*models.AnalyticsIssueSummary, bool, error) {
	cacheKey := makeAnalyticsCacheKey("issues", filter.HostelID, formatTime(filter.DateFrom), formatTime(filter.DateTo))
	var cached models.AnalyticsIssueSummary
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get issue analytics cache: %w", err)
		} else if hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	byCategory, err := s.repo.CountByCategory(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	byStatus, err := s.repo.CountByStatus(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	avgHours, err := s.repo.AvgResolutionHours(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_issues", time.Since(start))
	}

	summary := &models.AnalyticsIssueSummary{
		HostelID:           filter.HostelID,
		AvgResolutionHours: avgHours,
		ByCategory:         byCategory,
		ByStatus:           byStatus,
		GeneratedAt:        time.Now().UTC(),
	}
	for _, row := range byStatus {
		summary.TotalIssues += row.Count
		switch row.Status {
		case models.IssueStatusPending, models.IssueStatusInProgress:
			summary.OpenIssues += row.Count
		case models.IssueStatusResolved:
			summary.ResolvedIssues += row.Count
		}
	}

	if s.audits != nil {
		merged, err := s.audits.CountByAction(ctx, models.AuditActionIssueMerge, filter.DateFrom, filter.DateTo)
		if err != nil {
			// The merge counter is supplementary; the summary still stands.
			if s.logger != nil {
				s.logger.Warn("count merge operations", zap.Error(err))
			}
		} else {
			summary.MergedDuplicateCount = merged
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary, 0); err != nil && s.logger != nil {
			s.logger.Warn("cache issue analytics", zap.Error(err))
		}
	}
	return summary, false, nil
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{}
	}
	return s.metrics.Snapshot()
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
