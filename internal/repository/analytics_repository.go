package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/pranavraok/hostelvoice-api/internal/models"
)

// AnalyticsRepository exposes read-optimised aggregation queries for issue analytics.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func issueAnalyticsScope(filter models.AnalyticsIssueFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.HostelID != "" {
		args = append(args, filter.HostelID)
		conditions = append(conditions, fmt.Sprintf("hostel_id = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// CountByCategory aggregates issue totals per category.
func (r *AnalyticsRepository) CountByCategory(ctx context.Context, filter models.AnalyticsIssueFilter) ([]models.AnalyticsCategoryCount, error) {
	where, args := issueAnalyticsScope(filter)
	query := fmt.Sprintf(`SELECT category, COUNT(*) AS count FROM issues%s GROUP BY category ORDER BY count DESC`, where)
	var counts []models.AnalyticsCategoryCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count issues by category: %w", err)
	}
	return counts, nil
}

// CountByStatus aggregates issue totals per status.
func (r *AnalyticsRepository) CountByStatus(ctx context.Context, filter models.AnalyticsIssueFilter) ([]models.AnalyticsStatusCount, error) {
	where, args := issueAnalyticsScope(filter)
	query := fmt.Sprintf(`SELECT status, COUNT(*) AS count FROM issues%s GROUP BY status ORDER BY count DESC`, where)
	var counts []models.AnalyticsStatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count issues by status: %w", err)
	}
	return counts, nil
}

// AvgResolutionHours returns the mean time between creation and resolution.
func (r *AnalyticsRepository) AvgResolutionHours(ctx context.Context, filter models.AnalyticsIssueFilter) (float64, error) {
	where, args := issueAnalyticsScope(filter)
	clause := "resolved_at IS NOT NULL"
	if where == "" {
		where = " WHERE " + clause
	} else {
		where += " AND " + clause
	}
	query := fmt.Sprintf(`SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600), 0) FROM issues%s`, where)
	var hours float64
	if err := r.db.GetContext(ctx, &hours, query, args...); err != nil {
		return 0, fmt.Errorf("avg resolution hours: %w", err)
	}
	return hours, nil
}
