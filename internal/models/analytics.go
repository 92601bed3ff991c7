package models

import "time"

// AnalyticsIssueFilter scopes issue analytics queries.
type AnalyticsIssueFilter struct {
	HostelID string
	DateFrom *time.Time
	DateTo   *time.Time
}

// AnalyticsCategoryCount aggregates issue counts by category.
type AnalyticsCategoryCount struct {
	Category IssueCategory `db:"category" json:"category"`
	Count    int           `db:"count" json:"count"`
}

// AnalyticsStatusCount aggregates issue counts by status.
type AnalyticsStatusCount struct {
	Status IssueStatus `db:"status" json:"status"`
	Count  int         `db:"count" json:"count"`
}

// AnalyticsSystemMetrics represents system level analytics captured from instrumentation.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// AnalyticsIssueSummary represents aggregated issue metrics for a hostel.
type AnalyticsIssueSummary struct {
	HostelID             string                   `json:"hostel_id,omitempty"`
	TotalIssues          int                      `json:"total_issues"`
	OpenIssues           int                      `json:"open_issues"`
	ResolvedIssues       int                      `json:"resolved_issues"`
	AvgResolutionHours   float64                  `json:"avg_resolution_hours"`
	ByCategory           []AnalyticsCategoryCount `json:"by_category"`
	ByStatus             []AnalyticsStatusCount   `json:"by_status"`
	MergedDuplicateCount int                      `json:"merged_duplicate_count"`
	GeneratedAt          time.Time                `json:"generated_at"`
}
