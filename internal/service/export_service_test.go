package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	"github.com/pranavraok/hostelvoice-api/pkg/export"
	"github.com/pranavraok/hostelvoice-api/pkg/storage"
)

type exportIssuesStub struct{}

func (exportIssuesStub) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	issues := []models.Issue{
		{
			ID:         "i1",
			Title:      "Leaking tap",
			Category:   models.IssueCategoryMaintenance,
			Priority:   models.IssuePriorityHigh,
			Status:     models.IssueStatusPending,
			HostelID:   filter.HostelID,
			ReportedBy: "u1",
			CreatedAt:  time.Now().Add(-48 * time.Hour),
		},
		{
			ID:         "i2",
			Title:      "Broken light",
			Category:   models.IssueCategoryMaintenance,
			Priority:   models.IssuePriorityLow,
			Status:     models.IssueStatusResolved,
			HostelID:   filter.HostelID,
			ReportedBy: "u2",
			CreatedAt:  time.Now().Add(-24 * time.Hour),
			ResolvedAt: ptrTime(time.Now()),
		},
	}
	return issues, len(issues), nil
}

type exportAnalyticsStub struct{}

func (exportAnalyticsStub) IssueSummary(ctx context.Context, filter models.AnalyticsIssueFilter) (*models.AnalyticsIssueSummary, bool, error) {
	return &models.AnalyticsIssueSummary{
		HostelID:             filter.HostelID,
		TotalIssues:          12,
		OpenIssues:           4,
		ResolvedIssues:       8,
		AvgResolutionHours:   20.25,
		ByCategory:           []models.AnalyticsCategoryCount{{Category: models.IssueCategoryMaintenance, Count: 9}},
		MergedDuplicateCount: 3,
		GeneratedAt:          time.Now(),
	}, false, nil
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(exportIssuesStub{}, exportAnalyticsStub{}, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestExportServiceGenerateIssuesCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeIssues,
		Params:    models.ReportJobParams{HostelID: "h1", Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	require.Contains(t, result.URL, "/export/")

	path := store.Path(result.RelativePath)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateSummaryPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-2",
		Type:      models.ReportTypeSummary,
		Params:    models.ReportJobParams{HostelID: "h1", Format: models.ReportFormatPDF},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, result.Format)

	path := filepath.Clean(store.Path(result.RelativePath))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-3",
		Type:   models.ReportTypeIssues,
		Params: models.ReportJobParams{Format: models.ReportFormat("xlsx")},
	}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}
