package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	"github.com/pranavraok/hostelvoice-api/pkg/export"
	"github.com/pranavraok/hostelvoice-api/pkg/storage"
)

type exportIssueRepository interface {
	List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error)
}

type exportAnalytics interface {
	IssueSummary(ctx context.Context, filter models.AnalyticsIssueFilter) (*models.AnalyticsIssueSummary, bool, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds export datasets and persists rendered files.
type ExportService struct {
	issues    exportIssueRepository
	analytics exportAnalytics
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(issues exportIssueRepository, analytics exportAnalytics, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		issues:    issues,
		analytics: analytics,
		storage:   storage,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate builds the dataset according to the job definition and stores the
// rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	hostelPart := sanitizeFilename(job.Params.HostelID)
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), hostelPart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeIssues:
		return s.buildIssueDataset(ctx, job.Params)
	case models.ReportTypeSummary:
		return s.buildSummaryDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildIssueDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.IssueFilter{
		HostelID: params.HostelID,
		Status:   params.Status,
		Page:     1,
		PageSize: exportPageSize,
	}

	// Page through the store so large hostels do not blow the row cap.
	var all []models.Issue
	for {
		rows, total, err := s.issues.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		all = append(all, rows...)
		if len(all) >= total || len(rows) == 0 {
			break
		}
		filter.Page++
	}

	dataRows := make([]map[string]string, 0, len(all))
	for _, issue := range all {
		dataRows = append(dataRows, map[string]string{
			"ID":          issue.ID,
			"Title":       issue.Title,
			"Category":    string(issue.Category),
			"Priority":    string(issue.Priority),
			"Status":      string(issue.Status),
			"Hostel":      issue.HostelID,
			"Reported By": issue.ReportedBy,
			"Created At":  issue.CreatedAt.UTC().Format(time.RFC3339),
			"Resolved At": formatReportTime(issue.ResolvedAt),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"ID", "Title", "Category", "Priority", "Status", "Hostel", "Reported By", "Created At", "Resolved At"},
		Rows:    dataRows,
	}
	title := "Issue Report"
	if params.HostelID != "" {
		title = fmt.Sprintf("Issue Report %s", params.HostelID)
	}
	return dataset, title, nil
}

func (s *ExportService) buildSummaryDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	summary, _, err := s.analytics.IssueSummary(ctx, models.AnalyticsIssueFilter{HostelID: params.HostelID})
	if err != nil {
		return export.Dataset{}, "", err
	}

	scope := params.HostelID
	if scope == "" {
		scope = "all hostels"
	}
	rows := []map[string]string{
		{"Metric": "Total Issues", "Scope": scope, "Value": fmt.Sprintf("%d", summary.TotalIssues)},
		{"Metric": "Open Issues", "Scope": scope, "Value": fmt.Sprintf("%d", summary.OpenIssues)},
		{"Metric": "Resolved Issues", "Scope": scope, "Value": fmt.Sprintf("%d", summary.ResolvedIssues)},
		{"Metric": "Avg Resolution (hours)", "Scope": scope, "Value": fmt.Sprintf("%.2f", summary.AvgResolutionHours)},
		{"Metric": "Merge Operations", "Scope": scope, "Value": fmt.Sprintf("%d", summary.MergedDuplicateCount)},
	}
	for _, row := range summary.ByCategory {
		rows = append(rows, map[string]string{
			"Metric": fmt.Sprintf("Issues: %s", row.Category),
			"Scope":  scope,
			"Value":  fmt.Sprintf("%d", row.Count),
		})
	}

	dataset := export.Dataset{
		Headers: []string{"Metric", "Scope", "Value"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Hostel Summary (%s)", scope)
	return dataset, title, nil
}

const exportPageSize = 100

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
