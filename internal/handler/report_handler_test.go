package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/dto"
	"github.com/pranavraok/hostelvoice-api/internal/middleware"
	"github.com/pranavraok/hostelvoice-api/internal/models"
	"github.com/pranavraok/hostelvoice-api/internal/repository"
	"github.com/pranavraok/hostelvoice-api/internal/service"
	"github.com/pranavraok/hostelvoice-api/pkg/export"
	"github.com/pranavraok/hostelvoice-api/pkg/jobs"
	"github.com/pranavraok/hostelvoice-api/pkg/storage"
)

type reportStoreStub struct {
	jobs map[string]*models.ReportJob
}

func (s *reportStoreStub) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = "job-1"
	}
	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *reportStoreStub) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (s *reportStoreStub) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	return nil
}

func (s *reportStoreStub) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

func (s *reportStoreStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

type reportQueueStub struct {
	jobs []jobs.Job
}

func (q *reportQueueStub) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type reportIssuesStub struct{}

func (reportIssuesStub) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	return []models.Issue{{ID: "i1", Title: "Leaking tap", Category: models.IssueCategoryMaintenance, Status: models.IssueStatusPending}}, 1, nil
}

type reportAnalyticsStub struct{}

func (reportAnalyticsStub) IssueSummary(ctx context.Context, filter models.AnalyticsIssueFilter) (*models.AnalyticsIssueSummary, bool, error) {
	return &models.AnalyticsIssueSummary{TotalIssues: 1, GeneratedAt: time.Now()}, false, nil
}

func newReportFixture(t *testing.T) (*ReportHandler, *reportStoreStub, *service.ExportService) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	exporter := service.NewExportService(reportIssuesStub{}, reportAnalyticsStub{}, store, signer,
		service.ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(),
		export.NewCSVExporter(), export.NewPDFExporter())
	repo := &reportStoreStub{jobs: make(map[string]*models.ReportJob)}
	svc := service.NewReportService(repo, &reportQueueStub{}, exporter, zap.NewNop(), service.ReportServiceConfig{})
	return NewReportHandler(svc), repo, exporter
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestReportHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo, _ := newReportFixture(t)

	payload, _ := json.Marshal(dto.ReportRequest{Type: models.ReportTypeIssues, HostelID: "h1", Format: models.ReportFormatCSV})
	c, w := newGinContext(http.MethodPost, "/reports/generate", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Generate(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, repo.jobs, 1)
}

func TestReportHandlerGenerateForbiddenForStudents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newReportFixture(t)

	payload, _ := json.Marshal(dto.ReportRequest{Type: models.ReportTypeIssues, Format: models.ReportFormatCSV})
	c, w := newGinContext(http.MethodPost, "/reports/generate", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student", Role: models.RoleStudent})

	handler.Generate(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestReportHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo, _ := newReportFixture(t)
	repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", Status: models.ReportStatusFinished, Progress: 100, CreatedBy: "admin"}

	c, w := newGinContext(http.MethodGet, "/reports/job-1/status", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo, exporter := newReportFixture(t)

	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeIssues,
		Params:    models.ReportJobParams{HostelID: "h1", Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	result, err := exporter.Generate(context.Background(), job)
	require.NoError(t, err)
	job.Status = models.ReportStatusFinished
	job.ResultURL = &result.URL
	repo.jobs[job.ID] = job

	c, w := newGinContext(http.MethodGet, "/export/"+result.Token, nil)
	c.Params = gin.Params{{Key: "token", Value: result.Token}}

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	require.NotEmpty(t, w.Body.Bytes())
}

func TestReportHandlerDownloadRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newReportFixture(t)

	c, w := newGinContext(http.MethodGet, "/export/bogus", nil)
	c.Params = gin.Params{{Key: "token", Value: "bogus"}}

	handler.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
