package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

type mockIssueRepo struct {
	issues     map[string]*models.Issue
	listRows   []models.Issue
	listTotal  int
	listFilter models.IssueFilter
	similar    []models.Issue
	similarReq struct {
		category models.IssueCategory
		hostelID string
		exclude  string
		statuses []models.IssueStatus
		limit    int
	}
	created *models.Issue
	updated *models.Issue
}

func (m *mockIssueRepo) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	if issue, ok := m.issues[id]; ok {
		copy := *issue
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockIssueRepo) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	m.listFilter = filter
	return m.listRows, m.listTotal, nil
}

func (m *mockIssueRepo) FindSimilar(ctx context.Context, category models.IssueCategory, hostelID, excludeID string, statuses []models.IssueStatus, limit int) ([]models.Issue, error) {
	m.similarReq.category = category
	m.similarReq.hostelID = hostelID
	m.similarReq.exclude = excludeID
	m.similarReq.statuses = statuses
	m.similarReq.limit = limit
	return m.similar, nil
}

func (m *mockIssueRepo) Create(ctx context.Context, issue *models.Issue) error {
	m.created = issue
	return nil
}

func (m *mockIssueRepo) Update(ctx context.Context, issue *models.Issue) error {
	m.updated = issue
	if m.issues == nil {
		m.issues = make(map[string]*models.Issue)
	}
	copy := *issue
	m.issues[issue.ID] = &copy
	return nil
}

func TestIssueServiceCreateNormalizesEnums(t *testing.T) {
	repo := &mockIssueRepo{}
	svc := NewIssueService(repo, nil, nil, zap.NewNop())

	issue, err := svc.Create(context.Background(), CreateIssueRequest{
		Title:       "Broken tap",
		Description: "Tap leaking in common bathroom",
		Category:    "maintenance",
		Priority:    "high",
		HostelID:    "h1",
		RoomNumber:  "212",
		ReportedBy:  "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.IssueCategoryMaintenance, issue.Category)
	assert.Equal(t, models.IssuePriorityHigh, issue.Priority)
	assert.Equal(t, models.IssueStatusPending, issue.Status)
	require.NotNil(t, repo.created)
}

func TestIssueServiceCreateRejectsUnknownCategory(t *testing.T) {
	svc := NewIssueService(&mockIssueRepo{}, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateIssueRequest{
		Title:       "x",
		Description: "y",
		Category:    "PLUMBING",
		Priority:    "HIGH",
		HostelID:    "h1",
		ReportedBy:  "u1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestIssueServiceListDefaultsPagination(t *testing.T) {
	repo := &mockIssueRepo{listRows: []models.Issue{{ID: "i1"}}, listTotal: 1}
	svc := NewIssueService(repo, nil, nil, zap.NewNop())

	_, pagination, err := svc.List(context.Background(), IssueListRequest{Page: 0, PageSize: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listFilter.Page)
	assert.Equal(t, 20, repo.listFilter.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestIssueServiceUpdateClosedIsTerminal(t *testing.T) {
	repo := &mockIssueRepo{issues: map[string]*models.Issue{
		"i1": {ID: "i1", Title: "Done", Status: models.IssueStatusClosed},
	}}
	svc := NewIssueService(repo, nil, nil, zap.NewNop())

	status := string(models.IssueStatusInProgress)
	_, err := svc.Update(context.Background(), "i1", UpdateIssueRequest{Status: &status})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.updated)
}

func TestIssueServiceUpdateAppendsNotes(t *testing.T) {
	repo := &mockIssueRepo{issues: map[string]*models.Issue{
		"i1": {ID: "i1", Title: "Leak", Status: models.IssueStatusPending, Notes: "first visit"},
	}}
	svc := NewIssueService(repo, nil, nil, zap.NewNop())

	notes := "ordered spare part"
	issue, err := svc.Update(context.Background(), "i1", UpdateIssueRequest{Notes: &notes})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issue.Notes, "first visit"))
	assert.Contains(t, issue.Notes, noteDelimiter)
	assert.True(t, strings.HasSuffix(issue.Notes, "ordered spare part"))
}

func TestIssueServiceUpdateResolvedSetsTimestamp(t *testing.T) {
	repo := &mockIssueRepo{issues: map[string]*models.Issue{
		"i1": {ID: "i1", Title: "Leak", Status: models.IssueStatusInProgress, ReportedBy: "u1"},
	}}
	notifier := &mockNotifier{}
	svc := NewIssueService(repo, notifier, nil, zap.NewNop())

	status := string(models.IssueStatusResolved)
	issue, err := svc.Update(context.Background(), "i1", UpdateIssueRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, issue.Status)
	require.NotNil(t, issue.ResolvedAt)

	require.Len(t, notifier.one, 1)
	assert.Equal(t, "u1", notifier.one[0].userID)
}

func TestIssueServiceUpdateRejectsInvalidStatus(t *testing.T) {
	repo := &mockIssueRepo{issues: map[string]*models.Issue{
		"i1": {ID: "i1", Status: models.IssueStatusPending},
	}}
	svc := NewIssueService(repo, nil, nil, zap.NewNop())

	status := "ARCHIVED"
	_, err := svc.Update(context.Background(), "i1", UpdateIssueRequest{Status: &status})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFindPotentialDuplicatesScopesQuery(t *testing.T) {
	repo := &mockIssueRepo{
		issues: map[string]*models.Issue{
			"i1": {ID: "i1", Category: models.IssueCategoryMaintenance, HostelID: "h1", Status: models.IssueStatusPending},
		},
		similar: []models.Issue{{ID: "i2"}, {ID: "i3"}},
	}
	svc := NewIssueService(repo, nil, nil, zap.NewNop())

	candidates, err := svc.FindPotentialDuplicates(context.Background(), "i1", 0)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
	assert.Equal(t, models.IssueCategoryMaintenance, repo.similarReq.category)
	assert.Equal(t, "h1", repo.similarReq.hostelID)
	assert.Equal(t, "i1", repo.similarReq.exclude)
	assert.Equal(t, []models.IssueStatus{models.IssueStatusPending, models.IssueStatusInProgress}, repo.similarReq.statuses)
	assert.Equal(t, DefaultDuplicateLimit, repo.similarReq.limit)
}

func TestFindPotentialDuplicatesUnknownIssue(t *testing.T) {
	svc := NewIssueService(&mockIssueRepo{}, nil, nil, zap.NewNop())

	_, err := svc.FindPotentialDuplicates(context.Background(), "missing", 5)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
