package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

// DefaultDuplicateLimit caps candidate suggestions when no limit is supplied.
const DefaultDuplicateLimit = 5

type issueRepository interface {
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error)
	FindSimilar(ctx context.Context, category models.IssueCategory, hostelID, excludeID string, statuses []models.IssueStatus, limit int) ([]models.Issue, error)
	Create(ctx context.Context, issue *models.Issue) error
	Update(ctx context.Context, issue *models.Issue) error
}

// IssueService handles issue reporting workflows and duplicate discovery.
type IssueService struct {
	repo      issueRepository
	notifier  mergeNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewIssueService constructs the service.
func NewIssueService(repo issueRepository, notifier mergeNotifier, validate *validator.Validate, logger *zap.Logger) *IssueService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &IssueService{repo: repo, notifier: notifier, validator: validate, logger: logger}
	svc.validator.RegisterValidation("issuecategory", func(fl validator.FieldLevel) bool {
		switch models.IssueCategory(strings.ToUpper(fl.Field().String())) {
		case models.IssueCategoryMaintenance, models.IssueCategoryCleanliness, models.IssueCategorySecurity, models.IssueCategoryFood, models.IssueCategoryOther:
			return true
		default:
			return false
		}
	})
	svc.validator.RegisterValidation("issuepriority", func(fl validator.FieldLevel) bool {
		switch models.IssuePriority(strings.ToUpper(fl.Field().String())) {
		case models.IssuePriorityLow, models.IssuePriorityMedium, models.IssuePriorityHigh, models.IssuePriorityUrgent:
			return true
		default:
			return false
		}
	})
	return svc
}

// IssueListRequest describes filters for listing issues.
type IssueListRequest struct {
	Category   string `json:"category"`
	Priority   string `json:"priority"`
	Status     string `json:"status"`
	HostelID   string `json:"hostel_id"`
	ReportedBy string `json:"reported_by"`
	AssignedTo string `json:"assigned_to"`
	Search     string `json:"search"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	SortBy     string `json:"sort_by"`
	SortOrder  string `json:"sort_order"`
}

// CreateIssueRequest describes a new issue report.
type CreateIssueRequest struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Category    string   `json:"category" validate:"required,issuecategory"`
	Priority    string   `json:"priority" validate:"required,issuepriority"`
	HostelID    string   `json:"hostel_id" validate:"required"`
	RoomNumber  string   `json:"room_number"`
	Images      []string `json:"images" validate:"max=10"`
	ReportedBy  string   `json:"reported_by" validate:"required"`
}

// UpdateIssueRequest describes staff updates to an issue.
type UpdateIssueRequest struct {
	Status     *string `json:"status"`
	Priority   *string `json:"priority"`
	AssignedTo *string `json:"assigned_to"`
	Notes      *string `json:"notes"`
}

// List returns issues with pagination.
func (s *IssueService) List(ctx context.Context, req IssueListRequest) ([]models.Issue, *models.Pagination, error) {
	filter := models.IssueFilter{
		HostelID:   req.HostelID,
		ReportedBy: req.ReportedBy,
		AssignedTo: req.AssignedTo,
		Search:     req.Search,
		Page:       req.Page,
		PageSize:   req.PageSize,
		SortBy:     req.SortBy,
		SortOrder:  req.SortOrder,
	}
	if req.Category != "" {
		category := models.IssueCategory(strings.ToUpper(req.Category))
		filter.Category = &category
	}
	if req.Priority != "" {
		priority := models.IssuePriority(strings.ToUpper(req.Priority))
		filter.Priority = &priority
	}
	if req.Status != "" {
		status := models.IssueStatus(strings.ToUpper(req.Status))
		filter.Status = &status
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list issues")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns an issue by id.
func (s *IssueService) Get(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get issue")
	}
	return issue, nil
}

// Create registers a new issue report.
func (s *IssueService) Create(ctx context.Context, req CreateIssueRequest) (*models.Issue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	issue := &models.Issue{
		Title:       req.Title,
		Description: req.Description,
		Category:    models.IssueCategory(strings.ToUpper(req.Category)),
		Priority:    models.IssuePriority(strings.ToUpper(req.Priority)),
		Status:      models.IssueStatusPending,
		HostelID:    req.HostelID,
		RoomNumber:  req.RoomNumber,
		Images:      models.StringList(req.Images),
		ReportedBy:  req.ReportedBy,
	}
	if err := s.repo.Create(ctx, issue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create issue")
	}
	return issue, nil
}

// Update applies staff mutations to an open issue. Closed issues are terminal.
func (s *IssueService) Update(ctx context.Context, id string, req UpdateIssueRequest) (*models.Issue, error) {
	issue, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	if issue.Status == models.IssueStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "closed issues cannot be updated")
	}

	if req.Status != nil {
		status := models.IssueStatus(strings.ToUpper(*req.Status))
		switch status {
		case models.IssueStatusPending, models.IssueStatusInProgress, models.IssueStatusResolved, models.IssueStatusClosed:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status")
		}
		issue.Status = status
		if status == models.IssueStatusResolved && issue.ResolvedAt == nil {
			now := time.Now().UTC()
			issue.ResolvedAt = &now
		}
	}
	if req.Priority != nil {
		priority := models.IssuePriority(strings.ToUpper(*req.Priority))
		switch priority {
		case models.IssuePriorityLow, models.IssuePriorityMedium, models.IssuePriorityHigh, models.IssuePriorityUrgent:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid priority")
		}
		issue.Priority = priority
	}
	if req.AssignedTo != nil {
		if *req.AssignedTo == "" {
			issue.AssignedTo = nil
		} else {
			issue.AssignedTo = req.AssignedTo
		}
	}
	if req.Notes != nil && strings.TrimSpace(*req.Notes) != "" {
		if issue.Notes == "" {
			issue.Notes = *req.Notes
		} else {
			issue.Notes = issue.Notes + noteDelimiter + *req.Notes
		}
	}

	if err := s.repo.Update(ctx, issue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update issue")
	}

	if s.notifier != nil && req.Status != nil && issue.ReportedBy != "" {
		s.notifier.NotifyOne(ctx, issue.ReportedBy,
			models.NotificationTypeIssue,
			"Issue status updated",
			fmt.Sprintf("Your issue %q is now %s.", issue.Title, issue.Status),
			&issue.ID)
	}
	return issue, nil
}

// FindPotentialDuplicates proposes likely duplicates of the given issue for a
// human operator to review. The heuristic is exact category and hostel match
// over open issues, newest first. No text similarity is attempted.
func (s *IssueService) FindPotentialDuplicates(ctx context.Context, issueID string, limit int) ([]models.Issue, error) {
	if limit <= 0 {
		limit = DefaultDuplicateLimit
	}
	reference, err := s.repo.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	candidates, err := s.repo.FindSimilar(ctx, reference.Category, reference.HostelID, reference.ID,
		[]models.IssueStatus{models.IssueStatusPending, models.IssueStatusInProgress}, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find duplicate candidates")
	}
	return candidates, nil
}
