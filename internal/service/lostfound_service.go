package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

type lostFoundRepository interface {
	GetByID(ctx context.Context, id string) (*models.LostFoundItem, error)
	List(ctx context.Context, filter models.LostFoundFilter) ([]models.LostFoundItem, int, error)
	Create(ctx context.Context, item *models.LostFoundItem) error
	Update(ctx context.Context, item *models.LostFoundItem) error
	Delete(ctx context.Context, id string) error
}

type lostFoundNotifier interface {
	NotifyOne(ctx context.Context, userID string, typ models.NotificationType, title, message string, referenceID *string)
}

// LostFoundService handles the lost-and-found board and its claim workflow.
type LostFoundService struct {
	repo      lostFoundRepository
	notifier  lostFoundNotifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewLostFoundService constructs the service.
func NewLostFoundService(repo lostFoundRepository, notifier lostFoundNotifier, validate *validator.Validate, logger *zap.Logger) *LostFoundService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LostFoundService{
		repo:      repo,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	svc.validator.RegisterValidation("lostfoundkind", func(fl validator.FieldLevel) bool {
		switch models.LostFoundKind(strings.ToUpper(fl.Field().String())) {
		case models.LostFoundKindLost, models.LostFoundKindFound:
			return true
		default:
			return false
		}
	})
	return svc
}

// LostFoundListRequest describes listing filters.
type LostFoundListRequest struct {
	Kind     *models.LostFoundKind
	Status   *models.LostFoundStatus
	HostelID string
	Search   string
	Page     int
	PageSize int
}

// CreateLostFoundRequest describes the report payload.
type CreateLostFoundRequest struct {
	Kind        string   `json:"kind" validate:"required,lostfoundkind"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Location    string   `json:"location" validate:"required"`
	HostelID    string   `json:"hostel_id" validate:"required"`
	Images      []string `json:"images" validate:"max=10"`
	ReportedBy  string   `json:"-"`
}

// List returns items with pagination.
func (s *LostFoundService) List(ctx context.Context, req LostFoundListRequest) ([]models.LostFoundItem, *models.Pagination, error) {
	filter := models.LostFoundFilter{
		Kind:     req.Kind,
		Status:   req.Status,
		HostelID: req.HostelID,
		Search:   req.Search,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lost-and-found items")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns an item by id.
func (s *LostFoundService) Get(ctx context.Context, id string) (*models.LostFoundItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	return item, nil
}

// Create registers a new lost or found report.
func (s *LostFoundService) Create(ctx context.Context, req CreateLostFoundRequest) (*models.LostFoundItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lost-and-found payload")
	}
	item := &models.LostFoundItem{
		ID:          uuid.NewString(),
		Kind:        models.LostFoundKind(strings.ToUpper(req.Kind)),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		HostelID:    req.HostelID,
		Images:      models.StringList(req.Images),
		Status:      models.LostFoundStatusOpen,
		ReportedBy:  req.ReportedBy,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create item")
	}
	return item, nil
}

// Claim marks an open item as claimed by the given user and notifies the
// reporter so both sides can arrange the handover.
func (s *LostFoundService) Claim(ctx context.Context, id, claimantID string) (*models.LostFoundItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	if item.Status != models.LostFoundStatusOpen {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "item is no longer open")
	}
	if item.ReportedBy == claimantID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot claim your own report")
	}

	claimedAt := s.now()
	item.Status = models.LostFoundStatusClaimed
	item.ClaimedBy = &claimantID
	item.ClaimedAt = &claimedAt
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim item")
	}

	if s.notifier != nil {
		s.notifier.NotifyOne(ctx, item.ReportedBy, models.NotificationTypeLostFound,
			"Item claimed", "Someone claimed your lost-and-found report.", &item.ID)
	}
	return item, nil
}

// Resolve closes out a claimed item as returned, or any item as closed.
func (s *LostFoundService) Resolve(ctx context.Context, id string, returned bool) (*models.LostFoundItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	switch item.Status {
	case models.LostFoundStatusReturned, models.LostFoundStatusClosed:
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "item is already resolved")
	}
	if returned {
		if item.Status != models.LostFoundStatusClaimed {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "only claimed items can be marked returned")
		}
		item.Status = models.LostFoundStatusReturned
	} else {
		item.Status = models.LostFoundStatusClosed
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve item")
	}
	return item, nil
}

// Delete removes an item. Only the reporter or staff may delete.
func (s *LostFoundService) Delete(ctx context.Context, id, actorID string, actorRole models.UserRole) error {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	if item.ReportedBy != actorID && !actorRole.IsStaff() {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this item")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete item")
	}
	return nil
}
