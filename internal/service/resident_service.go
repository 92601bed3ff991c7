package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

type residentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Resident, error)
	List(ctx context.Context, filter models.ResidentFilter) ([]models.Resident, int, error)
	Create(ctx context.Context, resident *models.Resident) error
	Update(ctx context.Context, resident *models.Resident) error
	CheckOut(ctx context.Context, id string, at time.Time) error
}

// CreateResidentRequest is the check-in payload.
type CreateResidentRequest struct {
	UserID     *string `json:"user_id"`
	FullName   string  `json:"full_name" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Phone      string  `json:"phone"`
	HostelID   string  `json:"hostel_id" validate:"required"`
	RoomNumber string  `json:"room_number" validate:"required"`
}

// UpdateResidentRequest updates directory details.
type UpdateResidentRequest struct {
	FullName   string `json:"full_name" validate:"required"`
	Phone      string `json:"phone"`
	RoomNumber string `json:"room_number" validate:"required"`
}

// ResidentService manages the hostel resident directory.
type ResidentService struct {
	repo      residentRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewResidentService constructs the service.
func NewResidentService(repo residentRepository, validate *validator.Validate, logger *zap.Logger) *ResidentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResidentService{
		repo:      repo,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns residents matching the filter with pagination metadata.
func (s *ResidentService) List(ctx context.Context, filter models.ResidentFilter) ([]models.Resident, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list residents")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns a resident by id.
func (s *ResidentService) Get(ctx context.Context, id string) (*models.Resident, error) {
	resident, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resident")
	}
	return resident, nil
}

// Create checks a new resident into the directory.
func (s *ResidentService) Create(ctx context.Context, req CreateResidentRequest) (*models.Resident, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resident payload")
	}
	resident := &models.Resident{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		FullName:   req.FullName,
		Email:      req.Email,
		Phone:      req.Phone,
		HostelID:   req.HostelID,
		RoomNumber: req.RoomNumber,
		CheckedIn:  s.now(),
		Active:     true,
	}
	if err := s.repo.Create(ctx, resident); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resident")
	}
	return resident, nil
}

// Update modifies a resident's directory details.
func (s *ResidentService) Update(ctx context.Context, id string, req UpdateResidentRequest) (*models.Resident, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resident payload")
	}
	resident, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resident")
	}
	if !resident.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "resident has checked out")
	}

	resident.FullName = req.FullName
	resident.Phone = req.Phone
	resident.RoomNumber = req.RoomNumber
	if err := s.repo.Update(ctx, resident); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update resident")
	}
	return resident, nil
}

// CheckOut marks a resident as departed. Idempotence is rejected so the
// audit trail records a single departure per stay.
func (s *ResidentService) CheckOut(ctx context.Context, id string) (*models.Resident, error) {
	resident, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resident")
	}
	if !resident.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "resident already checked out")
	}

	at := s.now()
	if err := s.repo.CheckOut(ctx, id, at); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check out resident")
	}
	resident.Active = false
	resident.CheckedOut = &at
	return resident, nil
}
