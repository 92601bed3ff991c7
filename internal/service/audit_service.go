package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

type auditRepository interface {
	Append(ctx context.Context, log *models.AuditLog) error
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

// AuditService records the immutable action trail.
//
// Record is best-effort by contract: append failures are logged and swallowed
// so a primary operation is never failed by its audit write.
type AuditService struct {
	repo   auditRepository
	logger *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(repo auditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record appends one audit entry. The payload is marshalled into new_values.
func (s *AuditService) Record(ctx context.Context, actorID, action, resource, resourceID string, payload interface{}) {
	var newValues []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn("failed to marshal audit payload", zap.String("action", action), zap.Error(err))
		} else {
			newValues = data
		}
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  newValues,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append audit log",
			zap.String("action", action),
			zap.String("resource", resource),
			zap.String("resource_id", resourceID),
			zap.Error(err))
	}
}

// Trail returns the recorded entries for one entity, newest first.
func (s *AuditService) Trail(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	logs, err := s.repo.ListByResource(ctx, resource, resourceID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return logs, nil
}
