package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

type uploadStore interface {
	Create(ctx context.Context, item *models.Upload) error
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	List(ctx context.Context, filter models.UploadFilter) ([]models.Upload, error)
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type uploadIssueStore interface {
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	Update(ctx context.Context, issue *models.Issue) error
}

type uploadFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type uploadSignedURLSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

// FileUpload carries upload metadata and a stream reader.
type FileUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.ReadSeeker
}

// UploadDownload bundles file reader metadata for streaming.
type UploadDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// UploadServiceConfig holds validation parameters for issue images.
type UploadServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// UploadService manages issue image metadata and storage IO.
type UploadService struct {
	repo    uploadStore
	issues  uploadIssueStore
	storage uploadFileStorage
	signer  uploadSignedURLSigner
	audit   mergeAuditor
	logger  *zap.Logger
	cfg     UploadServiceConfig
	mimeSet map[string]struct{}
}

// NewUploadService constructs the service with defaults.
func NewUploadService(repo uploadStore, issues uploadIssueStore, storage uploadFileStorage, signer uploadSignedURLSigner, audit mergeAuditor, logger *zap.Logger, cfg UploadServiceConfig) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"image/jpeg", "image/png", "image/webp"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &UploadService{
		repo:    repo,
		issues:  issues,
		storage: storage,
		signer:  signer,
		audit:   audit,
		logger:  logger,
		cfg:     cfg,
		mimeSet: mimeSet,
	}
}

// Create persists metadata and the physical file for a new issue image,
// and appends the stored path to the issue's image references.
func (s *UploadService) Create(ctx context.Context, issueID string, upload FileUpload, actor *models.JWTClaims) (*models.Upload, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(issueID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "issue_id is required")
	}
	issue, err := s.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && issue.ReportedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if issue.Status == models.IssueStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot attach images to a closed issue")
	}
	if len(issue.Images) >= models.MaxIssueImages {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("issue already has %d images", models.MaxIssueImages))
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	mimeType, err := s.detectMime(upload)
	if err != nil {
		return nil, err
	}
	if _, allowed := s.mimeSet[strings.ToLower(mimeType)]; !allowed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "mime type not allowed")
	}
	filename := s.generateFilename(issueID, upload.Filename, mimeType)
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	path, err := s.storage.SaveStream(filename, upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist image file")
	}
	item := &models.Upload{
		IssueID:    issueID,
		FilePath:   path,
		MimeType:   mimeType,
		SizeBytes:  upload.Size,
		UploadedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		_ = s.storage.Delete(path)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create upload metadata")
	}
	issue.Images = append(issue.Images, path)
	if err := s.issues.Update(ctx, issue); err != nil {
		s.logger.Warn("failed to attach image reference to issue",
			zap.Error(err), zap.String("issue_id", issueID), zap.String("upload_id", item.ID))
	}
	if s.audit != nil {
		s.audit.Record(ctx, actor.UserID, models.AuditActionUploadCreate, "upload", item.ID, map[string]interface{}{
			"issue_id":  issueID,
			"mime_type": mimeType,
		})
	}
	return item, nil
}

// ListByIssue returns the stored images for one issue.
func (s *UploadService) ListByIssue(ctx context.Context, issueID string, actor *models.JWTClaims) ([]models.Upload, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(issueID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "issue_id is required")
	}
	items, err := s.repo.List(ctx, models.UploadFilter{IssueID: issueID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list uploads")
	}
	return items, nil
}

// Get returns upload metadata.
func (s *UploadService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Upload, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upload")
	}
	if item.DeletedAt != nil {
		return nil, appErrors.ErrNotFound
	}
	return item, nil
}

// GetDownloadURL generates a signed URL for downloading the image.
func (s *UploadService) GetDownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error) {
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	item, err := s.Get(ctx, id, actor)
	if err != nil {
		return "", err
	}
	token, _, err := s.signer.Generate(item.ID, item.FilePath)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return fmt.Sprintf("%s/uploads/%s/download?token=%s", base, item.ID, token), nil
}

// Download validates the signed token and opens the image file.
func (s *UploadService) Download(ctx context.Context, id, token string, actor *models.JWTClaims) (*UploadDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	item, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	uploadID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if uploadID != item.ID || relPath != item.FilePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open image file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read image metadata")
	}
	return &UploadDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		MimeType:  item.MimeType,
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

// Delete soft deletes an upload and removes its reference from the issue.
func (s *UploadService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	item, err := s.Get(ctx, id, actor)
	if err != nil {
		return err
	}
	if !actor.Role.IsStaff() && item.UploadedBy != actor.UserID {
		return appErrors.ErrForbidden
	}
	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete upload")
	}
	s.detachFromIssue(ctx, item)
	if s.audit != nil {
		s.audit.Record(ctx, actor.UserID, models.AuditActionUploadDelete, "upload", id, map[string]interface{}{
			"issue_id": item.IssueID,
		})
	}
	return nil
}

func (s *UploadService) loadIssue(ctx context.Context, issueID string) (*models.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return issue, nil
}

func (s *UploadService) detachFromIssue(ctx context.Context, item *models.Upload) {
	issue, err := s.issues.GetByID(ctx, item.IssueID)
	if err != nil {
		s.logger.Warn("failed to load issue for image detach", zap.Error(err), zap.String("issue_id", item.IssueID))
		return
	}
	kept := make(models.StringList, 0, len(issue.Images))
	for _, ref := range issue.Images {
		if ref != item.FilePath {
			kept = append(kept, ref)
		}
	}
	if len(kept) == len(issue.Images) {
		return
	}
	issue.Images = kept
	if err := s.issues.Update(ctx, issue); err != nil {
		s.logger.Warn("failed to detach image reference from issue", zap.Error(err), zap.String("issue_id", item.IssueID))
	}
}

func (s *UploadService) detectMime(upload FileUpload) (string, error) {
	if upload.Content == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "file reader missing")
	}
	if upload.MimeType != "" {
		return upload.MimeType, nil
	}
	header := make([]byte, 512)
	n, err := upload.Content.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	return http.DetectContentType(header[:n]), nil
}

func (s *UploadService) generateFilename(issueID, original, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = imageExtension(mimeType)
	}
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("issue_%s_%d_%s%s", issueID, time.Now().Unix(), randomSuffix(), ext)
}

func imageExtension(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
