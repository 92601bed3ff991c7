package service

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
	"github.com/pranavraok/hostelvoice-api/pkg/storage"
)

// Minimal valid PNG header so content sniffing resolves to image/png.
var pngBytes = append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)

type mockUploadStore struct {
	items   map[string]*models.Upload
	deleted []string
}

func newMockUploadStore() *mockUploadStore {
	return &mockUploadStore{items: make(map[string]*models.Upload)}
}

func (m *mockUploadStore) Create(ctx context.Context, item *models.Upload) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.UploadedAt = time.Now().UTC()
	stored := *item
	m.items[item.ID] = &stored
	return nil
}

func (m *mockUploadStore) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (m *mockUploadStore) List(ctx context.Context, filter models.UploadFilter) ([]models.Upload, error) {
	var out []models.Upload
	for _, item := range m.items {
		if filter.IssueID != "" && item.IssueID != filter.IssueID {
			continue
		}
		if item.DeletedAt != nil && !filter.IncludeDeleted {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (m *mockUploadStore) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	item, ok := m.items[id]
	if !ok || item.DeletedAt != nil {
		return sql.ErrNoRows
	}
	item.DeletedAt = &deletedAt
	m.deleted = append(m.deleted, id)
	return nil
}

type mockUploadIssueStore struct {
	issues  map[string]*models.Issue
	updated *models.Issue
}

func (m *mockUploadIssueStore) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	issue, ok := m.issues[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *issue
	return &copied, nil
}

func (m *mockUploadIssueStore) Update(ctx context.Context, issue *models.Issue) error {
	copied := *issue
	m.issues[issue.ID] = &copied
	m.updated = &copied
	return nil
}

func newUploadFixture(t *testing.T, issues ...models.Issue) (*UploadService, *mockUploadStore, *mockUploadIssueStore, *mockAuditor) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	repo := newMockUploadStore()
	issueStore := &mockUploadIssueStore{issues: make(map[string]*models.Issue)}
	for _, issue := range issues {
		copied := issue
		issueStore.issues[issue.ID] = &copied
	}
	audit := &mockAuditor{}
	svc := NewUploadService(repo, issueStore, store, signer, audit, zap.NewNop(), UploadServiceConfig{APIPrefix: "/api/v1"})
	return svc, repo, issueStore, audit
}

func staffClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleWarden}
}

func TestUploadServiceCreateAttachesToIssue(t *testing.T) {
	svc, repo, issueStore, audit := newUploadFixture(t, models.Issue{
		ID: "i1", Status: models.IssueStatusPending, ReportedBy: "u1",
	})

	item, err := svc.Create(context.Background(), "i1", FileUpload{
		Filename: "leak.png",
		Size:     int64(len(pngBytes)),
		Content:  bytes.NewReader(pngBytes),
	}, staffClaims("warden-1"))
	require.NoError(t, err)
	assert.Equal(t, "image/png", item.MimeType)
	assert.Equal(t, "warden-1", item.UploadedBy)
	require.Len(t, repo.items, 1)

	require.NotNil(t, issueStore.updated)
	require.Len(t, issueStore.updated.Images, 1)
	assert.Equal(t, item.FilePath, issueStore.updated.Images[0])
	assert.Contains(t, audit.actions, models.AuditActionUploadCreate)
}

func TestUploadServiceCreateReporterAllowed(t *testing.T) {
	svc, _, _, _ := newUploadFixture(t, models.Issue{
		ID: "i1", Status: models.IssueStatusPending, ReportedBy: "u1",
	})

	_, err := svc.Create(context.Background(), "i1", FileUpload{
		Filename: "leak.png",
		Size:     int64(len(pngBytes)),
		Content:  bytes.NewReader(pngBytes),
	}, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)
}

func TestUploadServiceCreateStrangerForbidden(t *testing.T) {
	svc, _, _, _ := newUploadFixture(t, models.Issue{
		ID: "i1", Status: models.IssueStatusPending, ReportedBy: "u1",
	})

	_, err := svc.Create(context.Background(), "i1", FileUpload{
		Filename: "leak.png",
		Size:     int64(len(pngBytes)),
		Content:  bytes.NewReader(pngBytes),
	}, &models.JWTClaims{UserID: "u2", Role: models.RoleStudent})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestUploadServiceCreateRejectsClosedIssue(t *testing.T) {
	svc, _, _, _ := newUploadFixture(t, models.Issue{
		ID: "i1", Status: models.IssueStatusClosed, ReportedBy: "u1",
	})

	_, err := svc.Create(context.Background(), "i1", FileUpload{
		Filename: "leak.png",
		Size:     int64(len(pngBytes)),
		Content:  bytes.NewReader(pngBytes),
	}, staffClaims("warden-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestUploadServiceCreateEnforcesImageCap(t *testing.T) {
	images := make(models.StringList, models.MaxIssueImages)
	for i := range images {
		images[i] = uuid.NewString()
	}
	svc, _, _, _ := newUploadFixture(t, models.Issue{
		ID: "i1", Status: models.IssueStatusPending, ReportedBy: "u1", Images: images,
	})

	_, err := svc.Create(context.Background(), "i1", FileUpload{
		Filename: "leak.png",
		Size:     int64(len(pngBytes)),
		Content:  bytes.NewReader(pngBytes),
	}, staffClaims("warden-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUploadServiceCreateRejectsDisallowedMime(t *testing.T) {
	svc, _, _, _ := newUploadFixture(t, models.Issue{
		ID: "i1", Status: models.IssueStatusPending, ReportedBy: "u1",
	})

	_, err := svc.Create(context.Background(), "i1", FileUpload{
		Filename: "notes.txt",
		Size:     12,
		Content:  bytes.NewReader([]byte("just text...")),
	}, staffClaims("warden-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUploadServiceDownloadRoundTrip(t *testing.T) {
	svc, _, _, _ := newUploadFixture(t, models.Issue{
		ID: "i1", Status: models.IssueStatusPending, ReportedBy: "u1",
	})
	actor := staffClaims("warden-1")

	item, err := svc.Create(context.Background(), "i1", FileUpload{
		Filename: "leak.png",
		Size:     int64(len(pngBytes)),
		Content:  bytes.NewReader(pngBytes),
	}, actor)
	require.NoError(t, err)

	url, err := svc.GetDownloadURL(context.Background(), item.ID, actor)
	require.NoError(t, err)
	require.Contains(t, url, "/uploads/"+item.ID+"/download?token=")

	token := url[len("/api/v1/uploads/"+item.ID+"/download?token="):]
	download, err := svc.Download(context.Background(), item.ID, token, actor)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "image/png", download.MimeType)
	assert.Equal(t, int64(len(pngBytes)), download.SizeBytes)

	_, err = svc.Download(context.Background(), item.ID, "bogus", actor)
	require.Error(t, err)
}

func TestUploadServiceDeleteDetachesFromIssue(t *testing.T) {
	svc, repo, issueStore, audit := newUploadFixture(t, models.Issue{
		ID: "i1", Status: models.IssueStatusPending, ReportedBy: "u1",
	})
	actor := staffClaims("warden-1")

	item, err := svc.Create(context.Background(), "i1", FileUpload{
		Filename: "leak.png",
		Size:     int64(len(pngBytes)),
		Content:  bytes.NewReader(pngBytes),
	}, actor)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), item.ID, actor))
	assert.Contains(t, repo.deleted, item.ID)
	assert.Empty(t, issueStore.issues["i1"].Images)
	assert.Contains(t, audit.actions, models.AuditActionUploadDelete)

	_, err = svc.Get(context.Background(), item.ID, actor)
	require.Error(t, err)
}

func TestUploadServiceDeleteUploaderOnly(t *testing.T) {
	svc, _, _, _ := newUploadFixture(t, models.Issue{
		ID: "i1", Status: models.IssueStatusPending, ReportedBy: "u1",
	})

	item, err := svc.Create(context.Background(), "i1", FileUpload{
		Filename: "leak.png",
		Size:     int64(len(pngBytes)),
		Content:  bytes.NewReader(pngBytes),
	}, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), item.ID, &models.JWTClaims{UserID: "u2", Role: models.RoleStudent})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}
