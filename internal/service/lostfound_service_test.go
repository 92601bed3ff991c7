package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

type mockLostFoundRepo struct {
	items   map[string]*models.LostFoundItem
	updated *models.LostFoundItem
	deleted []string
}

func (m *mockLostFoundRepo) GetByID(ctx context.Context, id string) (*models.LostFoundItem, error) {
	if item, ok := m.items[id]; ok {
		copy := *item
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLostFoundRepo) List(ctx context.Context, filter models.LostFoundFilter) ([]models.LostFoundItem, int, error) {
	var items []models.LostFoundItem
	for _, item := range m.items {
		items = append(items, *item)
	}
	return items, len(items), nil
}

func (m *mockLostFoundRepo) Create(ctx context.Context, item *models.LostFoundItem) error {
	if m.items == nil {
		m.items = make(map[string]*models.LostFoundItem)
	}
	copy := *item
	m.items[item.ID] = &copy
	return nil
}

func (m *mockLostFoundRepo) Update(ctx context.Context, item *models.LostFoundItem) error {
	m.updated = item
	copy := *item
	m.items[item.ID] = &copy
	return nil
}

func (m *mockLostFoundRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestLostFoundCreateNormalizesKind(t *testing.T) {
	repo := &mockLostFoundRepo{}
	svc := NewLostFoundService(repo, nil, nil, zap.NewNop())

	item, err := svc.Create(context.Background(), CreateLostFoundRequest{
		Kind:       "found",
		Title:      "Black umbrella",
		Location:   "Mess hall",
		HostelID:   "h1",
		ReportedBy: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LostFoundKindFound, item.Kind)
	assert.Equal(t, models.LostFoundStatusOpen, item.Status)
	assert.NotEmpty(t, item.ID)
}

func TestLostFoundCreateRejectsUnknownKind(t *testing.T) {
	svc := NewLostFoundService(&mockLostFoundRepo{}, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateLostFoundRequest{
		Kind:       "MISPLACED",
		Title:      "x",
		Location:   "y",
		HostelID:   "h1",
		ReportedBy: "u1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLostFoundClaimNotifiesReporter(t *testing.T) {
	repo := &mockLostFoundRepo{items: map[string]*models.LostFoundItem{
		"lf1": {ID: "lf1", Title: "Wallet", Status: models.LostFoundStatusOpen, ReportedBy: "reporter"},
	}}
	notifier := &mockNotifier{}
	svc := NewLostFoundService(repo, notifier, nil, zap.NewNop())

	item, err := svc.Claim(context.Background(), "lf1", "claimant")
	require.NoError(t, err)
	assert.Equal(t, models.LostFoundStatusClaimed, item.Status)
	require.NotNil(t, item.ClaimedBy)
	assert.Equal(t, "claimant", *item.ClaimedBy)
	require.NotNil(t, item.ClaimedAt)

	require.Len(t, notifier.one, 1)
	assert.Equal(t, "reporter", notifier.one[0].userID)
	assert.Equal(t, "Item claimed", notifier.one[0].title)
}

func TestLostFoundClaimOwnReportRejected(t *testing.T) {
	repo := &mockLostFoundRepo{items: map[string]*models.LostFoundItem{
		"lf1": {ID: "lf1", Status: models.LostFoundStatusOpen, ReportedBy: "u1"},
	}}
	svc := NewLostFoundService(repo, nil, nil, zap.NewNop())

	_, err := svc.Claim(context.Background(), "lf1", "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.updated)
}

func TestLostFoundClaimRequiresOpenItem(t *testing.T) {
	repo := &mockLostFoundRepo{items: map[string]*models.LostFoundItem{
		"lf1": {ID: "lf1", Status: models.LostFoundStatusClaimed, ReportedBy: "reporter"},
	}}
	svc := NewLostFoundService(repo, nil, nil, zap.NewNop())

	_, err := svc.Claim(context.Background(), "lf1", "claimant")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestLostFoundResolveReturnedRequiresClaim(t *testing.T) {
	repo := &mockLostFoundRepo{items: map[string]*models.LostFoundItem{
		"lf1": {ID: "lf1", Status: models.LostFoundStatusOpen, ReportedBy: "reporter"},
	}}
	svc := NewLostFoundService(repo, nil, nil, zap.NewNop())

	_, err := svc.Resolve(context.Background(), "lf1", true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	item, err := svc.Resolve(context.Background(), "lf1", false)
	require.NoError(t, err)
	assert.Equal(t, models.LostFoundStatusClosed, item.Status)
}

func TestLostFoundResolveAlreadyResolved(t *testing.T) {
	repo := &mockLostFoundRepo{items: map[string]*models.LostFoundItem{
		"lf1": {ID: "lf1", Status: models.LostFoundStatusReturned},
	}}
	svc := NewLostFoundService(repo, nil, nil, zap.NewNop())

	_, err := svc.Resolve(context.Background(), "lf1", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestLostFoundDeletePermissions(t *testing.T) {
	repo := &mockLostFoundRepo{items: map[string]*models.LostFoundItem{
		"lf1": {ID: "lf1", ReportedBy: "owner"},
		"lf2": {ID: "lf2", ReportedBy: "owner"},
	}}
	svc := NewLostFoundService(repo, nil, nil, zap.NewNop())

	err := svc.Delete(context.Background(), "lf1", "stranger", models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), "lf1", "owner", models.RoleStudent))
	require.NoError(t, svc.Delete(context.Background(), "lf2", "warden-1", models.RoleWarden))
	assert.ElementsMatch(t, []string{"lf1", "lf2"}, repo.deleted)
}
