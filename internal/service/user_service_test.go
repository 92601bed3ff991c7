package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

type mockUserRepo struct {
	users          map[string]*models.User
	listUsers      []models.User
	listCount      int
	listErr        error
	findByIDErr    error
	findByEmailErr error
	approvalErr    error
	auditLogs      []*models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	if m.listUsers != nil {
		return m.listUsers, m.listCount, nil
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) UpdateApproval(ctx context.Context, id string, status models.ApprovalStatus, active bool) error {
	if m.approvalErr != nil {
		return m.approvalErr
	}
	if user, ok := m.users[id]; ok {
		user.Approval = status
		user.Active = active
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		m.users[id] = user
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Email: "a@example.com"}}, listCount: 1}
	svc := NewUserService(repo, nil, validator.New(), zap.NewNop())
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserServiceRegisterCreatesPendingStudent(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	repo.findByEmailErr = sql.ErrNoRows
	svc := NewUserService(repo, nil, validator.New(), zap.NewNop())

	user, err := svc.Register(context.Background(), RegisterRequest{
		Email:      "NEW@EXAMPLE.COM",
		FullName:   "New Resident",
		Password:   "secret1",
		HostelID:   "h1",
		RoomNumber: "B-204",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Equal(t, models.ApprovalPending, user.Approval)
	assert.False(t, user.Active)
}

func TestUserServiceRegisterDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "taken@example.com"}}}
	svc := NewUserService(repo, nil, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "taken@example.com",
		FullName: "Dup",
		Password: "secret1",
		HostelID: "h1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceApproveActivatesAccount(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", Email: "pend@example.com", Role: models.RoleStudent, Approval: models.ApprovalPending},
	}}
	notifier := &mockNotifier{}
	svc := NewUserService(repo, notifier, validator.New(), zap.NewNop())

	user, err := svc.Approve(context.Background(), "1", "admin-1", models.LoginRequest{IP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, user.Approval)
	assert.True(t, user.Active)
	assert.True(t, repo.users["1"].Active)

	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserApprove, repo.auditLogs[0].Action)
	require.Len(t, notifier.one, 1)
	assert.Equal(t, "Account approved", notifier.one[0].title)
}

func TestUserServiceRejectKeepsAccountInactive(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", Email: "pend@example.com", Role: models.RoleStudent, Approval: models.ApprovalPending},
	}}
	notifier := &mockNotifier{}
	svc := NewUserService(repo, notifier, validator.New(), zap.NewNop())

	user, err := svc.Reject(context.Background(), "1", "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, user.Approval)
	assert.False(t, user.Active)

	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserReject, repo.auditLogs[0].Action)
	require.Len(t, notifier.one, 1)
	assert.Equal(t, "Account rejected", notifier.one[0].title)
}

func TestUserServiceApproveRequiresPendingState(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"1": {ID: "1", Email: "done@example.com", Approval: models.ApprovalApproved, Active: true},
	}}
	svc := NewUserService(repo, nil, validator.New(), zap.NewNop())

	_, err := svc.Approve(context.Background(), "1", "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.auditLogs)
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	repo.findByEmailErr = sql.ErrNoRows
	svc := NewUserService(repo, nil, validator.New(), zap.NewNop())
	user, err := svc.Create(context.Background(), CreateUserRequest{Email: "USER@EXAMPLE.COM", FullName: "User", Password: "secret1", Role: models.RoleAdmin, Active: true}, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, models.ApprovalApproved, user.Approval)
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserServiceUpdate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", FullName: "Old", Role: models.RoleStudent, Active: true}}}
	svc := NewUserService(repo, nil, validator.New(), zap.NewNop())
	active := false
	user, err := svc.Update(context.Background(), "1", UpdateUserRequest{FullName: "New", Role: models.RoleWarden, Active: &active}, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleWarden, user.Role)
	assert.False(t, user.Active)
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", FullName: "Old", Role: models.RoleStudent, Active: true}}}
	svc := NewUserService(repo, nil, validator.New(), zap.NewNop())
	err := svc.Delete(context.Background(), "1", "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.False(t, repo.users["1"].Active)
	assert.NotEmpty(t, repo.auditLogs)
}
