package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

type mockMergeRepo struct {
	issues map[string]models.Issue

	applyErr     error
	applyCalls   int
	appliedNotes string
	appliedImgs  models.StringList
	closures     []models.DuplicateClosure
}

func (m *mockMergeRepo) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	if issue, ok := m.issues[id]; ok {
		copied := issue
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMergeRepo) GetByIDs(ctx context.Context, ids []string) ([]models.Issue, error) {
	var found []models.Issue
	for _, id := range ids {
		if issue, ok := m.issues[id]; ok {
			found = append(found, issue)
		}
	}
	return found, nil
}

func (m *mockMergeRepo) ApplyMerge(ctx context.Context, masterID, notes string, images models.StringList, duplicates []models.DuplicateClosure) error {
	m.applyCalls++
	if m.applyErr != nil {
		return m.applyErr
	}
	m.appliedNotes = notes
	m.appliedImgs = images
	m.closures = duplicates

	master := m.issues[masterID]
	master.Notes = notes
	master.Images = images
	m.issues[masterID] = master
	for _, dup := range duplicates {
		issue := m.issues[dup.ID]
		issue.Status = models.IssueStatusClosed
		issue.Notes = dup.Notes
		m.issues[dup.ID] = issue
	}
	return nil
}

type mockAuditor struct {
	actions  []string
	payloads []interface{}
}

func (m *mockAuditor) Record(ctx context.Context, actorID, action, resource, resourceID string, payload interface{}) {
	m.actions = append(m.actions, action)
	m.payloads = append(m.payloads, payload)
}

type sentNotification struct {
	userID string
	title  string
}

type mockNotifier struct {
	many []sentNotification
	one  []sentNotification
}

func (m *mockNotifier) NotifyMany(ctx context.Context, userIDs []string, typ models.NotificationType, title, message string, referenceID *string) {
	for _, id := range userIDs {
		m.many = append(m.many, sentNotification{userID: id, title: title})
	}
}

func (m *mockNotifier) NotifyOne(ctx context.Context, userID string, typ models.NotificationType, title, message string, referenceID *string) {
	m.one = append(m.one, sentNotification{userID: userID, title: title})
}

func newMergeFixture(issues ...models.Issue) (*IssueMergeService, *mockMergeRepo, *mockAuditor, *mockNotifier) {
	repo := &mockMergeRepo{issues: make(map[string]models.Issue)}
	for _, issue := range issues {
		repo.issues[issue.ID] = issue
	}
	audit := &mockAuditor{}
	notifier := &mockNotifier{}
	svc := NewIssueMergeService(repo, audit, notifier, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	return svc, repo, audit, notifier
}

func openIssue(id, title, notes, reporter string, images ...string) models.Issue {
	return models.Issue{
		ID:         id,
		Title:      title,
		Category:   models.IssueCategoryMaintenance,
		Priority:   models.IssuePriorityMedium,
		Status:     models.IssueStatusPending,
		HostelID:   "hostel-a",
		Notes:      notes,
		Images:     images,
		ReportedBy: reporter,
	}
}

func TestMergeCombinesNotesInOrder(t *testing.T) {
	master := openIssue("m1", "Water leak in bathroom", "leak started", "r-master")
	d1 := openIssue("d1", "Leak again", "same leak, room 203", "r1")
	d2 := openIssue("d2", "Bathroom leaking", "", "r2")
	svc, repo, _, _ := newMergeFixture(master, d1, d2)

	result, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleWarden,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1", "d2"},
		MergeNotes:        "confirmed single leak",
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	notes := repo.appliedNotes
	posMaster := strings.Index(notes, "leak started")
	posMerge := strings.Index(notes, "confirmed single leak")
	posD1 := strings.Index(notes, "same leak, room 203")
	posSummary := strings.Index(notes, "Merged 2 duplicate issue(s)")
	require.GreaterOrEqual(t, posMaster, 0)
	require.Greater(t, posMerge, posMaster)
	require.Greater(t, posD1, posMerge)
	require.Greater(t, posSummary, posD1)

	// D2 contributed no note text but is still referenced in the summary.
	assert.Contains(t, notes, `"Leak again" (d1)`)
	assert.Contains(t, notes, `"Bathroom leaking" (d2)`)
	assert.Equal(t, 2, result.MergedCount)
}

func TestMergeClosesDuplicatesWithPointer(t *testing.T) {
	svc, repo, _, _ := newMergeFixture(
		openIssue("m1", "Master", "", "r-master"),
		openIssue("d1", "Dup", "details", "r1"),
	)

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1"},
	})
	require.NoError(t, err)

	require.Len(t, repo.closures, 1)
	assert.Equal(t, "d1", repo.closures[0].ID)
	assert.Equal(t, "Merged into issue m1", repo.closures[0].Notes)
	assert.Equal(t, models.IssueStatusClosed, repo.issues["d1"].Status)
}

func TestMergeRejectsNonStaff(t *testing.T) {
	svc, repo, audit, _ := newMergeFixture(
		openIssue("m1", "Master", "", "r-master"),
		openIssue("d1", "Dup", "", "r1"),
	)

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "student-1",
		ActorRole:         models.RoleStudent,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.applyCalls)
	assert.Empty(t, audit.actions)
}

func TestMergeSelfOnlyFailsValidation(t *testing.T) {
	svc, repo, _, _ := newMergeFixture(openIssue("m1", "Master", "", "r-master"))

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleWarden,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"m1"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.applyCalls)
}

func TestMergeClosedMasterRejected(t *testing.T) {
	master := openIssue("m1", "Master", "", "r-master")
	master.Status = models.IssueStatusClosed
	svc, repo, audit, notifier := newMergeFixture(master, openIssue("d1", "Dup", "", "r1"))

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.applyCalls)
	assert.Empty(t, audit.actions)
	assert.Empty(t, notifier.many)
	assert.Empty(t, notifier.one)
}

func TestMergeMasterNotFound(t *testing.T) {
	svc, _, _, _ := newMergeFixture(openIssue("d1", "Dup", "", "r1"))

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "missing",
		DuplicateIssueIDs: []string{"d1"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestMergeNoDuplicatesResolved(t *testing.T) {
	svc, repo, _, _ := newMergeFixture(openIssue("m1", "Master", "", "r-master"))

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"ghost-1", "ghost-2"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.applyCalls)
}

func TestMergeToleratesPartialResolution(t *testing.T) {
	svc, repo, _, _ := newMergeFixture(
		openIssue("m1", "Master", "", "r-master"),
		openIssue("d1", "Dup", "", "r1"),
	)

	result, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1", "ghost"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.MergedCount)
	assert.Equal(t, []string{"d1"}, result.MergedIssueIDs)
	assert.Equal(t, 1, repo.applyCalls)
}

func TestMergeImagesDedupFirstAppearance(t *testing.T) {
	master := openIssue("m1", "Master", "", "r-master", "a", "b")
	d1 := openIssue("d1", "Dup1", "", "r1", "b", "c")
	d2 := openIssue("d2", "Dup2", "", "r2", "c", "d", "e", "f", "g", "h", "i")
	svc, repo, _, _ := newMergeFixture(master, d1, d2)

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1", "d2"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"a", "b", "c", "d", "e", "f", "g", "h", "i"}, repo.appliedImgs)
}

func TestMergeImagesCappedAtTen(t *testing.T) {
	var masterImgs, dupImgs []string
	for i := 0; i < 7; i++ {
		masterImgs = append(masterImgs, fmt.Sprintf("m%d", i))
	}
	for i := 0; i < 7; i++ {
		dupImgs = append(dupImgs, fmt.Sprintf("d%d", i))
	}
	svc, repo, _, _ := newMergeFixture(
		openIssue("m1", "Master", "", "r-master", masterImgs...),
		openIssue("d1", "Dup", "", "r1", dupImgs...),
	)

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1"},
	})
	require.NoError(t, err)
	require.Len(t, repo.appliedImgs, models.MaxIssueImages)
	assert.Equal(t, "m0", repo.appliedImgs[0])
	assert.Equal(t, "d2", repo.appliedImgs[9])
}

func TestMergeNotificationExclusions(t *testing.T) {
	// Reporter r-shared reported both the master and one duplicate: they must
	// receive only the distinct master-reporter notification, never the
	// generic one.
	master := openIssue("m1", "Master", "", "r-shared")
	d1 := openIssue("d1", "Dup1", "", "r-shared")
	d2 := openIssue("d2", "Dup2", "", "r-other")
	svc, _, _, notifier := newMergeFixture(master, d1, d2)

	result, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1", "d2"},
	})
	require.NoError(t, err)

	require.Len(t, notifier.many, 1)
	assert.Equal(t, "r-other", notifier.many[0].userID)
	require.Len(t, notifier.one, 1)
	assert.Equal(t, "r-shared", notifier.one[0].userID)
	assert.ElementsMatch(t, []string{"r-other", "r-shared"}, result.NotifiedUserIDs)
}

func TestMergeActorIsMasterReporter(t *testing.T) {
	master := openIssue("m1", "Master", "", "staff-1")
	d1 := openIssue("d1", "Dup", "", "r1")
	svc, _, _, notifier := newMergeFixture(master, d1)

	result, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleWarden,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1"},
	})
	require.NoError(t, err)

	// The actor merged into their own report: no self notification.
	assert.Empty(t, notifier.one)
	require.Len(t, notifier.many, 1)
	assert.Equal(t, []string{"r1"}, result.NotifiedUserIDs)
}

func TestMergeRecordsAudit(t *testing.T) {
	svc, _, audit, _ := newMergeFixture(
		openIssue("m1", "Master", "", "r-master"),
		openIssue("d1", "Dup", "", "r1"),
		openIssue("d2", "Dup2", "", "r2"),
	)

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1", "d2", "d1"},
	})
	require.NoError(t, err)

	require.Len(t, audit.actions, 1)
	assert.Equal(t, models.AuditActionIssueMerge, audit.actions[0])
	payload, ok := audit.payloads[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []string{"d1", "d2"}, payload["merged_issue_ids"])
}

func TestMergeStoreFailurePropagates(t *testing.T) {
	svc, repo, audit, notifier := newMergeFixture(
		openIssue("m1", "Master", "", "r-master"),
		openIssue("d1", "Dup", "", "r1"),
	)
	repo.applyErr = fmt.Errorf("connection reset")

	_, err := svc.Merge(context.Background(), MergeIssuesRequest{
		ActorID:           "staff-1",
		ActorRole:         models.RoleAdmin,
		MasterIssueID:     "m1",
		DuplicateIssueIDs: []string{"d1"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, audit.actions)
	assert.Empty(t, notifier.many)
	assert.Empty(t, notifier.one)
}

func TestFilterDuplicateIDs(t *testing.T) {
	filtered := filterDuplicateIDs("m1", []string{"d2", "m1", "d1", "d2", "", "d3"})
	assert.Equal(t, []string{"d2", "d1", "d3"}, filtered)
}
