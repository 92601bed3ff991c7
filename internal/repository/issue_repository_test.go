package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/pranavraok/hostelvoice-api/internal/models"
)

func newIssueRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func issueRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "title", "description", "category", "priority", "status", "hostel_id",
		"room_number", "notes", "images", "reported_by", "assigned_to", "created_at", "updated_at", "resolved_at",
	})
	for _, id := range ids {
		rows.AddRow(id, "Leaking tap", "desc", "MAINTENANCE", "HIGH", "PENDING", "h1",
			"101", "", `[]`, "u1", nil, time.Now(), time.Now(), nil)
	}
	return rows
}

func TestIssueRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	mock.ExpectQuery("SELECT .* FROM issues WHERE id = \\$1").
		WithArgs("i1").
		WillReturnRows(issueRows("i1"))

	issue, err := repo.GetByID(context.Background(), "i1")
	require.NoError(t, err)
	require.Equal(t, "i1", issue.ID)
	require.Equal(t, models.IssueCategoryMaintenance, issue.Category)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryGetByIDsEmptyInput(t *testing.T) {
	db, _, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	issues, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, issues)
}

func TestIssueRepositoryFindSimilar(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	mock.ExpectQuery("SELECT .* FROM issues\\s+WHERE category = \\$1 AND hostel_id = \\$2 AND id <> \\$3 AND status = ANY\\(\\$4\\)").
		WithArgs("MAINTENANCE", "h1", "i1", sqlmock.AnyArg()).
		WillReturnRows(issueRows("i2", "i3"))

	issues, err := repo.FindSimilar(context.Background(), models.IssueCategoryMaintenance, "h1", "i1",
		[]models.IssueStatus{models.IssueStatusPending, models.IssueStatusInProgress}, 5)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO issues")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	issue := &models.Issue{
		Title:       "Broken light",
		Description: "Corridor light out",
		Category:    models.IssueCategoryMaintenance,
		Priority:    models.IssuePriorityMedium,
		Status:      models.IssueStatusPending,
		HostelID:    "h1",
		ReportedBy:  "u1",
	}
	require.NoError(t, repo.Create(context.Background(), issue))
	require.NotEmpty(t, issue.ID)
	require.False(t, issue.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryApplyMergeCommitsTogether(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET notes = $2, images = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("m1", "combined notes", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET status = $2, notes = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("d1", "CLOSED", "Merged into issue m1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET status = $2, notes = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("d2", "CLOSED", "Merged into issue m1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApplyMerge(context.Background(), "m1", "combined notes", models.StringList{"a.jpg"}, []models.DuplicateClosure{
		{ID: "d1", Notes: "Merged into issue m1"},
		{ID: "d2", Notes: "Merged into issue m1"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryApplyMergeRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET notes = $2, images = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("m1", "combined notes", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET status = $2, notes = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("d1", "CLOSED", "Merged into issue m1", sqlmock.AnyArg()).
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := repo.ApplyMerge(context.Background(), "m1", "combined notes", nil, []models.DuplicateClosure{
		{ID: "d1", Notes: "Merged into issue m1"},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM issues WHERE id = $1")).
		WithArgs("i1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "i1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
