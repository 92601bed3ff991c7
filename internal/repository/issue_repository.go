package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pranavraok/hostelvoice-api/internal/models"
)

const issueColumns = `id, title, description, category, priority, status, hostel_id, room_number, notes, images, reported_by, assigned_to, created_at, updated_at, resolved_at`

// IssueRepository provides persistence for reported issues.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository creates the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// GetByID returns an issue by identifier.
func (r *IssueRepository) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	query := fmt.Sprintf(`SELECT %s FROM issues WHERE id = $1 LIMIT 1`, issueColumns)
	var issue models.Issue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get issue by id: %w", err)
	}
	return &issue, nil
}

// GetByIDs returns the issues that exist for the given ids. Missing ids are
// silently skipped; callers decide whether partial resolution is acceptable.
func (r *IssueRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Issue, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM issues WHERE id = ANY($1) ORDER BY created_at ASC`, issueColumns)
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("get issues by ids: %w", err)
	}
	return issues, nil
}

// List returns issues based on filters with total count.
func (r *IssueRepository) List(ctx context.Context, filter models.IssueFilter) ([]models.Issue, int, error) {
	baseQuery := `FROM issues WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, *filter.Category)
	}
	if filter.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)+1))
		args = append(args, *filter.Priority)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.HostelID != "" {
		conditions = append(conditions, fmt.Sprintf("hostel_id = $%d", len(args)+1))
		args = append(args, filter.HostelID)
	}
	if filter.ReportedBy != "" {
		conditions = append(conditions, fmt.Sprintf("reported_by = $%d", len(args)+1))
		args = append(args, filter.ReportedBy)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, fmt.Sprintf("assigned_to = $%d", len(args)+1))
		args = append(args, filter.AssignedTo)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"priority":   true,
		"status":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", issueColumns, baseQuery, sortBy, sortOrder, pageSize, offset)
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}
	return issues, total, nil
}

// FindSimilar returns open issues sharing the exact category and hostel,
// newest first, excluding the reference issue.
func (r *IssueRepository) FindSimilar(ctx context.Context, category models.IssueCategory, hostelID, excludeID string, statuses []models.IssueStatus, limit int) ([]models.Issue, error) {
	if limit <= 0 {
		limit = 5
	}
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	query := fmt.Sprintf(`SELECT %s FROM issues
WHERE category = $1 AND hostel_id = $2 AND id <> $3 AND status = ANY($4)
ORDER BY created_at DESC
LIMIT %d`, issueColumns, limit)
	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, category, hostelID, excludeID, pq.Array(values)); err != nil {
		return nil, fmt.Errorf("find similar issues: %w", err)
	}
	return issues, nil
}

// Create inserts a new issue.
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = now
	const query = `INSERT INTO issues (id, title, description, category, priority, status, hostel_id, room_number, notes, images, reported_by, assigned_to, created_at, updated_at, resolved_at)
VALUES (:id, :title, :description, :category, :priority, :status, :hostel_id, :room_number, :notes, :images, :reported_by, :assigned_to, :created_at, :updated_at, :resolved_at)`
	if _, err := r.db.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// Update modifies mutable fields of an issue.
func (r *IssueRepository) Update(ctx context.Context, issue *models.Issue) error {
	issue.UpdatedAt = time.Now().UTC()
	const query = `UPDATE issues SET title = :title, description = :description, category = :category, priority = :priority,
status = :status, room_number = :room_number, notes = :notes, images = :images, assigned_to = :assigned_to,
updated_at = :updated_at, resolved_at = :resolved_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return nil
}

// ApplyMerge writes the combined master state and closes the duplicates in a
// single transaction. The master update must land together with the closures
// because closing a duplicate overwrites its notes on the assumption they
// were already copied onto the master.
func (r *IssueRepository) ApplyMerge(ctx context.Context, masterID, notes string, images models.StringList, duplicates []models.DuplicateClosure) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("merge: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const masterQuery = `UPDATE issues SET notes = $2, images = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, masterQuery, masterID, notes, images, now); err != nil {
		return fmt.Errorf("merge: update master %s: %w", masterID, err)
	}

	const closeQuery = `UPDATE issues SET status = $2, notes = $3, updated_at = $4 WHERE id = $1`
	for _, dup := range duplicates {
		if _, err := tx.ExecContext(ctx, closeQuery, dup.ID, models.IssueStatusClosed, dup.Notes, now); err != nil {
			return fmt.Errorf("merge: close duplicate %s: %w", dup.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("merge: commit: %w", err)
	}
	return nil
}

// Delete removes an issue permanently.
func (r *IssueRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM issues WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	return nil
}
