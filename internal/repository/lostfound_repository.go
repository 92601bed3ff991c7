package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pranavraok/hostelvoice-api/internal/models"
)

const lostFoundColumns = `id, kind, title, description, location, hostel_id, images, status, reported_by, claimed_by, claimed_at, created_at, updated_at`

// LostFoundRepository provides persistence for lost-and-found items.
type LostFoundRepository struct {
	db *sqlx.DB
}

// NewLostFoundRepository creates the repository.
func NewLostFoundRepository(db *sqlx.DB) *LostFoundRepository {
	return &LostFoundRepository{db: db}
}

// GetByID returns an item by identifier.
func (r *LostFoundRepository) GetByID(ctx context.Context, id string) (*models.LostFoundItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM lost_found_items WHERE id = $1 LIMIT 1`, lostFoundColumns)
	var item models.LostFoundItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get lost-found item: %w", err)
	}
	return &item, nil
}

// List returns items matching the filter with total count.
func (r *LostFoundRepository) List(ctx context.Context, filter models.LostFoundFilter) ([]models.LostFoundItem, int, error) {
	baseQuery := `FROM lost_found_items WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, *filter.Kind)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.HostelID != "" {
		conditions = append(conditions, fmt.Sprintf("hostel_id = $%d", len(args)+1))
		args = append(args, filter.HostelID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", lostFoundColumns, baseQuery, pageSize, offset)
	var items []models.LostFoundItem
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list lost-found items: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lost-found items: %w", err)
	}
	return items, total, nil
}

// Create inserts a new item.
func (r *LostFoundRepository) Create(ctx context.Context, item *models.LostFoundItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	const query = `INSERT INTO lost_found_items (id, kind, title, description, location, hostel_id, images, status, reported_by, claimed_by, claimed_at, created_at, updated_at)
VALUES (:id, :kind, :title, :description, :location, :hostel_id, :images, :status, :reported_by, :claimed_by, :claimed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create lost-found item: %w", err)
	}
	return nil
}

// Update modifies an existing item.
func (r *LostFoundRepository) Update(ctx context.Context, item *models.LostFoundItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lost_found_items SET title = :title, description = :description, location = :location,
images = :images, status = :status, claimed_by = :claimed_by, claimed_at = :claimed_at, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update lost-found item: %w", err)
	}
	return nil
}

// Delete removes an item.
func (r *LostFoundRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM lost_found_items WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete lost-found item: %w", err)
	}
	return nil
}
