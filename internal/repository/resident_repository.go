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

const residentColumns = `id, user_id, full_name, email, phone, hostel_id, room_number, checked_in, checked_out, active, created_at, updated_at`

// ResidentRepository provides persistence for the resident directory.
type ResidentRepository struct {
	db *sqlx.DB
}

// NewResidentRepository creates the repository.
func NewResidentRepository(db *sqlx.DB) *ResidentRepository {
	return &ResidentRepository{db: db}
}

// FindByID returns a resident by identifier.
func (r *ResidentRepository) FindByID(ctx context.Context, id string) (*models.Resident, error) {
	query := fmt.Sprintf(`SELECT %s FROM residents WHERE id = $1 LIMIT 1`, residentColumns)
	var resident models.Resident
	if err := r.db.GetContext(ctx, &resident, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find resident by id: %w", err)
	}
	return &resident, nil
}

// List returns residents based on filters with total count.
func (r *ResidentRepository) List(ctx context.Context, filter models.ResidentFilter) ([]models.Resident, int, error) {
	baseQuery := `FROM residents WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.HostelID != "" {
		conditions = append(conditions, fmt.Sprintf("hostel_id = $%d", len(args)+1))
		args = append(args, filter.HostelID)
	}
	if filter.RoomNumber != "" {
		conditions = append(conditions, fmt.Sprintf("room_number = $%d", len(args)+1))
		args = append(args, filter.RoomNumber)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"full_name":   true,
		"room_number": true,
		"checked_in":  true,
		"created_at":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "full_name"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", residentColumns, baseQuery, sortBy, sortOrder, pageSize, offset)
	var residents []models.Resident
	if err := r.db.SelectContext(ctx, &residents, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list residents: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count residents: %w", err)
	}
	return residents, total, nil
}

// Create inserts a new resident entry.
func (r *ResidentRepository) Create(ctx context.Context, resident *models.Resident) error {
	if resident.ID == "" {
		resident.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if resident.CreatedAt.IsZero() {
		resident.CreatedAt = now
	}
	resident.UpdatedAt = now
	const query = `INSERT INTO residents (id, user_id, full_name, email, phone, hostel_id, room_number, checked_in, checked_out, active, created_at, updated_at)
VALUES (:id, :user_id, :full_name, :email, :phone, :hostel_id, :room_number, :checked_in, :checked_out, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, resident); err != nil {
		return fmt.Errorf("create resident: %w", err)
	}
	return nil
}

// Update modifies mutable fields of a resident.
func (r *ResidentRepository) Update(ctx context.Context, resident *models.Resident) error {
	resident.UpdatedAt = time.Now().UTC()
	const query = `UPDATE residents SET full_name = :full_name, email = :email, phone = :phone, hostel_id = :hostel_id,
room_number = :room_number, checked_in = :checked_in, checked_out = :checked_out, active = :active, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, resident); err != nil {
		return fmt.Errorf("update resident: %w", err)
	}
	return nil
}

// CheckOut marks a resident as moved out.
func (r *ResidentRepository) CheckOut(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE residents SET checked_out = $2, active = FALSE, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at, time.Now().UTC()); err != nil {
		return fmt.Errorf("check out resident: %w", err)
	}
	return nil
}
