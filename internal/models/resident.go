package models

import "time"

// Resident represents a hostel resident directory entry.
type Resident struct {
	ID         string     `db:"id" json:"id"`
	UserID     *string    `db:"user_id" json:"user_id,omitempty"`
	FullName   string     `db:"full_name" json:"full_name"`
	Email      string     `db:"email" json:"email"`
	Phone      string     `db:"phone" json:"phone"`
	HostelID   string     `db:"hostel_id" json:"hostel_id"`
	RoomNumber string     `db:"room_number" json:"room_number"`
	CheckedIn  time.Time  `db:"checked_in" json:"checked_in"`
	CheckedOut *time.Time `db:"checked_out" json:"checked_out,omitempty"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// ResidentFilter encapsulates search parameters for listing residents.
type ResidentFilter struct {
	HostelID   string
	RoomNumber string
	Active     *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
