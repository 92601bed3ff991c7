package models

import "time"

// LostFoundKind distinguishes lost reports from found reports.
type LostFoundKind string

const (
	LostFoundKindLost  LostFoundKind = "LOST"
	LostFoundKindFound LostFoundKind = "FOUND"
)

// LostFoundStatus models the claim lifecycle of an item.
type LostFoundStatus string

const (
	LostFoundStatusOpen     LostFoundStatus = "OPEN"
	LostFoundStatusClaimed  LostFoundStatus = "CLAIMED"
	LostFoundStatusReturned LostFoundStatus = "RETURNED"
	LostFoundStatusClosed   LostFoundStatus = "CLOSED"
)

// LostFoundItem represents a lost-and-found entry.
type LostFoundItem struct {
	ID          string          `db:"id" json:"id"`
	Kind        LostFoundKind   `db:"kind" json:"kind"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Location    string          `db:"location" json:"location"`
	HostelID    string          `db:"hostel_id" json:"hostel_id"`
	Images      StringList      `db:"images" json:"images"`
	Status      LostFoundStatus `db:"status" json:"status"`
	ReportedBy  string          `db:"reported_by" json:"reported_by"`
	ClaimedBy   *string         `db:"claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time      `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// LostFoundFilter scopes lost-and-found listings.
type LostFoundFilter struct {
	Kind     *LostFoundKind
	Status   *LostFoundStatus
	HostelID string
	Search   string
	Page     int
	PageSize int
}
