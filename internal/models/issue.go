package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// IssueCategory classifies the nature of a reported issue.
type IssueCategory string

const (
	IssueCategoryMaintenance IssueCategory = "MAINTENANCE"
	IssueCategoryCleanliness IssueCategory = "CLEANLINESS"
	IssueCategorySecurity    IssueCategory = "SECURITY"
	IssueCategoryFood        IssueCategory = "FOOD"
	IssueCategoryOther       IssueCategory = "OTHER"
)

// IssuePriority represents the urgency assigned to an issue.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "LOW"
	IssuePriorityMedium IssuePriority = "MEDIUM"
	IssuePriorityHigh   IssuePriority = "HIGH"
	IssuePriorityUrgent IssuePriority = "URGENT"
)

// IssueStatus models the issue lifecycle.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "PENDING"
	IssueStatusInProgress IssueStatus = "IN_PROGRESS"
	IssueStatusResolved   IssueStatus = "RESOLVED"
	IssueStatusClosed     IssueStatus = "CLOSED"
)

// IsOpen reports whether the issue still accepts work (and may be a merge candidate).
func (s IssueStatus) IsOpen() bool {
	return s == IssueStatusPending || s == IssueStatusInProgress
}

// MaxIssueImages caps the attachment references kept on a single issue.
// Fixed ceiling, enforced when images are combined during a merge.
const MaxIssueImages = 10

// Issue represents a reported hostel problem stored in the issues table.
type Issue struct {
	ID          string        `db:"id" json:"id"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	Category    IssueCategory `db:"category" json:"category"`
	Priority    IssuePriority `db:"priority" json:"priority"`
	Status      IssueStatus   `db:"status" json:"status"`
	HostelID    string        `db:"hostel_id" json:"hostel_id"`
	RoomNumber  string        `db:"room_number" json:"room_number"`
	Notes       string        `db:"notes" json:"notes"`
	Images      StringList    `db:"images" json:"images"`
	ReportedBy  string        `db:"reported_by" json:"reported_by"`
	AssignedTo  *string       `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
	ResolvedAt  *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IssueFilter captures listing criteria for issues.
type IssueFilter struct {
	Category   *IssueCategory
	Priority   *IssuePriority
	Status     *IssueStatus
	HostelID   string
	ReportedBy string
	AssignedTo string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// StringList stores an ordered list of opaque references as JSONB.
type StringList []string

// Value marshals the list to JSON for persistence.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the list.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// DuplicateClosure describes the terminal state written to a merged duplicate.
type DuplicateClosure struct {
	ID    string
	Notes string
}

// MergeResult summarises a completed duplicate merge.
type MergeResult struct {
	Master          *Issue   `json:"master"`
	MergedCount     int      `json:"merged_count"`
	MergedIssueIDs  []string `json:"merged_issue_ids"`
	NotifiedUserIDs []string `json:"notified_user_ids"`
}
