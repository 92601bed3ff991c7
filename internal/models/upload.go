package models

import "time"

// Upload represents one stored issue image row.
type Upload struct {
	ID         string     `db:"id" json:"id"`
	IssueID    string     `db:"issue_id" json:"issue_id"`
	FilePath   string     `db:"file_path" json:"file_path"`
	MimeType   string     `db:"mime_type" json:"mime_type"`
	SizeBytes  int64      `db:"size_bytes" json:"size_bytes"`
	UploadedBy string     `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt time.Time  `db:"uploaded_at" json:"uploaded_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// UploadFilter narrows listing queries.
type UploadFilter struct {
	IssueID        string
	UploadedBy     string
	IncludeDeleted bool
	Limit          int
	Offset         int
}
