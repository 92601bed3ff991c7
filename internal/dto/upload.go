package dto

import "github.com/pranavraok/hostelvoice-api/internal/models"

// CreateUploadRequest carries the issue reference submitted alongside an image upload.
type CreateUploadRequest struct {
	IssueID string `form:"issue_id" json:"issue_id"`
}

// UploadDownloadResponse enriches metadata with a signed download URL.
type UploadDownloadResponse struct {
	models.Upload
	DownloadURL string `json:"download_url"`
}
