package models

import (
	"time"
)

// Backend identifies which storage strategy holds a file's bytes.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// FileRecord is the catalogue entry for one completed upload. Backend is kept
// out of the client representation; the ledger persists it separately.
type FileRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	StoragePath string    `json:"path"`
	MimeType    string    `json:"mimeType"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Backend     Backend   `json:"-"`
}

// LedgerStats summarises the ledger contents.
type LedgerStats struct {
	TotalFiles   int             `json:"total_files"`
	TotalBytes   int64           `json:"total_bytes"`
	ByBackend    map[Backend]int `json:"by_backend"`
	LatestUpload *time.Time      `json:"latest_upload,omitempty"`
}

// UploadTarget is what a client receives when it asks where to push bytes.
type UploadTarget struct {
	ID        string    `json:"id"`
	Backend   Backend   `json:"backend"`
	URL       string    `json:"upload_url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}
