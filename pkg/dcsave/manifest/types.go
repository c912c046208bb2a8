// Package manifest records a history of operations that changed save
// storage, one JSON file per operation.
package manifest

import "time"

// OperationType names the kind of change recorded.
type OperationType string

// Recorded operations.
const (
	OpScreenshotAdd     OperationType = "screenshot-add"
	OpScreenshotReplace OperationType = "screenshot-replace"
	OpScreenshotDelete  OperationType = "screenshot-delete"
	OpScreenshotReorder OperationType = "screenshot-reorder"
	OpScreenshotExport  OperationType = "screenshot-export"
	OpDocumentSave      OperationType = "document-save"
	OpBackupCreate      OperationType = "backup-create"
	OpBackupRestore     OperationType = "backup-restore"
	OpBackupDelete      OperationType = "backup-delete"
	OpBackupRename      OperationType = "backup-rename"
)

// Entry is one recorded operation.
type Entry struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Operation  OperationType `json:"operation"`
	StorageDir string        `json:"storage_dir,omitempty"`
	Files      []FileRecord  `json:"files"`
	Detail     string        `json:"detail,omitempty"`
	Error      string        `json:"error,omitempty"`
	Summary    Summary       `json:"summary"`
}

// FileRecord is a file touched by the operation.
type FileRecord struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time,omitzero"`
}

// Summary totals the file records.
type Summary struct {
	TotalFiles int64 `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}
