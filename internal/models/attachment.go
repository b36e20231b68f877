package models

import (
	"fmt"
	"time"
)

// Attachment records metadata for a stored blob. The bytes themselves live
// in the blob store addressed by StorageKey.
type Attachment struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	StorageKey    string    `db:"storage_key" json:"-"`
	Filename      string    `db:"filename" json:"filename"`
	FileSize      int64     `db:"file_size" json:"file_size"`
	UploadedBy    string    `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt    time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// HumanSize renders the file size for display.
func (a *Attachment) HumanSize() string {
	size := float64(a.FileSize)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.1f TB", size)
}
