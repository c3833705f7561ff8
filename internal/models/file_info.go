package models

import "time"

// FileInfo represents metadata about a staged upload.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Format     Format    `json:"format"`
	UploadedAt time.Time `json:"uploadedAt"`
}
