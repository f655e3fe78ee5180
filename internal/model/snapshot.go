package model

import "time"

type SnapshotStatus string

const (
	SnapshotStatusPending   SnapshotStatus = "pending"
	SnapshotStatusUploading SnapshotStatus = "uploading"
	SnapshotStatusCompleted SnapshotStatus = "completed"
	SnapshotStatusFailed    SnapshotStatus = "failed"
)

type SnapshotLocation string

const (
	SnapshotLocal SnapshotLocation = "local"
	SnapshotS3    SnapshotLocation = "s3"
)

type Snapshot struct {
	ID           int64            `json:"id"`
	Filename     string           `json:"filename"`
	Location     SnapshotLocation `json:"location"`
	ObjectKey    string           `json:"object_key"`
	SizeBytes    int64            `json:"size_bytes"`
	Status       SnapshotStatus   `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}
