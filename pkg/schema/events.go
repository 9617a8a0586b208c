// Package schema defines the wire format of events the pipeline publishes.
package schema

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// PhotoRegistered is published when a finished multipart upload has been
// turned into a photo record and its derivative jobs were enqueued.
type PhotoRegistered struct {
	PhotoID    string `json:"photo_id"`
	FolderID   string `json:"folder_id"`
	Filename   string `json:"filename"`
	StorageKey string `json:"storage_key"`
	FileSize   int64  `json:"file_size"`
	HappenedAt int64  `json:"happened_at"`
}

// SizeResult describes the outcome of a single derivative size.
type SizeResult struct {
	Size        string      `json:"size"`
	URL         string      `json:"url,omitempty"`
	Status      string      `json:"status"`
	Error       string      `json:"error,omitempty"`
	FailureType FailureType `json:"failure_type,omitempty"`
}

// ThumbnailDone is published once every configured size for a photo has
// resolved, successfully or not.
type ThumbnailDone struct {
	PhotoID          string       `json:"photo_id"`
	FolderID         string       `json:"folder_id"`
	Filename         string       `json:"filename"`
	Status           string       `json:"status"`
	TotalProcessed   int          `json:"total_processed"`
	TotalFailed      int          `json:"total_failed"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	Results          []SizeResult `json:"results,omitempty"`
	HappenedAt       int64        `json:"happened_at"`
}
