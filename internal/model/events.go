package model

import "time"

// EventType identifies a progress event variant. The set is closed: new
// detail shapes get a new type rather than a free-form metadata bag.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventPhotoProgress  EventType = "photo_progress"
	EventPhotoCompleted EventType = "photo_completed"
	EventPhotoFailed    EventType = "photo_failed"
	EventJobProgress    EventType = "job_progress"
	EventJobCompleted   EventType = "job_completed"
)

// ProgressEvent is the immutable value emitted on every state change.
// Sequence is assigned by the broker and increases monotonically per job so
// subscribers can detect gaps after a reconnect.
type ProgressEvent struct {
	Type           EventType   `json:"type"`
	Sequence       uint64      `json:"sequence"`
	JobID          string      `json:"jobId"`
	PhotoID        string      `json:"photoId,omitempty"`
	PhotoStatus    PhotoStatus `json:"photoStatus,omitempty"`
	JobStatus      JobStatus   `json:"jobStatus,omitempty"`
	Progress       float64     `json:"progress,omitempty"`
	TotalCount     int         `json:"totalCount,omitempty"`
	CompletedCount int         `json:"completedCount,omitempty"`
	FailedCount    int         `json:"failedCount,omitempty"`
	Settled        bool        `json:"settled"`
	Retryable      *bool       `json:"retryable,omitempty"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// NewConnectedEvent is the synthetic event delivered to a subscriber
// immediately after it registers
func NewConnectedEvent(jobID string) ProgressEvent {
	return ProgressEvent{
		Type:      EventConnected,
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

// NewPhotoEvent builds a photo-level event carrying the job's counters as
// they stood when the transition was applied
func NewPhotoEvent(eventType EventType, photo *Photo, job *UploadJob) ProgressEvent {
	return ProgressEvent{
		Type:           eventType,
		JobID:          job.ID.Hex(),
		PhotoID:        photo.ID.Hex(),
		PhotoStatus:    photo.UploadStatus,
		JobStatus:      job.Status,
		Progress:       job.Progress(),
		TotalCount:     job.TotalCount,
		CompletedCount: job.CompletedCount,
		FailedCount:    job.FailedCount,
		Settled:        job.Settled(),
		Timestamp:      time.Now(),
	}
}

// NewJobEvent builds a job-level event
func NewJobEvent(eventType EventType, job *UploadJob) ProgressEvent {
	return ProgressEvent{
		Type:           eventType,
		JobID:          job.ID.Hex(),
		JobStatus:      job.Status,
		Progress:       job.Progress(),
		TotalCount:     job.TotalCount,
		CompletedCount: job.CompletedCount,
		FailedCount:    job.FailedCount,
		Settled:        job.Settled(),
		Timestamp:      time.Now(),
	}
}
