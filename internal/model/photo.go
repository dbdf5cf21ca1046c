package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PhotoStatus represents the upload state of a single photo
type PhotoStatus string

const (
	PhotoPending   PhotoStatus = "PENDING"
	PhotoUploading PhotoStatus = "UPLOADING"
	PhotoCompleted PhotoStatus = "COMPLETED"
	PhotoFailed    PhotoStatus = "FAILED"
)

// Photo represents one photo's upload attempt record within a job.
// OwnerID is denormalized from the job so authorization checks do not need
// a second read.
type Photo struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	JobID        primitive.ObjectID `bson:"job_id" json:"jobId"`
	OwnerID      string             `bson:"owner_id" json:"ownerId"`
	Filename     string             `bson:"filename" json:"filename"`
	S3Key        string             `bson:"s3_key" json:"s3Key"`
	FileSize     int64              `bson:"file_size" json:"fileSize"`
	ContentType  string             `bson:"content_type" json:"contentType"`
	UploadStatus PhotoStatus        `bson:"upload_status" json:"uploadStatus"`
	RetryCount   int                `bson:"retry_count" json:"retryCount"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	CompletedAt  *time.Time         `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
}

// StartUpload moves a pending photo to UPLOADING once its upload URL has
// been issued
func (p *Photo) StartUpload() error {
	if p.UploadStatus != PhotoPending {
		return NewInvalidTransitionError(
			fmt.Sprintf("cannot start upload from status %s", p.UploadStatus))
	}
	p.UploadStatus = PhotoUploading
	return nil
}

// MarkCompleted transitions UPLOADING -> COMPLETED. COMPLETED is terminal:
// a repeated completion is a client bug and surfaces as an error rather
// than being swallowed.
func (p *Photo) MarkCompleted() error {
	if p.UploadStatus == PhotoCompleted {
		return NewInvalidTransitionError("photo is already completed and cannot be modified")
	}
	if p.UploadStatus != PhotoUploading {
		return NewInvalidTransitionError(
			fmt.Sprintf("cannot complete photo in status %s", p.UploadStatus))
	}
	now := time.Now()
	p.UploadStatus = PhotoCompleted
	p.CompletedAt = &now
	return nil
}

// MarkFailed transitions PENDING or UPLOADING -> FAILED and counts the
// attempt. Failing an already-failed photo is rejected so overlapping
// reconciler sweeps stay idempotent.
func (p *Photo) MarkFailed() error {
	if p.UploadStatus == PhotoCompleted {
		return NewInvalidTransitionError("photo is already completed and cannot be modified")
	}
	if p.UploadStatus == PhotoFailed {
		return NewInvalidTransitionError("photo is already failed")
	}
	p.UploadStatus = PhotoFailed
	p.RetryCount++
	return nil
}

// Retry transitions FAILED -> UPLOADING without counting an attempt.
// Admission is gated on the retry budget.
func (p *Photo) Retry(maxRetries int) error {
	if p.UploadStatus != PhotoFailed {
		return NewInvalidTransitionError(
			fmt.Sprintf("only failed photos can be retried, current status: %s", p.UploadStatus))
	}
	if p.RetryCount >= maxRetries {
		return NewRetryLimitError(
			fmt.Sprintf("photo has exceeded maximum retry attempts: %d of %d", p.RetryCount, maxRetries))
	}
	p.UploadStatus = PhotoUploading
	return nil
}

// CanRetry reports whether a failed photo still has retry budget
func (p *Photo) CanRetry(maxRetries int) bool {
	return p.UploadStatus == PhotoFailed && p.RetryCount < maxRetries
}

// BelongsTo checks photo ownership for authorization
func (p *Photo) BelongsTo(ownerID string) bool {
	return p.OwnerID == ownerID
}
