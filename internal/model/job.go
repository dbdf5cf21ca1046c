package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobStatus represents the coarse state of an upload job
type JobStatus string

const (
	JobInProgress     JobStatus = "IN_PROGRESS"
	JobCompleted      JobStatus = "COMPLETED"
	JobPartialSuccess JobStatus = "PARTIAL_SUCCESS"
	JobFailed         JobStatus = "FAILED"
)

// UploadJob represents a batch upload operation. It is the aggregate root
// for its photos: counters and status are only ever derived from photo
// outcomes, never set directly.
type UploadJob struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID        string             `bson:"owner_id" json:"ownerId"`
	TotalCount     int                `bson:"total_count" json:"totalCount"`
	CompletedCount int                `bson:"completed_count" json:"completedCount"`
	FailedCount    int                `bson:"failed_count" json:"failedCount"`
	Status         JobStatus          `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updatedAt"`
}

// RecomputeStatus derives the job status from its counters. Pure function:
// identical inputs always yield the identical status.
//
// PARTIAL_SUCCESS deliberately covers both "mixed and still running" and
// "mixed and all done"; callers that need to distinguish use the settled
// flag alongside the coarse status.
func RecomputeStatus(total, completed, failed int) JobStatus {
	switch {
	case completed == total:
		return JobCompleted
	case failed == total:
		return JobFailed
	case completed > 0 || failed > 0:
		return JobPartialSuccess
	default:
		return JobInProgress
	}
}

// Settled reports whether every photo in the batch has reached a terminal
// outcome at least once (nothing remains in flight)
func (j *UploadJob) Settled() bool {
	return j.CompletedCount+j.FailedCount == j.TotalCount
}

// Progress returns completion progress as a percentage of resolved photos
func (j *UploadJob) Progress() float64 {
	if j.TotalCount == 0 {
		return 0
	}
	return float64(j.CompletedCount+j.FailedCount) / float64(j.TotalCount) * 100
}
