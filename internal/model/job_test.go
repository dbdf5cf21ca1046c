package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecomputeStatus(t *testing.T) {
	tests := []struct {
		name                     string
		total, completed, failed int
		want                     JobStatus
	}{
		{"nothing resolved", 10, 0, 0, JobInProgress},
		{"all completed", 10, 10, 0, JobCompleted},
		{"all failed", 10, 0, 10, JobFailed},
		{"some completed still running", 10, 3, 0, JobPartialSuccess},
		{"some failed still running", 10, 0, 2, JobPartialSuccess},
		{"mixed still running", 10, 3, 2, JobPartialSuccess},
		{"mixed all settled", 10, 7, 3, JobPartialSuccess},
		{"single photo completed", 1, 1, 0, JobCompleted},
		{"single photo failed", 1, 0, 1, JobFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecomputeStatus(tt.total, tt.completed, tt.failed)
			assert.Equal(t, tt.want, got)

			// Pure function: recomputing never changes the answer
			assert.Equal(t, got, RecomputeStatus(tt.total, tt.completed, tt.failed))
		})
	}
}

func TestSettled(t *testing.T) {
	assert.False(t, (&UploadJob{TotalCount: 5, CompletedCount: 2, FailedCount: 2}).Settled())
	assert.True(t, (&UploadJob{TotalCount: 5, CompletedCount: 3, FailedCount: 2}).Settled())
	assert.True(t, (&UploadJob{TotalCount: 5, CompletedCount: 5}).Settled())
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, (&UploadJob{}).Progress())
	assert.Equal(t, 50.0, (&UploadJob{TotalCount: 4, CompletedCount: 1, FailedCount: 1}).Progress())
	assert.Equal(t, 100.0, (&UploadJob{TotalCount: 4, CompletedCount: 3, FailedCount: 1}).Progress())
}
