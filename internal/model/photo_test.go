package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartUpload(t *testing.T) {
	tests := []struct {
		name    string
		status  PhotoStatus
		wantErr bool
	}{
		{"pending starts", PhotoPending, false},
		{"uploading rejected", PhotoUploading, true},
		{"completed rejected", PhotoCompleted, true},
		{"failed rejected", PhotoFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Photo{UploadStatus: tt.status}
			err := p.StartUpload()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindInvalidTransition, KindOf(err))
				assert.Equal(t, tt.status, p.UploadStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, PhotoUploading, p.UploadStatus)
		})
	}
}

func TestMarkCompleted(t *testing.T) {
	p := &Photo{UploadStatus: PhotoUploading}
	require.NoError(t, p.MarkCompleted())
	assert.Equal(t, PhotoCompleted, p.UploadStatus)
	require.NotNil(t, p.CompletedAt)

	// Completion is terminal; a second report is a client bug
	err := p.MarkCompleted()
	require.Error(t, err)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestMarkCompletedFromPending(t *testing.T) {
	p := &Photo{UploadStatus: PhotoPending}
	err := p.MarkCompleted()
	require.Error(t, err)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
	assert.Nil(t, p.CompletedAt)
}

func TestMarkFailed(t *testing.T) {
	p := &Photo{UploadStatus: PhotoUploading}
	require.NoError(t, p.MarkFailed())
	assert.Equal(t, PhotoFailed, p.UploadStatus)
	assert.Equal(t, 1, p.RetryCount)

	// Double-failing would double-count the attempt
	err := p.MarkFailed()
	require.Error(t, err)
	assert.Equal(t, 1, p.RetryCount)
}

func TestMarkFailedFromPending(t *testing.T) {
	p := &Photo{UploadStatus: PhotoPending}
	require.NoError(t, p.MarkFailed())
	assert.Equal(t, PhotoFailed, p.UploadStatus)
	assert.Equal(t, 1, p.RetryCount)
}

func TestMarkFailedAfterCompletion(t *testing.T) {
	p := &Photo{UploadStatus: PhotoCompleted}
	err := p.MarkFailed()
	require.Error(t, err)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestRetry(t *testing.T) {
	const maxRetries = 3

	p := &Photo{UploadStatus: PhotoUploading}

	// fail -> retry cycles until the budget runs out
	for attempt := 1; attempt <= maxRetries; attempt++ {
		require.NoError(t, p.MarkFailed())
		assert.Equal(t, attempt, p.RetryCount)

		err := p.Retry(maxRetries)
		if attempt < maxRetries {
			require.NoError(t, err)
			assert.Equal(t, PhotoUploading, p.UploadStatus)
			// Retrying does not consume an attempt by itself
			assert.Equal(t, attempt, p.RetryCount)
		} else {
			require.Error(t, err)
			assert.Equal(t, KindRetryLimit, KindOf(err))
			assert.Equal(t, PhotoFailed, p.UploadStatus)
		}
	}
}

func TestRetryRequiresFailedState(t *testing.T) {
	for _, status := range []PhotoStatus{PhotoPending, PhotoUploading, PhotoCompleted} {
		p := &Photo{UploadStatus: status}
		err := p.Retry(3)
		require.Error(t, err, "status %s", status)
		assert.Equal(t, KindInvalidTransition, KindOf(err))
	}
}

func TestCanRetry(t *testing.T) {
	assert.True(t, (&Photo{UploadStatus: PhotoFailed, RetryCount: 2}).CanRetry(3))
	assert.False(t, (&Photo{UploadStatus: PhotoFailed, RetryCount: 3}).CanRetry(3))
	assert.False(t, (&Photo{UploadStatus: PhotoUploading, RetryCount: 0}).CanRetry(3))
}

func TestBelongsTo(t *testing.T) {
	p := &Photo{OwnerID: "owner-1"}
	assert.True(t, p.BelongsTo("owner-1"))
	assert.False(t, p.BelongsTo("owner-2"))
}
