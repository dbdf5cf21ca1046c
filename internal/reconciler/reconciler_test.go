package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"rapidphoto/internal/config"
	"rapidphoto/internal/controller"
	"rapidphoto/internal/model"
)

// -------- test fakes --------

// fakePhotoDB serves a fixed stalled set, shrinking as photos are failed
type fakePhotoDB struct {
	mu     sync.Mutex
	photos map[primitive.ObjectID]*model.Photo
}

func newFakePhotoDB(photos ...*model.Photo) *fakePhotoDB {
	db := &fakePhotoDB{photos: make(map[primitive.ObjectID]*model.Photo)}
	for _, photo := range photos {
		db.photos[photo.ID] = photo
	}
	return db
}

func (f *fakePhotoDB) CreatePhotos(ctx context.Context, photos []*model.Photo) error { return nil }

func (f *fakePhotoDB) GetPhotoByID(ctx context.Context, id primitive.ObjectID) (*model.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	photo, ok := f.photos[id]
	if !ok {
		return nil, model.NewNotFoundError("photo not found")
	}
	return photo, nil
}

func (f *fakePhotoDB) UpdatePhotoState(ctx context.Context, id primitive.ObjectID, from model.PhotoStatus, photo *model.Photo) error {
	return nil
}

func (f *fakePhotoDB) ListPhotosByJob(ctx context.Context, jobID primitive.ObjectID) ([]*model.Photo, error) {
	return nil, nil
}

func (f *fakePhotoDB) ListStalledPhotos(ctx context.Context, cutoff time.Time, limit int) ([]*model.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Photo
	for _, photo := range f.photos {
		inFlight := photo.UploadStatus == model.PhotoPending || photo.UploadStatus == model.PhotoUploading
		if inFlight && photo.CreatedAt.Before(cutoff) {
			out = append(out, photo)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePhotoDB) CountStalledPhotos(ctx context.Context, cutoff time.Time) (int64, error) {
	photos, _ := f.ListStalledPhotos(ctx, cutoff, 0)
	return int64(len(photos)), nil
}

// fakeUploads records FailStalled calls and flips photos to FAILED
type fakeUploads struct {
	controller.UploadController

	mu       sync.Mutex
	failed   []primitive.ObjectID
	err      error
	lostRace bool
}

func (f *fakeUploads) FailStalled(ctx context.Context, photo *model.Photo, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.lostRace {
		// Photo settled concurrently; nothing to do
		return false, nil
	}
	photo.UploadStatus = model.PhotoFailed
	f.failed = append(f.failed, photo.ID)
	return true, nil
}

// -------- helpers --------

func stalledPhoto(age time.Duration, status model.PhotoStatus) *model.Photo {
	return &model.Photo{
		ID:           primitive.NewObjectID(),
		JobID:        primitive.NewObjectID(),
		OwnerID:      "owner-1",
		UploadStatus: status,
		CreatedAt:    time.Now().Add(-age),
	}
}

func testReconciler(db *fakePhotoDB, uploads *fakeUploads) *Reconciler {
	return New(db, uploads, config.UploadConfig{
		StalledThresholdMinutes:  10,
		ReconcileIntervalMinutes: 5,
	})
}

// -------- tests --------

func TestSweepFailsStalledPhotos(t *testing.T) {
	old := stalledPhoto(time.Hour, model.PhotoUploading)
	pending := stalledPhoto(time.Hour, model.PhotoPending)
	fresh := stalledPhoto(time.Minute, model.PhotoUploading)
	done := stalledPhoto(time.Hour, model.PhotoCompleted)

	db := newFakePhotoDB(old, pending, fresh, done)
	uploads := &fakeUploads{}
	rec := testReconciler(db, uploads)

	result, err := rec.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.ElementsMatch(t, []primitive.ObjectID{old.ID, pending.ID}, uploads.failed)
}

func TestSweepIsIdempotent(t *testing.T) {
	photo := stalledPhoto(time.Hour, model.PhotoUploading)
	db := newFakePhotoDB(photo)
	uploads := &fakeUploads{}
	rec := testReconciler(db, uploads)

	result, err := rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	// Second sweep finds nothing left in flight
	result, err = rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Len(t, uploads.failed, 1)
}

func TestSweepCountsErrorsAsSkipped(t *testing.T) {
	photo := stalledPhoto(time.Hour, model.PhotoUploading)
	db := newFakePhotoDB(photo)
	uploads := &fakeUploads{err: model.NewDependencyError(context.DeadlineExceeded)}
	rec := testReconciler(db, uploads)

	result, err := rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Skipped)
}

func TestSweepCountsLostRacesAsSkipped(t *testing.T) {
	photo := stalledPhoto(time.Hour, model.PhotoUploading)
	db := newFakePhotoDB(photo)
	uploads := &fakeUploads{lostRace: true}
	rec := testReconciler(db, uploads)

	result, err := rec.Sweep(context.Background())
	require.NoError(t, err)

	// A photo that settled between the scan and the sweep was not failed
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, uploads.failed)
}

func TestStats(t *testing.T) {
	db := newFakePhotoDB(
		stalledPhoto(time.Hour, model.PhotoUploading),
		stalledPhoto(time.Hour, model.PhotoPending),
		stalledPhoto(time.Second, model.PhotoUploading),
	)
	rec := testReconciler(db, &fakeUploads{})

	count, err := rec.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRunAndStop(t *testing.T) {
	db := newFakePhotoDB()
	rec := testReconciler(db, &fakeUploads{})

	rec.Run(context.Background())
	rec.Stop()
	rec.Stop() // Stop is safe to call twice
}
