package database

import (
	"context"
	"errors"
	"time"

	"rapidphoto/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrStateConflict is returned when a conditional state update matched no
// document: another writer got there first
var ErrStateConflict = errors.New("photo state conflict")

// PhotoDatabase defines photo persistence operations
type PhotoDatabase interface {
	// Create photo records for a new upload job
	CreatePhotos(ctx context.Context, photos []*model.Photo) error

	// Get a photo by ID
	GetPhotoByID(ctx context.Context, id primitive.ObjectID) (*model.Photo, error)

	// UpdatePhotoState transitions a photo from one state to another,
	// guarded on the expected current state. Returns ErrStateConflict if
	// the photo was not in the expected state.
	UpdatePhotoState(ctx context.Context, id primitive.ObjectID, from model.PhotoStatus, photo *model.Photo) error

	// ListPhotosByJob retrieves all photos belonging to a job
	ListPhotosByJob(ctx context.Context, jobID primitive.ObjectID) ([]*model.Photo, error)

	// ListStalledPhotos finds photos still pending/uploading past the cutoff
	ListStalledPhotos(ctx context.Context, cutoff time.Time, limit int) ([]*model.Photo, error)

	// CountStalledPhotos is the dry-run variant of ListStalledPhotos
	CountStalledPhotos(ctx context.Context, cutoff time.Time) (int64, error)
}

var inFlightStatuses = bson.A{model.PhotoPending, model.PhotoUploading}

// CreatePhotos inserts photo records for a new upload job
func (m *mongoDB) CreatePhotos(ctx context.Context, photos []*model.Photo) error {
	if len(photos) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(photos))
	for _, photo := range photos {
		if photo.ID.IsZero() {
			photo.ID = primitive.NewObjectID()
		}
		if photo.CreatedAt.IsZero() {
			photo.CreatedAt = now
		}
		if photo.UploadStatus == "" {
			photo.UploadStatus = model.PhotoPending
		}
		docs = append(docs, photo)
	}

	_, err := m.photosCol.InsertMany(ctx, docs)
	if err != nil {
		log.Error().Err(err).Int("count", len(photos)).Msg("Failed to create photos")
		return err
	}

	log.Debug().Int("count", len(photos)).Str("jobID", photos[0].JobID.Hex()).Msg("Created photos")
	return nil
}

// GetPhotoByID retrieves a photo by its ID
func (m *mongoDB) GetPhotoByID(ctx context.Context, id primitive.ObjectID) (*model.Photo, error) {
	var photo model.Photo
	err := m.photosCol.FindOne(ctx, bson.M{"_id": id}).Decode(&photo)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.NewNotFoundError("photo not found")
		}
		log.Error().Err(err).Str("photoID", id.Hex()).Msg("Failed to get photo")
		return nil, err
	}

	return &photo, nil
}

// UpdatePhotoState writes a photo's new state conditioned on its expected
// current state, so a losing concurrent writer fails with ErrStateConflict
// instead of clobbering the winner
func (m *mongoDB) UpdatePhotoState(ctx context.Context, id primitive.ObjectID, from model.PhotoStatus, photo *model.Photo) error {
	update := bson.M{"$set": bson.M{
		"upload_status": photo.UploadStatus,
		"retry_count":   photo.RetryCount,
		"completed_at":  photo.CompletedAt,
	}}

	result, err := m.photosCol.UpdateOne(ctx, bson.M{"_id": id, "upload_status": from}, update)
	if err != nil {
		log.Error().Err(err).Str("photoID", id.Hex()).
			Str("from", string(from)).
			Str("to", string(photo.UploadStatus)).
			Msg("Failed to update photo state")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrStateConflict
	}

	log.Debug().Str("photoID", id.Hex()).
		Str("from", string(from)).
		Str("to", string(photo.UploadStatus)).
		Int("retryCount", photo.RetryCount).
		Msg("Updated photo state")
	return nil
}

// ListPhotosByJob retrieves all photos belonging to a job
func (m *mongoDB) ListPhotosByJob(ctx context.Context, jobID primitive.ObjectID) ([]*model.Photo, error) {
	opts := options.Find().SetSort(bson.M{"created_at": 1})

	cursor, err := m.photosCol.Find(ctx, bson.M{"job_id": jobID}, opts)
	if err != nil {
		log.Error().Err(err).Str("jobID", jobID.Hex()).Msg("Failed to list photos by job")
		return nil, err
	}
	defer cursor.Close(ctx)

	var photos []*model.Photo
	if err := cursor.All(ctx, &photos); err != nil {
		log.Error().Err(err).Msg("Failed to decode photos")
		return nil, err
	}

	return photos, nil
}

// ListStalledPhotos finds photos stuck in flight since before the cutoff
func (m *mongoDB) ListStalledPhotos(ctx context.Context, cutoff time.Time, limit int) ([]*model.Photo, error) {
	filter := bson.M{
		"upload_status": bson.M{"$in": inFlightStatuses},
		"created_at":    bson.M{"$lt": cutoff},
	}

	opts := options.Find().SetSort(bson.M{"created_at": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.photosCol.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Time("cutoff", cutoff).Msg("Failed to list stalled photos")
		return nil, err
	}
	defer cursor.Close(ctx)

	var photos []*model.Photo
	if err := cursor.All(ctx, &photos); err != nil {
		log.Error().Err(err).Msg("Failed to decode stalled photos")
		return nil, err
	}

	return photos, nil
}

// CountStalledPhotos counts photos stuck in flight since before the cutoff
func (m *mongoDB) CountStalledPhotos(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"upload_status": bson.M{"$in": inFlightStatuses},
		"created_at":    bson.M{"$lt": cutoff},
	}

	count, err := m.photosCol.CountDocuments(ctx, filter)
	if err != nil {
		log.Error().Err(err).Time("cutoff", cutoff).Msg("Failed to count stalled photos")
		return 0, err
	}

	return count, nil
}
