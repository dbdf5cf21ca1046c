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

// JobDatabase defines upload-job persistence operations
type JobDatabase interface {
	// Create a new upload job
	CreateUploadJob(ctx context.Context, job *model.UploadJob) error

	// Get an upload job by ID
	GetUploadJobByID(ctx context.Context, id primitive.ObjectID) (*model.UploadJob, error)

	// ApplyPhotoOutcome atomically applies counter deltas and the derived
	// status in a single document update, returning the updated job
	ApplyPhotoOutcome(ctx context.Context, id primitive.ObjectID, completedDelta, failedDelta int) (*model.UploadJob, error)

	// List upload jobs by owner
	ListUploadJobsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.UploadJob, error)
}

// CreateUploadJob creates a new upload job in the database
func (m *mongoDB) CreateUploadJob(ctx context.Context, job *model.UploadJob) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.JobInProgress
	}

	_, err := m.jobsCol.InsertOne(ctx, job)
	if err != nil {
		log.Error().Err(err).Str("jobID", job.ID.Hex()).Msg("Failed to create upload job")
		return err
	}

	log.Debug().Str("jobID", job.ID.Hex()).Int("totalCount", job.TotalCount).Msg("Created upload job")
	return nil
}

// GetUploadJobByID retrieves an upload job by its ID
func (m *mongoDB) GetUploadJobByID(ctx context.Context, id primitive.ObjectID) (*model.UploadJob, error) {
	var job model.UploadJob
	err := m.jobsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.NewNotFoundError("upload job not found")
		}
		log.Error().Err(err).Str("jobID", id.Hex()).Msg("Failed to get upload job")
		return nil, err
	}

	return &job, nil
}

// ApplyPhotoOutcome increments the job counters and recomputes the derived
// status in one aggregation-pipeline update. The increment and the status
// recompute are a single atomic operation on the document, so concurrent
// completions of different photos in the same job cannot lose updates or
// write a stale status.
func (m *mongoDB) ApplyPhotoOutcome(ctx context.Context, id primitive.ObjectID, completedDelta, failedDelta int) (*model.UploadJob, error) {
	statusExpr := bson.M{"$switch": bson.M{
		"branches": bson.A{
			bson.M{
				"case": bson.M{"$eq": bson.A{"$completed_count", "$total_count"}},
				"then": model.JobCompleted,
			},
			bson.M{
				"case": bson.M{"$eq": bson.A{"$failed_count", "$total_count"}},
				"then": model.JobFailed,
			},
			bson.M{
				"case": bson.M{"$or": bson.A{
					bson.M{"$gt": bson.A{"$completed_count", 0}},
					bson.M{"$gt": bson.A{"$failed_count", 0}},
				}},
				"then": model.JobPartialSuccess,
			},
		},
		"default": model.JobInProgress,
	}}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.M{
			"completed_count": bson.M{"$add": bson.A{"$completed_count", completedDelta}},
			"failed_count":    bson.M{"$add": bson.A{"$failed_count", failedDelta}},
			"updated_at":      "$$NOW",
		}}},
		bson.D{{Key: "$set", Value: bson.M{
			"status": statusExpr,
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var job model.UploadJob
	err := m.jobsCol.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.NewNotFoundError("upload job not found")
		}
		log.Error().Err(err).Str("jobID", id.Hex()).
			Int("completedDelta", completedDelta).
			Int("failedDelta", failedDelta).
			Msg("Failed to apply photo outcome to upload job")
		return nil, err
	}

	log.Debug().Str("jobID", id.Hex()).
		Str("status", string(job.Status)).
		Int("completedCount", job.CompletedCount).
		Int("failedCount", job.FailedCount).
		Msg("Applied photo outcome to upload job")
	return &job, nil
}

// ListUploadJobsByOwner retrieves upload jobs by owner ID
func (m *mongoDB) ListUploadJobsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.UploadJob, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := m.jobsCol.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		log.Error().Err(err).Str("ownerID", ownerID).Msg("Failed to list upload jobs by owner")
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []*model.UploadJob
	if err := cursor.All(ctx, &jobs); err != nil {
		log.Error().Err(err).Msg("Failed to decode upload jobs")
		return nil, err
	}

	return jobs, nil
}
