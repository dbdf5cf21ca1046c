package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"rapidphoto/internal/broker"
	"rapidphoto/internal/config"
	"rapidphoto/internal/database"
	"rapidphoto/internal/eventlog"
	"rapidphoto/internal/model"
	"rapidphoto/internal/rabbitmq"
	"rapidphoto/internal/storage"
)

// PhotoUpload pairs a created photo with its presigned upload URL
type PhotoUpload struct {
	Photo     *model.Photo `json:"photo"`
	UploadURL string       `json:"uploadUrl"`
}

// CreateJobResult is returned from job creation
type CreateJobResult struct {
	Job     *model.UploadJob `json:"job"`
	Uploads []PhotoUpload    `json:"uploads"`
}

// RetryResult carries the fresh upload URL issued for a retried photo
type RetryResult struct {
	Photo     *model.Photo `json:"photo"`
	UploadURL string       `json:"uploadUrl"`
}

// UploadController coordinates batch photo uploads: it owns every state
// transition, keeps the job counters consistent with photo outcomes, and
// emits a progress event for each accepted change.
type UploadController interface {
	// CreateJob validates the batch, persists the job and its photos, and
	// issues presigned upload URLs
	CreateJob(ctx context.Context, ownerID string, specs []model.PhotoSpec) (*CreateJobResult, error)

	// GetJob returns a job and its photos, enforcing ownership
	GetJob(ctx context.Context, jobID, ownerID string) (*model.UploadJob, []*model.Photo, error)

	// ListJobs returns the owner's jobs, newest first
	ListJobs(ctx context.Context, ownerID string, limit, offset int) ([]*model.UploadJob, error)

	// ReportCompletion records a successful client-side upload
	ReportCompletion(ctx context.Context, photoID, ownerID string) error

	// ReportFailure records a failed client-side upload
	ReportFailure(ctx context.Context, photoID, ownerID, reason string) error

	// RetryPhoto re-admits a failed photo and issues a fresh upload URL
	RetryPhoto(ctx context.Context, photoID, ownerID string) (*RetryResult, error)

	// DownloadURL issues a presigned GET URL for a completed photo
	DownloadURL(ctx context.Context, photoID, ownerID string) (string, error)

	// FailStalled force-fails a photo abandoned in flight. Reconciler path:
	// no ownership check. Losing a race to a late completion report is not
	// an error; the bool reports whether the photo was actually failed.
	FailStalled(ctx context.Context, photo *model.Photo, reason string) (bool, error)
}

type uploadController struct {
	store   database.UploadStore
	signer  storage.Signer
	broker  *broker.Broker
	events  eventlog.EventLog
	bridge  *rabbitmq.EventBridge
	cfg     config.UploadConfig
	s3Grace time.Duration
	locks   stripedLock
}

// NewUploadController creates the upload coordinator. The event log and
// bridge are optional; pass nil to run without durable event history or the
// AMQP mirror.
func NewUploadController(
	store database.UploadStore,
	signer storage.Signer,
	b *broker.Broker,
	events eventlog.EventLog,
	bridge *rabbitmq.EventBridge,
	cfg config.UploadConfig,
	s3Timeout time.Duration,
) UploadController {
	if s3Timeout <= 0 {
		s3Timeout = 10 * time.Second
	}
	return &uploadController{
		store:   store,
		signer:  signer,
		broker:  b,
		events:  events,
		bridge:  bridge,
		cfg:     cfg,
		s3Grace: s3Timeout,
	}
}

func (c *uploadController) signCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.s3Grace)
}

// emit publishes events in order and mirrors each onto the durable history
// and the AMQP bridge. Side channels are best-effort: a Redis or broker
// hiccup never fails the state change that already committed. Never called
// with a photo lock held; the history append gets its own bounded context.
func (c *uploadController) emit(ctx context.Context, jobID string, events ...model.ProgressEvent) {
	for _, event := range events {
		stamped := c.broker.Publish(jobID, event)

		if c.events != nil {
			actx, cancel := c.signCtx(ctx)
			err := c.events.Append(actx, jobID, stamped)
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("jobID", jobID).
					Str("type", string(stamped.Type)).
					Msg("Failed to append event to history")
			}
		}

		if c.bridge != nil {
			c.bridge.Mirror(stamped)
		}
	}
}

func validateSpecs(specs []model.PhotoSpec, maxBatchSize int) error {
	if len(specs) == 0 {
		return model.NewValidationError("at least one photo is required")
	}
	if len(specs) > maxBatchSize {
		return model.NewValidationError(
			fmt.Sprintf("batch size %d exceeds maximum of %d", len(specs), maxBatchSize))
	}

	for i, spec := range specs {
		if spec.Filename == "" {
			return model.NewValidationError(fmt.Sprintf("photo %d: filename is required", i))
		}
		if spec.FileSize <= 0 {
			return model.NewValidationError(fmt.Sprintf("photo %d: file size must be positive", i))
		}
		if spec.ContentType == "" {
			return model.NewValidationError(fmt.Sprintf("photo %d: content type is required", i))
		}
	}

	return nil
}

// CreateJob persists the job and its photos, then issues a presigned upload
// URL per photo, flipping each to UPLOADING as its URL goes out. A signer
// failure aborts with the already-signed photos left in flight; the stalled
// reconciler sweeps up whatever the client never finishes.
func (c *uploadController) CreateJob(ctx context.Context, ownerID string, specs []model.PhotoSpec) (*CreateJobResult, error) {
	if ownerID == "" {
		return nil, model.NewValidationError("owner id is required")
	}
	if err := validateSpecs(specs, c.cfg.MaxBatchSize); err != nil {
		return nil, err
	}

	job := &model.UploadJob{
		OwnerID:    ownerID,
		TotalCount: len(specs),
		Status:     model.JobInProgress,
	}
	if err := c.store.CreateUploadJob(ctx, job); err != nil {
		return nil, err
	}

	photos := make([]*model.Photo, 0, len(specs))
	for _, spec := range specs {
		id := primitive.NewObjectID()
		photos = append(photos, &model.Photo{
			ID:           id,
			JobID:        job.ID,
			OwnerID:      ownerID,
			Filename:     spec.Filename,
			S3Key:        c.signer.BuildKey(ownerID, id.Hex(), spec.Filename),
			FileSize:     spec.FileSize,
			ContentType:  spec.ContentType,
			UploadStatus: model.PhotoPending,
		})
	}
	if err := c.store.CreatePhotos(ctx, photos); err != nil {
		return nil, err
	}

	uploads := make([]PhotoUpload, 0, len(photos))
	for _, photo := range photos {
		sctx, cancel := c.signCtx(ctx)
		url, err := c.signer.SignUploadURL(sctx, photo.S3Key, photo.ContentType)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("jobID", job.ID.Hex()).
				Str("photoID", photo.ID.Hex()).
				Msg("Failed to presign upload URL")
			return nil, model.NewDependencyError(fmt.Errorf("object storage unavailable: %w", err))
		}

		if err := photo.StartUpload(); err != nil {
			return nil, err
		}
		if err := c.store.UpdatePhotoState(ctx, photo.ID, model.PhotoPending, photo); err != nil {
			return nil, err
		}

		uploads = append(uploads, PhotoUpload{Photo: photo, UploadURL: url})
	}

	log.Info().Str("jobID", job.ID.Hex()).
		Str("ownerID", ownerID).
		Int("totalCount", job.TotalCount).
		Msg("Created upload job")

	return &CreateJobResult{Job: job, Uploads: uploads}, nil
}

// GetJob returns a job and its photos, enforcing ownership
func (c *uploadController) GetJob(ctx context.Context, jobID, ownerID string) (*model.UploadJob, []*model.Photo, error) {
	id, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return nil, nil, model.NewValidationError("invalid job id")
	}

	job, err := c.store.GetUploadJobByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.OwnerID != ownerID {
		return nil, nil, model.NewAccessDeniedError("job belongs to a different owner")
	}

	photos, err := c.store.ListPhotosByJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return job, photos, nil
}

// ListJobs returns the owner's jobs, newest first
func (c *uploadController) ListJobs(ctx context.Context, ownerID string, limit, offset int) ([]*model.UploadJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return c.store.ListUploadJobsByOwner(ctx, ownerID, limit, offset)
}

// loadOwnedPhoto fetches a photo and checks ownership
func (c *uploadController) loadOwnedPhoto(ctx context.Context, photoID, ownerID string) (*model.Photo, error) {
	id, err := primitive.ObjectIDFromHex(photoID)
	if err != nil {
		return nil, model.NewValidationError("invalid photo id")
	}

	photo, err := c.store.GetPhotoByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !photo.BelongsTo(ownerID) {
		return nil, model.NewAccessDeniedError("photo belongs to a different owner")
	}

	return photo, nil
}

// ReportCompletion records a successful client-side upload. The photo
// transition and the job counter update each commit atomically; a photo that
// previously counted as failed moves its unit from failed to completed so
// the counters keep summing to at most the total.
func (c *uploadController) ReportCompletion(ctx context.Context, photoID, ownerID string) error {
	photo, err := c.loadOwnedPhoto(ctx, photoID, ownerID)
	if err != nil {
		return err
	}

	if c.cfg.VerifyOnComplete {
		sctx, cancel := c.signCtx(ctx)
		exists, err := c.signer.Exists(sctx, photo.S3Key)
		cancel()
		if err != nil {
			return model.NewDependencyError(fmt.Errorf("object storage unavailable: %w", err))
		}
		if !exists {
			return model.NewValidationError("uploaded object not found in storage")
		}
	}

	unlock := c.locks.lock(photo.ID.Hex())

	from := photo.UploadStatus
	wasFailed := photo.RetryCount > 0

	if err := photo.MarkCompleted(); err != nil {
		unlock()
		return err
	}

	if err := c.store.UpdatePhotoState(ctx, photo.ID, from, photo); err != nil {
		unlock()
		if errors.Is(err, database.ErrStateConflict) {
			return model.NewInvalidTransitionError("photo state changed concurrently")
		}
		return err
	}

	// A photo that had already been charged to failed_count gives that unit
	// back as it completes
	failedDelta := 0
	if wasFailed {
		failedDelta = -1
	}

	job, err := c.store.ApplyPhotoOutcome(ctx, photo.JobID, 1, failedDelta)
	unlock()
	if err != nil {
		return err
	}

	events := []model.ProgressEvent{model.NewPhotoEvent(model.EventPhotoCompleted, photo, job)}
	if job.Settled() {
		events = append(events, model.NewJobEvent(model.EventJobCompleted, job))
	}
	c.emit(ctx, job.ID.Hex(), events...)

	log.Info().Str("photoID", photo.ID.Hex()).
		Str("jobID", job.ID.Hex()).
		Str("jobStatus", string(job.Status)).
		Msg("Photo completed")
	return nil
}

// ReportFailure records a failed client-side upload
func (c *uploadController) ReportFailure(ctx context.Context, photoID, ownerID, reason string) error {
	photo, err := c.loadOwnedPhoto(ctx, photoID, ownerID)
	if err != nil {
		return err
	}

	return c.failPhoto(ctx, photo, reason)
}

// FailStalled force-fails a photo abandoned in flight. A concurrent
// completion report winning the race ends the sweep for this photo; only
// once the failure has committed is the half-uploaded object, if any,
// removed from storage.
func (c *uploadController) FailStalled(ctx context.Context, photo *model.Photo, reason string) (bool, error) {
	err := c.failPhoto(ctx, photo, reason)
	if err != nil {
		if model.KindOf(err) == model.KindInvalidTransition {
			log.Debug().Str("photoID", photo.ID.Hex()).Msg("Photo settled before stalled sweep reached it")
			return false, nil
		}
		return false, err
	}

	sctx, cancel := c.signCtx(ctx)
	defer cancel()
	if err := c.signer.Delete(sctx, photo.S3Key); err != nil {
		log.Warn().Err(err).Str("photoID", photo.ID.Hex()).
			Str("key", photo.S3Key).
			Msg("Failed to delete stalled upload object")
	}

	return true, nil
}

// failPhoto applies the failure transition, charges the job's failed counter
// on the photo's first failure only, and emits the resulting events
func (c *uploadController) failPhoto(ctx context.Context, photo *model.Photo, reason string) error {
	unlock := c.locks.lock(photo.ID.Hex())

	from := photo.UploadStatus

	if err := photo.MarkFailed(); err != nil {
		unlock()
		return err
	}

	if err := c.store.UpdatePhotoState(ctx, photo.ID, from, photo); err != nil {
		unlock()
		if errors.Is(err, database.ErrStateConflict) {
			return model.NewInvalidTransitionError("photo state changed concurrently")
		}
		return err
	}

	// Later failures of the same photo are already counted; only the first
	// one moves the job's failed counter
	failedDelta := 0
	if photo.RetryCount == 1 {
		failedDelta = 1
	}

	job, err := c.store.ApplyPhotoOutcome(ctx, photo.JobID, 0, failedDelta)
	unlock()
	if err != nil {
		return err
	}

	retryable := photo.CanRetry(c.cfg.MaxRetries)
	failedEvent := model.NewPhotoEvent(model.EventPhotoFailed, photo, job)
	failedEvent.Retryable = &retryable
	failedEvent.ErrorMessage = reason

	events := []model.ProgressEvent{failedEvent, model.NewJobEvent(model.EventJobProgress, job)}
	if job.Settled() {
		events = append(events, model.NewJobEvent(model.EventJobCompleted, job))
	}
	c.emit(ctx, job.ID.Hex(), events...)

	log.Info().Str("photoID", photo.ID.Hex()).
		Str("jobID", job.ID.Hex()).
		Int("retryCount", photo.RetryCount).
		Bool("retryable", retryable).
		Str("reason", reason).
		Msg("Photo failed")
	return nil
}

// RetryPhoto re-admits a failed photo within its retry budget and issues a
// fresh upload URL. Counters stay untouched until the retry resolves.
func (c *uploadController) RetryPhoto(ctx context.Context, photoID, ownerID string) (*RetryResult, error) {
	photo, err := c.loadOwnedPhoto(ctx, photoID, ownerID)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.lock(photo.ID.Hex())

	if err := photo.Retry(c.cfg.MaxRetries); err != nil {
		unlock()
		return nil, err
	}

	if err := c.store.UpdatePhotoState(ctx, photo.ID, model.PhotoFailed, photo); err != nil {
		unlock()
		if errors.Is(err, database.ErrStateConflict) {
			return nil, model.NewInvalidTransitionError("photo state changed concurrently")
		}
		return nil, err
	}
	unlock()

	sctx, cancel := c.signCtx(ctx)
	url, err := c.signer.SignUploadURL(sctx, photo.S3Key, photo.ContentType)
	cancel()
	if err != nil {
		// The photo is back in flight; if the client never gets a URL the
		// stalled sweep will fail it again
		return nil, model.NewDependencyError(fmt.Errorf("object storage unavailable: %w", err))
	}

	if job, jerr := c.store.GetUploadJobByID(ctx, photo.JobID); jerr == nil {
		c.emit(ctx, job.ID.Hex(), model.NewPhotoEvent(model.EventPhotoProgress, photo, job))
	} else {
		log.Warn().Err(jerr).Str("jobID", photo.JobID.Hex()).Msg("Failed to load job for retry event")
	}

	log.Info().Str("photoID", photo.ID.Hex()).
		Int("retryCount", photo.RetryCount).
		Msg("Photo retry admitted")

	return &RetryResult{Photo: photo, UploadURL: url}, nil
}

// DownloadURL issues a presigned GET URL for a completed photo
func (c *uploadController) DownloadURL(ctx context.Context, photoID, ownerID string) (string, error) {
	photo, err := c.loadOwnedPhoto(ctx, photoID, ownerID)
	if err != nil {
		return "", err
	}

	if photo.UploadStatus != model.PhotoCompleted {
		return "", model.NewValidationError("photo upload is not completed")
	}

	sctx, cancel := c.signCtx(ctx)
	defer cancel()
	url, err := c.signer.SignDownloadURL(sctx, photo.S3Key)
	if err != nil {
		return "", model.NewDependencyError(fmt.Errorf("object storage unavailable: %w", err))
	}

	return url, nil
}
