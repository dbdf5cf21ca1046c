package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"rapidphoto/internal/config"
	"rapidphoto/internal/controller"
	"rapidphoto/internal/database"
)

const sweepBatchSize = 200

// SweepResult summarizes one reconciliation pass
type SweepResult struct {
	Scanned int `json:"scanned"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Reconciler periodically fails photos whose uploads were abandoned: issued
// an upload URL but never reported back. It reuses the coordinator's failure
// path, so swept photos charge job counters and emit events exactly like a
// client-reported failure.
type Reconciler struct {
	store      database.PhotoDatabase
	uploads    controller.UploadController
	threshold  time.Duration
	interval   time.Duration
	cancelOnce sync.Once
	cancel     context.CancelFunc
	done       chan struct{}
}

func New(store database.PhotoDatabase, uploads controller.UploadController, cfg config.UploadConfig) *Reconciler {
	return &Reconciler{
		store:     store,
		uploads:   uploads,
		threshold: time.Duration(cfg.StalledThresholdMinutes) * time.Minute,
		interval:  time.Duration(cfg.ReconcileIntervalMinutes) * time.Minute,
		done:      make(chan struct{}),
	}
}

// Run starts the periodic sweep loop. It returns once the loop goroutine is
// started; call Stop to terminate it.
func (r *Reconciler) Run(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		log.Info().
			Dur("interval", r.interval).
			Dur("threshold", r.threshold).
			Msg("Stalled upload reconciler started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Stalled upload reconciler stopped")
				return
			case <-ticker.C:
				result, err := r.Sweep(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Reconciler sweep failed")
					continue
				}
				if result.Scanned > 0 {
					log.Info().
						Int("scanned", result.Scanned).
						Int("failed", result.Failed).
						Int("skipped", result.Skipped).
						Msg("Reconciler sweep finished")
				}
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit
func (r *Reconciler) Stop() {
	r.cancelOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
	})
}

// Sweep fails every photo that has sat in PENDING or UPLOADING past the
// stalled threshold. Photos that settle concurrently are skipped, so a
// sweep overlapping a burst of late completion reports is harmless.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	cutoff := time.Now().Add(-r.threshold)

	var result SweepResult
	for {
		photos, err := r.store.ListStalledPhotos(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return result, err
		}
		if len(photos) == 0 {
			return result, nil
		}

		progressed := false
		for _, photo := range photos {
			result.Scanned++

			before := photo.UploadStatus
			failed, err := r.uploads.FailStalled(ctx, photo, "stalled: upload never completed within the threshold")
			if err != nil {
				log.Warn().Err(err).
					Str("photoID", photo.ID.Hex()).
					Str("status", string(before)).
					Msg("Failed to reconcile stalled photo")
				result.Skipped++
				continue
			}
			if !failed {
				// Settled concurrently; nothing was force-failed
				result.Skipped++
				continue
			}
			progressed = true
			result.Failed++
		}

		// Every candidate lost its race or errored; bail instead of
		// re-listing the same photos forever
		if !progressed {
			return result, nil
		}

		if len(photos) < sweepBatchSize {
			return result, nil
		}
	}
}

// Stats counts the photos a sweep would currently touch, without touching
// them
func (r *Reconciler) Stats(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.threshold)
	return r.store.CountStalledPhotos(ctx, cutoff)
}
