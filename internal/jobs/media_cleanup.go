package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// MediaLedger finds and clears orphaned upload records.
type MediaLedger interface {
	OrphanedMediaKeys(ctx context.Context, maxAge time.Duration) ([]string, error)
	PurgeMediaRecords(ctx context.Context, objectKeys []string) error
}

// ObjectStore inspects and deletes stored media objects.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// MediaCleanupJob sweeps media objects whose upload was signed but whose post
// never materialized, or whose post was deleted while the object delete
// failed.
type MediaCleanupJob struct {
	ledger   MediaLedger
	objects  ObjectStore
	logger   logging.Logger
	interval time.Duration
	maxAge   time.Duration // how old an unreferenced upload must be before removal
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// MediaCleanupConfig holds configuration for the cleanup job
type MediaCleanupConfig struct {
	Ledger   MediaLedger
	Objects  ObjectStore
	Logger   logging.Logger
	Interval time.Duration // How often to run (default: 10 minutes)
	MaxAge   time.Duration // Min age of unreferenced uploads to process (default: 30 minutes)
}

// NewMediaCleanupJob creates a new media cleanup job
func NewMediaCleanupJob(cfg MediaCleanupConfig) *MediaCleanupJob {
	interval := cfg.Interval
	if interval == 0 {
		interval = 10 * time.Minute
	}
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 30 * time.Minute
	}
	return &MediaCleanupJob{
		ledger:   cfg.Ledger,
		objects:  cfg.Objects,
		logger:   cfg.Logger,
		interval: interval,
		maxAge:   maxAge,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (j *MediaCleanupJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Info("Media cleanup job started")
}

// Stop gracefully stops the job
func (j *MediaCleanupJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info("Media cleanup job stopped")
}

func (j *MediaCleanupJob) run() {
	defer j.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once at startup
	j.Sweep()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-j.stopCh:
			return
		}
	}
}

// Sweep runs one cleanup pass. Objects that fail to delete stay in the
// ledger and are retried on the next pass.
func (j *MediaCleanupJob) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	keys, err := j.ledger.OrphanedMediaKeys(ctx, j.maxAge)
	if err != nil {
		j.logger.WithError(err).Error("Failed to find orphaned media")
		return
	}
	if len(keys) == 0 {
		return
	}

	var removed []string
	for _, key := range keys {
		if j.objects != nil {
			// An object can already be gone when a previous delete
			// succeeded but the ledger purge failed; only the record
			// needs cleaning then.
			exists, err := j.objects.Exists(ctx, key)
			if err != nil {
				j.logger.WithError(err).WithFields(logging.Fields{
					"object_key": key,
				}).Warn("Failed to check orphaned media object")
				continue
			}
			if exists {
				if err := j.objects.Delete(ctx, key); err != nil {
					j.logger.WithError(err).WithFields(logging.Fields{
						"object_key": key,
					}).Warn("Failed to delete orphaned media object")
					continue
				}
			}
		}
		removed = append(removed, key)
	}

	if len(removed) > 0 {
		if err := j.ledger.PurgeMediaRecords(ctx, removed); err != nil {
			j.logger.WithError(err).Error("Failed to purge media ledger entries")
			return
		}
		j.logger.WithFields(logging.Fields{
			"deleted": len(removed),
			"found":   len(keys),
		}).Info("Swept orphaned media")
	}
}
