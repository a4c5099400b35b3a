package outbox

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Janitor periodically prunes processed outbox rows so the table stays
// bounded. Pending rows are never touched.
type Janitor struct {
	store     *Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	logger    *logrus.Logger
}

// NewJanitor creates a janitor. schedule is a cron expression; retention is
// how long processed rows are kept before deletion.
func NewJanitor(store *Store, schedule string, retention time.Duration, logger *logrus.Logger) *Janitor {
	return &Janitor{
		store:     store,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start registers the prune job and starts the scheduler.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		j.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running prune to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// RunOnce performs one prune pass.
func (j *Janitor) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-j.retention)
	pruned, err := j.store.PruneProcessed(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Error("outbox prune failed")
		return
	}
	if pruned > 0 {
		j.logger.WithField("pruned", pruned).Info("outbox rows pruned")
	}
}
