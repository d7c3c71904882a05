package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/socialdeck/dashboard-server-go/internal/repository"
)

// CleanupJob periodically downgrades connections whose tokens lapsed with no
// way to refresh them, so the dashboard shows them as expired even if the
// user never tries to publish. Authorization attempts need no sweeping; they
// expire out of Redis on their own.
type CleanupJob struct {
	connectionRepo repository.ConnectionRepository
	interval       time.Duration
	done           chan struct{}
}

func NewCleanupJob(connectionRepo repository.ConnectionRepository, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		connectionRepo: connectionRepo,
		interval:       interval,
		done:           make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.connectionRepo.MarkExpired(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("failed to mark expired connections")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("marked connections expired")
	}
}
