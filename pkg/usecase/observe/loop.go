package observe

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/sightline/pkg/utils/logging"
)

// DefaultInterval is the watch loop period.
const DefaultInterval = 10 * time.Second

// Watch runs cycles on a fixed interval until ctx is cancelled. Cycle
// failures are logged and the loop continues; a tick that fires while a
// cycle is still running is skipped, never queued.
func (u *UseCase) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	logger := logging.From(ctx)
	logger.Info("starting watch loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch loop stopped")
			return nil
		case <-ticker.C:
			if _, err := u.RunCycle(ctx); err != nil {
				if errors.Is(err, ErrCycleInProgress) {
					logger.Debug("previous cycle still running, skipping tick")
					continue
				}
				logger.Error("observation cycle failed", "error", err)
			}
		}
	}
}
