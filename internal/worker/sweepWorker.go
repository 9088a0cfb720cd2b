package worker

import (
	"context"
	"time"

	"github.com/ds124wfegd/dealslot/internal/service"

	"github.com/sirupsen/logrus"
)

// ClaimSweepWorker drives the expiry sweeper on a fixed period. Claim TTLs
// are short, so the interval should stay at minute granularity.
type ClaimSweepWorker struct {
	sweeper  service.SweeperService
	interval time.Duration
}

func NewClaimSweepWorker(sweeper service.SweeperService, interval time.Duration) *ClaimSweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ClaimSweepWorker{
		sweeper:  sweeper,
		interval: interval,
	}
}

func (w *ClaimSweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.Info("Claim sweep worker started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Claim sweep worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep выполняет один проход по истекшим заявкам
func (w *ClaimSweepWorker) sweep(ctx context.Context) {
	result, err := w.sweeper.SweepExpired(ctx)
	if err != nil {
		logrus.Errorf("Claim sweep failed: %v", err)
		return
	}

	if result.ExpiredCount == 0 && result.FailedCount == 0 {
		logrus.Debug("No expired claims found")
		return
	}

	logrus.Infof("Claim sweep completed: expired=%d, reclaimed=%d, failed=%d",
		result.ExpiredCount, result.ReclaimedUnits, result.FailedCount)

	if result.FailedCount > 0 {
		logrus.Warnf("%d claims failed to expire during sweep", result.FailedCount)
	}
}

// GetStats возвращает статистику работы воркера
func (w *ClaimSweepWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"worker_type": "claim_sweep",
		"interval":    w.interval.String(),
		"status":      "running",
	}
}
