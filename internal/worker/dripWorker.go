package worker

import (
	"context"
	"time"

	"github.com/ds124wfegd/dealslot/internal/service"

	"github.com/sirupsen/logrus"
)

// DripReleaseWorker reconciles drip slots against their release schedule.
// The entitlement computation absorbs missed ticks, so the worker can be
// down for a while without losing releases.
type DripReleaseWorker struct {
	slots    service.SlotService
	interval time.Duration
}

func NewDripReleaseWorker(slots service.SlotService, interval time.Duration) *DripReleaseWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DripReleaseWorker{
		slots:    slots,
		interval: interval,
	}
}

func (w *DripReleaseWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.Info("Drip release worker started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Drip release worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick выполняет один проход по всем drip слотам
func (w *DripReleaseWorker) tick(ctx context.Context) {
	released, err := w.slots.TickAllDrip(ctx, time.Now())
	if err != nil {
		logrus.Errorf("Drip tick failed: %v", err)
		return
	}

	if released > 0 {
		logrus.Infof("Drip tick released %d units", released)
	} else {
		logrus.Debug("Drip tick released nothing")
	}
}

// GetStats возвращает статистику работы воркера
func (w *DripReleaseWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"worker_type": "drip_release",
		"interval":    w.interval.String(),
		"status":      "running",
	}
}
