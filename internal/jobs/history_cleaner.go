package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const clearTimeout = 30 * time.Second

// HistoryClearer is satisfied by the relay.
type HistoryClearer interface {
	ClearHistory(ctx context.Context) (int64, error)
}

// HistoryCleaner wipes every document on a cron schedule, the same way
// DELETE /clear-history does.
type HistoryCleaner struct {
	clearer  HistoryClearer
	schedule string
	log      *zap.Logger
	cron     *cron.Cron
}

func NewHistoryCleaner(clearer HistoryClearer, schedule string, log *zap.Logger) *HistoryCleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &HistoryCleaner{
		clearer:  clearer,
		schedule: schedule,
		log:      log,
		cron:     cron.New(),
	}
}

// Start registers the job. An empty schedule disables it.
func (hc *HistoryCleaner) Start() error {
	if hc.schedule == "" {
		hc.log.Info("history cleaner disabled")
		return nil
	}
	if _, err := hc.cron.AddFunc(hc.schedule, func() {
		if err := hc.RunOnce(context.Background()); err != nil {
			hc.log.Error("scheduled history clear failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule history cleaner: %w", err)
	}
	hc.cron.Start()
	hc.log.Info("history cleaner started", zap.String("schedule", hc.schedule))
	return nil
}

// Stop waits for a running clear to finish.
func (hc *HistoryCleaner) Stop() {
	if hc.cron == nil {
		return
	}
	<-hc.cron.Stop().Done()
}

func (hc *HistoryCleaner) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, clearTimeout)
	defer cancel()

	n, err := hc.clearer.ClearHistory(ctx)
	if err != nil {
		return err
	}
	hc.log.Info("history cleared by schedule", zap.Int64("documents", n))
	return nil
}
