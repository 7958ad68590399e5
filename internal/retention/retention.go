package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatledger/pkg/config"
	"chatledger/pkg/logger"
	"chatledger/pkg/store"
)

// Start starts the retention scheduler if enabled. Idle threads whose
// last activity is older than the configured period are cleared.
// Returns a cancel func.
func Start(ctx context.Context, st *store.Store, cfg *config.Config) (context.CancelFunc, error) {
	if !cfg.Retention.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	period, err := cfg.RetentionPeriod()
	if err != nil {
		return nil, fmt.Errorf("invalid retention period: %w", err)
	}

	// map empty cron to default daily @02:00
	cronExpr := cfg.Retention.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", period.String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr, period)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, st *store.Store, cronExpr string, period time.Duration) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_next_tick_failed", "cron", cronExpr, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		case <-time.After(next.Sub(now)):
		}
		if err := RunOnce(st, period); err != nil {
			logger.Error("retention_run_failed", "error", err)
		}
	}
}

// RunOnce performs a single retention sweep. Exported so tests and admin
// triggers can invoke sweeps on demand.
func RunOnce(st *store.Store, period time.Duration) error {
	metas, err := st.ListThreads()
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-period).UnixNano()
	swept := 0
	for _, meta := range metas {
		last := meta.UpdatedTS
		if last == 0 {
			last = meta.CreatedTS
		}
		if last >= cutoff {
			continue
		}
		ok, err := st.ClearThread(meta.ID)
		if err != nil {
			return err
		}
		if ok {
			swept++
			logger.Info("retention_thread_swept", "thread", meta.ID)
		}
	}
	logger.Info("retention_run_complete", "threads", len(metas), "swept", swept)
	return nil
}
