package main

import (
	"context"
	"time"

	"rupiya_directory/internal/app"
	"rupiya_directory/internal/logger"
	"rupiya_directory/internal/worker"
)

// startWorker chạy worker trong goroutine riêng với recover
func startWorker(ctx context.Context, name string, start func(context.Context)) {
	log := logger.GetAppLogger()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(map[string]interface{}{
					"worker": name,
					"panic":  r,
				}).Error("⚙️ [WORKER] Worker goroutine panic, worker đã dừng")
			}
		}()
		start(ctx)
	}()
}

// InitWorkers khởi động worker quét hết hạn và worker đối soát ledger
func InitWorkers(ctx context.Context, a *app.App) {
	log := logger.GetAppLogger()
	cfg := a.Config

	if cfg.SweepIntervalMinutes > 0 {
		w := worker.NewExpirySweepWorker(a.Services.Engine, time.Duration(cfg.SweepIntervalMinutes)*time.Minute)
		startWorker(ctx, "expiry_sweep", w.Start)
	} else {
		log.Info("🧹 [EXPIRY_SWEEP] Worker disabled (SWEEP_INTERVAL_MINUTES=0)")
	}

	if cfg.ReconcileIntervalMinutes > 0 {
		w := worker.NewLedgerReconcileWorker(a.Services.Ledger, time.Duration(cfg.ReconcileIntervalMinutes)*time.Minute, cfg.ReconcileBatchSize)
		startWorker(ctx, "ledger_reconcile", w.Start)
	} else {
		log.Info("🔁 [LEDGER_RECONCILE] Worker disabled (RECONCILE_INTERVAL_MINUTES=0)")
	}
}
