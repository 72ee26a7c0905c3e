package worker

import (
	"context"
	"time"

	shopsvc "rupiya_directory/internal/api/shop/service"
	"rupiya_directory/internal/logger"
)

// LedgerReconciler xử lý hàng đợi đối soát ledger
type LedgerReconciler interface {
	ProcessReconcileTasks(ctx context.Context, limit int) (shopsvc.ReconcileReport, error)
}

// LedgerReconcileWorker đọc ledger_reconcile_tasks chưa xử lý, tính lại agent / doanh thu liên quan rồi đánh dấu processedAt.
// Mỗi lần xử lý tối đa batchSize task.
type LedgerReconcileWorker struct {
	reconciler LedgerReconciler
	interval   time.Duration
	batchSize  int
}

// NewLedgerReconcileWorker tạo worker.
// Tham số:
//   - interval: Khoảng thời gian giữa các lần chạy (mặc định: 10 phút)
//   - batchSize: Số task tối đa mỗi lần (mặc định: 50)
func NewLedgerReconcileWorker(reconciler LedgerReconciler, interval time.Duration, batchSize int) *LedgerReconcileWorker {
	if interval < time.Minute {
		interval = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &LedgerReconcileWorker{reconciler: reconciler, interval: interval, batchSize: batchSize}
}

// Start chạy worker trong vòng lặp tới khi ctx bị huỷ
func (w *LedgerReconcileWorker) Start(ctx context.Context) {
	log := logger.GetAppLogger()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithFields(map[string]interface{}{
		"interval":  w.interval.String(),
		"batchSize": w.batchSize,
	}).Info("🔁 [LEDGER_RECONCILE] Starting Ledger Reconcile Worker...")

	for {
		select {
		case <-ctx.Done():
			log.Info("🔁 [LEDGER_RECONCILE] Ledger Reconcile Worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce xử lý một batch
func (w *LedgerReconcileWorker) RunOnce(ctx context.Context) (report shopsvc.ReconcileReport, ok bool) {
	log := logger.GetAppLogger()
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("🔁 [LEDGER_RECONCILE] Panic khi xử lý hàng đợi đối soát, sẽ tiếp tục ở lần chạy tiếp theo")
			ok = false
		}
	}()

	report, err := w.reconciler.ProcessReconcileTasks(ctx, w.batchSize)
	if err != nil {
		log.WithError(err).Error("🔁 [LEDGER_RECONCILE] Lỗi đọc hàng đợi đối soát")
		return report, false
	}
	if report.Processed > 0 || report.Failed > 0 {
		log.WithFields(map[string]interface{}{
			"processed": report.Processed,
			"failed":    report.Failed,
			"gaveUp":    report.GaveUp,
		}).Info("🔁 [LEDGER_RECONCILE] Đã xử lý hàng đợi đối soát")
	}
	return report, true
}
