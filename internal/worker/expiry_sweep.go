// Package worker chứa các background worker chạy định kỳ: quét shop hết hạn và xử lý hàng đợi đối soát ledger.
package worker

import (
	"context"
	"time"

	"rupiya_directory/internal/api/shop/models"
	shopsvc "rupiya_directory/internal/api/shop/service"
	"rupiya_directory/internal/logger"
)

// SweepActor actor hệ thống dùng cho lượt quét định kỳ
var SweepActor = models.Actor{ID: "expiry-sweep-worker", Role: models.RoleSystem}

// ExpirySweeper thao tác quét hết hạn của engine
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, actor models.Actor, now time.Time) (shopsvc.SweepResult, error)
}

// ExpirySweepWorker chuyển shop PAID hết hạn sang khu vực chờ gia hạn theo chu kỳ.
// Lượt quét idempotent nên chạy song song với lệnh sweep thủ công vẫn an toàn.
type ExpirySweepWorker struct {
	sweeper  ExpirySweeper
	interval time.Duration // Khoảng thời gian giữa các lần chạy
	now      func() time.Time
}

// NewExpirySweepWorker tạo worker, interval < 1 phút dùng mặc định 1 giờ
func NewExpirySweepWorker(sweeper ExpirySweeper, interval time.Duration) *ExpirySweepWorker {
	if interval < time.Minute {
		interval = time.Hour
	}
	return &ExpirySweepWorker{sweeper: sweeper, interval: interval, now: time.Now}
}

// Start chạy một lượt ngay khi khởi động rồi lặp theo interval cho tới khi ctx bị huỷ
func (w *ExpirySweepWorker) Start(ctx context.Context) {
	log := logger.GetAppLogger()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithField("interval", w.interval.String()).Info("🧹 [EXPIRY_SWEEP] Starting Expiry Sweep Worker...")
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info("🧹 [EXPIRY_SWEEP] Expiry Sweep Worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce một lượt quét, panic được nuốt để vòng lặp tiếp tục
func (w *ExpirySweepWorker) RunOnce(ctx context.Context) (result shopsvc.SweepResult, ok bool) {
	log := logger.GetAppLogger()
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("🧹 [EXPIRY_SWEEP] Panic khi quét shop hết hạn, sẽ tiếp tục ở lần chạy tiếp theo")
			ok = false
		}
	}()

	result, err := w.sweeper.SweepExpired(ctx, SweepActor, w.now())
	if err != nil {
		log.WithError(err).Error("🧹 [EXPIRY_SWEEP] Quét shop hết hạn thất bại")
		return result, false
	}
	if result.HasErrors() {
		for _, e := range result.Errors {
			log.WithFields(map[string]interface{}{
				"component": e.Component,
				"ref":       e.Ref,
			}).Warn("🧹 [EXPIRY_SWEEP] " + e.Message)
		}
	}
	return result, true
}
