package shopsvc

import (
	"context"
	"errors"
	"time"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/logger"
	"rupiya_directory/internal/utility"

	"github.com/sirupsen/logrus"
)

// defaultCASRetries số lần thử compare-and-set khi tính lại agent
const defaultCASRetries = 5

// LedgerService ledger hoa hồng agent và doanh thu quận/huyện.
// Cập nhật trực tiếp là best-effort; lỗi được đưa vào ReconcileQueue và sửa bằng tính lại.
type LedgerService struct {
	repo       *ShopRepository
	holding    HoldingStore
	agents     AgentLedger
	revenue    RevenueLedger
	queue      ReconcileQueue
	now        func() time.Time
	casRetries int
	log        *logrus.Entry
}

// NewLedgerService queue có thể nil (chỉ ghi log khi cập nhật thất bại)
func NewLedgerService(repo *ShopRepository, holding HoldingStore, agents AgentLedger, revenue RevenueLedger, queue ReconcileQueue, now func() time.Time) *LedgerService {
	if now == nil {
		now = time.Now
	}
	return &LedgerService{
		repo:       repo,
		holding:    holding,
		agents:     agents,
		revenue:    revenue,
		queue:      queue,
		now:        now,
		casRetries: defaultCASRetries,
		log:        logger.WithModule("shop_ledger"),
	}
}

// Commission round(amount * rate(plan))
func (l *LedgerService) Commission(plan models.PlanTier, amount int64) int64 {
	return l.repo.catalog.Commission(plan, amount)
}

func (l *LedgerService) nowMilli() int64 {
	return utility.UnixMilli(l.now())
}

// enqueue ghi task đối soát sau khi một cập nhật best-effort thất bại
func (l *LedgerService) enqueue(ctx context.Context, task models.LedgerReconcileTask, cause error) {
	fields := logrus.Fields{"reason": task.Reason, "agentId": task.AgentID, "district": task.District, "day": task.Day}
	l.log.WithError(cause).WithFields(fields).Warn("⚠️ [LEDGER] Cập nhật ledger thất bại, đưa vào hàng đợi đối soát")
	if l.queue == nil {
		return
	}
	task.LastError = cause.Error()
	task.CreatedAt = l.nowMilli()
	if err := l.queue.Enqueue(ctx, task); err != nil {
		l.log.WithError(err).WithFields(fields).Error("❌ [LEDGER] Không ghi được task đối soát, cần chạy recompute thủ công")
	}
}

// AdjustShopCount cộng/trừ totalShops của agent
func (l *LedgerService) AdjustShopCount(ctx context.Context, agentID string, delta int64, shop models.Ref) error {
	if agentID == "" || delta == 0 {
		return nil
	}
	var err error
	if delta > 0 {
		err = l.agents.Increment(ctx, agentID, delta, 0)
	} else {
		err = l.agents.DeductFloor(ctx, agentID, -delta, 0)
	}
	if err != nil {
		l.enqueue(ctx, models.LedgerReconcileTask{Reason: models.ReconcileAgentShopCount, AgentID: agentID, Shop: &shop}, err)
	}
	return err
}

// RevenueDeltaFor phần doanh thu của một khoản thanh toán
func RevenueDeltaFor(entry models.PaymentEntry) RevenueDelta {
	return RevenueDelta{
		Plans:      map[models.PlanTier]models.PlanRevenue{entry.Plan: {Count: 1, Amount: entry.Amount}},
		Revenue:    entry.Amount,
		Commission: entry.Commission,
	}
}

// ApplyPayment ghi có hoa hồng (kèm shopsDelta vào totalShops) và doanh thu của một khoản thanh toán.
// Trả về lỗi từng phần để caller ghi log; mọi lỗi đã được đưa vào hàng đợi đối soát.
func (l *LedgerService) ApplyPayment(ctx context.Context, owner models.Ref, agentID string, entry models.PaymentEntry, shopsDelta int64) []common.ComponentError {
	var failures []common.ComponentError

	if agentID != "" && (entry.Commission != 0 || shopsDelta != 0) {
		if err := l.agents.Increment(ctx, agentID, shopsDelta, entry.Commission); err != nil {
			failures = append(failures, common.NewComponentError("commission", agentID, err))
			l.enqueue(ctx, models.LedgerReconcileTask{Reason: models.ReconcileAgentCommission, AgentID: agentID, Shop: &owner}, err)
		}
	}

	key := models.RevenueKey{District: utility.NormalizeDistrict(entry.District), Day: entry.Day}
	if err := l.revenue.Apply(ctx, key, RevenueDeltaFor(entry), l.nowMilli()); err != nil {
		failures = append(failures, common.NewComponentError("revenue", key.District+"/"+key.Day, err))
		l.enqueue(ctx, models.LedgerReconcileTask{Reason: models.ReconcileRevenue, District: key.District, Day: key.Day, Shop: &owner}, err)
	}
	return failures
}

// DeferPayment không ghi có khoản thanh toán chưa được lưu trên bản giữ ledger,
// chỉ đưa agent và (quận/huyện, ngày) vào hàng đợi đối soát để tính lại từ dữ liệu đã lưu.
func (l *LedgerService) DeferPayment(ctx context.Context, owner models.Ref, agentID string, entry models.PaymentEntry, cause error) {
	if cause == nil {
		cause = errors.New("payment entry not stored on ledger owner")
	}
	if agentID != "" {
		l.enqueue(ctx, models.LedgerReconcileTask{Reason: models.ReconcileAgentCommission, AgentID: agentID, Shop: &owner}, cause)
	}
	district := utility.NormalizeDistrict(entry.District)
	l.enqueue(ctx, models.LedgerReconcileTask{Reason: models.ReconcileRevenue, District: district, Day: entry.Day, Shop: &owner}, cause)
}

// ledgerEntries các khoản thanh toán đã ghi vào ledger của một bản ghi.
// Bản ghi cũ không có lịch sử nhưng đã PAID được coi như một khoản amountPaid tại lastPaymentDate.
func (l *LedgerService) ledgerEntries(rec models.ShopRecord) []models.PaymentEntry {
	if len(rec.PaymentHistory) > 0 {
		return rec.PaymentHistory
	}
	if rec.PaymentStatus != models.PaymentPaid || rec.IsMirror() {
		return nil
	}
	entry := models.PaymentEntry{
		Kind:      models.PaymentKindPayment,
		Plan:      rec.Plan,
		Amount:    rec.AmountPaid,
		Mode:      rec.PaymentMode,
		ReceiptNo: rec.ReceiptNo,
		PaidAt:    rec.LastPaymentDate,
		Day:       utility.DayKey(rec.LastPaymentDate, l.repo.tzOffset),
		District:  rec.District(),
	}
	if rec.Ref.Origin == models.OriginAgent && rec.AgentID != "" {
		entry.Commission = l.Commission(rec.Plan, rec.AmountPaid)
	}
	return []models.PaymentEntry{entry}
}

// DeductResult kết quả khấu trừ ledger
type DeductResult struct {
	TotalCommissionDeducted int64                   `json:"totalCommissionDeducted"`
	TotalRevenueDeducted    int64                   `json:"totalRevenueDeducted"`
	ShopsDeducted           map[string]int64        `json:"shopsDeducted,omitempty"` // Số shop trừ khỏi totalShops theo agent
	Errors                  []common.ComponentError `json:"errors,omitempty"`
}

// DeductForDeletedShops trừ hoa hồng và doanh thu đã ghi của các shop sắp bị xoá, gộp theo agent
// và theo (quận/huyện, ngày thanh toán). Mọi bộ đếm chặn dưới 0 trong chính lệnh cập nhật.
// Chỉ bản giữ ledger mang PaymentEntry nên truyền cả bản sao cũng không bị trừ hai lần.
func (l *LedgerService) DeductForDeletedShops(ctx context.Context, shops []models.ShopRecord) DeductResult {
	type agentDelta struct{ shops, earnings int64 }
	agents := map[string]*agentDelta{}
	revenue := map[models.RevenueKey]*RevenueDelta{}
	agentOrder := []string{}
	keyOrder := []models.RevenueKey{}

	for _, rec := range shops {
		owned := rec.Ref.Origin == models.OriginAgent && rec.AgentID != ""
		if owned {
			d, ok := agents[rec.AgentID]
			if !ok {
				d = &agentDelta{}
				agents[rec.AgentID] = d
				agentOrder = append(agentOrder, rec.AgentID)
			}
			d.shops++
		}
		for _, entry := range l.ledgerEntries(rec) {
			if owned {
				agents[rec.AgentID].earnings += entry.Commission
			}
			key := models.RevenueKey{District: utility.NormalizeDistrict(entry.District), Day: entry.Day}
			d, ok := revenue[key]
			if !ok {
				d = &RevenueDelta{}
				revenue[key] = d
				keyOrder = append(keyOrder, key)
			}
			d.Add(RevenueDeltaFor(entry))
		}
	}

	result := DeductResult{ShopsDeducted: map[string]int64{}}
	for _, agentID := range agentOrder {
		d := agents[agentID]
		if err := l.agents.DeductFloor(ctx, agentID, d.shops, d.earnings); err != nil {
			result.Errors = append(result.Errors, common.NewComponentError("agent", agentID, err))
			l.enqueue(ctx, models.LedgerReconcileTask{Reason: models.ReconcileAgentCommission, AgentID: agentID}, err)
			continue
		}
		result.TotalCommissionDeducted += d.earnings
		result.ShopsDeducted[agentID] = d.shops
	}
	at := l.nowMilli()
	for _, key := range keyOrder {
		d := revenue[key]
		if err := l.revenue.DeductFloor(ctx, key, *d, at); err != nil {
			result.Errors = append(result.Errors, common.NewComponentError("revenue", key.District+"/"+key.Day, err))
			l.enqueue(ctx, models.LedgerReconcileTask{Reason: models.ReconcileRevenue, District: key.District, Day: key.Day}, err)
			continue
		}
		result.TotalRevenueDeducted += d.Revenue
	}

	l.log.WithFields(logrus.Fields{
		"shops":      len(shops),
		"commission": result.TotalCommissionDeducted,
		"revenue":    result.TotalRevenueDeducted,
		"errors":     len(result.Errors),
	}).Info("➖ [LEDGER] Đã khấu trừ ledger cho shop bị xoá")
	return result
}
