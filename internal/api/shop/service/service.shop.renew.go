package shopsvc

import (
	"context"

	shopdto "rupiya_directory/internal/api/shop/dto"
	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/notification"
	"rupiya_directory/internal/utility"

	"github.com/sirupsen/logrus"
)

// RenewResult kết quả gia hạn
type RenewResult struct {
	Record models.ShopRecord   `json:"record"`
	Mirror *models.ShopRecord  `json:"mirror,omitempty"`
	Entry  models.PaymentEntry `json:"entry"`
}

// canRenew admin/system gia hạn mọi candidate, agent chỉ gia hạn candidate của mình
func canRenew(actor models.Actor, c models.RenewalCandidate) bool {
	if !actor.Valid() {
		return false
	}
	return actor.IsPrivileged() || (actor.Role == models.RoleAgent && c.OwnedBy(actor.ID))
}

// CanRenew kiểm tra quyền gia hạn một candidate
func (e *Engine) CanRenew(ctx context.Context, actor models.Actor, candidateID string) (shopdto.CanRenewResult, error) {
	if err := requireActor(actor); err != nil {
		return shopdto.CanRenewResult{}, err
	}
	c, err := e.holding.Get(ctx, candidateID)
	if err != nil {
		return shopdto.CanRenewResult{}, err
	}
	return shopdto.CanRenewResult{
		CandidateID: c.ID.Hex(),
		AgentID:     c.AgentID,
		CanRenew:    canRenew(actor, c) && c.State == models.CandidatePendingRenewal,
	}, nil
}

// ListCandidates danh sách chờ gia hạn: agent chỉ thấy của mình
func (e *Engine) ListCandidates(ctx context.Context, actor models.Actor) ([]models.RenewalCandidate, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	f := CandidateFilter{}
	if !actor.IsPrivileged() {
		if actor.Role != models.RoleAgent {
			return nil, common.ErrUnauthorized
		}
		f.AgentID = actor.ID
	}
	return e.holding.Find(ctx, f)
}

// Renew gia hạn một candidate: nhận xử lý nguyên tử (PENDING_RENEWAL -> RENEWING), chèn lại bản ghi
// dưới id gốc với PAID, createdAt = thời điểm gia hạn, hết hạn sau đúng 365 ngày và một khoản RENEWAL
// trong lịch sử, xoá candidate, rồi cập nhật ledger như MarkPaid.
// Chèn lại bản chính thất bại thì trả claim và báo lỗi; bản sao thất bại chỉ là lỗi một phần.
func (e *Engine) Renew(ctx context.Context, actor models.Actor, candidateID string, info PaymentInfo) (RenewResult, error) {
	if err := requireActor(actor); err != nil {
		return RenewResult{}, err
	}
	if info.Mode != models.PaymentModeCash && info.Mode != models.PaymentModeUPI {
		return RenewResult{}, common.NewValidationError("Hình thức thanh toán không hợp lệ", map[string]any{"mode": info.Mode})
	}
	c, err := e.holding.Get(ctx, candidateID)
	if err != nil {
		return RenewResult{}, err
	}
	if !canRenew(actor, c) {
		return RenewResult{}, common.ErrUnauthorized
	}

	now := e.now()
	nowMs := utility.UnixMilli(now)
	if _, err := e.holding.Transition(ctx, candidateID, models.CandidatePendingRenewal, models.CandidateRenewing, nowMs); err != nil {
		return RenewResult{}, err
	}

	stamp := PaymentStamp{
		Kind:      models.PaymentKindRenewal,
		Mode:      info.Mode,
		ReceiptNo: info.ReceiptNo,
		Amount:    info.Amount,
		PaidAt:    nowMs,
	}
	if stamp.Amount <= 0 {
		stamp.Amount = e.opts.DefaultRenewalAmount
	}
	if stamp.ReceiptNo == "" {
		stamp.ReceiptNo = utility.NewReceiptNo(now)
	}

	plan := c.Plan
	if plan == "" {
		plan = c.Primary.Record.Plan
	}
	entry := e.repo.BuildPaymentEntry(c.Primary.Record, plan, stamp)
	renewed := func(rec models.ShopRecord, withEntry bool) models.ShopRecord {
		rec.CreatedAt = nowMs
		rec.PaymentStatus = models.PaymentPaid
		rec.PaymentMode = stamp.Mode
		rec.AmountPaid = stamp.Amount
		rec.ReceiptNo = stamp.ReceiptNo
		rec.LastPaymentDate = nowMs
		rec.PaymentExpiryDate = models.ExpiryFor(nowMs)
		rec.UpdatedAt = nowMs
		if withEntry {
			rec.PaymentHistory = append(append([]models.PaymentEntry{}, rec.PaymentHistory...), entry)
		}
		return rec
	}

	primaryStore, err := e.repo.Store(c.Primary.Origin)
	if err != nil {
		e.releaseClaim(ctx, candidateID)
		return RenewResult{}, err
	}
	restored, err := primaryStore.Restore(ctx, c.Primary, renewed(c.Primary.Record, true))
	if err != nil {
		e.releaseClaim(ctx, candidateID)
		return RenewResult{}, err
	}
	result := RenewResult{Record: restored, Entry: entry}

	pf := &common.PartialFailure{Operation: "renew"}
	if c.Mirror != nil {
		mirrorStore, err := e.repo.Store(c.Mirror.Origin)
		if err == nil {
			var m models.ShopRecord
			m, err = mirrorStore.Restore(ctx, *c.Mirror, renewed(c.Mirror.Record, false))
			if err == nil {
				result.Mirror = &m
			}
		}
		if err != nil {
			e.log.WithError(err).WithField("candidate", candidateID).Warn("⚠️ [SHOP_RENEW] Chèn lại bản sao thất bại")
			pf.Add("mirror", models.Ref{Origin: c.Mirror.Origin, ID: c.Mirror.ID}.Key(), err)
		}
	}

	if err := e.holding.Delete(ctx, candidateID); err != nil {
		// Lượt quét sau sẽ dọn candidate RENEWING đã có bản ghi live
		pf.Add("candidate", candidateID, err)
	}

	agentID := ""
	var shopsDelta int64
	if c.Primary.Origin == models.OriginAgent && restored.AgentID != "" {
		agentID = restored.AgentID
		shopsDelta = 1
	}
	e.ledger.ApplyPayment(ctx, restored.Ref, agentID, entry, shopsDelta)

	e.notify(confirmationFor(notification.EventRenewal, actor, restored, entry, agentID))
	audit("shop_renew", actor, "renewal_candidate", candidateID, map[string]any{
		"shop":       restored.Ref.Key(),
		"plan":       entry.Plan,
		"amount":     entry.Amount,
		"commission": entry.Commission,
		"receiptNo":  entry.ReceiptNo,
		"agentId":    agentID,
	})
	e.log.WithFields(logrus.Fields{"candidate": candidateID, "shop": restored.Ref.Key(), "amount": entry.Amount}).
		Info("♻️ [SHOP_RENEW] Đã gia hạn shop")
	return result, pf.ErrOrNil()
}

func (e *Engine) releaseClaim(ctx context.Context, candidateID string) {
	if _, err := e.holding.Transition(ctx, candidateID, models.CandidateRenewing, models.CandidatePendingRenewal, 0); err != nil {
		e.log.WithError(err).WithField("candidate", candidateID).Error("❌ [SHOP_RENEW] Không trả được claim, sweep sẽ giải phóng sau")
	}
}
