package shopsvc

import (
	"context"
	"errors"
	"sort"
	"time"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/utility"

	"github.com/sirupsen/logrus"
)

// SweepResult kết quả một lượt quét hết hạn
type SweepResult struct {
	Scanned         int                     `json:"scanned"`         // Số bản ghi hết hạn đọc được
	Moved           int                     `json:"moved"`           // Số shop chuyển sang khu vực chờ gia hạn
	AlreadyMigrated int                     `json:"alreadyMigrated"` // Đã có candidate, chỉ dọn bản ghi còn sót
	Released        int                     `json:"released"`        // Claim RENEWING bị treo được trả về PENDING_RENEWAL
	Cleared         int                     `json:"cleared"`         // Candidate RENEWING đã gia hạn xong được xoá
	CandidateIDs    []string                `json:"candidateIds,omitempty"`
	FailedOrigins   []models.Origin         `json:"failedOrigins,omitempty"`
	Errors          []common.ComponentError `json:"errors,omitempty"`
}

// HasErrors có lỗi thành phần
func (r SweepResult) HasErrors() bool {
	return len(r.Errors) > 0
}

type sweepGroup struct {
	primary models.ShopRecord
	mirror  *models.ShopRecord
}

func (g sweepGroup) records() []models.ShopRecord {
	out := []models.ShopRecord{g.primary}
	if g.mirror != nil {
		out = append(out, *g.mirror)
	}
	return out
}

// SweepExpired chuyển các shop PAID đã hết hạn (paymentExpiryDate < now) sang khu vực chờ gia hạn.
// Ghi candidate trước rồi mới xoá bản ghi live; candidate đã có cho một bản ghi gốc nghĩa là đã chuyển,
// khi đó chỉ dọn bản ghi live còn sót. Chạy lại hoặc chạy đồng thời đều an toàn.
// Lỗi từng shop được gom vào SweepResult.Errors, lượt quét vẫn tiếp tục.
func (e *Engine) SweepExpired(ctx context.Context, actor models.Actor, now time.Time) (SweepResult, error) {
	if err := requirePrivileged(actor); err != nil {
		return SweepResult{}, err
	}
	nowMs := utility.UnixMilli(now)
	result := SweepResult{}

	found := e.repo.FindExpired(ctx, nowMs)
	if found.Partial() && len(found.FailedOrigins) >= len(e.repo.stores) {
		return SweepResult{}, found.Err()
	}
	result.Scanned = len(found.Records)
	result.FailedOrigins = found.FailedOrigins
	result.Errors = append(result.Errors, found.Failures...)

	records := found.Records
	// Bản agent xử lý trước để trở thành bản chính của nhóm
	sort.SliceStable(records, func(i, j int) bool {
		pi, pj := originPreference[records[i].Ref.Origin], originPreference[records[j].Ref.Origin]
		if pi != pj {
			return pi < pj
		}
		return records[i].Ref.ID < records[j].Ref.ID
	})

	visited := map[string]bool{}
	for _, rec := range records {
		if visited[rec.Ref.Key()] {
			continue
		}
		group := sweepGroup{primary: rec}
		sib, ok, err := e.repo.FindSibling(ctx, rec)
		if err != nil {
			result.Errors = append(result.Errors, common.NewComponentError("sibling", rec.Ref.Key(), err))
		} else if ok && !visited[sib.Ref.Key()] && sweepable(rec, sib, nowMs) {
			group.primary = ledgerOwner(rec, &sib)
			if group.primary.Ref == rec.Ref {
				group.mirror = &sib
			} else {
				group.mirror = &rec
			}
		}
		for _, r := range group.records() {
			visited[r.Ref.Key()] = true
		}

		id, moved, err := e.moveToHolding(ctx, group, nowMs)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, common.NewComponentError("shop", group.primary.Ref.Key(), err))
		case moved:
			result.Moved++
			result.CandidateIDs = append(result.CandidateIDs, id)
		default:
			result.AlreadyMigrated++
		}
	}

	e.releaseStaleClaims(ctx, now, &result)

	fields := logrus.Fields{
		"scanned": result.Scanned, "moved": result.Moved, "alreadyMigrated": result.AlreadyMigrated,
		"released": result.Released, "cleared": result.Cleared, "errors": len(result.Errors),
	}
	if result.HasErrors() {
		e.log.WithFields(fields).Warn("🧹 [EXPIRY_SWEEP] Quét hết hạn hoàn tất một phần")
	} else if result.Moved > 0 || result.AlreadyMigrated > 0 || result.Released > 0 || result.Cleared > 0 {
		e.log.WithFields(fields).Info("🧹 [EXPIRY_SWEEP] Quét hết hạn hoàn tất")
	}
	audit("shop_sweep_expired", actor, "renewal_candidate", "", map[string]any{"now": nowMs, "moved": result.Moved, "errors": len(result.Errors)})
	return result, nil
}

// sweepable sibling chỉ vào chung nhóm khi liên kết tường minh,
// hoặc cũng đã hết hạn và cùng chủ
func sweepable(rec, sib models.ShopRecord, nowMs int64) bool {
	if isLinked(rec, sib) {
		return true
	}
	owner := utility.NormalizeKey(rec.OwnerName)
	return owner != "" && owner == utility.NormalizeKey(sib.OwnerName) &&
		ShopFilter{ExpiredBefore: nowMs}.Matches(sib)
}

// moveToHolding chuyển một nhóm bản ghi của cùng một shop. moved = false khi nhóm đã có candidate.
func (e *Engine) moveToHolding(ctx context.Context, g sweepGroup, nowMs int64) (candidateID string, moved bool, err error) {
	records := g.records()
	for _, rec := range records {
		existing, err := e.holding.FindByOriginalKey(ctx, rec.Ref.Key())
		if err == nil {
			return existing.ID.Hex(), false, e.removeLive(ctx, records)
		}
		if !common.IsNotFound(err) {
			return "", false, err
		}
	}

	primary, err := e.repo.Snapshot(ctx, g.primary.Ref)
	if err != nil {
		if common.IsNotFound(err) {
			// Bản ghi đã bị một lượt quét khác chuyển đi
			return "", false, nil
		}
		return "", false, err
	}
	c := models.RenewalCandidate{
		Primary:   primary,
		ShopName:  g.primary.Name,
		Plan:      g.primary.Plan,
		State:     models.CandidatePendingRenewal,
		ExpiredAt: g.primary.PaymentExpiryDate,
		SweptAt:   nowMs,
		CreatedAt: nowMs,
		AgentID:   g.primary.AgentID,
	}
	if g.mirror != nil {
		snap, err := e.repo.Snapshot(ctx, g.mirror.Ref)
		switch {
		case err == nil:
			c.Mirror = &snap
		case !common.IsNotFound(err):
			return "", false, err
		}
	}
	for _, snap := range c.Snapshots() {
		ref := models.Ref{Origin: snap.Origin, ID: snap.ID}
		c.OriginalKeys = append(c.OriginalKeys, ref.Key())
		if snap.Origin == models.OriginAgent {
			c.AgentRef = &ref
		} else if c.MainRef == nil {
			c.MainRef = &ref
		}
	}

	inserted, err := e.holding.Insert(ctx, c)
	if err != nil {
		if errors.Is(err, common.ErrDuplicate) {
			return "", false, e.removeLive(ctx, records)
		}
		return "", false, err
	}
	return inserted.ID.Hex(), true, e.removeLive(ctx, records)
}

// removeLive xoá các bản ghi live của nhóm; bản ghi đã không còn thì bỏ qua.
// totalShops của agent chỉ giảm khi chính lệnh này xoá bản agent.
func (e *Engine) removeLive(ctx context.Context, records []models.ShopRecord) error {
	pf := &common.PartialFailure{Operation: "sweep_remove_live"}
	for _, rec := range records {
		err := e.repo.Delete(ctx, rec.Ref)
		switch {
		case err == nil:
			if rec.Ref.Origin == models.OriginAgent && rec.AgentID != "" {
				_ = e.ledger.AdjustShopCount(ctx, rec.AgentID, -1, rec.Ref)
			}
		case common.IsNotFound(err):
		default:
			pf.Add("delete", rec.Ref.Key(), err)
		}
	}
	return pf.ErrOrNil()
}

// releaseStaleClaims xử lý candidate RENEWING bị treo: bản ghi đã được chèn lại thì xoá candidate,
// chưa thì trả về PENDING_RENEWAL để gia hạn lại được
func (e *Engine) releaseStaleClaims(ctx context.Context, now time.Time, result *SweepResult) {
	before := utility.UnixMilli(now.Add(-e.opts.StaleClaimAfter))
	stale, err := e.holding.Find(ctx, CandidateFilter{State: models.CandidateRenewing, ClaimedBefore: before})
	if err != nil {
		result.Errors = append(result.Errors, common.NewComponentError("holding", "", err))
		return
	}
	for _, c := range stale {
		id := c.ID.Hex()
		_, err := e.repo.Get(ctx, models.Ref{Origin: c.Primary.Origin, ID: c.Primary.ID})
		switch {
		case err == nil:
			if err := e.holding.Delete(ctx, id); err != nil && !common.IsNotFound(err) {
				result.Errors = append(result.Errors, common.NewComponentError("candidate", id, err))
				continue
			}
			result.Cleared++
			if c.AgentID != "" {
				e.ledger.enqueue(ctx, models.LedgerReconcileTask{Reason: models.ReconcileAgentCommission, AgentID: c.AgentID},
					errors.New("gia hạn bị gián đoạn trước khi xoá candidate"))
			}
		case common.IsNotFound(err):
			if _, err := e.holding.Transition(ctx, id, models.CandidateRenewing, models.CandidatePendingRenewal, 0); err != nil {
				result.Errors = append(result.Errors, common.NewComponentError("candidate", id, err))
				continue
			}
			result.Released++
		default:
			result.Errors = append(result.Errors, common.NewComponentError("candidate", id, err))
		}
	}
}
