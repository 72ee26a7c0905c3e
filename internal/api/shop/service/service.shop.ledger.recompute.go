package shopsvc

import (
	"context"
	"sort"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/utility"

	"github.com/sirupsen/logrus"
)

// AgentRecompute kết quả tính lại một agent
type AgentRecompute struct {
	AgentID string             `json:"agentId"`
	Old     models.AgentTotals `json:"old"`
	New     models.AgentTotals `json:"new"`
	Changed bool               `json:"changed"`
}

// AllAgentsRecompute kết quả tính lại mọi agent
type AllAgentsRecompute struct {
	Results []AgentRecompute        `json:"results"`
	Errors  []common.ComponentError `json:"errors,omitempty"`
}

// ReconcileReport kết quả một lượt xử lý hàng đợi đối soát
type ReconcileReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	GaveUp    int `json:"gaveUp"`
}

// agentTotalsFromRecords tổng đúng của agent từ các bản ghi nguồn:
// totalShops = số bản ghi agent_shops thuộc agent; totalEarnings = tổng commission(plan, amount)
// trên các khoản thanh toán của bản ghi PAID còn sống và của các candidate chờ gia hạn.
func (l *LedgerService) agentTotalsFromRecords(records []models.ShopRecord, candidates []models.RenewalCandidate) models.AgentTotals {
	var totals models.AgentTotals
	for _, rec := range records {
		if rec.Ref.Origin != models.OriginAgent {
			continue
		}
		totals.TotalShops++
		if rec.PaymentStatus != models.PaymentPaid {
			continue
		}
		for _, entry := range l.ledgerEntries(rec) {
			totals.TotalEarnings += l.Commission(entry.Plan, entry.Amount)
		}
	}
	for _, c := range candidates {
		if c.Primary.Origin != models.OriginAgent {
			continue
		}
		for _, entry := range l.ledgerEntries(c.Primary.Record) {
			totals.TotalEarnings += l.Commission(entry.Plan, entry.Amount)
		}
	}
	return totals
}

// RecomputeAgent tính lại tổng của agent và ghi đè bằng compare-and-set.
// Thua race (có $inc xen giữa) thì đọc lại nguồn và thử lại, nên không làm mất cập nhật đồng thời.
func (l *LedgerService) RecomputeAgent(ctx context.Context, agentID string) (AgentRecompute, error) {
	if agentID == "" {
		return AgentRecompute{}, common.NewValidationError("Thiếu agentId", nil)
	}
	for attempt := 0; attempt < l.casRetries; attempt++ {
		cur, err := l.agents.Get(ctx, agentID)
		if err != nil && !common.IsNotFound(err) {
			return AgentRecompute{}, err
		}

		records, err := l.repo.FindByAgent(ctx, agentID)
		if err != nil {
			return AgentRecompute{}, err
		}
		candidates, err := l.holding.Find(ctx, CandidateFilter{AgentID: agentID})
		if err != nil {
			return AgentRecompute{}, err
		}
		totals := l.agentTotalsFromRecords(records, candidates)
		result := AgentRecompute{AgentID: agentID, Old: cur.Totals(), New: totals, Changed: cur.Totals() != totals}

		ok, err := l.agents.CompareAndSet(ctx, agentID, cur.Version, totals, l.nowMilli())
		if err != nil {
			return AgentRecompute{}, err
		}
		if ok {
			if result.Changed {
				l.log.WithFields(logrus.Fields{
					"agentId": agentID, "oldShops": result.Old.TotalShops, "newShops": totals.TotalShops,
					"oldEarnings": result.Old.TotalEarnings, "newEarnings": totals.TotalEarnings,
				}).Info("🔁 [LEDGER] Đã đối soát lại tổng agent")
			}
			return result, nil
		}
		l.log.WithFields(logrus.Fields{"agentId": agentID, "attempt": attempt + 1}).Debug("🔁 [LEDGER] Version agent đã đổi, thử lại")
	}
	return AgentRecompute{}, common.NewInvalidStateError("Agent bị cập nhật liên tục, chưa ghi được kết quả tính lại", map[string]any{"agentId": agentID})
}

// RecomputeAllAgents tính lại mọi agent có trong ledger, agent_shops hoặc khu vực chờ gia hạn
func (l *LedgerService) RecomputeAllAgents(ctx context.Context) (AllAgentsRecompute, error) {
	ids := map[string]bool{}
	ledgerIDs, err := l.agents.ListIDs(ctx)
	if err != nil {
		return AllAgentsRecompute{}, err
	}
	for _, id := range ledgerIDs {
		ids[id] = true
	}
	agentStore, err := l.repo.Store(models.OriginAgent)
	if err != nil {
		return AllAgentsRecompute{}, err
	}
	records, err := agentStore.Find(ctx, ShopFilter{})
	if err != nil {
		return AllAgentsRecompute{}, err
	}
	for _, rec := range records {
		if rec.AgentID != "" {
			ids[rec.AgentID] = true
		}
	}
	candidates, err := l.holding.Find(ctx, CandidateFilter{})
	if err != nil {
		return AllAgentsRecompute{}, err
	}
	for _, c := range candidates {
		if c.AgentID != "" {
			ids[c.AgentID] = true
		}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	out := AllAgentsRecompute{Results: []AgentRecompute{}}
	for _, id := range sorted {
		res, err := l.RecomputeAgent(ctx, id)
		if err != nil {
			out.Errors = append(out.Errors, common.NewComponentError("agent", id, err))
			continue
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

// RecomputeRevenue tính lại RevenueEntry (quận/huyện, ngày) từ các khoản thanh toán đã ghi và ghi đè.
// Bản sao (mirror hoặc trùng khoá với bản agent) không được tính.
func (l *LedgerService) RecomputeRevenue(ctx context.Context, district, day string) (models.RevenueEntry, error) {
	district = utility.NormalizeDistrict(district)
	if _, err := l.repo.DayRange(day); err != nil {
		return models.RevenueEntry{}, err
	}
	records, err := l.repo.FindWithPaymentDay(ctx, day)
	if err != nil {
		return models.RevenueEntry{}, err
	}
	candidates, err := l.holding.Find(ctx, CandidateFilter{})
	if err != nil {
		return models.RevenueEntry{}, err
	}

	agentKeys := map[string]bool{}
	for _, rec := range records {
		if key, ok := fullMatchKey(rec); ok && rec.Ref.Origin == models.OriginAgent {
			agentKeys[key] = true
		}
	}

	entry := models.RevenueEntry{District: district, Day: day, Plans: map[models.PlanTier]models.PlanRevenue{}}
	add := func(rec models.ShopRecord) {
		for _, pe := range l.ledgerEntries(rec) {
			if pe.Day != day || utility.NormalizeDistrict(pe.District) != district {
				continue
			}
			pr := entry.Plans[pe.Plan]
			pr.Count++
			pr.Amount += pe.Amount
			entry.Plans[pe.Plan] = pr
			entry.TotalRevenue += pe.Amount
			entry.TotalAgentCommission += pe.Commission
		}
	}
	for _, rec := range records {
		if rec.IsMirror() {
			continue
		}
		if key, ok := fullMatchKey(rec); ok && rec.Ref.Origin != models.OriginAgent && agentKeys[key] && len(rec.PaymentHistory) == 0 {
			continue
		}
		add(rec)
	}
	for _, c := range candidates {
		add(c.Primary.Record)
	}
	entry.NetRevenue = entry.TotalRevenue - entry.TotalAgentCommission
	entry.UpdatedAt = l.nowMilli()

	if err := l.revenue.Replace(ctx, entry); err != nil {
		return models.RevenueEntry{}, err
	}
	l.log.WithFields(logrus.Fields{"district": district, "day": day, "revenue": entry.TotalRevenue}).Info("🔁 [LEDGER] Đã tính lại doanh thu")
	return entry, nil
}

// ProcessReconcileTasks xử lý tối đa limit task đối soát; cùng một agent hoặc (quận/huyện, ngày)
// chỉ được tính lại một lần trong mỗi lượt
func (l *LedgerService) ProcessReconcileTasks(ctx context.Context, limit int) (ReconcileReport, error) {
	var report ReconcileReport
	if l.queue == nil {
		return report, nil
	}
	tasks, err := l.queue.Pending(ctx, limit)
	if err != nil {
		return report, err
	}

	done := map[string]error{}
	for _, task := range tasks {
		key := "agent:" + task.AgentID
		run := func() error {
			_, err := l.RecomputeAgent(ctx, task.AgentID)
			return err
		}
		if task.Reason == models.ReconcileRevenue {
			key = "revenue:" + task.District + ":" + task.Day
			run = func() error {
				_, err := l.RecomputeRevenue(ctx, task.District, task.Day)
				return err
			}
		}

		taskErr, seen := done[key]
		if !seen {
			taskErr = run()
			done[key] = taskErr
		}

		at := l.nowMilli()
		if taskErr == nil {
			if err := l.queue.Complete(ctx, task.ID, at); err != nil {
				return report, err
			}
			report.Processed++
			continue
		}
		gaveUp, err := l.queue.Fail(ctx, task.ID, taskErr, at)
		if err != nil {
			return report, err
		}
		report.Failed++
		if gaveUp {
			report.GaveUp++
			l.log.WithError(taskErr).WithField("task", task.ID).Error("❌ [LEDGER] Bỏ task đối soát sau nhiều lần thử")
		}
	}
	return report, nil
}
