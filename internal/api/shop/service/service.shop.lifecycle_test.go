package shopsvc

import (
	"errors"
	"testing"
	"time"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/utility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cash = PaymentInfo{Mode: models.PaymentModeCash}

func TestCreate_AgentShopIsMirroredAndCounted(t *testing.T) {
	h := newHarness(t)

	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	require.NoError(t, err)
	assert.Equal(t, models.OriginAgent, rec.Ref.Origin)
	assert.Equal(t, models.PaymentPending, rec.PaymentStatus)
	assert.Equal(t, "agent-x", rec.AgentID)
	assert.Equal(t, "9876543210", rec.Mobile)
	assert.Equal(t, utility.UnixMilli(baseTime), rec.CreatedAt)

	mirrors, err := h.legacy.Find(ctxT(), ShopFilter{MirrorOf: rec.Ref.ID})
	require.NoError(t, err)
	require.Len(t, mirrors, 1)
	assert.Equal(t, "Ram Kirana", mirrors[0].Name)
	requireAgentTotals(t, h, "agent-x", 1, 0)
}

func TestCreate_AdminShop(t *testing.T) {
	h := newHarness(t)

	rec, err := h.engine.Create(ctxT(), adminActor, shopInput("City Mart"))
	require.NoError(t, err)
	assert.Equal(t, models.OriginAdmin, rec.Ref.Origin)
	assert.Empty(t, rec.AgentID)
	assert.Equal(t, 0, h.legacy.count())
	ids, _ := h.agents.ListIDs(ctxT())
	assert.Empty(t, ids)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Create(ctxT(), models.Actor{}, shopInput("No Actor"))
	assert.ErrorIs(t, err, common.ErrActorMissing)

	in := shopInput("")
	in.Pincode = "12"
	_, err = h.engine.Create(ctxT(), adminActor, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)

	in = shopInput("Bad Plan")
	in.Plan = "GOLD"
	_, err = h.engine.Create(ctxT(), adminActor, in)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestCreate_MirrorFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	h.legacy.mu.Lock()
	h.legacy.records["legacy-001"] = models.ShopRecord{}
	h.legacy.seq = 0
	h.legacy.mu.Unlock()

	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	pf, partial := common.AsPartialFailure(err)
	require.True(t, partial)
	assert.Equal(t, "mirror", pf.Failures[0].Component)
	assert.Equal(t, models.OriginAgent, rec.Ref.Origin)
	requireAgentTotals(t, h, "agent-x", 1, 0)
}

func TestMarkPaid_CreditsCommissionAndRevenue(t *testing.T) {
	h := newHarness(t)
	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	require.NoError(t, err)

	upd, err := h.engine.MarkPaid(ctxT(), agentX, rec.Ref, cash)
	require.NoError(t, err)
	assert.Equal(t, int64(100), upd.Entry.Amount)
	assert.Equal(t, int64(20), upd.Entry.Commission)
	assert.Equal(t, rec.Ref, upd.Owner)
	assert.Equal(t, "agent-x", upd.AgentID)
	assert.NotEmpty(t, upd.Entry.ReceiptNo)
	require.NotNil(t, upd.Sibling)
	assert.Equal(t, models.PaymentPaid, upd.Sibling.PaymentStatus)
	assert.Empty(t, upd.Sibling.PaymentHistory)

	stored, err := h.repo.Get(ctxT(), rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, models.PaymentModeCash, stored.PaymentMode)
	assert.Equal(t, stored.LastPaymentDate+365*utility.MillisPerDay, stored.PaymentExpiryDate)
	require.Len(t, stored.PaymentHistory, 1)
	assert.Equal(t, "PATNA", stored.PaymentHistory[0].District)

	requireAgentTotals(t, h, "agent-x", 1, 20)
	entry, err := h.revenue.Get(ctxT(), models.RevenueKey{District: "PATNA", Day: h.dayKey()})
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.TotalRevenue)
	assert.Equal(t, int64(20), entry.TotalAgentCommission)
	assert.Equal(t, int64(80), entry.NetRevenue)
	assert.Equal(t, models.PlanRevenue{Count: 1, Amount: 100}, entry.Plans[models.PlanBasic])

	// Ghi lần hai bị từ chối và ledger không đổi
	_, err = h.engine.MarkPaid(ctxT(), adminActor, rec.Ref, cash)
	assert.ErrorIs(t, err, common.ErrInvalidState)
	requireAgentTotals(t, h, "agent-x", 1, 20)
}

func TestMarkPaid_ThroughMirrorCreditsAgent(t *testing.T) {
	h := newHarness(t)
	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	require.NoError(t, err)
	mirrors, _ := h.legacy.Find(ctxT(), ShopFilter{MirrorOf: rec.Ref.ID})
	require.Len(t, mirrors, 1)

	upd, err := h.engine.MarkPaid(ctxT(), adminActor, mirrors[0].Ref, PaymentInfo{Mode: models.PaymentModeUPI, Amount: 150, ReceiptNo: "R-1"})
	require.NoError(t, err)
	assert.Equal(t, rec.Ref, upd.Owner)
	assert.Equal(t, int64(30), upd.Entry.Commission)

	agentCopy, err := h.repo.Get(ctxT(), rec.Ref)
	require.NoError(t, err)
	require.Len(t, agentCopy.PaymentHistory, 1)
	assert.Equal(t, "R-1", agentCopy.PaymentHistory[0].ReceiptNo)
	requireAgentTotals(t, h, "agent-x", 1, 30)
}

func TestMarkPaid_AdminShopHasNoCommission(t *testing.T) {
	h := newHarness(t)
	rec, err := h.engine.Create(ctxT(), adminActor, shopInput("City Mart"))
	require.NoError(t, err)

	upd, err := h.engine.MarkPaid(ctxT(), adminActor, rec.Ref, cash)
	require.NoError(t, err)
	assert.Zero(t, upd.Entry.Commission)
	assert.Empty(t, upd.AgentID)

	entry, err := h.revenue.Get(ctxT(), models.RevenueKey{District: "PATNA", Day: h.dayKey()})
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.NetRevenue)
}

func TestMarkPaid_Authorization(t *testing.T) {
	h := newHarness(t)
	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	require.NoError(t, err)

	_, err = h.engine.MarkPaid(ctxT(), agentY, rec.Ref, cash)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = h.engine.MarkPaid(ctxT(), models.Actor{ID: "x"}, rec.Ref, cash)
	assert.ErrorIs(t, err, common.ErrActorMissing)

	_, err = h.engine.MarkPaid(ctxT(), agentX, rec.Ref, PaymentInfo{Mode: models.PaymentModeNone})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = h.engine.MarkPaid(ctxT(), agentX, models.Ref{Origin: models.OriginAgent, ID: "missing"}, cash)
	assert.ErrorIs(t, err, common.ErrNotFound)

	requireAgentTotals(t, h, "agent-x", 1, 0)
}

func TestMarkPaid_SiblingFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	require.NoError(t, err)
	h.legacy.applyErr = errors.New("shops write failed")

	upd, err := h.engine.MarkPaid(ctxT(), agentX, rec.Ref, cash)
	pf, partial := common.AsPartialFailure(err)
	require.True(t, partial)
	assert.Equal(t, "sibling", pf.Failures[0].Component)
	assert.Equal(t, models.PaymentPaid, upd.Record.PaymentStatus)
	assert.Nil(t, upd.Sibling)
	requireAgentTotals(t, h, "agent-x", 1, 20)
}

func TestMarkPaid_OwnerWriteFailureDefersLedger(t *testing.T) {
	h := newHarness(t)
	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	require.NoError(t, err)
	mirrors, _ := h.legacy.Find(ctxT(), ShopFilter{MirrorOf: rec.Ref.ID})
	require.Len(t, mirrors, 1)
	h.agent.applyErr = errors.New("agent_shops write failed")

	upd, err := h.engine.MarkPaid(ctxT(), adminActor, mirrors[0].Ref, cash)
	pf, partial := common.AsPartialFailure(err)
	require.True(t, partial)
	assert.Equal(t, "sibling", pf.Failures[0].Component)
	assert.False(t, upd.EntryStored)
	assert.Equal(t, models.PaymentPaid, upd.Record.PaymentStatus)

	agentCopy, err := h.repo.Get(ctxT(), rec.Ref)
	require.NoError(t, err)
	assert.NotEqual(t, models.PaymentPaid, agentCopy.PaymentStatus)
	assert.Empty(t, agentCopy.PaymentHistory)

	// Không ghi có tiền cho khoản thanh toán không nằm trên bản ghi nào
	requireAgentTotals(t, h, "agent-x", 1, 0)
	_, err = h.revenue.Get(ctxT(), models.RevenueKey{District: "PATNA", Day: h.dayKey()})
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 2, h.queue.pending())

	h.agent.applyErr = nil
	report, err := h.ledger.ProcessReconcileTasks(ctxT(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	requireAgentTotals(t, h, "agent-x", 1, 0)

	// Ghi nhận lại trên bản agent thì hoa hồng mới được cộng
	upd, err = h.engine.MarkPaid(ctxT(), agentX, rec.Ref, cash)
	require.NoError(t, err)
	assert.True(t, upd.EntryStored)
	requireAgentTotals(t, h, "agent-x", 1, 20)
}

func TestMarkPaid_LedgerFailureIsQueuedAndReconciled(t *testing.T) {
	h := newHarness(t)
	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	require.NoError(t, err)
	h.agents.incrementErr = errors.New("agents unavailable")
	h.revenue.applyErr = errors.New("district_revenue unavailable")

	_, err = h.engine.MarkPaid(ctxT(), agentX, rec.Ref, cash)
	require.NoError(t, err)
	requireAgentTotals(t, h, "agent-x", 1, 0)
	assert.Equal(t, 2, h.queue.pending())

	h.agents.incrementErr = nil
	h.revenue.applyErr = nil
	report, err := h.ledger.ProcessReconcileTasks(ctxT(), 10)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Processed: 2}, report)
	assert.Zero(t, h.queue.pending())

	requireAgentTotals(t, h, "agent-x", 1, 20)
	entry, err := h.revenue.Get(ctxT(), models.RevenueKey{District: "PATNA", Day: h.dayKey()})
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.TotalRevenue)
	assert.Equal(t, int64(20), entry.TotalAgentCommission)
}

func TestRecordVisit(t *testing.T) {
	h := newHarness(t)
	rec, err := h.engine.Create(ctxT(), adminActor, shopInput("City Mart"))
	require.NoError(t, err)

	require.NoError(t, h.engine.RecordVisit(ctxT(), rec.Ref))
	require.NoError(t, h.engine.RecordVisit(ctxT(), rec.Ref))
	stored, _ := h.repo.Get(ctxT(), rec.Ref)
	assert.Equal(t, int64(2), stored.VisitorCount)

	err = h.engine.RecordVisit(ctxT(), models.Ref{Origin: "unknown", ID: "1"})
	assert.ErrorIs(t, err, common.ErrValidation)
}

// Thanh toán, hết hạn sau 366 ngày rồi gia hạn: agent nhận 20 + 20
func TestLifecycle_PayExpireRenew(t *testing.T) {
	h := newHarness(t)
	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	require.NoError(t, err)
	_, err = h.engine.MarkPaid(ctxT(), agentX, rec.Ref, cash)
	require.NoError(t, err)
	requireAgentTotals(t, h, "agent-x", 1, 20)

	h.advance(366 * 24 * time.Hour)
	sweep, err := h.engine.SweepExpired(ctxT(), systemActor, h.now)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Moved)
	assert.Empty(t, sweep.Errors)
	assert.Equal(t, 0, h.agent.count())
	assert.Equal(t, 0, h.legacy.count())
	requireAgentTotals(t, h, "agent-x", 0, 20)

	candidates, err := h.engine.ListCandidates(ctxT(), agentX)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, "agent-x", c.AgentID)
	assert.Len(t, c.OriginalKeys, 2)
	assert.Contains(t, c.OriginalKeys, rec.Ref.Key())
	require.NotNil(t, c.Mirror)

	others, err := h.engine.ListCandidates(ctxT(), agentY)
	require.NoError(t, err)
	assert.Empty(t, others)

	check, err := h.engine.CanRenew(ctxT(), agentY, c.ID.Hex())
	require.NoError(t, err)
	assert.False(t, check.CanRenew)
	_, err = h.engine.Renew(ctxT(), agentY, c.ID.Hex(), cash)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	h.advance(time.Hour)
	renewedAt := utility.UnixMilli(h.now)
	res, err := h.engine.Renew(ctxT(), agentX, c.ID.Hex(), cash)
	require.NoError(t, err)
	assert.Equal(t, rec.Ref, res.Record.Ref)
	assert.Equal(t, renewedAt, res.Record.CreatedAt)
	assert.Equal(t, models.PaymentPaid, res.Record.PaymentStatus)
	assert.Equal(t, renewedAt+365*utility.MillisPerDay, res.Record.PaymentExpiryDate)
	require.Len(t, res.Record.PaymentHistory, 2)
	assert.Equal(t, models.PaymentKindRenewal, res.Record.PaymentHistory[1].Kind)
	assert.Equal(t, int64(20), res.Entry.Commission)
	require.NotNil(t, res.Mirror)
	assert.Equal(t, rec.Ref.ID, res.Mirror.MirrorOf)

	assert.Equal(t, 0, h.holding.count())
	requireAgentTotals(t, h, "agent-x", 1, 40)

	recomputed, err := h.ledger.RecomputeAgent(ctxT(), "agent-x")
	require.NoError(t, err)
	assert.Equal(t, models.AgentTotals{TotalShops: 1, TotalEarnings: 40}, recomputed.New)
	assert.False(t, recomputed.Changed)

	_, err = h.engine.Renew(ctxT(), agentX, c.ID.Hex(), cash)
	assert.ErrorIs(t, err, common.ErrNotFound)

	again, err := h.engine.SweepExpired(ctxT(), systemActor, h.now)
	require.NoError(t, err)
	assert.Zero(t, again.Moved)
	assert.Equal(t, 1, h.agent.count())
}

func TestRenew_ClaimIsExclusive(t *testing.T) {
	h := newHarness(t)
	c := expiredCandidate(t, h)
	_, err := h.holding.Transition(ctxT(), c.ID.Hex(), models.CandidatePendingRenewal, models.CandidateRenewing, utility.UnixMilli(h.now))
	require.NoError(t, err)

	_, err = h.engine.Renew(ctxT(), agentX, c.ID.Hex(), cash)
	assert.ErrorIs(t, err, common.ErrInvalidState)
	requireAgentTotals(t, h, "agent-x", 0, 20)
}

func TestRenew_RestoreFailureReleasesClaim(t *testing.T) {
	h := newHarness(t)
	c := expiredCandidate(t, h)
	// Id gốc đã bị chiếm
	h.agent.put(models.ShopRecord{Ref: models.Ref{ID: c.Primary.ID}, Name: "Squatter"})

	_, err := h.engine.Renew(ctxT(), agentX, c.ID.Hex(), cash)
	assert.ErrorIs(t, err, common.ErrDuplicate)

	stored, err := h.holding.Get(ctxT(), c.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.CandidatePendingRenewal, stored.State)
	requireAgentTotals(t, h, "agent-x", 0, 20)
}

func TestRenew_CustomAmountAndAdmin(t *testing.T) {
	h := newHarness(t)
	c := expiredCandidate(t, h)

	check, err := h.engine.CanRenew(ctxT(), adminActor, c.ID.Hex())
	require.NoError(t, err)
	assert.True(t, check.CanRenew)

	res, err := h.engine.Renew(ctxT(), adminActor, c.ID.Hex(), PaymentInfo{Mode: models.PaymentModeUPI, Amount: 250})
	require.NoError(t, err)
	assert.Equal(t, int64(250), res.Entry.Amount)
	assert.Equal(t, int64(50), res.Entry.Commission)
	requireAgentTotals(t, h, "agent-x", 1, 70)
}

// expiredCandidate shop agent đã thanh toán và đã bị chuyển sang khu vực chờ gia hạn
func expiredCandidate(t *testing.T, h *harness) models.RenewalCandidate {
	t.Helper()
	rec, err := h.engine.Create(ctxT(), agentX, shopInput("Ram Kirana"))
	require.NoError(t, err)
	_, err = h.engine.MarkPaid(ctxT(), agentX, rec.Ref, cash)
	require.NoError(t, err)
	h.advance(366 * 24 * time.Hour)
	sweep, err := h.engine.SweepExpired(ctxT(), systemActor, h.now)
	require.NoError(t, err)
	require.Equal(t, 1, sweep.Moved)
	c, err := h.holding.Get(ctxT(), sweep.CandidateIDs[0])
	require.NoError(t, err)
	return c
}
