package shopsvc

import (
	"errors"
	"regexp"
	"testing"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/utility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(origin models.Origin, id, name, owner, mobile string) models.ShopRecord {
	return models.ShopRecord{Ref: models.Ref{Origin: origin, ID: id}, Name: name, OwnerName: owner, Mobile: mobile}
}

func TestPickSibling_Tiers(t *testing.T) {
	target := rec(models.OriginLegacy, "l1", "Ram Store", "Ramesh", "9876543210")
	pref := siblingOrigins[models.OriginLegacy]

	t.Run("exact match wins", func(t *testing.T) {
		got, ok := pickSibling(target, []models.ShopRecord{
			rec(models.OriginAgent, "g1", "ram  store", "Suresh", "9000000000"),
			rec(models.OriginAgent, "g2", "Ram Store", "Ramesh", "+91 98765 43210"),
		}, pref)
		require.True(t, ok)
		assert.Equal(t, "g2", got.Ref.ID)
	})

	t.Run("several exact matches use origin preference", func(t *testing.T) {
		got, ok := pickSibling(target, []models.ShopRecord{
			rec(models.OriginAdmin, "a1", "Ram Store", "Ramesh", "9876543210"),
			rec(models.OriginAgent, "g1", "Ram Store", "Ramesh", "9876543210"),
		}, pref)
		require.True(t, ok)
		assert.Equal(t, models.OriginAgent, got.Ref.Origin)
	})

	t.Run("name and owner", func(t *testing.T) {
		got, ok := pickSibling(target, []models.ShopRecord{
			rec(models.OriginAgent, "g1", "Ram Store", "Ramesh", "9111111111"),
			rec(models.OriginAgent, "g2", "Ram Store", "Other", "9222222222"),
		}, pref)
		require.True(t, ok)
		assert.Equal(t, "g1", got.Ref.ID)
	})

	t.Run("single name match", func(t *testing.T) {
		got, ok := pickSibling(target, []models.ShopRecord{
			rec(models.OriginAdmin, "a1", "Ram Store", "Someone", ""),
		}, pref)
		require.True(t, ok)
		assert.Equal(t, "a1", got.Ref.ID)
	})

	t.Run("ambiguous name match", func(t *testing.T) {
		_, ok := pickSibling(target, []models.ShopRecord{
			rec(models.OriginAgent, "g1", "Ram Store", "Suresh", "9111111111"),
			rec(models.OriginAgent, "g2", "Ram Store", "Mahesh", "9222222222"),
		}, pref)
		assert.False(t, ok)
	})

	t.Run("mirror of another agent shop is skipped", func(t *testing.T) {
		agentRec := rec(models.OriginAgent, "g1", "Ram Store", "Ramesh", "9876543210")
		foreign := rec(models.OriginLegacy, "l9", "Ram Store", "Ramesh", "9876543210")
		foreign.MirrorOf = "g7"
		_, ok := pickSibling(agentRec, []models.ShopRecord{foreign}, siblingOrigins[models.OriginAgent])
		assert.False(t, ok)
	})
}

func TestFindSibling_ExplicitLink(t *testing.T) {
	h := newHarness(t)
	owner := h.agent.put(rec("", "g1", "Ram Store", "Ramesh", "9876543210"))
	mirror := rec("", "l1", "Renamed Store", "Ramesh", "9876543210")
	mirror.MirrorOf = "g1"
	h.legacy.put(mirror)

	sib, ok, err := h.repo.FindSibling(ctxT(), owner)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "l1", sib.Ref.ID)

	mirrorRec, err := h.repo.Get(ctxT(), models.Ref{Origin: models.OriginLegacy, ID: "l1"})
	require.NoError(t, err)
	sib, ok, err = h.repo.FindSibling(ctxT(), mirrorRec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, owner.Ref, sib.Ref)
}

func TestFindSibling_NoneForNamelessRecord(t *testing.T) {
	h := newHarness(t)
	lone := h.admin.put(rec("", "a1", "", "", ""))
	_, ok, err := h.repo.FindSibling(ctxT(), lone)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindAll_PartialAndStrictReads(t *testing.T) {
	h := newHarness(t)
	h.agent.put(models.ShopRecord{Ref: models.Ref{ID: "g1"}, AgentID: "agent-x"})
	h.admin.put(models.ShopRecord{Ref: models.Ref{ID: "a1"}})
	h.legacy.findErr = errors.New("shops unavailable")

	res := h.repo.FindAll(ctxT(), ShopFilter{})
	assert.True(t, res.Partial())
	assert.Len(t, res.Records, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "legacy", res.Failures[0].Ref)

	_, err := h.repo.FindByAgent(ctxT(), "agent-x")
	_, partial := common.AsPartialFailure(err)
	assert.True(t, partial)

	h.legacy.findErr = nil
	records, err := h.repo.FindByAgent(ctxT(), "agent-x")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "g1", records[0].Ref.ID)
}

func TestBuildPaymentEntry(t *testing.T) {
	h := newHarness(t)
	paidAt := utility.UnixMilli(baseTime)
	stamp := PaymentStamp{Mode: models.PaymentModeCash, ReceiptNo: "R1", Amount: 499, PaidAt: paidAt}

	agentOwner := models.ShopRecord{Ref: models.Ref{Origin: models.OriginAgent, ID: "g1"}, AgentID: "agent-x", Location: models.Location{City: " patna "}}
	entry := h.repo.BuildPaymentEntry(agentOwner, models.PlanPremium, stamp)
	assert.Equal(t, models.PaymentKindPayment, entry.Kind)
	assert.Equal(t, int64(100), entry.Commission)
	assert.Equal(t, "PATNA", entry.District)
	assert.Equal(t, "2026-03-10", entry.Day)

	// Bản legacy có agentId nhưng không phải bản agent: không có hoa hồng
	legacyOwner := agentOwner
	legacyOwner.Ref.Origin = models.OriginLegacy
	assert.Zero(t, h.repo.BuildPaymentEntry(legacyOwner, models.PlanPremium, stamp).Commission)
}

func TestLedgerOwner(t *testing.T) {
	agentRec := rec(models.OriginAgent, "g1", "X", "", "")
	legacyRec := rec(models.OriginLegacy, "l1", "X", "", "")
	assert.Equal(t, agentRec.Ref, ledgerOwner(legacyRec, &agentRec).Ref)
	assert.Equal(t, agentRec.Ref, ledgerOwner(agentRec, &legacyRec).Ref)
	assert.Equal(t, legacyRec.Ref, ledgerOwner(legacyRec, nil).Ref)
}

func TestShopFilter_Matches(t *testing.T) {
	paidAt := utility.UnixMilli(baseTime)
	paid := models.ShopRecord{
		Ref:               models.Ref{Origin: models.OriginAdmin, ID: "a1"},
		Name:              "Ram  Store",
		Category:          "Grocery & Kirana",
		CategoryID:        "cat-1",
		PaymentStatus:     models.PaymentPaid,
		LastPaymentDate:   paidAt,
		PaymentExpiryDate: models.ExpiryFor(paidAt),
	}
	pending := paid
	pending.PaymentStatus = models.PaymentPending
	unset := paid
	unset.PaymentStatus = models.PaymentUnset

	assert.True(t, ShopFilter{Category: CategoryQuery{Slug: "grocery-kirana"}}.Matches(paid))
	assert.False(t, ShopFilter{Category: CategoryQuery{Slug: "grocery"}}.Matches(paid))
	assert.True(t, ShopFilter{Category: CategoryQuery{ID: "cat-1"}}.Matches(paid))
	assert.True(t, ShopFilter{Name: "ram store"}.Matches(paid))
	assert.True(t, ShopFilter{IDs: []string{"x", "a1"}}.Matches(paid))

	assert.True(t, ShopFilter{Payment: PaymentVisible}.Matches(unset))
	assert.False(t, ShopFilter{Payment: PaymentVisible}.Matches(pending))
	assert.False(t, ShopFilter{Payment: PaymentOnlyPaid}.Matches(unset))
	assert.True(t, ShopFilter{Payment: PaymentOnlyPending}.Matches(pending))

	assert.False(t, ShopFilter{ExpiredBefore: paid.PaymentExpiryDate}.Matches(paid))
	assert.True(t, ShopFilter{ExpiredBefore: paid.PaymentExpiryDate + 1}.Matches(paid))
	assert.False(t, ShopFilter{ExpiredBefore: paid.PaymentExpiryDate + 1}.Matches(unset))

	start, end, err := utility.DayBounds("2026-03-10", istOffset)
	require.NoError(t, err)
	day := &DayRange{Day: "2026-03-10", Start: start, End: end}
	assert.True(t, ShopFilter{PaidOnDay: day}.Matches(paid))
	assert.False(t, ShopFilter{PaidOnDay: day}.Matches(pending))
	withHistory := paid
	withHistory.PaymentHistory = []models.PaymentEntry{{Day: "2026-03-09"}}
	assert.False(t, ShopFilter{PaidOnDay: day}.Matches(withHistory))
}

func TestSlugAndNamePatterns(t *testing.T) {
	slug := regexp.MustCompile("(?i)" + slugPattern("grocery-kirana"))
	assert.True(t, slug.MatchString("Grocery & Kirana"))
	assert.True(t, slug.MatchString("grocery kirana"))
	assert.False(t, slug.MatchString("Grocery Kirana Store"))

	dotted := regexp.MustCompile(slugPattern("a.b"))
	assert.False(t, dotted.MatchString("axb"))

	name := regexp.MustCompile("(?i)" + namePattern("Ram  Store"))
	assert.True(t, name.MatchString(" ram store "))
	assert.False(t, name.MatchString("ram stores"))
}
