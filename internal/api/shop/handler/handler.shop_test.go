package shophdl_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"rupiya_directory/internal/api/middleware"
	apirouter "rupiya_directory/internal/api/router"
	shopdto "rupiya_directory/internal/api/shop/dto"
	shophdl "rupiya_directory/internal/api/shop/handler"
	"rupiya_directory/internal/api/shop/models"
	shoprouter "rupiya_directory/internal/api/shop/router"
	shopsvc "rupiya_directory/internal/api/shop/service"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/logger"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logger.Init(&logger.LogConfig{Output: "stdout", Level: "error", BufferSize: 100})
	code := m.Run()
	logger.Close()
	os.Exit(code)
}

type fakeLifecycle struct {
	lastActor models.Actor
	lastRef   models.Ref
	lastInfo  shopsvc.PaymentInfo
	lastNow   time.Time
	markErr   error
	sweep     shopsvc.SweepResult
}

func (f *fakeLifecycle) Create(_ context.Context, actor models.Actor, in shopdto.ShopCreateInput) (models.ShopRecord, error) {
	f.lastActor = actor
	if !actor.Valid() {
		return models.ShopRecord{}, common.ErrActorMissing
	}
	return models.ShopRecord{Ref: models.Ref{Origin: models.OriginAgent, ID: "agent-001"}, Name: in.Name}, nil
}

func (f *fakeLifecycle) MarkPaid(_ context.Context, actor models.Actor, ref models.Ref, info shopsvc.PaymentInfo) (shopsvc.PaymentUpdate, error) {
	f.lastActor, f.lastRef, f.lastInfo = actor, ref, info
	return shopsvc.PaymentUpdate{Record: models.ShopRecord{Ref: ref}}, f.markErr
}

func (f *fakeLifecycle) RecordVisit(_ context.Context, ref models.Ref) error {
	f.lastRef = ref
	return nil
}

func (f *fakeLifecycle) ListCandidates(_ context.Context, actor models.Actor) ([]models.RenewalCandidate, error) {
	f.lastActor = actor
	return []models.RenewalCandidate{}, nil
}

func (f *fakeLifecycle) CanRenew(_ context.Context, _ models.Actor, id string) (shopdto.CanRenewResult, error) {
	return shopdto.CanRenewResult{CandidateID: id, CanRenew: true}, nil
}

func (f *fakeLifecycle) Renew(_ context.Context, _ models.Actor, _ string, info shopsvc.PaymentInfo) (shopsvc.RenewResult, error) {
	f.lastInfo = info
	return shopsvc.RenewResult{}, nil
}

func (f *fakeLifecycle) SweepExpired(_ context.Context, actor models.Actor, now time.Time) (shopsvc.SweepResult, error) {
	f.lastActor, f.lastNow = actor, now
	return f.sweep, nil
}

type fakeListing struct{ lastQuery shopsvc.ListQuery }

func (f *fakeListing) List(_ context.Context, q shopsvc.ListQuery) (shopsvc.PagedResult, error) {
	f.lastQuery = q
	return shopsvc.PagedResult{}, nil
}

func (f *fakeListing) NearestPerCategory(_ context.Context, _, _ float64) (shopsvc.NearestResult, error) {
	return shopsvc.NearestResult{Categories: map[string]shopsvc.CategoryNearest{}}, nil
}

type fakeDeletion struct{ lastRefs []models.Ref }

func (f *fakeDeletion) DeleteShops(_ context.Context, _ models.Actor, refs []models.Ref) (shopsvc.DeleteResult, error) {
	f.lastRefs = refs
	return shopsvc.DeleteResult{Deleted: refs}, nil
}

func (f *fakeDeletion) DeleteAll(_ context.Context, _ models.Actor) (shopsvc.DeleteAllResult, error) {
	return shopsvc.DeleteAllResult{}, nil
}

func (f *fakeDeletion) DeductOnly(_ context.Context, _ models.Actor, refs []models.Ref) (shopsvc.DeductResult, error) {
	f.lastRefs = refs
	return shopsvc.DeductResult{}, nil
}

type fakeLedger struct{ lastLimit int }

func (f *fakeLedger) RecomputeAgent(_ context.Context, id string) (shopsvc.AgentRecompute, error) {
	return shopsvc.AgentRecompute{AgentID: id}, nil
}

func (f *fakeLedger) RecomputeAllAgents(_ context.Context) (shopsvc.AllAgentsRecompute, error) {
	return shopsvc.AllAgentsRecompute{}, nil
}

func (f *fakeLedger) RecomputeRevenue(_ context.Context, district, day string) (models.RevenueEntry, error) {
	return models.RevenueEntry{}, nil
}

func (f *fakeLedger) ProcessReconcileTasks(_ context.Context, limit int) (shopsvc.ReconcileReport, error) {
	f.lastLimit = limit
	return shopsvc.ReconcileReport{}, nil
}

type testApp struct {
	app       *fiber.App
	lifecycle *fakeLifecycle
	listing   *fakeListing
	deletion  *fakeDeletion
	ledger    *fakeLedger
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ta := &testApp{
		lifecycle: &fakeLifecycle{},
		listing:   &fakeListing{},
		deletion:  &fakeDeletion{},
		ledger:    &fakeLedger{},
	}
	h := shophdl.NewShopHandler(ta.lifecycle, ta.listing, ta.deletion, ta.ledger)
	h.Now = func() time.Time { return time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC) }

	ta.app = fiber.New()
	ta.app.Use(middleware.ActorMiddleware())
	require.NoError(t, apirouter.SetupRoutes(ta.app, shoprouter.Register(h)))
	return ta
}

// do gửi request, role rỗng = không gắn actor
func (ta *testApp) do(t *testing.T, method, path, body, actorID, role string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set(middleware.HeaderActorID, actorID)
		req.Header.Set(middleware.HeaderActorRole, role)
	}
	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHandleList_PassesQuery(t *testing.T) {
	ta := newTestApp(t)
	status, body := ta.do(t, http.MethodGet, "/api/v1/shops?category=grocery&sortType=popular&lat=25.6&lng=85.1&page=2&pageSize=5", "", "", "")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	q := ta.listing.lastQuery
	assert.Equal(t, "grocery", q.CategorySlug)
	assert.Equal(t, "popular", q.SortType)
	assert.InDelta(t, 25.6, q.UserLat, 1e-9)
	assert.Equal(t, int64(2), q.Page)
	assert.Equal(t, int64(5), q.PageSize)
}

func TestHandleCreate(t *testing.T) {
	ta := newTestApp(t)
	status, _ := ta.do(t, http.MethodPost, "/api/v1/shops", `{"name":"Gupta Store"}`, "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := ta.do(t, http.MethodPost, "/api/v1/shops", `{"name":"Gupta Store"}`, "agent-x", "agent")
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.RoleAgent, ta.lifecycle.lastActor.Role)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Gupta Store", data["name"])
}

func TestHandleMarkPaid(t *testing.T) {
	ta := newTestApp(t)

	status, _ := ta.do(t, http.MethodPost, "/api/v1/shops/branch/1/mark-paid", `{"mode":"UPI"}`, "root", "admin")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ta.do(t, http.MethodPost, "/api/v1/shops/agent/1/mark-paid", `{"mode":"CHEQUE"}`, "root", "admin")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ta.do(t, http.MethodPost, "/api/v1/shops/agent/1/mark-paid", `{"mode":"upi","receiptNo":"R-1","amount":150}`, "root", "admin")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.Ref{Origin: models.OriginAgent, ID: "1"}, ta.lifecycle.lastRef)
	assert.Equal(t, models.PaymentModeUPI, ta.lifecycle.lastInfo.Mode)
	assert.Equal(t, int64(150), ta.lifecycle.lastInfo.Amount)
}

func TestHandleMarkPaid_PartialFailureIs207(t *testing.T) {
	ta := newTestApp(t)
	pf := &common.PartialFailure{Operation: "mark_paid"}
	pf.Add("sibling", "legacy:9", common.ErrNotFound)
	ta.lifecycle.markErr = pf

	status, body := ta.do(t, http.MethodPost, "/api/v1/shops/agent/1/mark-paid", `{"mode":"CASH"}`, "root", "admin")
	assert.Equal(t, http.StatusMultiStatus, status)
	assert.Equal(t, "partial", body["status"])
	assert.Len(t, body["failures"], 1)
	assert.NotNil(t, body["data"])
}

func TestHandleVisit_NoActorNeeded(t *testing.T) {
	ta := newTestApp(t)
	status, _ := ta.do(t, http.MethodPost, "/api/v1/shops/legacy/abc/visit", "", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.Ref{Origin: models.OriginLegacy, ID: "abc"}, ta.lifecycle.lastRef)
}

func TestHandleDeleteMany(t *testing.T) {
	ta := newTestApp(t)
	status, _ := ta.do(t, http.MethodPost, "/api/v1/shops/delete-many", `{"refs":[]}`, "root", "admin")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ta.do(t, http.MethodPost, "/api/v1/shops/delete-many", `{"refs":[{"origin":"agent","id":"a1"},{"origin":"legacy","id":"l1"}]}`, "root", "admin")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, ta.deletion.lastRefs, 2)
}

func TestRenewalRoutes_RequireActor(t *testing.T) {
	ta := newTestApp(t)
	status, _ := ta.do(t, http.MethodGet, "/api/v1/renewals", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := ta.do(t, http.MethodGet, "/api/v1/renewals/c1/can-renew", "", "agent-x", "agent")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["canRenew"])

	status, _ = ta.do(t, http.MethodPost, "/api/v1/renewals/c1/renew", `{"mode":"CASH","amount":250}`, "agent-x", "agent")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(250), ta.lifecycle.lastInfo.Amount)
}

func TestHandleSweep(t *testing.T) {
	ta := newTestApp(t)
	status, _ := ta.do(t, http.MethodPost, "/api/v1/renewals/sweep", "", "cron", "system")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC), ta.lifecycle.lastNow)

	ta.lifecycle.sweep = shopsvc.SweepResult{Errors: []common.ComponentError{{Component: "store", Ref: "admin", Message: "down"}}}
	status, _ = ta.do(t, http.MethodPost, "/api/v1/renewals/sweep", `{"now":1800000000000}`, "cron", "system")
	assert.Equal(t, http.StatusMultiStatus, status)
	assert.Equal(t, int64(1800000000000), ta.lifecycle.lastNow.UnixMilli())
}

func TestLedgerRoutes_RequirePrivilegedActor(t *testing.T) {
	ta := newTestApp(t)

	status, _ := ta.do(t, http.MethodPost, "/api/v1/agents/agent-x/recompute", "", "agent-x", "agent")
	assert.Equal(t, http.StatusForbidden, status)

	status, body := ta.do(t, http.MethodPost, "/api/v1/agents/agent-x/recompute", "", "root", "admin")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "agent-x", body["data"].(map[string]any)["agentId"])

	status, _ = ta.do(t, http.MethodPost, "/api/v1/revenue/recompute", `{"district":"Patna","day":"10-03-2026"}`, "root", "admin")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ta.do(t, http.MethodPost, "/api/v1/revenue/recompute", `{"district":"Patna","day":"2026-03-10"}`, "root", "admin")
	assert.Equal(t, http.StatusOK, status)

	status, _ = ta.do(t, http.MethodPost, "/api/v1/ledger/reconcile?limit=0", "", "root", "admin")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ta.do(t, http.MethodPost, "/api/v1/ledger/reconcile", "", "root", "admin")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 50, ta.ledger.lastLimit)
}
