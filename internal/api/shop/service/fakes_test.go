package shopsvc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memShopStore ShopStore trong bộ nhớ cho test
type memShopStore struct {
	mu      sync.Mutex
	schema  models.StoreSchema
	records map[string]models.ShopRecord
	seq     int

	findErr   error
	applyErr  error
	deleteErr map[string]error // lỗi xoá theo id, dùng một lần
}

func newMemShopStore(schema models.StoreSchema) *memShopStore {
	return &memShopStore{schema: schema, records: map[string]models.ShopRecord{}, deleteErr: map[string]error{}}
}

func (s *memShopStore) Origin() models.Origin { return s.schema.Origin }

func (s *memShopStore) Find(_ context.Context, f ShopFilter) ([]models.ShopRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if f.AgentID != "" && !s.schema.Has(models.FieldAgentID) {
		return []models.ShopRecord{}, nil
	}
	out := []models.ShopRecord{}
	for _, rec := range s.records {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID < out[j].Ref.ID })
	return out, nil
}

func (s *memShopStore) Get(_ context.Context, id string) (models.ShopRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return models.ShopRecord{}, common.ErrNotFound
	}
	return rec, nil
}

func (s *memShopStore) Snapshot(ctx context.Context, id string) (models.ShopSnapshot, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return models.ShopSnapshot{}, err
	}
	doc := append(bson.D{{Key: "_id", Value: id}}, s.schema.Encode(rec)...)
	return models.ShopSnapshot{Origin: s.schema.Origin, ID: id, Document: primitive.D(doc), Record: rec}, nil
}

func (s *memShopStore) Insert(_ context.Context, rec models.ShopRecord) (models.ShopRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Ref.ID == "" {
		s.seq++
		rec.Ref.ID = fmt.Sprintf("%s-%03d", s.schema.Origin, s.seq)
	}
	if _, exists := s.records[rec.Ref.ID]; exists {
		return models.ShopRecord{}, common.ErrDuplicate
	}
	rec.Ref.Origin = s.schema.Origin
	s.records[rec.Ref.ID] = rec
	return rec, nil
}

func (s *memShopStore) Restore(_ context.Context, snap models.ShopSnapshot, rec models.ShopRecord) (models.ShopRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[snap.ID]; exists {
		return models.ShopRecord{}, common.ErrDuplicate
	}
	rec.Ref = models.Ref{Origin: s.schema.Origin, ID: snap.ID}
	s.records[snap.ID] = rec
	return rec, nil
}

func (s *memShopStore) ApplyPayment(_ context.Context, id string, w PaymentWrite) (models.ShopRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return models.ShopRecord{}, s.applyErr
	}
	rec, ok := s.records[id]
	if !ok {
		return models.ShopRecord{}, common.ErrNotFound
	}
	if w.RequireUnpaid && rec.PaymentStatus == models.PaymentPaid {
		return models.ShopRecord{}, common.NewInvalidStateError("Shop đã ở trạng thái PAID", nil)
	}
	rec.PaymentStatus = models.PaymentPaid
	rec.PaymentMode = w.Mode
	rec.AmountPaid = w.Amount
	rec.ReceiptNo = w.ReceiptNo
	rec.LastPaymentDate = w.PaidAt
	rec.PaymentExpiryDate = models.ExpiryFor(w.PaidAt)
	rec.UpdatedAt = w.PaidAt
	if w.Entry != nil {
		rec.PaymentHistory = append(append([]models.PaymentEntry{}, rec.PaymentHistory...), *w.Entry)
	}
	s.records[id] = rec
	return rec, nil
}

func (s *memShopStore) IncrementVisitors(_ context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return common.ErrNotFound
	}
	rec.VisitorCount += delta
	s.records[id] = rec
	return nil
}

func (s *memShopStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.deleteErr[id]; ok {
		delete(s.deleteErr, id)
		return err
	}
	if _, ok := s.records[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memShopStore) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.records))
	s.records = map[string]models.ShopRecord{}
	return n, nil
}

func (s *memShopStore) put(rec models.ShopRecord) models.ShopRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Ref.Origin = s.schema.Origin
	s.records[rec.Ref.ID] = rec
	return rec
}

func (s *memShopStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// memHolding HoldingStore trong bộ nhớ
type memHolding struct {
	mu         sync.Mutex
	candidates map[string]models.RenewalCandidate
}

func newMemHolding() *memHolding {
	return &memHolding{candidates: map[string]models.RenewalCandidate{}}
}

func (h *memHolding) Insert(_ context.Context, c models.RenewalCandidate) (models.RenewalCandidate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.candidates {
		for _, k := range existing.OriginalKeys {
			for _, nk := range c.OriginalKeys {
				if k == nk {
					return models.RenewalCandidate{}, common.ErrDuplicate
				}
			}
		}
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	h.candidates[c.ID.Hex()] = c
	return c, nil
}

func (h *memHolding) Get(_ context.Context, id string) (models.RenewalCandidate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.candidates[id]
	if !ok {
		return models.RenewalCandidate{}, common.ErrNotFound
	}
	return c, nil
}

func (h *memHolding) FindByOriginalKey(_ context.Context, key string) (models.RenewalCandidate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.candidates {
		for _, k := range c.OriginalKeys {
			if k == key {
				return c, nil
			}
		}
	}
	return models.RenewalCandidate{}, common.ErrNotFound
}

func (h *memHolding) Find(_ context.Context, f CandidateFilter) ([]models.RenewalCandidate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []models.RenewalCandidate{}
	for _, c := range h.candidates {
		if f.AgentID != "" && c.AgentID != f.AgentID {
			continue
		}
		if f.State != "" && c.State != f.State {
			continue
		}
		if f.ClaimedBefore > 0 && c.ClaimedAt >= f.ClaimedBefore {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (h *memHolding) Transition(_ context.Context, id string, from, to models.CandidateState, at int64) (models.RenewalCandidate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.candidates[id]
	if !ok {
		return models.RenewalCandidate{}, common.ErrNotFound
	}
	if c.State != from {
		return models.RenewalCandidate{}, common.NewInvalidStateError("Candidate không ở trạng thái "+string(from), nil)
	}
	c.State = to
	c.ClaimedAt = at
	h.candidates[id] = c
	return c, nil
}

func (h *memHolding) Delete(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.candidates[id]; !ok {
		return common.ErrNotFound
	}
	delete(h.candidates, id)
	return nil
}

func (h *memHolding) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.candidates)
}

// memAgents AgentLedger trong bộ nhớ
type memAgents struct {
	mu     sync.Mutex
	agents map[string]models.Agent

	incrementErr error
	// beforeCAS chạy trước mỗi CompareAndSet, dùng để mô phỏng ghi đồng thời
	beforeCAS func()
}

func newMemAgents() *memAgents {
	return &memAgents{agents: map[string]models.Agent{}}
}

func (a *memAgents) Get(_ context.Context, id string) (models.Agent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ag, ok := a.agents[id]
	if !ok {
		return models.Agent{}, common.ErrNotFound
	}
	return ag, nil
}

func (a *memAgents) Increment(_ context.Context, id string, shops, earnings int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.incrementErr != nil {
		return a.incrementErr
	}
	ag := a.agents[id]
	ag.ID = id
	ag.TotalShops += shops
	ag.TotalEarnings += earnings
	ag.Version++
	a.agents[id] = ag
	return nil
}

func (a *memAgents) DeductFloor(_ context.Context, id string, shops, earnings int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	ag, ok := a.agents[id]
	if !ok {
		return nil
	}
	ag.TotalShops = max(0, ag.TotalShops-shops)
	ag.TotalEarnings = max(0, ag.TotalEarnings-earnings)
	ag.Version++
	a.agents[id] = ag
	return nil
}

func (a *memAgents) CompareAndSet(_ context.Context, id string, expected int64, totals models.AgentTotals, at int64) (bool, error) {
	if a.beforeCAS != nil {
		a.beforeCAS()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ag := a.agents[id]
	if ag.Version != expected {
		return false, nil
	}
	ag.ID = id
	ag.TotalShops = totals.TotalShops
	ag.TotalEarnings = totals.TotalEarnings
	ag.UpdatedAt = at
	ag.Version++
	a.agents[id] = ag
	return true, nil
}

func (a *memAgents) ListIDs(_ context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.agents))
	for id := range a.agents {
		ids = append(ids, id)
	}
	return ids, nil
}

func (a *memAgents) totals(id string) models.AgentTotals {
	a.mu.Lock()
	defer a.mu.Unlock()
	ag := a.agents[id]
	return ag.Totals()
}

func (a *memAgents) set(id string, shops, earnings int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ag := a.agents[id]
	ag.ID = id
	ag.TotalShops = shops
	ag.TotalEarnings = earnings
	ag.Version++
	a.agents[id] = ag
}

// memRevenue RevenueLedger trong bộ nhớ
type memRevenue struct {
	mu       sync.Mutex
	entries  map[models.RevenueKey]models.RevenueEntry
	applyErr error
}

func newMemRevenue() *memRevenue {
	return &memRevenue{entries: map[models.RevenueKey]models.RevenueEntry{}}
}

func (r *memRevenue) change(key models.RevenueKey, d RevenueDelta, sign int64, at int64, upsert bool) {
	e, ok := r.entries[key]
	if !ok {
		if !upsert {
			return
		}
		e = models.RevenueEntry{District: key.District, Day: key.Day, Plans: map[models.PlanTier]models.PlanRevenue{}}
	}
	apply := func(cur, delta int64) int64 {
		if sign < 0 {
			return max(0, cur-delta)
		}
		return cur + delta
	}
	for tier, pr := range d.Plans {
		cur := e.Plans[tier]
		cur.Count = apply(cur.Count, pr.Count)
		cur.Amount = apply(cur.Amount, pr.Amount)
		e.Plans[tier] = cur
	}
	e.TotalRevenue = apply(e.TotalRevenue, d.Revenue)
	e.TotalAgentCommission = apply(e.TotalAgentCommission, d.Commission)
	e.NetRevenue = e.TotalRevenue - e.TotalAgentCommission
	e.UpdatedAt = at
	r.entries[key] = e
}

func (r *memRevenue) Apply(_ context.Context, key models.RevenueKey, d RevenueDelta, at int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return r.applyErr
	}
	r.change(key, d, 1, at, true)
	return nil
}

func (r *memRevenue) DeductFloor(_ context.Context, key models.RevenueKey, d RevenueDelta, at int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.change(key, d, -1, at, false)
	return nil
}

func (r *memRevenue) Replace(_ context.Context, entry models.RevenueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.NetRevenue = entry.TotalRevenue - entry.TotalAgentCommission
	r.entries[models.RevenueKey{District: entry.District, Day: entry.Day}] = entry
	return nil
}

func (r *memRevenue) Get(_ context.Context, key models.RevenueKey) (models.RevenueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return models.RevenueEntry{}, common.ErrNotFound
	}
	return e, nil
}

// memQueue ReconcileQueue trong bộ nhớ
type memQueue struct {
	mu    sync.Mutex
	tasks []models.LedgerReconcileTask
}

func (q *memQueue) Enqueue(_ context.Context, task models.LedgerReconcileTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	task.ID = fmt.Sprintf("task-%d", len(q.tasks)+1)
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *memQueue) Pending(_ context.Context, limit int) ([]models.LedgerReconcileTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := []models.LedgerReconcileTask{}
	for _, t := range q.tasks {
		if t.ProcessedAt == 0 && (limit <= 0 || len(out) < limit) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (q *memQueue) Complete(_ context.Context, id string, at int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.tasks {
		if q.tasks[i].ID == id {
			q.tasks[i].ProcessedAt = at
			return nil
		}
	}
	return common.ErrNotFound
}

func (q *memQueue) Fail(_ context.Context, id string, cause error, at int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.tasks {
		if q.tasks[i].ID == id {
			q.tasks[i].Attempts++
			q.tasks[i].LastError = cause.Error()
			if q.tasks[i].Attempts >= maxReconcileAttempts {
				q.tasks[i].ProcessedAt = at
				return true, nil
			}
			return false, nil
		}
	}
	return false, common.ErrNotFound
}

func (q *memQueue) pending() int {
	tasks, _ := q.Pending(context.Background(), 0)
	return len(tasks)
}

var (
	_ ShopStore      = (*memShopStore)(nil)
	_ HoldingStore   = (*memHolding)(nil)
	_ AgentLedger    = (*memAgents)(nil)
	_ RevenueLedger  = (*memRevenue)(nil)
	_ ReconcileQueue = (*memQueue)(nil)
)
