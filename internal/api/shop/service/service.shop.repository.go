package shopsvc

import (
	"context"
	"fmt"
	"sort"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/logger"
	"rupiya_directory/internal/utility"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FindResult kết quả đọc từ nhiều store. Store lỗi bị bỏ qua và được liệt kê trong FailedOrigins.
type FindResult struct {
	Records       []models.ShopRecord
	FailedOrigins []models.Origin
	Failures      []common.ComponentError
}

// Partial có store không đọc được
func (r FindResult) Partial() bool {
	return len(r.FailedOrigins) > 0
}

// Err PartialFailure khi có store lỗi; dùng cho caller cần dữ liệu đầy đủ (ledger, sweep)
func (r FindResult) Err() error {
	if !r.Partial() {
		return nil
	}
	return &common.PartialFailure{Operation: "find", Failures: r.Failures}
}

// PaymentStamp dữ liệu một lần thanh toán / gia hạn
type PaymentStamp struct {
	Kind      models.PaymentKind
	Mode      models.PaymentMode
	ReceiptNo string
	Amount    int64 // 0 = giá của gói
	PaidAt    int64
}

// PaymentUpdate kết quả ghi thanh toán
type PaymentUpdate struct {
	Record  models.ShopRecord   // Bản ghi được tham chiếu sau khi cập nhật
	Sibling *models.ShopRecord  // Bản sao đã được cập nhật theo, nếu có
	Owner   models.Ref          // Bản giữ ledger (nhận PaymentEntry)
	AgentID string              // Agent được ghi có hoa hồng, rỗng nếu không có
	Entry   models.PaymentEntry // Khoản thanh toán đã ghi

	// EntryStored = false khi bản giữ ledger ghi lỗi: Entry không nằm trên bản ghi nào
	EntryStored bool
}

// ShopRepository gom ba store legacy/admin/agent sau một API thống nhất
type ShopRepository struct {
	stores   map[models.Origin]ShopStore
	catalog  *models.PlanCatalog
	tzOffset int
	log      *logrus.Entry
}

// NewShopRepository tạo repository; tzOffsetMinutes là múi giờ tính ngày doanh thu
func NewShopRepository(stores []ShopStore, catalog *models.PlanCatalog, tzOffsetMinutes int) *ShopRepository {
	m := make(map[models.Origin]ShopStore, len(stores))
	for _, s := range stores {
		m[s.Origin()] = s
	}
	if catalog == nil {
		catalog = models.DefaultPlanCatalog()
	}
	return &ShopRepository{stores: m, catalog: catalog, tzOffset: tzOffsetMinutes, log: logger.WithModule("shop_repository")}
}

// Catalog bảng gói đang dùng
func (r *ShopRepository) Catalog() *models.PlanCatalog {
	return r.catalog
}

// TZOffset múi giờ doanh thu (phút)
func (r *ShopRepository) TZOffset() int {
	return r.tzOffset
}

// Store lấy store theo origin
func (r *ShopRepository) Store(origin models.Origin) (ShopStore, error) {
	s, ok := r.stores[origin]
	if !ok {
		return nil, common.NewValidationError("Nguồn shop không hợp lệ", map[string]any{"origin": origin})
	}
	return s, nil
}

// FindAll đọc đồng thời các store theo thứ tự models.Origins
func (r *ShopRepository) FindAll(ctx context.Context, f ShopFilter) FindResult {
	return r.findIn(ctx, models.Origins, f)
}

func (r *ShopRepository) findIn(ctx context.Context, origins []models.Origin, f ShopFilter) FindResult {
	results := make([][]models.ShopRecord, len(origins))
	errs := make([]error, len(origins))

	g, gctx := errgroup.WithContext(ctx)
	for i, origin := range origins {
		store, ok := r.stores[origin]
		if !ok {
			continue
		}
		g.Go(func() error {
			results[i], errs[i] = store.Find(gctx, f)
			return nil
		})
	}
	_ = g.Wait()

	out := FindResult{Records: []models.ShopRecord{}}
	for i, origin := range origins {
		if errs[i] != nil {
			r.log.WithError(errs[i]).WithField("origin", origin).Warn("⚠️ [SHOP_REPO] Không đọc được store, bỏ qua")
			out.FailedOrigins = append(out.FailedOrigins, origin)
			out.Failures = append(out.Failures, common.NewComponentError("store", string(origin), errs[i]))
			continue
		}
		out.Records = append(out.Records, results[i]...)
	}
	return out
}

// FindByCategory shop theo danh mục và bộ lọc thanh toán
func (r *ShopRepository) FindByCategory(ctx context.Context, q CategoryQuery, payment PaymentFilter) FindResult {
	return r.FindAll(ctx, ShopFilter{Category: q, Payment: payment})
}

// FindExpired bản ghi PAID có paymentExpiryDate < now
func (r *ShopRepository) FindExpired(ctx context.Context, now int64) FindResult {
	return r.FindAll(ctx, ShopFilter{ExpiredBefore: now})
}

// FindByAgent mọi bản ghi mang agentId. Lỗi ở bất kỳ store nào làm hỏng cả kết quả.
func (r *ShopRepository) FindByAgent(ctx context.Context, agentID string) ([]models.ShopRecord, error) {
	res := r.FindAll(ctx, ShopFilter{AgentID: agentID})
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Records, nil
}

// DayRange khoảng thời gian của ngày doanh thu
func (r *ShopRepository) DayRange(day string) (DayRange, error) {
	start, end, err := utility.DayBounds(day, r.tzOffset)
	if err != nil {
		return DayRange{}, common.NewValidationError("Ngày không hợp lệ, cần YYYY-MM-DD", map[string]any{"day": day})
	}
	return DayRange{Day: day, Start: start, End: end}, nil
}

// FindWithPaymentDay bản ghi có khoản thanh toán trong ngày doanh thu (đầy đủ hoặc lỗi)
func (r *ShopRepository) FindWithPaymentDay(ctx context.Context, day string) ([]models.ShopRecord, error) {
	dr, err := r.DayRange(day)
	if err != nil {
		return nil, err
	}
	res := r.FindAll(ctx, ShopFilter{PaidOnDay: &dr})
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Get lấy bản ghi theo ref
func (r *ShopRepository) Get(ctx context.Context, ref models.Ref) (models.ShopRecord, error) {
	store, err := r.Store(ref.Origin)
	if err != nil {
		return models.ShopRecord{}, err
	}
	return store.Get(ctx, ref.ID)
}

// Snapshot chụp bản ghi theo ref
func (r *ShopRepository) Snapshot(ctx context.Context, ref models.Ref) (models.ShopSnapshot, error) {
	store, err := r.Store(ref.Origin)
	if err != nil {
		return models.ShopSnapshot{}, err
	}
	return store.Snapshot(ctx, ref.ID)
}

// Insert chèn bản ghi vào store rec.Ref.Origin
func (r *ShopRepository) Insert(ctx context.Context, rec models.ShopRecord) (models.ShopRecord, error) {
	store, err := r.Store(rec.Ref.Origin)
	if err != nil {
		return models.ShopRecord{}, err
	}
	return store.Insert(ctx, rec)
}

// Delete xoá cứng
func (r *ShopRepository) Delete(ctx context.Context, ref models.Ref) error {
	store, err := r.Store(ref.Origin)
	if err != nil {
		return err
	}
	return store.Delete(ctx, ref.ID)
}

// DeleteAll xoá cứng mọi store, trả về số bản ghi đã xoá theo origin
func (r *ShopRepository) DeleteAll(ctx context.Context) (map[models.Origin]int64, error) {
	counts := map[models.Origin]int64{}
	pf := &common.PartialFailure{Operation: "delete_all"}
	for _, origin := range models.Origins {
		store, ok := r.stores[origin]
		if !ok {
			continue
		}
		n, err := store.DeleteAll(ctx)
		if err != nil {
			pf.Add("store", string(origin), err)
			continue
		}
		counts[origin] = n
	}
	return counts, pf.ErrOrNil()
}

// RecordVisit tăng visitorCount
func (r *ShopRepository) RecordVisit(ctx context.Context, ref models.Ref) error {
	store, err := r.Store(ref.Origin)
	if err != nil {
		return err
	}
	return store.IncrementVisitors(ctx, ref.ID, 1)
}

// ===================================
// Sibling
// ===================================

// siblingOrigins thứ tự ưu tiên khi tìm bản sao của một bản ghi
var siblingOrigins = map[models.Origin][]models.Origin{
	models.OriginAgent:  {models.OriginLegacy, models.OriginAdmin},
	models.OriginLegacy: {models.OriginAgent, models.OriginAdmin},
	models.OriginAdmin:  {models.OriginLegacy, models.OriginAgent},
}

// FindLinked bản sao được liên kết tường minh qua mirrorOf (bản agent <-> bản sao trong shops)
func (r *ShopRepository) FindLinked(ctx context.Context, rec models.ShopRecord) (models.ShopRecord, bool, error) {
	switch {
	case rec.Ref.Origin == models.OriginAgent:
		legacy, ok := r.stores[models.OriginLegacy]
		if !ok {
			return models.ShopRecord{}, false, nil
		}
		mirrors, err := legacy.Find(ctx, ShopFilter{MirrorOf: rec.Ref.ID})
		if err != nil {
			return models.ShopRecord{}, false, err
		}
		if len(mirrors) > 0 {
			sortRecords(mirrors)
			return mirrors[0], true, nil
		}
	case rec.IsMirror():
		owner, err := r.Get(ctx, models.Ref{Origin: models.OriginAgent, ID: rec.MirrorOf})
		if err == nil {
			return owner, true, nil
		}
		if !common.IsNotFound(err) {
			return models.ShopRecord{}, false, err
		}
	}
	return models.ShopRecord{}, false, nil
}

// isLinked hai bản ghi liên kết tường minh qua mirrorOf
func isLinked(a, b models.ShopRecord) bool {
	return (a.Ref.Origin == models.OriginAgent && b.MirrorOf == a.Ref.ID) ||
		(b.Ref.Origin == models.OriginAgent && a.MirrorOf == b.Ref.ID)
}

// FindSibling bản sao của rec ở store khác.
// Liên kết tường minh (mirrorOf) được dùng trước; sau đó so khớp theo tên + chủ + số điện thoại,
// rồi tên + chủ, rồi tên. Tầng dự phòng có nhiều hơn một kết quả là mơ hồ và không trả về sibling.
// Xoá chỉ theo FindLinked; lượt quét chỉ gộp bản so khớp khi bản đó cũng hết hạn và cùng chủ.
func (r *ShopRepository) FindSibling(ctx context.Context, rec models.ShopRecord) (models.ShopRecord, bool, error) {
	if linked, ok, err := r.FindLinked(ctx, rec); err != nil || ok {
		return linked, ok, err
	}

	if rec.Name == "" {
		return models.ShopRecord{}, false, nil
	}
	origins := siblingOrigins[rec.Ref.Origin]
	res := r.findIn(ctx, origins, ShopFilter{Name: rec.Name})
	if err := res.Err(); err != nil && len(res.Records) == 0 {
		return models.ShopRecord{}, false, err
	}
	sib, ok := pickSibling(rec, res.Records, origins)
	return sib, ok, nil
}

// pickSibling chọn sibling theo các tầng so khớp
func pickSibling(rec models.ShopRecord, candidates []models.ShopRecord, preference []models.Origin) (models.ShopRecord, bool) {
	name := utility.NormalizeKey(rec.Name)
	owner := utility.NormalizeKey(rec.OwnerName)
	mobile := utility.NormalizeMobile(rec.Mobile)

	pool := make([]models.ShopRecord, 0, len(candidates))
	for _, c := range candidates {
		if c.Ref == rec.Ref || utility.NormalizeKey(c.Name) != name {
			continue
		}
		// Bản sao của shop agent khác
		if c.IsMirror() && c.MirrorOf != rec.Ref.ID {
			continue
		}
		if rec.IsMirror() && c.Ref.Origin == models.OriginAgent && c.Ref.ID != rec.MirrorOf {
			continue
		}
		pool = append(pool, c)
	}

	tiers := []func(c models.ShopRecord) bool{
		func(c models.ShopRecord) bool {
			return owner != "" && mobile != "" &&
				utility.NormalizeKey(c.OwnerName) == owner && utility.NormalizeMobile(c.Mobile) == mobile
		},
		func(c models.ShopRecord) bool {
			return owner != "" && utility.NormalizeKey(c.OwnerName) == owner
		},
		func(c models.ShopRecord) bool { return true },
	}

	for i, match := range tiers {
		hits := []models.ShopRecord{}
		for _, c := range pool {
			if match(c) {
				hits = append(hits, c)
			}
		}
		switch {
		case len(hits) == 0:
			continue
		case len(hits) == 1:
			return hits[0], true
		case i == 0:
			sortByPreference(hits, preference)
			return hits[0], true
		default:
			return models.ShopRecord{}, false
		}
	}
	return models.ShopRecord{}, false
}

func sortByPreference(records []models.ShopRecord, preference []models.Origin) {
	rank := func(o models.Origin) int {
		for i, p := range preference {
			if p == o {
				return i
			}
		}
		return len(preference)
	}
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := rank(records[i].Ref.Origin), rank(records[j].Ref.Origin)
		if ri != rj {
			return ri < rj
		}
		return records[i].Ref.ID < records[j].Ref.ID
	})
}

// sortRecords thứ tự (origin, id) tăng dần
func sortRecords(records []models.ShopRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return refLess(records[i].Ref, records[j].Ref)
	})
}

func refLess(a, b models.Ref) bool {
	if a.Origin != b.Origin {
		return a.Origin < b.Origin
	}
	return a.ID < b.ID
}

// ledgerOwner bản giữ ledger giữa rec và sibling: bản agent nếu có
func ledgerOwner(rec models.ShopRecord, sibling *models.ShopRecord) models.ShopRecord {
	if sibling != nil && rec.Ref.Origin != models.OriginAgent && sibling.Ref.Origin == models.OriginAgent {
		return *sibling
	}
	return rec
}

// ===================================
// Payment
// ===================================

// BuildPaymentEntry khoản thanh toán cho bản giữ ledger.
// Hoa hồng chỉ phát sinh khi bản giữ ledger là bản agent có agentId.
func (r *ShopRepository) BuildPaymentEntry(owner models.ShopRecord, plan models.PlanTier, stamp PaymentStamp) models.PaymentEntry {
	kind := stamp.Kind
	if kind == "" {
		kind = models.PaymentKindPayment
	}
	entry := models.PaymentEntry{
		Kind:      kind,
		Plan:      plan,
		Amount:    stamp.Amount,
		Mode:      stamp.Mode,
		ReceiptNo: stamp.ReceiptNo,
		PaidAt:    stamp.PaidAt,
		Day:       utility.DayKey(stamp.PaidAt, r.tzOffset),
		District:  owner.District(),
	}
	if owner.Ref.Origin == models.OriginAgent && owner.AgentID != "" {
		entry.Commission = r.catalog.Commission(plan, stamp.Amount)
	}
	return entry
}

// UpdatePaymentStatus ghi PAID lên bản ghi được tham chiếu bằng lệnh có điều kiện (chưa PAID),
// sau đó ghi cùng dữ liệu sang sibling. PaymentEntry chỉ được thêm vào bản giữ ledger.
// Lỗi ở bản ghi chính trả về lỗi; lỗi ở sibling trả về PaymentUpdate kèm PartialFailure.
func (r *ShopRepository) UpdatePaymentStatus(ctx context.Context, ref models.Ref, stamp PaymentStamp) (PaymentUpdate, error) {
	target, err := r.Get(ctx, ref)
	if err != nil {
		return PaymentUpdate{}, err
	}
	if target.PaymentStatus == models.PaymentPaid {
		return PaymentUpdate{}, common.NewInvalidStateError("Shop đã ở trạng thái PAID", map[string]any{"ref": ref.Key()})
	}
	if stamp.Amount <= 0 {
		stamp.Amount = r.catalog.LookupPlan(target.Plan).Price
	}

	pf := &common.PartialFailure{Operation: "update_payment_status"}
	var sibling *models.ShopRecord
	sib, found, sibErr := r.FindSibling(ctx, target)
	switch {
	case sibErr != nil:
		pf.Add("sibling", ref.Key(), sibErr)
	case found:
		sibling = &sib
	}

	owner := ledgerOwner(target, sibling)
	entry := r.BuildPaymentEntry(owner, target.Plan, stamp)
	write := func(rec models.ShopRecord, requireUnpaid bool) PaymentWrite {
		w := PaymentWrite{Mode: stamp.Mode, ReceiptNo: stamp.ReceiptNo, Amount: stamp.Amount, PaidAt: stamp.PaidAt, RequireUnpaid: requireUnpaid}
		if rec.Ref == owner.Ref {
			w.Entry = &entry
		}
		return w
	}

	store, err := r.Store(ref.Origin)
	if err != nil {
		return PaymentUpdate{}, err
	}
	updated, err := store.ApplyPayment(ctx, ref.ID, write(target, true))
	if err != nil {
		return PaymentUpdate{}, err
	}
	result := PaymentUpdate{Record: updated, Owner: owner.Ref, Entry: entry, EntryStored: owner.Ref == target.Ref}
	if entry.Commission > 0 {
		result.AgentID = owner.AgentID
	}

	if sibling != nil {
		sibStore, err := r.Store(sibling.Ref.Origin)
		if err == nil {
			var sibUpdated models.ShopRecord
			sibUpdated, err = sibStore.ApplyPayment(ctx, sibling.Ref.ID, write(*sibling, false))
			if err == nil {
				result.Sibling = &sibUpdated
				if sibling.Ref == owner.Ref {
					result.EntryStored = true
				}
			}
		}
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"ref": ref.Key(), "sibling": sibling.Ref.Key()}).
				Warn("⚠️ [SHOP_REPO] Ghi trạng thái sang sibling thất bại")
			pf.Add("sibling", sibling.Ref.Key(), err)
		}
	}
	return result, pf.ErrOrNil()
}

// String mô tả ngắn phục vụ log
func (u PaymentUpdate) String() string {
	return fmt.Sprintf("%s owner=%s amount=%d commission=%d", u.Record.Ref.Key(), u.Owner.Key(), u.Entry.Amount, u.Entry.Commission)
}
