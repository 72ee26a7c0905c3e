package shopsvc

import (
	"context"
	"errors"
	"fmt"

	basesvc "rupiya_directory/internal/api/base/service"
	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/global"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxReconcileAttempts số lần thử trước khi bỏ một task đối soát
const maxReconcileAttempts = 5

// AgentLedger tổng cache của agent. Mọi thay đổi là một lệnh nguyên tử trên một document.
type AgentLedger interface {
	Get(ctx context.Context, agentID string) (models.Agent, error)
	// Increment $inc có upsert
	Increment(ctx context.Context, agentID string, shops, earnings int64) error
	// DeductFloor trừ và chặn dưới 0, agent chưa có thì bỏ qua
	DeductFloor(ctx context.Context, agentID string, shops, earnings int64) error
	// CompareAndSet ghi đè tổng khi version còn bằng expectedVersion; ok = false khi thua race
	CompareAndSet(ctx context.Context, agentID string, expectedVersion int64, totals models.AgentTotals, at int64) (ok bool, err error)
	ListIDs(ctx context.Context) ([]string, error)
}

// RevenueDelta phần cộng/trừ vào một RevenueEntry
type RevenueDelta struct {
	Plans      map[models.PlanTier]models.PlanRevenue
	Revenue    int64
	Commission int64
}

// IsZero không có gì để ghi
func (d RevenueDelta) IsZero() bool {
	return d.Revenue == 0 && d.Commission == 0 && len(d.Plans) == 0
}

// Add cộng dồn delta khác
func (d *RevenueDelta) Add(o RevenueDelta) {
	if d.Plans == nil {
		d.Plans = map[models.PlanTier]models.PlanRevenue{}
	}
	for tier, pr := range o.Plans {
		cur := d.Plans[tier]
		cur.Count += pr.Count
		cur.Amount += pr.Amount
		d.Plans[tier] = cur
	}
	d.Revenue += o.Revenue
	d.Commission += o.Commission
}

// RevenueLedger doanh thu theo (quận/huyện, ngày)
type RevenueLedger interface {
	// Apply cộng dồn có upsert, netRevenue được tính lại trong cùng lệnh
	Apply(ctx context.Context, key models.RevenueKey, d RevenueDelta, at int64) error
	// DeductFloor trừ, mỗi bộ đếm chặn dưới 0
	DeductFloor(ctx context.Context, key models.RevenueKey, d RevenueDelta, at int64) error
	Replace(ctx context.Context, entry models.RevenueEntry) error
	Get(ctx context.Context, key models.RevenueKey) (models.RevenueEntry, error)
}

// ReconcileQueue hàng đợi đối soát ledger
type ReconcileQueue interface {
	Enqueue(ctx context.Context, task models.LedgerReconcileTask) error
	Pending(ctx context.Context, limit int) ([]models.LedgerReconcileTask, error)
	Complete(ctx context.Context, id string, at int64) error
	// Fail tăng số lần thử; đủ maxReconcileAttempts thì đánh dấu đã xử lý (bỏ)
	Fail(ctx context.Context, id string, cause error, at int64) (gaveUp bool, err error)
}

// ===================================
// Agent ledger
// ===================================

// MongoAgentLedger AgentLedger trên collection agents
type MongoAgentLedger struct {
	*basesvc.BaseServiceMongoImpl[models.Agent]
}

// NewMongoAgentLedger tạo agent ledger
func NewMongoAgentLedger() (*MongoAgentLedger, error) {
	name := global.MongoDB_ColNames.Agents
	coll, exist := global.RegistryCollections.Get(name)
	if !exist {
		return nil, fmt.Errorf("không tìm thấy collection %s: %w", name, common.ErrNotFound)
	}
	return &MongoAgentLedger{BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[models.Agent](coll)}, nil
}

// Get lấy agent
func (l *MongoAgentLedger) Get(ctx context.Context, agentID string) (models.Agent, error) {
	return l.FindOne(ctx, bson.M{"_id": agentID}, nil)
}

// Increment cộng totalShops / totalEarnings
func (l *MongoAgentLedger) Increment(ctx context.Context, agentID string, shops, earnings int64) error {
	update := bson.M{"$inc": bson.M{"totalShops": shops, "totalEarnings": earnings, "version": 1}}
	_, err := l.UpdateOne(ctx, bson.M{"_id": agentID}, update, options.Update().SetUpsert(true))
	return err
}

// DeductFloor trừ bằng pipeline $max 0
func (l *MongoAgentLedger) DeductFloor(ctx context.Context, agentID string, shops, earnings int64) error {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"totalShops":    floorSub("$totalShops", shops),
			"totalEarnings": floorSub("$totalEarnings", earnings),
			"version":       bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$version", 0}}, 1}},
		}}},
	}
	_, err := l.UpdateOne(ctx, bson.M{"_id": agentID}, pipeline, nil)
	return err
}

// CompareAndSet ghi đè tổng theo version. expectedVersion = 0 cũng tạo mới agent chưa có;
// trùng khoá khi tạo mới nghĩa là ghi đồng thời đã tạo trước, tính là thua race.
func (l *MongoAgentLedger) CompareAndSet(ctx context.Context, agentID string, expectedVersion int64, totals models.AgentTotals, at int64) (bool, error) {
	filter := bson.M{"_id": agentID, "version": expectedVersion}
	opts := options.Update()
	if expectedVersion == 0 {
		filter["version"] = bson.M{"$in": bson.A{0, nil}}
		opts.SetUpsert(true)
	}
	update := bson.M{
		"$set": bson.M{"totalShops": totals.TotalShops, "totalEarnings": totals.TotalEarnings, "updatedAt": at},
		"$inc": bson.M{"version": 1},
	}
	matched, err := l.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if errors.Is(err, common.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return matched > 0, nil
}

// ListIDs id của mọi agent trong ledger
func (l *MongoAgentLedger) ListIDs(ctx context.Context) ([]string, error) {
	values, err := l.Distinct(ctx, "_id", nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// ===================================
// Revenue ledger
// ===================================

// MongoRevenueLedger RevenueLedger trên collection district_revenue
type MongoRevenueLedger struct {
	*basesvc.BaseServiceMongoImpl[models.RevenueEntry]
}

// NewMongoRevenueLedger tạo revenue ledger
func NewMongoRevenueLedger() (*MongoRevenueLedger, error) {
	name := global.MongoDB_ColNames.DistrictRevenue
	coll, exist := global.RegistryCollections.Get(name)
	if !exist {
		return nil, fmt.Errorf("không tìm thấy collection %s: %w", name, common.ErrNotFound)
	}
	return &MongoRevenueLedger{BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[models.RevenueEntry](coll)}, nil
}

func revenueFilter(key models.RevenueKey) bson.M {
	return bson.M{"district": key.District, "day": key.Day}
}

// revenuePipeline hai stage: cập nhật bộ đếm, sau đó tính lại netRevenue từ kết quả stage trước
func revenuePipeline(d RevenueDelta, sign int64, at int64) mongo.Pipeline {
	op := func(path string, delta int64) bson.M {
		if sign < 0 {
			return floorSub("$"+path, delta)
		}
		return bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + path, 0}}, delta}}
	}
	set := bson.M{
		"totalRevenue":         op("totalRevenue", d.Revenue),
		"totalAgentCommission": op("totalAgentCommission", d.Commission),
		"updatedAt":            at,
	}
	for tier, pr := range d.Plans {
		base := "plans." + string(tier)
		set[base+".count"] = op(base+".count", pr.Count)
		set[base+".amount"] = op(base+".amount", pr.Amount)
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: set}},
		{{Key: "$set", Value: bson.M{"netRevenue": bson.M{"$subtract": bson.A{"$totalRevenue", "$totalAgentCommission"}}}}},
	}
}

// Apply cộng doanh thu
func (l *MongoRevenueLedger) Apply(ctx context.Context, key models.RevenueKey, d RevenueDelta, at int64) error {
	_, err := l.UpdateOne(ctx, revenueFilter(key), revenuePipeline(d, 1, at), options.Update().SetUpsert(true))
	return err
}

// DeductFloor trừ doanh thu, không tạo entry mới
func (l *MongoRevenueLedger) DeductFloor(ctx context.Context, key models.RevenueKey, d RevenueDelta, at int64) error {
	_, err := l.UpdateOne(ctx, revenueFilter(key), revenuePipeline(d, -1, at), nil)
	return err
}

// Replace ghi đè toàn bộ entry (dùng khi tính lại)
func (l *MongoRevenueLedger) Replace(ctx context.Context, entry models.RevenueEntry) error {
	entry.NetRevenue = entry.TotalRevenue - entry.TotalAgentCommission
	if entry.Plans == nil {
		entry.Plans = map[models.PlanTier]models.PlanRevenue{}
	}
	update := bson.M{"$set": bson.M{
		"plans":                entry.Plans,
		"totalRevenue":         entry.TotalRevenue,
		"totalAgentCommission": entry.TotalAgentCommission,
		"netRevenue":           entry.NetRevenue,
		"updatedAt":            entry.UpdatedAt,
	}}
	key := models.RevenueKey{District: entry.District, Day: entry.Day}
	_, err := l.UpdateOne(ctx, revenueFilter(key), update, options.Update().SetUpsert(true))
	return err
}

// Get lấy entry
func (l *MongoRevenueLedger) Get(ctx context.Context, key models.RevenueKey) (models.RevenueEntry, error) {
	return l.FindOne(ctx, revenueFilter(key), nil)
}

func floorSub(field string, delta int64) bson.M {
	return bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{bson.M{"$ifNull": bson.A{field, 0}}, delta}}}}
}

// ===================================
// Reconcile queue
// ===================================

// MongoReconcileQueue ReconcileQueue trên collection ledger_reconcile_tasks
type MongoReconcileQueue struct {
	*basesvc.BaseServiceMongoImpl[models.LedgerReconcileTask]
}

// NewMongoReconcileQueue tạo hàng đợi đối soát
func NewMongoReconcileQueue() (*MongoReconcileQueue, error) {
	name := global.MongoDB_ColNames.LedgerReconcileTasks
	coll, exist := global.RegistryCollections.Get(name)
	if !exist {
		return nil, fmt.Errorf("không tìm thấy collection %s: %w", name, common.ErrNotFound)
	}
	return &MongoReconcileQueue{BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[models.LedgerReconcileTask](coll)}, nil
}

// Enqueue thêm task
func (q *MongoReconcileQueue) Enqueue(ctx context.Context, task models.LedgerReconcileTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.ProcessedAt = 0
	_, err := q.InsertOne(ctx, task)
	return err
}

// Pending task chưa xử lý, cũ nhất trước
func (q *MongoReconcileQueue) Pending(ctx context.Context, limit int) ([]models.LedgerReconcileTask, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return q.Find(ctx, bson.M{"processedAt": 0}, opts)
}

// Complete đánh dấu đã xử lý
func (q *MongoReconcileQueue) Complete(ctx context.Context, id string, at int64) error {
	_, err := q.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"processedAt": at, "lastError": ""}}, nil)
	return err
}

// Fail ghi lỗi và tăng số lần thử
func (q *MongoReconcileQueue) Fail(ctx context.Context, id string, cause error, at int64) (bool, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	task, err := q.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"lastError": msg},
	}, nil)
	if err != nil {
		return false, err
	}
	if task.Attempts < maxReconcileAttempts {
		return false, nil
	}
	_, err = q.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"processedAt": at}}, nil)
	return true, err
}

var (
	_ AgentLedger    = (*MongoAgentLedger)(nil)
	_ RevenueLedger  = (*MongoRevenueLedger)(nil)
	_ ReconcileQueue = (*MongoReconcileQueue)(nil)
)
