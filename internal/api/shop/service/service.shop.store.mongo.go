package shopsvc

import (
	"context"
	"fmt"

	basesvc "rupiya_directory/internal/api/base/service"
	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/global"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Trạng thái trong dữ liệu cũ có thể viết hoa/thường tuỳ ý và kèm khoảng trắng; khớp với ParsePaymentStatus
var (
	paidStatus  = primitive.Regex{Pattern: `^\s*paid\s*$`, Options: "i"}
	blankStatus = primitive.Regex{Pattern: `^\s*$`}
)

// MongoShopStore ShopStore trên một collection MongoDB, tên field theo StoreSchema
type MongoShopStore struct {
	*basesvc.BaseServiceMongoImpl[bson.Raw]
	schema models.StoreSchema
}

// NewMongoShopStore tạo store cho schema, collection lấy từ registry
func NewMongoShopStore(schema models.StoreSchema) (*MongoShopStore, error) {
	coll, exist := global.RegistryCollections.Get(schema.Collection)
	if !exist {
		return nil, fmt.Errorf("không tìm thấy collection %s: %w", schema.Collection, common.ErrNotFound)
	}
	return &MongoShopStore{
		BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[bson.Raw](coll),
		schema:               schema,
	}, nil
}

// NewMongoShopStores tạo ba store legacy/admin/agent theo tên collection toàn cục
func NewMongoShopStores() ([]ShopStore, error) {
	schemas := []models.StoreSchema{
		models.LegacySchema(global.MongoDB_ColNames.Shops),
		models.AdminSchema(global.MongoDB_ColNames.AdminShops),
		models.AgentSchema(global.MongoDB_ColNames.AgentShops),
	}
	stores := make([]ShopStore, 0, len(schemas))
	for _, schema := range schemas {
		store, err := NewMongoShopStore(schema)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return stores, nil
}

// Origin store nào
func (s *MongoShopStore) Origin() models.Origin {
	return s.schema.Origin
}

// idValues id dạng hex có thể được lưu là ObjectID hoặc chuỗi
func idValues(id string) bson.A {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.A{oid, id}
	}
	return bson.A{id}
}

func idFilter(id string) bson.M {
	return bson.M{"_id": bson.M{"$in": idValues(id)}}
}

// buildFilter dịch ShopFilter sang query của store. ok = false khi store không có field cần lọc,
// tức là không bản ghi nào của store khớp.
func (s *MongoShopStore) buildFilter(f ShopFilter) (filter bson.M, ok bool) {
	col := s.schema.Col
	and := bson.A{}

	if len(f.IDs) > 0 {
		ids := bson.A{}
		for _, id := range f.IDs {
			ids = append(ids, idValues(id)...)
		}
		and = append(and, bson.M{"_id": bson.M{"$in": ids}})
	}
	if f.Category.ID != "" {
		if !s.schema.Has(models.FieldCategoryID) {
			return nil, false
		}
		and = append(and, bson.M{col(models.FieldCategoryID): f.Category.ID})
	}
	if f.Category.Slug != "" {
		and = append(and, bson.M{col(models.FieldCategory): bson.M{"$regex": slugPattern(f.Category.Slug), "$options": "i"}})
	}

	status := col(models.FieldPaymentStatus)
	switch f.Payment {
	case PaymentVisible:
		and = append(and, bson.M{status: bson.M{"$in": bson.A{nil, blankStatus, paidStatus}}})
	case PaymentOnlyPaid:
		and = append(and, bson.M{status: paidStatus})
	case PaymentOnlyPending:
		and = append(and, bson.M{status: bson.M{"$nin": bson.A{nil, blankStatus, paidStatus}}})
	}

	if f.AgentID != "" {
		if !s.schema.Has(models.FieldAgentID) {
			return nil, false
		}
		and = append(and, bson.M{col(models.FieldAgentID): f.AgentID})
	}
	if f.ExpiredBefore > 0 {
		and = append(and,
			bson.M{status: paidStatus},
			bson.M{col(models.FieldPaymentExpiryDate): bson.M{"$gt": 0, "$lt": f.ExpiredBefore}},
		)
	}
	if f.Name != "" {
		and = append(and, bson.M{col(models.FieldName): bson.M{"$regex": namePattern(f.Name), "$options": "i"}})
	}
	if f.MirrorOf != "" {
		if !s.schema.Has(models.FieldMirrorOf) {
			return nil, false
		}
		and = append(and, bson.M{col(models.FieldMirrorOf): f.MirrorOf})
	}
	if d := f.PaidOnDay; d != nil {
		history := col(models.FieldPaymentHistory)
		and = append(and, bson.M{"$or": bson.A{
			bson.M{history + ".day": d.Day},
			bson.M{
				history:                          bson.M{"$in": bson.A{nil, bson.A{}}},
				status:                           paidStatus,
				col(models.FieldLastPaymentDate): bson.M{"$gte": d.Start, "$lt": d.End},
			},
		}})
	}

	if len(and) == 0 {
		return bson.M{}, true
	}
	return bson.M{"$and": and}, true
}

// Find lọc bản ghi. Query Mongo là bộ lọc thô, kết quả được kiểm lại bằng ShopFilter.Matches trên bản ghi đã chuẩn hoá.
func (s *MongoShopStore) Find(ctx context.Context, f ShopFilter) ([]models.ShopRecord, error) {
	filter, ok := s.buildFilter(f)
	if !ok {
		return []models.ShopRecord{}, nil
	}
	docs, err := s.BaseServiceMongoImpl.Find(ctx, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", s.schema.Collection, err)
	}
	records := make([]models.ShopRecord, 0, len(docs))
	for _, raw := range docs {
		rec := s.schema.Decode(raw)
		if f.Matches(rec) {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Get lấy bản ghi theo id
func (s *MongoShopStore) Get(ctx context.Context, id string) (models.ShopRecord, error) {
	raw, err := s.FindOne(ctx, idFilter(id), nil)
	if err != nil {
		return models.ShopRecord{}, err
	}
	return s.schema.Decode(raw), nil
}

// Snapshot lấy document nguyên trạng kèm bản chuẩn hoá
func (s *MongoShopStore) Snapshot(ctx context.Context, id string) (models.ShopSnapshot, error) {
	raw, err := s.FindOne(ctx, idFilter(id), nil)
	if err != nil {
		return models.ShopSnapshot{}, err
	}
	var doc primitive.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return models.ShopSnapshot{}, fmt.Errorf("unmarshal snapshot %s/%s: %w", s.schema.Origin, id, err)
	}
	rec := s.schema.Decode(raw)
	return models.ShopSnapshot{Origin: s.schema.Origin, ID: rec.Ref.ID, Document: doc, Record: rec}, nil
}

// Insert chèn bản ghi mới. Ref.ID rỗng thì sinh ObjectID.
func (s *MongoShopStore) Insert(ctx context.Context, rec models.ShopRecord) (models.ShopRecord, error) {
	var id any = primitive.NewObjectID()
	if rec.Ref.ID != "" {
		id = models.ObjectIDOrString(rec.Ref.ID)
	}
	doc := append(bson.D{{Key: "_id", Value: id}}, s.schema.Encode(rec)...)
	insertedID, err := s.InsertOne(ctx, doc)
	if err != nil {
		return models.ShopRecord{}, fmt.Errorf("insert %s: %w", s.schema.Collection, err)
	}
	rec.Ref = models.Ref{Origin: s.schema.Origin, ID: idString(insertedID)}
	return rec, nil
}

// Restore chèn lại document của snapshot dưới _id gốc, các field của rec ghi đè lên document cũ
func (s *MongoShopStore) Restore(ctx context.Context, snap models.ShopSnapshot, rec models.ShopRecord) (models.ShopRecord, error) {
	doc := make(bson.D, 0, len(snap.Document)+1)
	hasID := false
	for _, e := range snap.Document {
		if e.Key == "_id" {
			hasID = true
		}
		doc = append(doc, e)
	}
	if !hasID {
		doc = append(bson.D{{Key: "_id", Value: models.ObjectIDOrString(snap.ID)}}, doc...)
	}
	for _, e := range s.schema.Encode(rec) {
		doc = setField(doc, e.Key, e.Value)
	}
	if _, err := s.InsertOne(ctx, doc); err != nil {
		return models.ShopRecord{}, fmt.Errorf("restore %s/%s: %w", s.schema.Origin, snap.ID, err)
	}
	rec.Ref = models.Ref{Origin: s.schema.Origin, ID: snap.ID}
	return rec, nil
}

// ApplyPayment ghi PAID bằng một lệnh FindOneAndUpdate có điều kiện
func (s *MongoShopStore) ApplyPayment(ctx context.Context, id string, w PaymentWrite) (models.ShopRecord, error) {
	col := s.schema.Col
	filter := idFilter(id)
	if w.RequireUnpaid {
		filter[col(models.FieldPaymentStatus)] = bson.M{"$not": paidStatus}
	}

	set := bson.D{
		{Key: col(models.FieldPaymentStatus), Value: string(models.PaymentPaid)},
		{Key: col(models.FieldPaymentMode), Value: string(w.Mode)},
		{Key: col(models.FieldAmountPaid), Value: w.Amount},
		{Key: col(models.FieldReceiptNo), Value: w.ReceiptNo},
		{Key: col(models.FieldLastPaymentDate), Value: w.PaidAt},
		{Key: col(models.FieldPaymentExpiryDate), Value: models.ExpiryFor(w.PaidAt)},
		{Key: col(models.FieldUpdatedAt), Value: w.PaidAt},
	}
	update := bson.M{"$set": set}
	if w.Entry != nil && s.schema.Has(models.FieldPaymentHistory) {
		update["$push"] = bson.M{col(models.FieldPaymentHistory): *w.Entry}
	}

	raw, err := s.FindOneAndUpdate(ctx, filter, update, nil)
	if err != nil {
		if common.IsNotFound(err) && w.RequireUnpaid {
			if _, getErr := s.Get(ctx, id); getErr == nil {
				return models.ShopRecord{}, common.NewInvalidStateError("Shop đã ở trạng thái PAID", map[string]any{"origin": s.schema.Origin, "id": id})
			}
		}
		return models.ShopRecord{}, err
	}
	return s.schema.Decode(raw), nil
}

// IncrementVisitors $inc visitorCount
func (s *MongoShopStore) IncrementVisitors(ctx context.Context, id string, delta int64) error {
	matched, err := s.UpdateOne(ctx, idFilter(id), bson.M{"$inc": bson.M{s.schema.Col(models.FieldVisitorCount): delta}}, nil)
	if err != nil {
		return err
	}
	if matched == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Delete xoá cứng một bản ghi
func (s *MongoShopStore) Delete(ctx context.Context, id string) error {
	return s.DeleteOne(ctx, idFilter(id))
}

// DeleteAll xoá cứng toàn bộ store
func (s *MongoShopStore) DeleteAll(ctx context.Context) (int64, error) {
	return s.DeleteMany(ctx, nil)
}

func idString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	}
	return fmt.Sprint(id)
}

func setField(doc bson.D, key string, value any) bson.D {
	for i := range doc {
		if doc[i].Key == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: value})
}

var _ ShopStore = (*MongoShopStore)(nil)
