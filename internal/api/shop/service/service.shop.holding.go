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
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CandidateFilter lọc bản ghi chờ gia hạn
type CandidateFilter struct {
	AgentID       string
	State         models.CandidateState
	ClaimedBefore int64 // RENEWING nhận xử lý trước thời điểm này (claim bị treo)
}

// HoldingStore khu vực chờ gia hạn
type HoldingStore interface {
	// Insert trả về ErrDuplicate khi một trong OriginalKeys đã có candidate
	Insert(ctx context.Context, c models.RenewalCandidate) (models.RenewalCandidate, error)
	Get(ctx context.Context, id string) (models.RenewalCandidate, error)
	FindByOriginalKey(ctx context.Context, key string) (models.RenewalCandidate, error)
	Find(ctx context.Context, f CandidateFilter) ([]models.RenewalCandidate, error)
	// Transition đổi trạng thái nguyên tử; trạng thái hiện tại khác from trả về ErrInvalidState
	Transition(ctx context.Context, id string, from, to models.CandidateState, at int64) (models.RenewalCandidate, error)
	Delete(ctx context.Context, id string) error
}

// MongoHoldingStore HoldingStore trên collection renewal_candidates
type MongoHoldingStore struct {
	*basesvc.BaseServiceMongoImpl[models.RenewalCandidate]
	schemas map[models.Origin]models.StoreSchema
}

// NewMongoHoldingStore tạo holding store; schemas dùng để chuẩn hoá document trong snapshot
func NewMongoHoldingStore(schemas ...models.StoreSchema) (*MongoHoldingStore, error) {
	name := global.MongoDB_ColNames.RenewalCandidates
	coll, exist := global.RegistryCollections.Get(name)
	if !exist {
		return nil, fmt.Errorf("không tìm thấy collection %s: %w", name, common.ErrNotFound)
	}
	m := make(map[models.Origin]models.StoreSchema, len(schemas))
	for _, s := range schemas {
		m[s.Origin] = s
	}
	return &MongoHoldingStore{
		BaseServiceMongoImpl: basesvc.NewBaseServiceMongo[models.RenewalCandidate](coll),
		schemas:              m,
	}, nil
}

func candidateID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, common.NewValidationError("Id candidate không hợp lệ", map[string]any{"id": id})
	}
	return oid, nil
}

// hydrate điền Record của các snapshot từ document gốc
func (s *MongoHoldingStore) hydrate(c models.RenewalCandidate) models.RenewalCandidate {
	decode := func(snap *models.ShopSnapshot) {
		schema, ok := s.schemas[snap.Origin]
		if !ok {
			return
		}
		raw, err := bson.Marshal(snap.Document)
		if err != nil {
			return
		}
		snap.Record = schema.Decode(raw)
	}
	decode(&c.Primary)
	if c.Mirror != nil {
		decode(c.Mirror)
	}
	return c
}

// Insert thêm candidate
func (s *MongoHoldingStore) Insert(ctx context.Context, c models.RenewalCandidate) (models.RenewalCandidate, error) {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if _, err := s.InsertOne(ctx, c); err != nil {
		return models.RenewalCandidate{}, err
	}
	return c, nil
}

// Get lấy candidate theo id
func (s *MongoHoldingStore) Get(ctx context.Context, id string) (models.RenewalCandidate, error) {
	oid, err := candidateID(id)
	if err != nil {
		return models.RenewalCandidate{}, err
	}
	c, err := s.FindOne(ctx, bson.M{"_id": oid}, nil)
	if err != nil {
		return models.RenewalCandidate{}, err
	}
	return s.hydrate(c), nil
}

// FindByOriginalKey candidate chứa bản ghi gốc "origin:id"
func (s *MongoHoldingStore) FindByOriginalKey(ctx context.Context, key string) (models.RenewalCandidate, error) {
	c, err := s.FindOne(ctx, bson.M{"originalKeys": key}, nil)
	if err != nil {
		return models.RenewalCandidate{}, err
	}
	return s.hydrate(c), nil
}

// Find lọc candidate, cũ nhất trước
func (s *MongoHoldingStore) Find(ctx context.Context, f CandidateFilter) ([]models.RenewalCandidate, error) {
	filter := bson.M{}
	if f.AgentID != "" {
		filter["agentId"] = f.AgentID
	}
	if f.State != "" {
		filter["state"] = f.State
	}
	if f.ClaimedBefore > 0 {
		filter["claimedAt"] = bson.M{"$lt": f.ClaimedBefore}
	}
	list, err := s.BaseServiceMongoImpl.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i] = s.hydrate(list[i])
	}
	return list, nil
}

// Transition compare-and-set trên field state
func (s *MongoHoldingStore) Transition(ctx context.Context, id string, from, to models.CandidateState, at int64) (models.RenewalCandidate, error) {
	oid, err := candidateID(id)
	if err != nil {
		return models.RenewalCandidate{}, err
	}
	update := bson.M{"$set": bson.M{"state": to, "claimedAt": at}}
	if to == models.CandidatePendingRenewal {
		update = bson.M{"$set": bson.M{"state": to}, "$unset": bson.M{"claimedAt": ""}}
	}
	c, err := s.FindOneAndUpdate(ctx, bson.M{"_id": oid, "state": from}, update, nil)
	if err != nil {
		if common.IsNotFound(err) {
			if cur, getErr := s.FindOne(ctx, bson.M{"_id": oid}, nil); getErr == nil {
				return models.RenewalCandidate{}, common.NewInvalidStateError("Candidate không ở trạng thái "+string(from), map[string]any{"id": id, "state": cur.State})
			}
		}
		return models.RenewalCandidate{}, err
	}
	return s.hydrate(c), nil
}

// Delete xoá candidate
func (s *MongoHoldingStore) Delete(ctx context.Context, id string) error {
	oid, err := candidateID(id)
	if err != nil {
		return err
	}
	return s.DeleteOne(ctx, bson.M{"_id": oid})
}

var _ HoldingStore = (*MongoHoldingStore)(nil)
