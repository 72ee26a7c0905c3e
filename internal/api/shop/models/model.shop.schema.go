package models

import (
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Field field logic của ShopRecord, ánh xạ sang tên field vật lý khác nhau ở từng store
type Field string

const (
	FieldName              Field = "name"
	FieldOwnerName         Field = "ownerName"
	FieldMobile            Field = "mobile"
	FieldCategory          Field = "category"
	FieldCategoryID        Field = "categoryId"
	FieldAddress           Field = "address"
	FieldArea              Field = "area"
	FieldCity              Field = "city"
	FieldDistrict          Field = "district"
	FieldPincode           Field = "pincode"
	FieldLatitude          Field = "latitude"
	FieldLongitude         Field = "longitude"
	FieldImageURL          Field = "imageUrl"
	FieldPlan              Field = "plan"
	FieldPaymentStatus     Field = "paymentStatus"
	FieldPaymentMode       Field = "paymentMode"
	FieldAmountPaid        Field = "amountPaid"
	FieldReceiptNo         Field = "receiptNo"
	FieldCreatedAt         Field = "createdAt"
	FieldLastPaymentDate   Field = "lastPaymentDate"
	FieldPaymentExpiryDate Field = "paymentExpiryDate"
	FieldVisitorCount      Field = "visitorCount"
	FieldAgentID           Field = "agentId"
	FieldMirrorOf          Field = "mirrorOf"
	FieldPriorityRank      Field = "priorityRank"
	FieldRating            Field = "rating"
	FieldReviewCount       Field = "reviewCount"
	FieldPaymentHistory    Field = "paymentHistory"
	FieldUpdatedAt         Field = "updatedAt"
)

// StoreSchema tên collection và bảng ánh xạ field của một store.
// Field không có trong Fields dùng tên logic; field ánh xạ sang "" nghĩa là store không có field đó.
type StoreSchema struct {
	Origin     Origin
	Collection string
	Fields     map[Field]string
}

// LegacySchema collection shops cũ
func LegacySchema(collection string) StoreSchema {
	return StoreSchema{Origin: OriginLegacy, Collection: collection, Fields: map[Field]string{
		FieldMirrorOf: "agentShopId",
	}}
}

// AdminSchema collection admin_shops
func AdminSchema(collection string) StoreSchema {
	return StoreSchema{Origin: OriginAdmin, Collection: collection, Fields: map[Field]string{
		FieldName:     "shopName",
		FieldMobile:   "phone",
		FieldCategory: "categoryName",
		FieldAddress:  "fullAddress",
		FieldPlan:     "planType",
		FieldAgentID:  "",
		FieldMirrorOf: "",
	}}
}

// AgentSchema collection agent_shops
func AgentSchema(collection string) StoreSchema {
	return StoreSchema{Origin: OriginAgent, Collection: collection, Fields: map[Field]string{
		FieldName:      "shopName",
		FieldLatitude:  "lat",
		FieldLongitude: "lng",
		FieldImageURL:  "photoUrl",
		FieldMirrorOf:  "",
	}}
}

// Col tên field vật lý
func (s StoreSchema) Col(f Field) string {
	if name, ok := s.Fields[f]; ok {
		return name
	}
	return string(f)
}

// Has store có field f
func (s StoreSchema) Has(f Field) bool {
	return s.Col(f) != ""
}

// Decode chuẩn hoá document thô thành ShopRecord
func (s StoreSchema) Decode(raw bson.Raw) ShopRecord {
	str := func(f Field) string { return rawString(s.lookup(raw, f)) }
	num := func(f Field) int64 { return rawInt64(s.lookup(raw, f)) }
	flt := func(f Field) float64 { return rawFloat(s.lookup(raw, f)) }

	rec := ShopRecord{
		Ref:               Ref{Origin: s.Origin, ID: rawID(raw.Lookup("_id"))},
		Name:              strings.TrimSpace(str(FieldName)),
		OwnerName:         strings.TrimSpace(str(FieldOwnerName)),
		CategoryID:        str(FieldCategoryID),
		Category:          strings.TrimSpace(str(FieldCategory)),
		Mobile:            strings.TrimSpace(str(FieldMobile)),
		Location:          Location{Address: str(FieldAddress), Area: str(FieldArea), City: str(FieldCity), District: str(FieldDistrict), Pincode: str(FieldPincode)},
		Latitude:          flt(FieldLatitude),
		Longitude:         flt(FieldLongitude),
		ImageURL:          str(FieldImageURL),
		Plan:              PlanTier(strings.ToUpper(strings.TrimSpace(str(FieldPlan)))),
		PaymentStatus:     ParsePaymentStatus(str(FieldPaymentStatus)),
		AmountPaid:        num(FieldAmountPaid),
		ReceiptNo:         str(FieldReceiptNo),
		CreatedAt:         num(FieldCreatedAt),
		LastPaymentDate:   num(FieldLastPaymentDate),
		PaymentExpiryDate: num(FieldPaymentExpiryDate),
		VisitorCount:      num(FieldVisitorCount),
		AgentID:           str(FieldAgentID),
		MirrorOf:          str(FieldMirrorOf),
		Rating:            flt(FieldRating),
		ReviewCount:       num(FieldReviewCount),
		UpdatedAt:         num(FieldUpdatedAt),
	}
	if rec.Plan == "" {
		rec.Plan = PlanBasic
	}
	if mode := str(FieldPaymentMode); mode != "" {
		rec.PaymentMode = ParsePaymentMode(mode)
	}
	if rv := s.lookup(raw, FieldPriorityRank); isNumeric(rv) {
		rank := int(rawInt64(rv))
		rec.PriorityRank = &rank
	}
	if rv := s.lookup(raw, FieldPaymentHistory); rv.Type == bsontype.Array {
		var history []PaymentEntry
		if err := rv.Unmarshal(&history); err == nil {
			rec.PaymentHistory = history
		}
	}
	return rec
}

// Encode chuyển ShopRecord sang document theo tên field của store (không gồm _id).
// PaymentStatus Unset không được ghi để giữ ngữ nghĩa legacy.
func (s StoreSchema) Encode(rec ShopRecord) bson.D {
	doc := bson.D{}
	put := func(f Field, v any) {
		if col := s.Col(f); col != "" {
			doc = append(doc, bson.E{Key: col, Value: v})
		}
	}
	put(FieldName, rec.Name)
	put(FieldOwnerName, rec.OwnerName)
	put(FieldMobile, rec.Mobile)
	put(FieldCategory, rec.Category)
	put(FieldCategoryID, rec.CategoryID)
	put(FieldAddress, rec.Location.Address)
	put(FieldArea, rec.Location.Area)
	put(FieldCity, rec.Location.City)
	put(FieldDistrict, rec.Location.District)
	put(FieldPincode, rec.Location.Pincode)
	put(FieldLatitude, rec.Latitude)
	put(FieldLongitude, rec.Longitude)
	put(FieldImageURL, rec.ImageURL)
	put(FieldPlan, string(rec.Plan))
	if rec.PaymentStatus != PaymentUnset {
		put(FieldPaymentStatus, string(rec.PaymentStatus))
	}
	if rec.PaymentMode != "" {
		put(FieldPaymentMode, string(rec.PaymentMode))
	}
	put(FieldAmountPaid, rec.AmountPaid)
	put(FieldReceiptNo, rec.ReceiptNo)
	put(FieldCreatedAt, rec.CreatedAt)
	put(FieldLastPaymentDate, rec.LastPaymentDate)
	put(FieldPaymentExpiryDate, rec.PaymentExpiryDate)
	put(FieldVisitorCount, rec.VisitorCount)
	if rec.AgentID != "" {
		put(FieldAgentID, rec.AgentID)
	}
	if rec.MirrorOf != "" {
		put(FieldMirrorOf, rec.MirrorOf)
	}
	if rec.PriorityRank != nil {
		put(FieldPriorityRank, *rec.PriorityRank)
	}
	put(FieldRating, rec.Rating)
	put(FieldReviewCount, rec.ReviewCount)
	if len(rec.PaymentHistory) > 0 {
		put(FieldPaymentHistory, rec.PaymentHistory)
	}
	put(FieldUpdatedAt, rec.UpdatedAt)
	return doc
}

func (s StoreSchema) lookup(raw bson.Raw, f Field) bson.RawValue {
	col := s.Col(f)
	if col == "" {
		return bson.RawValue{}
	}
	return raw.Lookup(col)
}

// ObjectIDOrString id dạng hex ObjectID được lưu thành ObjectID, còn lại giữ nguyên chuỗi
func ObjectIDOrString(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func rawID(rv bson.RawValue) string {
	switch rv.Type {
	case bsontype.ObjectID:
		return rv.ObjectID().Hex()
	case bsontype.String:
		return rv.StringValue()
	case bsontype.Int32, bsontype.Int64, bsontype.Double:
		return strconv.FormatInt(rawInt64(rv), 10)
	}
	return ""
}

func isNumeric(rv bson.RawValue) bool {
	switch rv.Type {
	case bsontype.Int32, bsontype.Int64, bsontype.Double, bsontype.Decimal128:
		return true
	}
	return false
}

func rawString(rv bson.RawValue) string {
	switch rv.Type {
	case bsontype.String:
		return rv.StringValue()
	case bsontype.ObjectID:
		return rv.ObjectID().Hex()
	case bsontype.Int32, bsontype.Int64:
		return strconv.FormatInt(rawInt64(rv), 10)
	case bsontype.Double:
		return strconv.FormatFloat(rv.Double(), 'f', -1, 64)
	}
	return ""
}

// rawInt64 số nguyên từ mọi kiểu số; chuỗi số (dữ liệu nhập tay cũ) cũng được chấp nhận
func rawInt64(rv bson.RawValue) int64 {
	switch rv.Type {
	case bsontype.Int32:
		return int64(rv.Int32())
	case bsontype.Int64:
		return rv.Int64()
	case bsontype.Double:
		return int64(math.Round(rv.Double()))
	case bsontype.DateTime:
		return rv.DateTime()
	case bsontype.Decimal128:
		if f, err := strconv.ParseFloat(rv.Decimal128().String(), 64); err == nil {
			return int64(math.Round(f))
		}
	case bsontype.String:
		if n, err := strconv.ParseFloat(strings.TrimSpace(rv.StringValue()), 64); err == nil {
			return int64(math.Round(n))
		}
	}
	return 0
}

func rawFloat(rv bson.RawValue) float64 {
	switch rv.Type {
	case bsontype.Double:
		return rv.Double()
	case bsontype.Int32:
		return float64(rv.Int32())
	case bsontype.Int64:
		return float64(rv.Int64())
	case bsontype.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(rv.StringValue()), 64); err == nil {
			return f
		}
	}
	return 0
}
