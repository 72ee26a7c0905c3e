package models

import (
	"strings"

	"rupiya_directory/internal/common"
	"rupiya_directory/internal/utility"
)

// PaymentWindowDays số ngày hiệu lực của một lần thanh toán
const PaymentWindowDays = 365

// Origin collection đang giữ bản ghi shop
type Origin string

const (
	OriginLegacy Origin = "legacy" // collection shops cũ, cũng chứa bản sao của shop agent
	OriginAdmin  Origin = "admin"  // collection admin_shops
	OriginAgent  Origin = "agent"  // collection agent_shops
)

// Origins thứ tự cố định của các store, dùng làm tie-break cuối khi sắp xếp
var Origins = []Origin{OriginAdmin, OriginAgent, OriginLegacy}

// ParseOrigin kiểm tra tên store
func ParseOrigin(raw string) (Origin, error) {
	switch o := Origin(strings.ToLower(strings.TrimSpace(raw))); o {
	case OriginLegacy, OriginAdmin, OriginAgent:
		return o, nil
	}
	return "", common.NewValidationError("Nguồn shop không hợp lệ", map[string]any{"origin": raw})
}

// Ref định danh bản ghi shop: id trong một store cụ thể
type Ref struct {
	Origin Origin `json:"origin" bson:"origin"`
	ID     string `json:"id" bson:"id"`
}

// Key dạng "origin:id", dùng làm khoá idempotency của bản ghi chờ gia hạn
func (r Ref) Key() string {
	return string(r.Origin) + ":" + r.ID
}

// IsZero ref rỗng
func (r Ref) IsZero() bool {
	return r.Origin == "" && r.ID == ""
}

// PaymentStatus trạng thái thanh toán ba giá trị: Unset (legacy), PENDING, PAID
type PaymentStatus string

const (
	PaymentUnset   PaymentStatus = ""
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// ParsePaymentStatus chuẩn hoá giá trị lưu trong DB.
// Thiếu field hoặc rỗng là Unset; mọi giá trị lạ khác PAID được coi là PENDING để không hiển thị nhầm.
func ParsePaymentStatus(raw string) PaymentStatus {
	switch v := strings.ToUpper(strings.TrimSpace(raw)); v {
	case "":
		return PaymentUnset
	case string(PaymentPaid):
		return PaymentPaid
	default:
		return PaymentPending
	}
}

// Visible shop được hiển thị công khai: PAID hoặc legacy chưa có trạng thái
func (s PaymentStatus) Visible() bool {
	return s == PaymentPaid || s == PaymentUnset
}

// PaymentMode hình thức thanh toán
type PaymentMode string

const (
	PaymentModeCash PaymentMode = "CASH"
	PaymentModeUPI  PaymentMode = "UPI"
	PaymentModeNone PaymentMode = "NONE"
)

// ParsePaymentMode CASH/UPI, còn lại là NONE
func ParsePaymentMode(raw string) PaymentMode {
	switch v := PaymentMode(strings.ToUpper(strings.TrimSpace(raw))); v {
	case PaymentModeCash, PaymentModeUPI:
		return v
	}
	return PaymentModeNone
}

// PaymentKind loại khoản thanh toán trong lịch sử
type PaymentKind string

const (
	PaymentKindPayment PaymentKind = "PAYMENT"
	PaymentKindRenewal PaymentKind = "RENEWAL"
)

// PaymentEntry một lần thanh toán hoặc gia hạn.
// Chỉ lưu trên bản ghi giữ ledger (bản agent nếu có) để ledger không bị đếm hai lần.
type PaymentEntry struct {
	Kind       PaymentKind `json:"kind" bson:"kind"`
	Plan       PlanTier    `json:"plan" bson:"plan"`
	Amount     int64       `json:"amount" bson:"amount"`
	Commission int64       `json:"commission" bson:"commission"` // Hoa hồng đã ghi có cho agent (0 nếu không có agent)
	Mode       PaymentMode `json:"mode" bson:"mode"`
	ReceiptNo  string      `json:"receiptNo" bson:"receiptNo"`
	PaidAt     int64       `json:"paidAt" bson:"paidAt"`
	Day        string      `json:"day" bson:"day"`           // YYYY-MM-DD theo múi giờ doanh thu
	District   string      `json:"district" bson:"district"` // Đã chuẩn hoá
}

// Location địa chỉ do dịch vụ geocoding cung cấp, lưu nguyên trạng
type Location struct {
	Address  string `json:"address"`
	Area     string `json:"area"`
	City     string `json:"city"`
	District string `json:"district"`
	Pincode  string `json:"pincode"`
}

// ShopRecord bản ghi shop đã chuẩn hoá từ một trong ba store
type ShopRecord struct {
	Ref               Ref            `json:"ref"`
	Name              string         `json:"name"`
	OwnerName         string         `json:"ownerName"`
	CategoryID        string         `json:"categoryId,omitempty"`
	Category          string         `json:"category"`
	Mobile            string         `json:"mobile"`
	Location          Location       `json:"location"`
	Latitude          float64        `json:"latitude"`  // 0 = chưa biết
	Longitude         float64        `json:"longitude"` // 0 = chưa biết
	ImageURL          string         `json:"imageUrl,omitempty"`
	Plan              PlanTier       `json:"plan"`
	PaymentStatus     PaymentStatus  `json:"paymentStatus"`
	PaymentMode       PaymentMode    `json:"paymentMode,omitempty"`
	AmountPaid        int64          `json:"amountPaid"`
	ReceiptNo         string         `json:"receiptNo,omitempty"`
	CreatedAt         int64          `json:"createdAt"`
	LastPaymentDate   int64          `json:"lastPaymentDate,omitempty"`
	PaymentExpiryDate int64          `json:"paymentExpiryDate,omitempty"`
	VisitorCount      int64          `json:"visitorCount"`
	AgentID           string         `json:"agentId,omitempty"`
	MirrorOf          string         `json:"mirrorOf,omitempty"`     // id bản agent gốc nếu đây là bản sao trong collection shops
	PriorityRank      *int           `json:"priorityRank,omitempty"` // Ghi đè thứ hạng của gói
	Rating            float64        `json:"rating"`
	ReviewCount       int64          `json:"reviewCount"`
	PaymentHistory    []PaymentEntry `json:"paymentHistory,omitempty"`
	UpdatedAt         int64          `json:"updatedAt,omitempty"`
}

// CategorySlug slug của danh mục
func (s *ShopRecord) CategorySlug() string {
	return utility.Slugify(s.Category)
}

// IsMirror bản sao trong collection shops của một shop agent
func (s *ShopRecord) IsMirror() bool {
	return s.Ref.Origin == OriginLegacy && s.MirrorOf != ""
}

// MatchKey khoá so khớp tên + chủ + số điện thoại giữa các store
func (s *ShopRecord) MatchKey() string {
	return utility.NormalizeKey(s.Name) + "|" + utility.NormalizeKey(s.OwnerName) + "|" + utility.NormalizeMobile(s.Mobile)
}

// EffectivePriority thứ hạng ghi đè nếu có, ngược lại theo gói
func (s *ShopRecord) EffectivePriority(catalog *PlanCatalog) int {
	if s.PriorityRank != nil {
		return *s.PriorityRank
	}
	return catalog.LookupPlan(s.Plan).PriorityRank
}

// District quận/huyện đã chuẩn hoá dùng làm khoá doanh thu
func (s *ShopRecord) District() string {
	return utility.NormalizeDistrict(utility.FirstNonEmpty(s.Location.District, s.Location.City))
}

// ExpiryFor ngày hết hạn của một lần thanh toán tại paidAt (đúng 365 ngày)
func ExpiryFor(paidAt int64) int64 {
	return utility.AddDays(paidAt, PaymentWindowDays)
}

// Actor người thực hiện thao tác ghi, do tầng xác thực cung cấp
type Actor struct {
	ID   string `json:"actorId"`
	Role Role   `json:"role"`
}

// Role vai trò của actor
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system" // worker / CLI
)

// ParseRole chuẩn hoá vai trò
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleAgent, RoleSystem:
		return r, true
	}
	return "", false
}

// IsPrivileged admin hoặc system
func (a Actor) IsPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// Valid actor có đủ id và vai trò hợp lệ
func (a Actor) Valid() bool {
	_, ok := ParseRole(string(a.Role))
	return ok && strings.TrimSpace(a.ID) != ""
}
