package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// CandidateState trạng thái của bản ghi chờ gia hạn
type CandidateState string

const (
	CandidatePendingRenewal CandidateState = "PENDING_RENEWAL"
	CandidateRenewing       CandidateState = "RENEWING" // Đã được một lần gia hạn nhận xử lý
)

// ShopSnapshot bản chụp đầy đủ của một bản ghi shop trước khi rời khỏi tập live
type ShopSnapshot struct {
	Origin Origin `json:"origin" bson:"origin"`
	ID     string `json:"id" bson:"id"`
	// Document nguyên trạng theo tên field của store gốc
	Document primitive.D `json:"-" bson:"document"`
	// Bản chuẩn hoá để đọc nhanh
	Record ShopRecord `json:"record" bson:"-"`
}

// RenewalCandidate shop đã hết hạn nằm trong khu vực chờ gia hạn (lưu trong renewal_candidates)
type RenewalCandidate struct {
	ID           primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Primary      ShopSnapshot       `json:"primary" bson:"primary"`                   // Bản giữ ledger (bản agent nếu có)
	Mirror       *ShopSnapshot      `json:"mirror,omitempty" bson:"mirror,omitempty"` // Bản sao ở store khác, nếu có
	MainRef      *Ref               `json:"mainRef,omitempty" bson:"mainRef,omitempty"`
	AgentRef     *Ref               `json:"agentRef,omitempty" bson:"agentRef,omitempty"`
	OriginalKeys []string           `json:"originalKeys" bson:"originalKeys"` // "origin:id" của mọi bản ghi gốc, unique index
	AgentID      string             `json:"agentId,omitempty" bson:"agentId,omitempty"`
	ShopName     string             `json:"shopName" bson:"shopName"`
	Plan         PlanTier           `json:"plan" bson:"plan"`
	State        CandidateState     `json:"state" bson:"state"`
	ExpiredAt    int64              `json:"expiredAt" bson:"expiredAt"` // paymentExpiryDate của bản giữ ledger
	SweptAt      int64              `json:"sweptAt" bson:"sweptAt"`
	ClaimedAt    int64              `json:"claimedAt,omitempty" bson:"claimedAt,omitempty"`
	CreatedAt    int64              `json:"createdAt" bson:"createdAt"`
}

// Snapshots bản chính rồi bản sao
func (c *RenewalCandidate) Snapshots() []ShopSnapshot {
	out := []ShopSnapshot{c.Primary}
	if c.Mirror != nil {
		out = append(out, *c.Mirror)
	}
	return out
}

// OwnedBy candidate thuộc agent này
func (c *RenewalCandidate) OwnedBy(agentID string) bool {
	return c.AgentID != "" && c.AgentID == agentID
}
