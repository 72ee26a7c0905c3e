// Package shopdto chứa DTO cho domain Shop: tạo shop, ghi nhận thanh toán, gia hạn, xoá hàng loạt và truy vấn listing.
package shopdto

import "rupiya_directory/internal/api/shop/models"

// ShopCreateInput dữ liệu tạo shop (trạng thái PENDING).
// Ảnh, toạ độ và địa chỉ do dịch vụ geocoding cung cấp, được lưu nguyên trạng.
type ShopCreateInput struct {
	Name       string  `json:"name" validate:"required,max=120,no_xss"`
	OwnerName  string  `json:"ownerName" validate:"required,max=120,no_xss"`
	Mobile     string  `json:"mobile" validate:"required,mobile_in"`
	CategoryID string  `json:"categoryId,omitempty" validate:"omitempty,max=64"`
	Category   string  `json:"category" validate:"required,max=80,no_xss"`
	Address    string  `json:"address,omitempty" validate:"omitempty,max=300,no_xss"`
	Area       string  `json:"area,omitempty" validate:"omitempty,max=120"`
	City       string  `json:"city,omitempty" validate:"omitempty,max=120"`
	District   string  `json:"district" validate:"required,max=120"`
	Pincode    string  `json:"pincode" validate:"required,pincode"`
	Latitude   float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude  float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	ImageURL   string  `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Plan       string  `json:"plan,omitempty" validate:"plan_tier"`
}

// PaymentInput thông tin thanh toán do người thu xác nhận (không qua cổng thanh toán).
// Amount = 0 dùng giá gói (thanh toán) hoặc số tiền gia hạn mặc định (gia hạn).
type PaymentInput struct {
	Mode      string `json:"mode" validate:"required,payment_mode"`
	ReceiptNo string `json:"receiptNo,omitempty" validate:"omitempty,max=64,no_xss"`
	Amount    int64  `json:"amount,omitempty" validate:"gte=0,lte=1000000"`
}

// ShopListQuery query cho GET /shops
type ShopListQuery struct {
	Category   string  `query:"category"`
	CategoryID string  `query:"categoryId"`
	SortType   string  `query:"sortType"`
	Lat        float64 `query:"lat"`
	Lng        float64 `query:"lng"`
	Page       int64   `query:"page"`
	PageSize   int64   `query:"pageSize"`
}

// NearestQuery query cho GET /shops/nearest
type NearestQuery struct {
	Lat float64 `query:"lat"`
	Lng float64 `query:"lng"`
}

// ShopRefInput tham chiếu shop trong body
type ShopRefInput struct {
	Origin string `json:"origin" validate:"required,oneof=legacy admin agent"`
	ID     string `json:"id" validate:"required,max=64"`
}

// DeleteShopsInput body cho POST /shops/delete-many.
// All = true xoá toàn bộ shop của cả ba store (Refs bị bỏ qua).
type DeleteShopsInput struct {
	Refs []ShopRefInput `json:"refs" validate:"required_without=All,dive"`
	All  bool           `json:"all"`
}

// DeductInput body cho POST /ledger/deduct: chỉ khấu trừ ledger, không xoá shop
type DeductInput struct {
	Refs []ShopRefInput `json:"refs" validate:"required,min=1,dive"`
}

// RecomputeRevenueInput body cho POST /revenue/recompute
type RecomputeRevenueInput struct {
	District string `json:"district" validate:"required,max=120"`
	Day      string `json:"day" validate:"required,datetime=2006-01-02"`
}

// SweepInput body cho POST /renewals/sweep. Now = 0 dùng thời điểm hiện tại.
type SweepInput struct {
	Now int64 `json:"now,omitempty" validate:"gte=0"`
}

// CanRenewResult kết quả kiểm tra quyền gia hạn
type CanRenewResult struct {
	CandidateID string `json:"candidateId"`
	AgentID     string `json:"agentId,omitempty"`
	CanRenew    bool   `json:"canRenew"`
}

// ToRefs chuyển danh sách ref đầu vào
func ToRefs(in []ShopRefInput) ([]models.Ref, error) {
	refs := make([]models.Ref, 0, len(in))
	for _, r := range in {
		origin, err := models.ParseOrigin(r.Origin)
		if err != nil {
			return nil, err
		}
		refs = append(refs, models.Ref{Origin: origin, ID: r.ID})
	}
	return refs, nil
}
