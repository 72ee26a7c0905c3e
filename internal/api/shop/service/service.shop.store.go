// Package shopsvc chứa engine đối soát và vòng đời shop: adapter ba store, listing,
// vòng đời thanh toán / hết hạn / gia hạn và ledger hoa hồng, doanh thu.
package shopsvc

import (
	"context"
	"regexp"
	"strings"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/utility"
)

// PaymentFilter lọc theo trạng thái thanh toán
type PaymentFilter int

const (
	PaymentAny         PaymentFilter = iota // Không lọc
	PaymentVisible                          // PAID hoặc legacy chưa có trạng thái
	PaymentOnlyPaid                         // Chỉ PAID
	PaymentOnlyPending                      // Có trạng thái nhưng chưa PAID
)

// CategoryQuery danh mục theo id hoặc slug tên
type CategoryQuery struct {
	ID   string
	Slug string
}

// IsZero không lọc danh mục
func (q CategoryQuery) IsZero() bool {
	return q.ID == "" && q.Slug == ""
}

// DayRange một ngày doanh thu và khoảng thời gian [Start, End) tương ứng (ms)
type DayRange struct {
	Day   string
	Start int64
	End   int64
}

// ShopFilter điều kiện lọc logic, mỗi store tự dịch sang tên field của mình
type ShopFilter struct {
	IDs           []string
	Category      CategoryQuery
	Payment       PaymentFilter
	AgentID       string
	ExpiredBefore int64 // PAID và 0 < paymentExpiryDate < ExpiredBefore
	Name          string
	MirrorOf      string
	PaidOnDay     *DayRange // Có khoản thanh toán trong ngày (lịch sử, hoặc lastPaymentDate với bản ghi cũ không có lịch sử)
}

// Matches áp điều kiện lọc trên bản ghi đã chuẩn hoá.
// Listing dùng lại như chốt chặn cuối cho bộ lọc hiển thị.
func (f ShopFilter) Matches(rec models.ShopRecord) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == rec.Ref.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Category.ID != "" && rec.CategoryID != f.Category.ID {
		return false
	}
	if f.Category.Slug != "" && rec.CategorySlug() != f.Category.Slug {
		return false
	}
	switch f.Payment {
	case PaymentVisible:
		if !rec.PaymentStatus.Visible() {
			return false
		}
	case PaymentOnlyPaid:
		if rec.PaymentStatus != models.PaymentPaid {
			return false
		}
	case PaymentOnlyPending:
		if rec.PaymentStatus != models.PaymentPending {
			return false
		}
	}
	if f.AgentID != "" && rec.AgentID != f.AgentID {
		return false
	}
	if f.ExpiredBefore > 0 {
		if rec.PaymentStatus != models.PaymentPaid || rec.PaymentExpiryDate <= 0 || rec.PaymentExpiryDate >= f.ExpiredBefore {
			return false
		}
	}
	if f.Name != "" && utility.NormalizeKey(rec.Name) != utility.NormalizeKey(f.Name) {
		return false
	}
	if f.MirrorOf != "" && rec.MirrorOf != f.MirrorOf {
		return false
	}
	if f.PaidOnDay != nil && !paidOnDay(rec, *f.PaidOnDay) {
		return false
	}
	return true
}

func paidOnDay(rec models.ShopRecord, d DayRange) bool {
	if len(rec.PaymentHistory) == 0 {
		return rec.PaymentStatus == models.PaymentPaid && rec.LastPaymentDate >= d.Start && rec.LastPaymentDate < d.End
	}
	for _, e := range rec.PaymentHistory {
		if e.Day == d.Day {
			return true
		}
	}
	return false
}

// PaymentWrite dữ liệu ghi trạng thái PAID lên một bản ghi
type PaymentWrite struct {
	Mode      models.PaymentMode
	ReceiptNo string
	Amount    int64
	PaidAt    int64
	Entry     *models.PaymentEntry // Thêm vào paymentHistory nếu khác nil
	// Chỉ ghi khi bản ghi chưa PAID, ngược lại trả về ErrInvalidState
	RequireUnpaid bool
}

// ShopStore một collection shop với tên field riêng
type ShopStore interface {
	Origin() models.Origin
	Find(ctx context.Context, f ShopFilter) ([]models.ShopRecord, error)
	Get(ctx context.Context, id string) (models.ShopRecord, error)
	Snapshot(ctx context.Context, id string) (models.ShopSnapshot, error)
	Insert(ctx context.Context, rec models.ShopRecord) (models.ShopRecord, error)
	// Restore chèn lại bản ghi dưới id gốc, giữ các field không thuộc ShopRecord từ snapshot
	Restore(ctx context.Context, snap models.ShopSnapshot, rec models.ShopRecord) (models.ShopRecord, error)
	ApplyPayment(ctx context.Context, id string, w PaymentWrite) (models.ShopRecord, error)
	IncrementVisitors(ctx context.Context, id string, delta int64) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// slugPattern regex khớp tên danh mục có slug cho trước: các từ cách nhau bởi ký tự không phải chữ/số
func slugPattern(slug string) string {
	parts := strings.Split(slug, "-")
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			quoted = append(quoted, regexp.QuoteMeta(p))
		}
	}
	return `^[^a-zA-Z0-9]*` + strings.Join(quoted, `[^a-zA-Z0-9]+`) + `[^a-zA-Z0-9]*$`
}

// namePattern regex khớp tên không phân biệt khoảng trắng thừa
func namePattern(name string) string {
	fields := strings.Fields(name)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, regexp.QuoteMeta(f))
	}
	return `^\s*` + strings.Join(quoted, `\s+`) + `\s*$`
}
