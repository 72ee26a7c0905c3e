// Package models chứa các kiểu dùng chung cho layer base (kết quả phân trang).
package models

// PaginateResult đại diện cho kết quả phân trang
type PaginateResult[T any] struct {
	// Trang hiện tại (bắt đầu từ 1)
	Page int64 `json:"page" bson:"page"`
	// Số lượng mục trên mỗi trang
	Limit int64 `json:"limit" bson:"limit"`
	// Số lượng mục trong trang hiện tại
	ItemCount int64 `json:"itemCount" bson:"itemCount"`
	// Danh sách các mục
	Items []T `json:"items" bson:"items"`
	// Tổng số mục
	Total int64 `json:"total" bson:"total"`
	// Tổng số trang
	TotalPage int64 `json:"totalPage" bson:"totalPage"`
	// Còn trang sau: page < ceil(total/limit)
	HasMore bool `json:"hasMore" bson:"hasMore"`
}

// Paginate cắt một trang từ danh sách đã sắp xếp.
// page < 1 coi là 1; limit phải > 0.
func Paginate[T any](all []T, page, limit int64) PaginateResult[T] {
	if page < 1 {
		page = 1
	}
	total := int64(len(all))
	totalPage := int64(0)
	if limit > 0 {
		totalPage = (total + limit - 1) / limit
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	items := make([]T, 0, end-start)
	items = append(items, all[start:end]...)
	return PaginateResult[T]{
		Page:      page,
		Limit:     limit,
		ItemCount: int64(len(items)),
		Items:     items,
		Total:     total,
		TotalPage: totalPage,
		HasMore:   page < totalPage,
	}
}
