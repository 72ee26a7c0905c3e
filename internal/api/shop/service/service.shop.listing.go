package shopsvc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	basemodels "rupiya_directory/internal/api/base/models"
	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/cache"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/logger"
	"rupiya_directory/internal/utility"

	"github.com/sirupsen/logrus"
)

// SortType kiểu sắp xếp listing
type SortType string

const (
	SortNearby  SortType = "nearby"
	SortPopular SortType = "popular"
	SortRated   SortType = "rated"
)

const (
	DefaultPageSize int64 = 20
	MaxPageSize     int64 = 100

	nearestCacheTTL = 60 * time.Second
)

// ParseSortType rỗng là nearby, giá trị lạ trả về ValidationError
func ParseSortType(raw string) (SortType, error) {
	switch s := SortType(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return SortNearby, nil
	case SortNearby, SortPopular, SortRated:
		return s, nil
	}
	return "", common.NewValidationError("sortType không hợp lệ", map[string]any{"sortType": raw, "allowed": []SortType{SortNearby, SortPopular, SortRated}})
}

// ListQuery tham số listing
type ListQuery struct {
	CategorySlug string
	CategoryID   string
	SortType     string
	UserLat      float64
	UserLon      float64
	Page         int64
	PageSize     int64
}

// ListedShop shop trong listing kèm giá trị đã tính
type ListedShop struct {
	models.ShopRecord
	DistanceKm        float64 `json:"distanceKm"` // 0 khi thiếu toạ độ
	EffectivePriority int     `json:"effectivePriority"`
	CategorySlug      string  `json:"categorySlug"`
}

// PagedResult một trang listing
type PagedResult struct {
	basemodels.PaginateResult[ListedShop]
	Partial       bool            `json:"partial"`
	FailedOrigins []models.Origin `json:"failedOrigins,omitempty"`
}

// CategoryNearest shop gần nhất của một danh mục
type CategoryNearest struct {
	Category    string  `json:"category"`
	Slug        string  `json:"slug"`
	DistanceKm  float64 `json:"distanceKm"`
	HasDistance bool    `json:"hasDistance"` // Có ít nhất một shop biết toạ độ
	Popularity  int64   `json:"popularity"`  // Tổng visitorCount
	ShopCount   int     `json:"shopCount"`
}

// NearestResult kết quả nearest-per-category
type NearestResult struct {
	Categories    map[string]CategoryNearest `json:"categories"`
	Partial       bool                       `json:"partial"`
	FailedOrigins []models.Origin            `json:"failedOrigins,omitempty"`
}

// ListingService tổng hợp listing từ ba store
type ListingService struct {
	repo  *ShopRepository
	cache cache.Cache
	log   *logrus.Entry
}

// NewListingService c có thể nil (không cache)
func NewListingService(repo *ShopRepository, c cache.Cache) *ListingService {
	return &ListingService{repo: repo, cache: c, log: logger.WithModule("shop_listing")}
}

// List lấy shop hiển thị, sắp xếp theo sortType và phân trang.
// Thứ tự là toàn phần: sau các tiêu chí của sortType luôn so (origin, id).
func (s *ListingService) List(ctx context.Context, q ListQuery) (PagedResult, error) {
	sortType, err := ParseSortType(q.SortType)
	if err != nil {
		return PagedResult{}, err
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	cq := CategoryQuery{ID: strings.TrimSpace(q.CategoryID), Slug: utility.Slugify(q.CategorySlug)}
	res := s.repo.FindByCategory(ctx, cq, PaymentVisible)
	if len(res.FailedOrigins) > 0 && len(res.FailedOrigins) >= len(s.repo.stores) {
		return PagedResult{}, res.Err()
	}

	records := dedupeMirrors(res.Records)
	listed := make([]ListedShop, 0, len(records))
	for _, rec := range records {
		listed = append(listed, ListedShop{
			ShopRecord:        rec,
			DistanceKm:        utility.DistanceKm(q.UserLat, q.UserLon, rec.Latitude, rec.Longitude),
			EffectivePriority: rec.EffectivePriority(s.repo.catalog),
			CategorySlug:      rec.CategorySlug(),
		})
	}
	SortListed(listed, sortType)

	return PagedResult{
		PaginateResult: basemodels.Paginate(listed, page, size),
		Partial:        res.Partial(),
		FailedOrigins:  res.FailedOrigins,
	}, nil
}

// SortListed sắp xếp theo sortType.
// nearby: khoảng cách tăng, rồi priority giảm. popular: visitorCount giảm, rồi priority giảm.
// rated: rating giảm, reviewCount giảm, rồi priority giảm.
func SortListed(list []ListedShop, sortType SortType) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := &list[i], &list[j]
		switch sortType {
		case SortPopular:
			if a.VisitorCount != b.VisitorCount {
				return a.VisitorCount > b.VisitorCount
			}
		case SortRated:
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
			if a.ReviewCount != b.ReviewCount {
				return a.ReviewCount > b.ReviewCount
			}
		default:
			if a.DistanceKm != b.DistanceKm {
				return a.DistanceKm < b.DistanceKm
			}
		}
		if a.EffectivePriority != b.EffectivePriority {
			return a.EffectivePriority > b.EffectivePriority
		}
		return refLess(a.Ref, b.Ref)
	})
}

// NearestPerCategory shop gần nhất theo danh mục, cache 60 giây theo toạ độ làm tròn 3 chữ số
func (s *ListingService) NearestPerCategory(ctx context.Context, lat, lon float64) (NearestResult, error) {
	key := fmt.Sprintf("nearest:%.3f:%.3f", lat, lon)
	if s.cache != nil {
		var cached NearestResult
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.WithError(err).Warn("⚠️ [SHOP_LISTING] Đọc cache thất bại")
		}
		if hit {
			return cached, nil
		}
	}

	result, err := s.repo.FindNearestPerCategory(ctx, lat, lon)
	if err != nil {
		return NearestResult{}, err
	}
	if s.cache != nil && !result.Partial {
		if err := s.cache.Set(ctx, key, result, nearestCacheTTL); err != nil {
			s.log.WithError(err).Warn("⚠️ [SHOP_LISTING] Ghi cache thất bại")
		}
	}
	return result, nil
}

// FindNearestPerCategory một lượt qua mọi shop hiển thị: khoảng cách nhỏ nhất (chỉ tính shop biết toạ độ),
// tổng visitorCount và số shop của từng danh mục
func (r *ShopRepository) FindNearestPerCategory(ctx context.Context, lat, lon float64) (NearestResult, error) {
	res := r.FindAll(ctx, ShopFilter{Payment: PaymentVisible})
	if len(res.FailedOrigins) > 0 && len(res.FailedOrigins) >= len(r.stores) {
		return NearestResult{}, res.Err()
	}

	out := NearestResult{Categories: map[string]CategoryNearest{}, Partial: res.Partial(), FailedOrigins: res.FailedOrigins}
	userKnown := utility.HasCoordinates(lat, lon)
	for _, rec := range dedupeMirrors(res.Records) {
		slug := rec.CategorySlug()
		if slug == "" {
			continue
		}
		cur, ok := out.Categories[slug]
		if !ok {
			cur = CategoryNearest{Category: rec.Category, Slug: slug}
		}
		cur.ShopCount++
		cur.Popularity += rec.VisitorCount
		if userKnown && utility.HasCoordinates(rec.Latitude, rec.Longitude) {
			d := utility.DistanceKm(lat, lon, rec.Latitude, rec.Longitude)
			if !cur.HasDistance || d < cur.DistanceKm {
				cur.DistanceKm = d
				cur.HasDistance = true
			}
		}
		out.Categories[slug] = cur
	}
	return out, nil
}

// originPreference bản giữ ledger được ưu tiên khi gộp bản sao
var originPreference = map[models.Origin]int{
	models.OriginAgent:  0,
	models.OriginAdmin:  1,
	models.OriginLegacy: 2,
}

// dedupeMirrors bỏ bản sao của cùng một shop ở nhiều store, giữ nguyên thứ tự.
// Bản legacy trỏ tới bản agent có mặt bị bỏ; các bản khác store trùng đủ tên + chủ + số điện thoại
// được gộp về bản ưu tiên (agent, admin, legacy).
func dedupeMirrors(records []models.ShopRecord) []models.ShopRecord {
	agentIDs := map[string]bool{}
	for _, rec := range records {
		if rec.Ref.Origin == models.OriginAgent {
			agentIDs[rec.Ref.ID] = true
		}
	}

	bestOrigin := map[string]models.Origin{}
	for _, rec := range records {
		if rec.IsMirror() && agentIDs[rec.MirrorOf] {
			continue
		}
		key, ok := fullMatchKey(rec)
		if !ok {
			continue
		}
		if cur, seen := bestOrigin[key]; !seen || originPreference[rec.Ref.Origin] < originPreference[cur] {
			bestOrigin[key] = rec.Ref.Origin
		}
	}

	out := make([]models.ShopRecord, 0, len(records))
	for _, rec := range records {
		if rec.IsMirror() && agentIDs[rec.MirrorOf] {
			continue
		}
		if key, ok := fullMatchKey(rec); ok && bestOrigin[key] != rec.Ref.Origin {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func fullMatchKey(rec models.ShopRecord) (string, bool) {
	if strings.TrimSpace(rec.Name) == "" || strings.TrimSpace(rec.OwnerName) == "" || utility.NormalizeMobile(rec.Mobile) == "" {
		return "", false
	}
	return rec.MatchKey(), true
}
