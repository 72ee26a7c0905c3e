// Package models chứa các model thuộc domain Shop: bản ghi shop chuẩn hoá, bảng gói,
// bản ghi chờ gia hạn, agent và doanh thu theo quận/huyện.
package models

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"rupiya_directory/internal/common"
	"rupiya_directory/internal/utility"

	"gopkg.in/yaml.v3"
)

// PlanTier gói đăng ký của shop
type PlanTier string

const (
	PlanBasic    PlanTier = "BASIC"
	PlanPremium  PlanTier = "PREMIUM"
	PlanFeatured PlanTier = "FEATURED"
	PlanLeftBar  PlanTier = "LEFT_BAR"
	PlanRightBar PlanTier = "RIGHT_BAR"
	PlanBanner   PlanTier = "BANNER"
	PlanHero     PlanTier = "HERO"
)

// DisplaySlot vị trí hiển thị mà một gói được phép chiếm
type DisplaySlot string

const (
	SlotListing    DisplaySlot = "listing"
	SlotTopSlider  DisplaySlot = "top_slider"
	SlotHomeBanner DisplaySlot = "home_banner"
	SlotLeftRail   DisplaySlot = "left_rail"
	SlotRightRail  DisplaySlot = "right_rail"
	SlotHero       DisplaySlot = "hero"
)

// Plan giá, thứ hạng ưu tiên, tỉ lệ hoa hồng và vị trí hiển thị của một gói
type Plan struct {
	Tier           PlanTier      `json:"tier" yaml:"tier"`
	Price          int64         `json:"price" yaml:"price"`                   // ₹
	PriorityRank   int           `json:"priorityRank" yaml:"priorityRank"`     // Càng lớn càng ưu tiên
	CommissionRate float64       `json:"commissionRate" yaml:"commissionRate"` // 0.20 = 20%
	EligibleSlots  []DisplaySlot `json:"eligibleSlots" yaml:"eligibleSlots"`
}

// DefaultCommissionRate tỉ lệ hoa hồng của gói BASIC
const DefaultCommissionRate = 0.20

var defaultPlans = []Plan{
	{Tier: PlanBasic, Price: 100, PriorityRank: 1, CommissionRate: 0.20, EligibleSlots: []DisplaySlot{SlotListing}},
	{Tier: PlanPremium, Price: 499, PriorityRank: 2, CommissionRate: 0.20, EligibleSlots: []DisplaySlot{SlotListing, SlotTopSlider}},
	{Tier: PlanFeatured, Price: 999, PriorityRank: 3, CommissionRate: 0.15, EligibleSlots: []DisplaySlot{SlotListing, SlotTopSlider, SlotHomeBanner}},
	{Tier: PlanLeftBar, Price: 1499, PriorityRank: 4, CommissionRate: 0.15, EligibleSlots: []DisplaySlot{SlotListing, SlotLeftRail}},
	{Tier: PlanRightBar, Price: 1499, PriorityRank: 4, CommissionRate: 0.15, EligibleSlots: []DisplaySlot{SlotListing, SlotRightRail}},
	{Tier: PlanBanner, Price: 2499, PriorityRank: 5, CommissionRate: 0.10, EligibleSlots: []DisplaySlot{SlotListing, SlotHomeBanner, SlotTopSlider}},
	{Tier: PlanHero, Price: 4999, PriorityRank: 6, CommissionRate: 0.10, EligibleSlots: []DisplaySlot{SlotListing, SlotHero, SlotHomeBanner, SlotTopSlider}},
}

// PlanCatalog bảng gói, chỉ đọc sau khi khởi tạo
type PlanCatalog struct {
	plans map[PlanTier]Plan
}

// DefaultPlanCatalog bảng gói mặc định
func DefaultPlanCatalog() *PlanCatalog {
	c := &PlanCatalog{plans: make(map[PlanTier]Plan, len(defaultPlans))}
	for _, p := range defaultPlans {
		p.EligibleSlots = append([]DisplaySlot(nil), p.EligibleSlots...)
		c.plans[p.Tier] = p
	}
	return c
}

// planCatalogFile định dạng file YAML ghi đè bảng gói
type planCatalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadPlanCatalog đọc bảng gói mặc định rồi ghi đè bằng file YAML (nếu path khác rỗng).
// Chỉ các gói đã biết được ghi đè; gói lạ bị từ chối để bảng luôn đủ 7 gói.
func LoadPlanCatalog(path string) (*PlanCatalog, error) {
	c := DefaultPlanCatalog()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog %s: %w", path, err)
	}
	return c.withOverrides(raw)
}

func (c *PlanCatalog) withOverrides(raw []byte) (*PlanCatalog, error) {
	var file planCatalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, common.NewValidationError("File bảng gói không đúng định dạng YAML", err.Error())
	}
	for _, p := range file.Plans {
		tier, err := ParsePlanTier(string(p.Tier))
		if err != nil {
			return nil, err
		}
		if p.Price <= 0 || p.PriorityRank <= 0 || p.CommissionRate < 0 || p.CommissionRate > 1 {
			return nil, common.NewValidationError("Giá trị gói không hợp lệ", map[string]any{"tier": tier})
		}
		p.Tier = tier
		if len(p.EligibleSlots) == 0 {
			p.EligibleSlots = c.plans[tier].EligibleSlots
		}
		c.plans[tier] = p
	}
	return c, nil
}

// ParsePlanTier chuẩn hoá và kiểm tra tên gói. Chuỗi rỗng là BASIC.
func ParsePlanTier(raw string) (PlanTier, error) {
	v := PlanTier(strings.ToUpper(strings.TrimSpace(raw)))
	if v == "" {
		return PlanBasic, nil
	}
	for _, p := range defaultPlans {
		if p.Tier == v {
			return v, nil
		}
	}
	return "", common.NewValidationError("Gói không hợp lệ", map[string]any{"plan": raw})
}

// LookupPlan trả về thông tin gói, gói lạ dùng giá trị của BASIC
func (c *PlanCatalog) LookupPlan(tier PlanTier) Plan {
	if p, ok := c.plans[PlanTier(strings.ToUpper(strings.TrimSpace(string(tier))))]; ok {
		return p
	}
	return c.plans[PlanBasic]
}

// Commission hoa hồng agent cho một khoản thanh toán: round(amount * rate(plan))
func (c *PlanCatalog) Commission(tier PlanTier, amount int64) int64 {
	return utility.PercentOf(amount, c.LookupPlan(tier).CommissionRate)
}

// CanOccupy gói có được hiển thị ở vị trí slot không
func (c *PlanCatalog) CanOccupy(tier PlanTier, slot DisplaySlot) bool {
	for _, s := range c.LookupPlan(tier).EligibleSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// Plans danh sách gói theo thứ hạng tăng dần
func (c *PlanCatalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityRank != out[j].PriorityRank {
			return out[i].PriorityRank < out[j].PriorityRank
		}
		return out[i].Tier < out[j].Tier
	})
	return out
}
