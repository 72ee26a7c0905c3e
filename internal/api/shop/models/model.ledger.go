package models

// Agent tổng số shop và hoa hồng cache của agent (collection agents).
// Luôn tính lại được từ các bản ghi shop, không phải nguồn sự thật.
type Agent struct {
	ID            string `json:"id" bson:"_id"`
	Name          string `json:"name,omitempty" bson:"name,omitempty"`
	Mobile        string `json:"mobile,omitempty" bson:"mobile,omitempty"`
	TotalShops    int64  `json:"totalShops" bson:"totalShops"`
	TotalEarnings int64  `json:"totalEarnings" bson:"totalEarnings"`
	Version       int64  `json:"version" bson:"version"` // Tăng ở mỗi lần ghi, dùng cho compare-and-set
	UpdatedAt     int64  `json:"updatedAt" bson:"updatedAt"`
}

// AgentTotals cặp tổng của agent
type AgentTotals struct {
	TotalShops    int64 `json:"totalShops"`
	TotalEarnings int64 `json:"totalEarnings"`
}

// Totals lấy cặp tổng
func (a *Agent) Totals() AgentTotals {
	return AgentTotals{TotalShops: a.TotalShops, TotalEarnings: a.TotalEarnings}
}

// CommissionEvent một lần ghi có hoa hồng (không lưu riêng)
type CommissionEvent struct {
	Shop       Ref      `json:"shop"`
	AgentID    string   `json:"agentId"`
	Plan       PlanTier `json:"plan"`
	Amount     int64    `json:"amount"`
	Commission int64    `json:"commission"`
}

// PlanRevenue số lượt và tổng tiền của một gói trong ngày
type PlanRevenue struct {
	Count  int64 `json:"count" bson:"count"`
	Amount int64 `json:"amount" bson:"amount"`
}

// RevenueEntry doanh thu theo (quận/huyện, ngày), collection district_revenue
type RevenueEntry struct {
	District             string                   `json:"district" bson:"district"`
	Day                  string                   `json:"day" bson:"day"` // YYYY-MM-DD
	Plans                map[PlanTier]PlanRevenue `json:"plans" bson:"plans"`
	TotalRevenue         int64                    `json:"totalRevenue" bson:"totalRevenue"`
	TotalAgentCommission int64                    `json:"totalAgentCommission" bson:"totalAgentCommission"`
	NetRevenue           int64                    `json:"netRevenue" bson:"netRevenue"` // totalRevenue - totalAgentCommission
	UpdatedAt            int64                    `json:"updatedAt" bson:"updatedAt"`
}

// RevenueKey khoá của RevenueEntry
type RevenueKey struct {
	District string `json:"district" bson:"district"`
	Day      string `json:"day" bson:"day"`
}

// ReconcileReason lý do đưa vào hàng đợi đối soát
type ReconcileReason string

const (
	ReconcileAgentCommission ReconcileReason = "agent_commission"
	ReconcileAgentShopCount  ReconcileReason = "agent_shop_count"
	ReconcileRevenue         ReconcileReason = "district_revenue"
)

// LedgerReconcileTask việc đối soát ledger còn chờ (collection ledger_reconcile_tasks).
// Được ghi khi một cập nhật ledger best-effort thất bại; worker xử lý bằng cách tính lại.
type LedgerReconcileTask struct {
	ID          string          `json:"id" bson:"_id,omitempty"`
	Reason      ReconcileReason `json:"reason" bson:"reason"`
	AgentID     string          `json:"agentId,omitempty" bson:"agentId,omitempty"`
	District    string          `json:"district,omitempty" bson:"district,omitempty"`
	Day         string          `json:"day,omitempty" bson:"day,omitempty"`
	Shop        *Ref            `json:"shop,omitempty" bson:"shop,omitempty"`
	LastError   string          `json:"lastError,omitempty" bson:"lastError,omitempty"`
	Attempts    int             `json:"attempts" bson:"attempts"`
	CreatedAt   int64           `json:"createdAt" bson:"createdAt"`
	ProcessedAt int64           `json:"processedAt" bson:"processedAt"` // 0 = chưa xử lý
}
