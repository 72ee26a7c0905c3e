package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditEntry một bản ghi audit cho thao tác làm thay đổi tiền (thanh toán, gia hạn, khấu trừ)
type AuditEntry struct {
	Action       string         `json:"action"`        // Tên hành động (vd: "shop_mark_paid", "shop_renew")
	ActorID      string         `json:"actor_id"`      // Người thực hiện
	ActorRole    string         `json:"actor_role"`    // Vai trò (admin, agent, system)
	ResourceID   string         `json:"resource_id"`   // ID tài nguyên bị ảnh hưởng
	ResourceType string         `json:"resource_type"` // Loại tài nguyên (shop, renewal_candidate, agent)
	Details      map[string]any `json:"details"`       // Chi tiết bổ sung
}

// LogAudit ghi một bản ghi audit
func LogAudit(a AuditEntry) {
	if a.Details == nil {
		a.Details = map[string]any{}
	}
	GetAuditLogger().WithFields(logrus.Fields{
		"action":        a.Action,
		"actor_id":      a.ActorID,
		"actor_role":    a.ActorRole,
		"resource_id":   a.ResourceID,
		"resource_type": a.ResourceType,
		"details":       a.Details,
		"audit_time":    time.Now().UnixMilli(),
	}).Info("Audit log")
}
