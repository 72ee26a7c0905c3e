// Package notification gửi xác nhận thanh toán / gia hạn shop. Lỗi gửi không ảnh hưởng thao tác đã commit.
package notification

import (
	"context"
	"errors"
	"fmt"

	"rupiya_directory/internal/logger"

	"github.com/sirupsen/logrus"
)

// Event loại thông báo
type Event string

const (
	EventPayment Event = "payment"
	EventRenewal Event = "renewal"
)

// Severity mức độ
const (
	SeverityInfo = "info"
	SeverityHigh = "high"
)

// PaymentConfirmation nội dung xác nhận thanh toán
type PaymentConfirmation struct {
	Event      Event  `json:"event"`
	ShopRef    string `json:"shopRef"` // "origin:id"
	ShopName   string `json:"shopName"`
	OwnerName  string `json:"ownerName"`
	Mobile     string `json:"mobile"`
	Plan       string `json:"plan"`
	Amount     int64  `json:"amount"`
	Commission int64  `json:"commission"`
	Mode       string `json:"mode"`
	ReceiptNo  string `json:"receiptNo"`
	PaidAt     int64  `json:"paidAt"`
	ExpiresAt  int64  `json:"expiresAt"`
	AgentID    string `json:"agentId,omitempty"`
	ActorID    string `json:"actorId"`
}

// Subject tiêu đề thông báo
func (p PaymentConfirmation) Subject() string {
	if p.Event == EventRenewal {
		return fmt.Sprintf("[Rupiya] Gia hạn %s - %s", p.ShopName, p.ReceiptNo)
	}
	return fmt.Sprintf("[Rupiya] Thanh toán %s - %s", p.ShopName, p.ReceiptNo)
}

// Notifier kênh gửi thông báo
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, p PaymentConfirmation) error
}

// LogNotifier ghi thông báo vào app log
type LogNotifier struct {
	log *logrus.Entry
}

// NewLogNotifier tạo LogNotifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.WithModule("notification")}
}

// SendPaymentConfirmation ghi log
func (n *LogNotifier) SendPaymentConfirmation(_ context.Context, p PaymentConfirmation) error {
	n.log.WithFields(logrus.Fields{
		"event":     p.Event,
		"shop":      p.ShopRef,
		"plan":      p.Plan,
		"amount":    p.Amount,
		"receiptNo": p.ReceiptNo,
		"agentId":   p.AgentID,
		"severity":  SeverityInfo,
	}).Info("📨 [NOTIFY] " + p.Subject())
	return nil
}

// Multi gửi qua nhiều kênh, gom lỗi
type Multi []Notifier

// SendPaymentConfirmation gửi tuần tự qua từng kênh
func (m Multi) SendPaymentConfirmation(ctx context.Context, p PaymentConfirmation) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.SendPaymentConfirmation(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
