package notification

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// EmailConfig cấu hình SMTP
type EmailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	To        string // Hộp thư vận hành nhận biên nhận
}

// Enabled đủ cấu hình để gửi
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.FromEmail != "" && c.To != ""
}

// Sender gửi một message, mặc định là gomail.Dialer
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`<h3>{{.Subject}}</h3>
<table>
<tr><td>Shop</td><td>{{.ShopName}} ({{.ShopRef}})</td></tr>
<tr><td>Chủ shop</td><td>{{.OwnerName}} - {{.Mobile}}</td></tr>
<tr><td>Gói</td><td>{{.Plan}}</td></tr>
<tr><td>Số tiền</td><td>₹{{.Amount}} ({{.Mode}})</td></tr>
<tr><td>Biên nhận</td><td>{{.ReceiptNo}}</td></tr>
<tr><td>Thanh toán lúc</td><td>{{.PaidAt}}</td></tr>
<tr><td>Hết hạn</td><td>{{.ExpiresAt}}</td></tr>
{{if .AgentID}}<tr><td>Agent</td><td>{{.AgentID}} (hoa hồng ₹{{.Commission}})</td></tr>{{end}}
</table>`))

// EmailNotifier gửi biên nhận qua SMTP bằng gomail
type EmailNotifier struct {
	cfg    EmailConfig
	sender Sender
}

// NewEmailNotifier tạo EmailNotifier dùng gomail.Dialer
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)}
}

// NewEmailNotifierWithSender dùng sender cho trước
func NewEmailNotifierWithSender(cfg EmailConfig, sender Sender) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, sender: sender}
}

// BuildMessage dựng email biên nhận
func (n *EmailNotifier) BuildMessage(p PaymentConfirmation) (*gomail.Message, error) {
	view := struct {
		PaymentConfirmation
		Subject   string
		PaidAt    string
		ExpiresAt string
	}{
		PaymentConfirmation: p,
		Subject:             p.Subject(),
		PaidAt:              formatMillis(p.PaidAt),
		ExpiresAt:           formatMillis(p.ExpiresAt),
	}
	var body strings.Builder
	if err := receiptTemplate.Execute(&body, view); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}

	msg := gomail.NewMessage()
	from := n.cfg.FromEmail
	if n.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.cfg.FromName, n.cfg.FromEmail)
	}
	msg.SetHeader("From", from)
	msg.SetHeader("To", n.cfg.To)
	msg.SetHeader("Subject", p.Subject())
	msg.SetBody("text/html", body.String())
	return msg, nil
}

// SendPaymentConfirmation gửi email
func (n *EmailNotifier) SendPaymentConfirmation(ctx context.Context, p PaymentConfirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := n.BuildMessage(p)
	if err != nil {
		return err
	}
	if err := n.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email %s: %w", p.ReceiptNo, err)
	}
	return nil
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

var _ Notifier = (*EmailNotifier)(nil)
