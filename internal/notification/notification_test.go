package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

type recorder struct {
	mu    sync.Mutex
	calls []PaymentConfirmation
	err   error
}

func (r *recorder) SendPaymentConfirmation(_ context.Context, p PaymentConfirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, p)
	return r.err
}

func samplePayment() PaymentConfirmation {
	return PaymentConfirmation{
		Event:     EventPayment,
		ShopRef:   "agent:abc",
		ShopName:  "Sharma Kirana",
		OwnerName: "Ravi Sharma",
		Plan:      "BASIC",
		Amount:    100,
		Mode:      "CASH",
		ReceiptNo: "RCP-20240101-ABCDEF12",
		PaidAt:    1704067200000,
		AgentID:   "agent-1",
	}
}

func TestEmailNotifier_BuildMessage(t *testing.T) {
	n := NewEmailNotifierWithSender(EmailConfig{Host: "smtp", FromEmail: "noreply@rupiya.in", FromName: "Rupiya", To: "ops@rupiya.in"}, &fakeSender{})

	msg, err := n.BuildMessage(samplePayment())
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@rupiya.in"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Rupiya <noreply@rupiya.in>"}, msg.GetHeader("From"))
	assert.True(t, strings.Contains(msg.GetHeader("Subject")[0], "RCP-20240101-ABCDEF12"))
}

func TestEmailNotifier_SendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	n := NewEmailNotifierWithSender(EmailConfig{Host: "smtp", FromEmail: "a@b.c", To: "d@e.f"}, sender)

	err := n.SendPaymentConfirmation(context.Background(), samplePayment())
	assert.ErrorContains(t, err, "smtp down")
}

func TestEmailConfig_Enabled(t *testing.T) {
	assert.False(t, EmailConfig{}.Enabled())
	assert.True(t, EmailConfig{Host: "smtp", FromEmail: "a@b.c", To: "d@e.f"}.Enabled())
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("boom")}

	err := Multi{ok, nil, bad}.SendPaymentConfirmation(context.Background(), samplePayment())
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.calls, 1)
	assert.Len(t, bad.calls, 1)
}

func TestRateLimited_PassesThrough(t *testing.T) {
	rec := &recorder{}
	n := NewRateLimited(rec, 100)

	for i := 0; i < 3; i++ {
		require.NoError(t, n.SendPaymentConfirmation(context.Background(), samplePayment()))
	}
	assert.Len(t, rec.calls, 3)
}

func TestRateLimited_CancelledContext(t *testing.T) {
	rec := &recorder{}
	n := NewRateLimited(rec, 0.001)
	ctx := context.Background()
	require.NoError(t, n.SendPaymentConfirmation(ctx, samplePayment()))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, n.SendPaymentConfirmation(cancelled, samplePayment()))
	assert.Len(t, rec.calls, 1)
}
