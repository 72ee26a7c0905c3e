package notification

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited giới hạn số thông báo gửi mỗi giây
type RateLimited struct {
	next    Notifier
	limiter *rate.Limiter
}

// NewRateLimited perSecond <= 0 là không giới hạn
func NewRateLimited(next Notifier, perSecond float64) *RateLimited {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// SendPaymentConfirmation chờ lượt rồi gửi
func (r *RateLimited) SendPaymentConfirmation(ctx context.Context, p PaymentConfirmation) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify rate limit: %w", err)
	}
	return r.next.SendPaymentConfirmation(ctx, p)
}

var _ Notifier = (*RateLimited)(nil)
