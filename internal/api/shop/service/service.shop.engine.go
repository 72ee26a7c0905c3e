package shopsvc

import (
	"context"
	"time"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/logger"
	"rupiya_directory/internal/notification"
	"rupiya_directory/internal/utility"

	"github.com/sirupsen/logrus"
)

const (
	defaultStaleClaimAfter = 15 * time.Minute
	notifyTimeout          = 30 * time.Second
)

// EngineOptions tuỳ chọn của lifecycle engine
type EngineOptions struct {
	MirrorAgentShops     bool             // Shop agent tạo được sao sang collection shops
	DefaultRenewalAmount int64            // Số tiền gia hạn khi không nhập (₹)
	StaleClaimAfter      time.Duration    // RENEWING quá thời gian này bị coi là treo
	Now                  func() time.Time // Đồng hồ, thay được trong test
}

// Engine vòng đời shop: tạo, thanh toán, hết hạn, gia hạn
type Engine struct {
	repo     *ShopRepository
	holding  HoldingStore
	ledger   *LedgerService
	notifier notification.Notifier
	opts     EngineOptions
	log      *logrus.Entry
}

// NewEngine tạo engine. notifier nil dùng LogNotifier.
func NewEngine(repo *ShopRepository, holding HoldingStore, ledger *LedgerService, notifier notification.Notifier, opts EngineOptions) *Engine {
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}
	if opts.DefaultRenewalAmount <= 0 {
		opts.DefaultRenewalAmount = repo.catalog.LookupPlan(models.PlanBasic).Price
	}
	if opts.StaleClaimAfter <= 0 {
		opts.StaleClaimAfter = defaultStaleClaimAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		repo:     repo,
		holding:  holding,
		ledger:   ledger,
		notifier: notifier,
		opts:     opts,
		log:      logger.WithModule("shop_lifecycle"),
	}
}

// Repository repository dùng chung
func (e *Engine) Repository() *ShopRepository {
	return e.repo
}

// Ledger ledger dùng chung
func (e *Engine) Ledger() *LedgerService {
	return e.ledger
}

func (e *Engine) now() time.Time {
	return e.opts.Now()
}

func requireActor(actor models.Actor) error {
	if !actor.Valid() {
		return common.ErrActorMissing
	}
	return nil
}

func requirePrivileged(actor models.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsPrivileged() {
		return common.ErrUnauthorized
	}
	return nil
}

// authorizeShop admin/system thao tác mọi shop, agent chỉ thao tác shop của mình
func authorizeShop(actor models.Actor, rec models.ShopRecord) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.IsPrivileged() {
		return nil
	}
	if actor.Role == models.RoleAgent && rec.AgentID != "" && rec.AgentID == actor.ID {
		return nil
	}
	return common.ErrUnauthorized
}

// notify gửi xác nhận trong goroutine riêng, lỗi chỉ được ghi log
func (e *Engine) notify(p notification.PaymentConfirmation) {
	go utility.GoProtect(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := e.notifier.SendPaymentConfirmation(ctx, p); err != nil {
			e.log.WithError(err).WithField("shop", p.ShopRef).Warn("⚠️ [SHOP_LIFECYCLE] Gửi thông báo thất bại")
		}
	})
}

func confirmationFor(event notification.Event, actor models.Actor, rec models.ShopRecord, entry models.PaymentEntry, agentID string) notification.PaymentConfirmation {
	return notification.PaymentConfirmation{
		Event:      event,
		ShopRef:    rec.Ref.Key(),
		ShopName:   rec.Name,
		OwnerName:  rec.OwnerName,
		Mobile:     rec.Mobile,
		Plan:       string(entry.Plan),
		Amount:     entry.Amount,
		Commission: entry.Commission,
		Mode:       string(entry.Mode),
		ReceiptNo:  entry.ReceiptNo,
		PaidAt:     entry.PaidAt,
		ExpiresAt:  models.ExpiryFor(entry.PaidAt),
		AgentID:    agentID,
		ActorID:    actor.ID,
	}
}

func audit(action string, actor models.Actor, resourceType, resourceID string, details map[string]any) {
	logger.LogAudit(logger.AuditEntry{
		Action:       action,
		ActorID:      actor.ID,
		ActorRole:    string(actor.Role),
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Details:      details,
	})
}
