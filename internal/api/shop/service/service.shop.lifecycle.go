package shopsvc

import (
	"context"
	"errors"
	"strings"

	shopdto "rupiya_directory/internal/api/shop/dto"
	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/global"
	"rupiya_directory/internal/notification"
	"rupiya_directory/internal/utility"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// PaymentInfo thông tin thanh toán do người thu xác nhận
type PaymentInfo struct {
	Mode      models.PaymentMode
	ReceiptNo string
	Amount    int64 // 0 = giá gói (thanh toán) hoặc số tiền gia hạn mặc định
}

// PaymentInfoFromInput chuyển DTO, mode phải là CASH hoặc UPI
func PaymentInfoFromInput(in shopdto.PaymentInput) (PaymentInfo, error) {
	mode := models.ParsePaymentMode(in.Mode)
	if mode == models.PaymentModeNone {
		return PaymentInfo{}, common.NewValidationError("Hình thức thanh toán không hợp lệ", map[string]any{"mode": in.Mode})
	}
	if in.Amount < 0 {
		return PaymentInfo{}, common.NewValidationError("Số tiền không hợp lệ", map[string]any{"amount": in.Amount})
	}
	return PaymentInfo{Mode: mode, ReceiptNo: strings.TrimSpace(in.ReceiptNo), Amount: in.Amount}, nil
}

// ValidateStruct kiểm tra struct bằng validator dùng chung, lỗi trả về dạng ValidationError có chi tiết field
func ValidateStruct(v any) error {
	err := global.GetValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		return common.NewValidationError("", details)
	}
	return common.NewValidationError(err.Error(), nil)
}

// Create tạo shop PENDING. Admin/system ghi vào admin_shops; agent ghi vào agent_shops,
// sao sang shops khi bật mirror và tăng totalShops của agent.
func (e *Engine) Create(ctx context.Context, actor models.Actor, in shopdto.ShopCreateInput) (models.ShopRecord, error) {
	if err := requireActor(actor); err != nil {
		return models.ShopRecord{}, err
	}
	if err := ValidateStruct(in); err != nil {
		return models.ShopRecord{}, err
	}
	plan, err := models.ParsePlanTier(in.Plan)
	if err != nil {
		return models.ShopRecord{}, err
	}

	now := utility.UnixMilli(e.now())
	rec := models.ShopRecord{
		Ref:        models.Ref{Origin: models.OriginAdmin},
		Name:       strings.TrimSpace(in.Name),
		OwnerName:  strings.TrimSpace(in.OwnerName),
		CategoryID: in.CategoryID,
		Category:   strings.TrimSpace(in.Category),
		Mobile:     utility.NormalizeMobile(in.Mobile),
		Location: models.Location{
			Address:  in.Address,
			Area:     in.Area,
			City:     in.City,
			District: in.District,
			Pincode:  in.Pincode,
		},
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		ImageURL:      in.ImageURL,
		Plan:          plan,
		PaymentStatus: models.PaymentPending,
		PaymentMode:   models.PaymentModeNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if actor.Role == models.RoleAgent {
		rec.Ref.Origin = models.OriginAgent
		rec.AgentID = actor.ID
	}

	created, err := e.repo.Insert(ctx, rec)
	if err != nil {
		return models.ShopRecord{}, err
	}

	pf := &common.PartialFailure{Operation: "create_shop"}
	if created.Ref.Origin == models.OriginAgent {
		if e.opts.MirrorAgentShops {
			mirror := created
			mirror.Ref = models.Ref{Origin: models.OriginLegacy}
			mirror.MirrorOf = created.Ref.ID
			if _, err := e.repo.Insert(ctx, mirror); err != nil {
				e.log.WithError(err).WithField("shop", created.Ref.Key()).Warn("⚠️ [SHOP_LIFECYCLE] Tạo bản sao trong shops thất bại")
				pf.Add("mirror", created.Ref.Key(), err)
			}
		}
		e.ledger.AdjustShopCount(ctx, actor.ID, 1, created.Ref)
	}

	e.log.WithFields(logrus.Fields{"shop": created.Ref.Key(), "plan": plan, "actor": actor.ID}).Info("🏪 [SHOP_LIFECYCLE] Đã tạo shop")
	return created, pf.ErrOrNil()
}

// MarkPaid PENDING/Unset -> PAID. Thứ tự: ghi trạng thái (bền vững), hoa hồng, doanh thu, thông báo.
// Lỗi ledger chỉ được ghi log và đưa vào hàng đợi đối soát, không làm hỏng thao tác.
func (e *Engine) MarkPaid(ctx context.Context, actor models.Actor, ref models.Ref, info PaymentInfo) (PaymentUpdate, error) {
	rec, err := e.repo.Get(ctx, ref)
	if err != nil {
		return PaymentUpdate{}, err
	}
	if err := authorizeShop(actor, rec); err != nil {
		return PaymentUpdate{}, err
	}
	if rec.PaymentStatus == models.PaymentPaid {
		return PaymentUpdate{}, common.NewInvalidStateError("Shop đã ở trạng thái PAID", map[string]any{"ref": ref.Key()})
	}
	if info.Mode != models.PaymentModeCash && info.Mode != models.PaymentModeUPI {
		return PaymentUpdate{}, common.NewValidationError("Hình thức thanh toán không hợp lệ", map[string]any{"mode": info.Mode})
	}

	now := e.now()
	stamp := PaymentStamp{
		Kind:      models.PaymentKindPayment,
		Mode:      info.Mode,
		ReceiptNo: info.ReceiptNo,
		Amount:    info.Amount,
		PaidAt:    utility.UnixMilli(now),
	}
	if stamp.Amount <= 0 {
		stamp.Amount = e.repo.catalog.LookupPlan(rec.Plan).Price
	}
	if stamp.ReceiptNo == "" {
		stamp.ReceiptNo = utility.NewReceiptNo(now)
	}

	upd, err := e.repo.UpdatePaymentStatus(ctx, ref, stamp)
	pf, partial := common.AsPartialFailure(err)
	if err != nil && !partial {
		return PaymentUpdate{}, err
	}
	if pf == nil {
		pf = &common.PartialFailure{Operation: "mark_paid"}
	}

	if upd.EntryStored {
		e.ledger.ApplyPayment(ctx, upd.Owner, upd.AgentID, upd.Entry, 0)
	} else {
		e.ledger.DeferPayment(ctx, upd.Owner, upd.AgentID, upd.Entry, pf.ErrOrNil())
	}

	e.notify(confirmationFor(notification.EventPayment, actor, upd.Record, upd.Entry, upd.AgentID))
	audit("shop_mark_paid", actor, "shop", ref.Key(), map[string]any{
		"plan":       upd.Entry.Plan,
		"amount":     upd.Entry.Amount,
		"commission": upd.Entry.Commission,
		"receiptNo":  upd.Entry.ReceiptNo,
		"owner":      upd.Owner.Key(),
		"agentId":    upd.AgentID,
	})
	e.log.WithFields(logrus.Fields{"shop": ref.Key(), "amount": upd.Entry.Amount, "commission": upd.Entry.Commission}).
		Info("💰 [SHOP_LIFECYCLE] Đã ghi nhận thanh toán")
	return upd, pf.ErrOrNil()
}

// RecordVisit tăng bộ đếm lượt xem
func (e *Engine) RecordVisit(ctx context.Context, ref models.Ref) error {
	return e.repo.RecordVisit(ctx, ref)
}
