// Package shophdl chứa HTTP handler cho domain Shop: listing, vòng đời thanh toán, gia hạn và đối soát ledger.
package shophdl

import (
	"context"
	"strings"
	"time"

	basehdl "rupiya_directory/internal/api/base/handler"
	"rupiya_directory/internal/api/middleware"
	shopdto "rupiya_directory/internal/api/shop/dto"
	"rupiya_directory/internal/api/shop/models"
	shopsvc "rupiya_directory/internal/api/shop/service"
	"rupiya_directory/internal/common"

	"github.com/gofiber/fiber/v3"
)

// Lifecycle các thao tác vòng đời do Engine cung cấp
type Lifecycle interface {
	Create(ctx context.Context, actor models.Actor, in shopdto.ShopCreateInput) (models.ShopRecord, error)
	MarkPaid(ctx context.Context, actor models.Actor, ref models.Ref, info shopsvc.PaymentInfo) (shopsvc.PaymentUpdate, error)
	RecordVisit(ctx context.Context, ref models.Ref) error
	ListCandidates(ctx context.Context, actor models.Actor) ([]models.RenewalCandidate, error)
	CanRenew(ctx context.Context, actor models.Actor, candidateID string) (shopdto.CanRenewResult, error)
	Renew(ctx context.Context, actor models.Actor, candidateID string, info shopsvc.PaymentInfo) (shopsvc.RenewResult, error)
	SweepExpired(ctx context.Context, actor models.Actor, now time.Time) (shopsvc.SweepResult, error)
}

// Listing truy vấn hiển thị
type Listing interface {
	List(ctx context.Context, q shopsvc.ListQuery) (shopsvc.PagedResult, error)
	NearestPerCategory(ctx context.Context, lat, lon float64) (shopsvc.NearestResult, error)
}

// Deletion xoá shop kèm khấu trừ ledger
type Deletion interface {
	DeleteShops(ctx context.Context, actor models.Actor, refs []models.Ref) (shopsvc.DeleteResult, error)
	DeleteAll(ctx context.Context, actor models.Actor) (shopsvc.DeleteAllResult, error)
	DeductOnly(ctx context.Context, actor models.Actor, refs []models.Ref) (shopsvc.DeductResult, error)
}

// Ledger tính lại tổng agent / doanh thu
type Ledger interface {
	RecomputeAgent(ctx context.Context, agentID string) (shopsvc.AgentRecompute, error)
	RecomputeAllAgents(ctx context.Context) (shopsvc.AllAgentsRecompute, error)
	RecomputeRevenue(ctx context.Context, district, day string) (models.RevenueEntry, error)
	ProcessReconcileTasks(ctx context.Context, limit int) (shopsvc.ReconcileReport, error)
}

// ShopHandler xử lý API shop
type ShopHandler struct {
	Lifecycle Lifecycle
	Listing   Listing
	Deletion  Deletion
	Ledger    Ledger
	Now       func() time.Time
}

// NewShopHandler tạo handler từ các service đã khởi tạo
func NewShopHandler(lifecycle Lifecycle, listing Listing, deletion Deletion, ledger Ledger) *ShopHandler {
	return &ShopHandler{Lifecycle: lifecycle, Listing: listing, Deletion: deletion, Ledger: ledger, Now: time.Now}
}

// actor lấy actor từ context, chưa có thì trả actor rỗng để service từ chối với ErrActorMissing
func actor(c fiber.Ctx) models.Actor {
	a, _ := middleware.GetActor(c)
	return a
}

// refParam đọc :origin/:id
func refParam(c fiber.Ctx) (models.Ref, error) {
	origin, err := models.ParseOrigin(c.Params("origin"))
	if err != nil {
		return models.Ref{}, err
	}
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return models.Ref{}, common.NewValidationError("Thiếu id shop", nil)
	}
	return models.Ref{Origin: origin, ID: id}, nil
}

// bindBody parse body JSON rồi validate
func bindBody(c fiber.Ctx, out any) error {
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(out); err != nil {
			return common.NewError(common.ErrCodeValidationFormat, common.MsgInvalidFormat, common.StatusBadRequest, err.Error())
		}
	}
	return shopsvc.ValidateStruct(out)
}

// paymentBody đọc PaymentInput và chuyển sang PaymentInfo
func paymentBody(c fiber.Ctx) (shopsvc.PaymentInfo, error) {
	var in shopdto.PaymentInput
	if err := bindBody(c, &in); err != nil {
		return shopsvc.PaymentInfo{}, err
	}
	return shopsvc.PaymentInfoFromInput(in)
}

// partialOf trả PartialFailure khi kết quả batch có lỗi thành phần, để response là 207
func partialOf(operation string, errs []common.ComponentError) error {
	pf := &common.PartialFailure{Operation: operation, Failures: errs}
	return pf.ErrOrNil()
}

// HandleList GET /shops?category=&categoryId=&sortType=&lat=&lng=&page=&pageSize=
func (h *ShopHandler) HandleList(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		var q shopdto.ShopListQuery
		if err := c.Bind().Query(&q); err != nil {
			return basehdl.HandleErrorResponse(c, common.NewError(common.ErrCodeValidationFormat, common.MsgInvalidFormat, common.StatusBadRequest, err.Error()))
		}
		result, err := h.Listing.List(c.Context(), shopsvc.ListQuery{
			CategorySlug: q.Category,
			CategoryID:   q.CategoryID,
			SortType:     q.SortType,
			UserLat:      q.Lat,
			UserLon:      q.Lng,
			Page:         q.Page,
			PageSize:     q.PageSize,
		})
		return basehdl.HandleResponse(c, result, err)
	})
}

// HandleNearest GET /shops/nearest?lat=&lng=
func (h *ShopHandler) HandleNearest(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		var q shopdto.NearestQuery
		if err := c.Bind().Query(&q); err != nil {
			return basehdl.HandleErrorResponse(c, common.NewError(common.ErrCodeValidationFormat, common.MsgInvalidFormat, common.StatusBadRequest, err.Error()))
		}
		result, err := h.Listing.NearestPerCategory(c.Context(), q.Lat, q.Lng)
		return basehdl.HandleResponse(c, result, err)
	})
}

// HandleCreate POST /shops
func (h *ShopHandler) HandleCreate(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		var in shopdto.ShopCreateInput
		if err := c.Bind().JSON(&in); err != nil {
			return basehdl.HandleErrorResponse(c, common.NewError(common.ErrCodeValidationFormat, common.MsgInvalidFormat, common.StatusBadRequest, err.Error()))
		}
		rec, err := h.Lifecycle.Create(c.Context(), actor(c), in)
		return basehdl.HandleResponseWithStatus(c, common.StatusCreated, rec, err)
	})
}

// HandleMarkPaid POST /shops/:origin/:id/mark-paid, body: {"mode":"UPI","receiptNo":"...","amount":0}
func (h *ShopHandler) HandleMarkPaid(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		ref, err := refParam(c)
		if err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		info, err := paymentBody(c)
		if err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		update, err := h.Lifecycle.MarkPaid(c.Context(), actor(c), ref, info)
		return basehdl.HandleResponse(c, fiber.Map{
			"record":  update.Record,
			"sibling": update.Sibling,
			"owner":   update.Owner,
			"agentId": update.AgentID,
			"entry":   update.Entry,
		}, err)
	})
}

// HandleVisit POST /shops/:origin/:id/visit
func (h *ShopHandler) HandleVisit(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		ref, err := refParam(c)
		if err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		return basehdl.HandleResponse(c, ref, h.Lifecycle.RecordVisit(c.Context(), ref))
	})
}

// HandleDeleteMany POST /shops/delete-many, body: {"refs":[{"origin":"agent","id":"..."}]} hoặc {"all":true}
func (h *ShopHandler) HandleDeleteMany(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		var in shopdto.DeleteShopsInput
		if err := bindBody(c, &in); err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		if in.All {
			result, err := h.Deletion.DeleteAll(c.Context(), actor(c))
			if err == nil {
				err = partialOf("delete_all", append(append([]common.ComponentError{}, result.Errors...), result.Deduct.Errors...))
			}
			return basehdl.HandleResponse(c, result, err)
		}
		if len(in.Refs) == 0 {
			return basehdl.HandleErrorResponse(c, common.NewValidationError("Danh sách shop cần xoá rỗng", nil))
		}
		refs, err := shopdto.ToRefs(in.Refs)
		if err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		result, err := h.Deletion.DeleteShops(c.Context(), actor(c), refs)
		if err == nil {
			err = partialOf("delete_many", append(append([]common.ComponentError{}, result.Errors...), result.Deduct.Errors...))
		}
		return basehdl.HandleResponse(c, result, err)
	})
}

// HandleDeduct POST /ledger/deduct: chỉ khấu trừ ledger, không xoá shop
func (h *ShopHandler) HandleDeduct(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		var in shopdto.DeductInput
		if err := bindBody(c, &in); err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		refs, err := shopdto.ToRefs(in.Refs)
		if err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		result, err := h.Deletion.DeductOnly(c.Context(), actor(c), refs)
		if err == nil {
			err = partialOf("ledger_deduct", result.Errors)
		}
		return basehdl.HandleResponse(c, result, err)
	})
}

// HandleListRenewals GET /renewals: agent chỉ thấy candidate của mình
func (h *ShopHandler) HandleListRenewals(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		list, err := h.Lifecycle.ListCandidates(c.Context(), actor(c))
		return basehdl.HandleResponse(c, list, err)
	})
}

// HandleCanRenew GET /renewals/:id/can-renew
func (h *ShopHandler) HandleCanRenew(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		result, err := h.Lifecycle.CanRenew(c.Context(), actor(c), c.Params("id"))
		return basehdl.HandleResponse(c, result, err)
	})
}

// HandleRenew POST /renewals/:id/renew, body giống mark-paid
func (h *ShopHandler) HandleRenew(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		info, err := paymentBody(c)
		if err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		result, err := h.Lifecycle.Renew(c.Context(), actor(c), c.Params("id"), info)
		return basehdl.HandleResponse(c, result, err)
	})
}

// HandleSweep POST /renewals/sweep, body optional {"now": <unix ms>}
func (h *ShopHandler) HandleSweep(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		var in shopdto.SweepInput
		if err := bindBody(c, &in); err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		now := h.Now()
		if in.Now > 0 {
			now = time.UnixMilli(in.Now)
		}
		result, err := h.Lifecycle.SweepExpired(c.Context(), actor(c), now)
		if err == nil {
			err = partialOf("sweep", result.Errors)
		}
		return basehdl.HandleResponse(c, result, err)
	})
}

// HandleRecomputeAgent POST /agents/:id/recompute
func (h *ShopHandler) HandleRecomputeAgent(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		result, err := h.Ledger.RecomputeAgent(c.Context(), c.Params("id"))
		return basehdl.HandleResponse(c, result, err)
	})
}

// HandleRecomputeAll POST /agents/recompute-all
func (h *ShopHandler) HandleRecomputeAll(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		result, err := h.Ledger.RecomputeAllAgents(c.Context())
		if err == nil {
			err = partialOf("recompute_all_agents", result.Errors)
		}
		return basehdl.HandleResponse(c, result, err)
	})
}

// HandleRecomputeRevenue POST /revenue/recompute, body: {"district":"PATNA","day":"2026-03-10"}
func (h *ShopHandler) HandleRecomputeRevenue(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		var in shopdto.RecomputeRevenueInput
		if err := bindBody(c, &in); err != nil {
			return basehdl.HandleErrorResponse(c, err)
		}
		entry, err := h.Ledger.RecomputeRevenue(c.Context(), in.District, in.Day)
		return basehdl.HandleResponse(c, entry, err)
	})
}

// HandleReconcile POST /ledger/reconcile?limit=50: xử lý ngay một batch hàng đợi đối soát
func (h *ShopHandler) HandleReconcile(c fiber.Ctx) error {
	return basehdl.SafeHandlerWrapper(c, func() error {
		limit := fiber.Query[int](c, "limit", 50)
		if limit <= 0 || limit > 500 {
			return basehdl.HandleErrorResponse(c, common.NewValidationError("limit phải trong khoảng 1..500", map[string]any{"limit": limit}))
		}
		report, err := h.Ledger.ProcessReconcileTasks(c.Context(), limit)
		return basehdl.HandleResponse(c, report, err)
	})
}
