package shopsvc

import (
	"context"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/logger"

	"github.com/sirupsen/logrus"
)

// DeleteResult kết quả xoá hàng loạt
type DeleteResult struct {
	Deleted  []models.Ref            `json:"deleted"`
	NotFound []models.Ref            `json:"notFound,omitempty"`
	Deduct   DeductResult            `json:"deduct"`
	Errors   []common.ComponentError `json:"errors,omitempty"`
}

// HasErrors có lỗi thành phần (khấu trừ hoặc xoá)
func (r DeleteResult) HasErrors() bool {
	return len(r.Errors) > 0 || len(r.Deduct.Errors) > 0
}

// DeleteAllResult kết quả xoá toàn bộ
type DeleteAllResult struct {
	Deleted map[models.Origin]int64 `json:"deleted"`
	Deduct  DeductResult            `json:"deduct"`
	Errors  []common.ComponentError `json:"errors,omitempty"`
}

// ShopDeletionService xoá cứng shop, luôn khấu trừ ledger trước khi xoá
type ShopDeletionService struct {
	repo   *ShopRepository
	ledger *LedgerService
	log    *logrus.Entry
}

// NewShopDeletionService tạo service xoá shop
func NewShopDeletionService(repo *ShopRepository, ledger *LedgerService) *ShopDeletionService {
	return &ShopDeletionService{repo: repo, ledger: ledger, log: logger.WithModule("shop_delete")}
}

// resolved các bản ghi cần xoá và tập con giữ ledger (mỗi shop một bản)
type resolved struct {
	all      []models.ShopRecord
	owners   []models.ShopRecord
	notFound []models.Ref
}

// resolve tìm bản ghi và bản sao liên kết (mirrorOf) của từng ref; mỗi shop chỉ có một bản giữ ledger.
// Bản ghi chỉ trùng tên không bao giờ bị xoá theo.
func (s *ShopDeletionService) resolve(ctx context.Context, refs []models.Ref) (resolved, []common.ComponentError) {
	var out resolved
	var errs []common.ComponentError
	seen := map[string]bool{}

	for _, ref := range refs {
		if seen[ref.Key()] {
			continue
		}
		rec, err := s.repo.Get(ctx, ref)
		if err != nil {
			if common.IsNotFound(err) {
				out.notFound = append(out.notFound, ref)
			} else {
				errs = append(errs, common.NewComponentError("shop", ref.Key(), err))
			}
			seen[ref.Key()] = true
			continue
		}

		var sibling *models.ShopRecord
		sib, ok, err := s.repo.FindLinked(ctx, rec)
		if err != nil {
			errs = append(errs, common.NewComponentError("sibling", ref.Key(), err))
		} else if ok && !seen[sib.Ref.Key()] {
			sibling = &sib
		}

		owner := ledgerOwner(rec, sibling)
		out.owners = append(out.owners, owner)
		for _, r := range []*models.ShopRecord{&rec, sibling} {
			if r == nil || seen[r.Ref.Key()] {
				continue
			}
			seen[r.Ref.Key()] = true
			out.all = append(out.all, *r)
		}
	}
	return out, errs
}

// DeductOnly chỉ khấu trừ ledger cho các shop, không xoá
func (s *ShopDeletionService) DeductOnly(ctx context.Context, actor models.Actor, refs []models.Ref) (DeductResult, error) {
	if err := requirePrivileged(actor); err != nil {
		return DeductResult{}, err
	}
	res, errs := s.resolve(ctx, refs)
	result := s.ledger.DeductForDeletedShops(ctx, res.owners)
	result.Errors = append(errs, result.Errors...)
	audit("ledger_deduct", actor, "shop", "", map[string]any{
		"refs": len(refs), "commission": result.TotalCommissionDeducted, "revenue": result.TotalRevenueDeducted,
	})
	return result, nil
}

// DeleteShops khấu trừ ledger rồi xoá cứng các shop cùng bản sao của chúng.
// Lỗi từng phần nằm trong kết quả để caller quyết định thử lại phần lỗi.
func (s *ShopDeletionService) DeleteShops(ctx context.Context, actor models.Actor, refs []models.Ref) (DeleteResult, error) {
	if err := requirePrivileged(actor); err != nil {
		return DeleteResult{}, err
	}
	if len(refs) == 0 {
		return DeleteResult{}, common.NewValidationError("Danh sách shop cần xoá rỗng", nil)
	}

	res, errs := s.resolve(ctx, refs)
	result := DeleteResult{Deleted: []models.Ref{}, NotFound: res.notFound, Errors: errs}
	result.Deduct = s.ledger.DeductForDeletedShops(ctx, res.owners)

	for _, rec := range res.all {
		err := s.repo.Delete(ctx, rec.Ref)
		switch {
		case err == nil:
			result.Deleted = append(result.Deleted, rec.Ref)
		case common.IsNotFound(err):
			result.NotFound = append(result.NotFound, rec.Ref)
		default:
			result.Errors = append(result.Errors, common.NewComponentError("delete", rec.Ref.Key(), err))
		}
	}

	audit("shop_delete_many", actor, "shop", "", map[string]any{
		"requested": len(refs), "deleted": len(result.Deleted),
		"commission": result.Deduct.TotalCommissionDeducted, "revenue": result.Deduct.TotalRevenueDeducted,
	})
	s.log.WithFields(logrus.Fields{"deleted": len(result.Deleted), "errors": len(result.Errors)}).Info("🗑️ [SHOP_DELETE] Đã xoá shop")
	return result, nil
}

// DeleteAll khấu trừ ledger cho mọi shop rồi xoá toàn bộ ba store.
// Cần đọc được đủ ba store, nếu không sẽ không xoá gì.
func (s *ShopDeletionService) DeleteAll(ctx context.Context, actor models.Actor) (DeleteAllResult, error) {
	if err := requirePrivileged(actor); err != nil {
		return DeleteAllResult{}, err
	}
	found := s.repo.FindAll(ctx, ShopFilter{})
	if err := found.Err(); err != nil {
		return DeleteAllResult{}, err
	}

	result := DeleteAllResult{}
	result.Deduct = s.ledger.DeductForDeletedShops(ctx, dedupeMirrors(found.Records))

	counts, err := s.repo.DeleteAll(ctx)
	result.Deleted = counts
	if pf, ok := common.AsPartialFailure(err); ok {
		result.Errors = pf.Failures
	} else if err != nil {
		return result, err
	}

	audit("shop_delete_all", actor, "shop", "", map[string]any{
		"deleted": counts, "commission": result.Deduct.TotalCommissionDeducted, "revenue": result.Deduct.TotalRevenueDeducted,
	})
	s.log.WithField("deleted", counts).Warn("🗑️ [SHOP_DELETE] Đã xoá toàn bộ shop")
	return result, nil
}
