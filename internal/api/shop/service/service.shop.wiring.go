package shopsvc

import (
	"fmt"
	"time"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/cache"
	"rupiya_directory/internal/global"
	"rupiya_directory/internal/notification"
)

// ServicesOptions tham số dựng bộ service trên MongoDB
type ServicesOptions struct {
	Catalog              *models.PlanCatalog
	TZOffsetMinutes      int
	MirrorAgentShops     bool
	DefaultRenewalAmount int64
	Cache                cache.Cache           // nil = không cache
	Notifier             notification.Notifier // nil = LogNotifier
	Now                  func() time.Time
}

// Services bộ service shop dùng chung cho server và CLI
type Services struct {
	Repository *ShopRepository
	Engine     *Engine
	Listing    *ListingService
	Deletion   *ShopDeletionService
	Ledger     *LedgerService
}

// NewMongoServices dựng toàn bộ service từ các collection đã đăng ký trong global.RegistryCollections
func NewMongoServices(opts ServicesOptions) (*Services, error) {
	if opts.Catalog == nil {
		opts.Catalog = models.DefaultPlanCatalog()
	}
	stores, err := NewMongoShopStores()
	if err != nil {
		return nil, fmt.Errorf("tạo shop store: %w", err)
	}
	holding, err := NewMongoHoldingStore(
		models.LegacySchema(global.MongoDB_ColNames.Shops),
		models.AdminSchema(global.MongoDB_ColNames.AdminShops),
		models.AgentSchema(global.MongoDB_ColNames.AgentShops),
	)
	if err != nil {
		return nil, fmt.Errorf("tạo holding store: %w", err)
	}
	agents, err := NewMongoAgentLedger()
	if err != nil {
		return nil, fmt.Errorf("tạo agent ledger: %w", err)
	}
	revenue, err := NewMongoRevenueLedger()
	if err != nil {
		return nil, fmt.Errorf("tạo revenue ledger: %w", err)
	}
	queue, err := NewMongoReconcileQueue()
	if err != nil {
		return nil, fmt.Errorf("tạo reconcile queue: %w", err)
	}

	repo := NewShopRepository(stores, opts.Catalog, opts.TZOffsetMinutes)
	ledger := NewLedgerService(repo, holding, agents, revenue, queue, opts.Now)
	engine := NewEngine(repo, holding, ledger, opts.Notifier, EngineOptions{
		MirrorAgentShops:     opts.MirrorAgentShops,
		DefaultRenewalAmount: opts.DefaultRenewalAmount,
		Now:                  opts.Now,
	})
	return &Services{
		Repository: repo,
		Engine:     engine,
		Listing:    NewListingService(repo, opts.Cache),
		Deletion:   NewShopDeletionService(repo, ledger),
		Ledger:     ledger,
	}, nil
}
