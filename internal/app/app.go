// Package app khởi tạo phần dùng chung giữa server và CLI: cấu hình, MongoDB, registry collection,
// index, bảng gói, cache, notifier và bộ service shop.
package app

import (
	"context"
	"fmt"
	"time"

	"rupiya_directory/config"
	"rupiya_directory/internal/api/shop/models"
	shopsvc "rupiya_directory/internal/api/shop/service"
	"rupiya_directory/internal/cache"
	"rupiya_directory/internal/database"
	"rupiya_directory/internal/global"
	"rupiya_directory/internal/logger"
	"rupiya_directory/internal/notification"

	"go.mongodb.org/mongo-driver/mongo"
)

// App các thành phần đã khởi tạo
type App struct {
	Config   *config.Configuration
	Mongo    *mongo.Client
	Cache    cache.Cache
	Services *shopsvc.Services
}

// Options tuỳ chọn khởi tạo
type Options struct {
	SkipIndexes bool // CLI không cần tạo index
	SkipCache   bool // CLI không đọc listing
}

// Bootstrap khởi tạo lần lượt: tên collection, validator, cấu hình, MongoDB, registry, index, service
func Bootstrap(ctx context.Context, opts Options) (*App, error) {
	log := logger.GetAppLogger()

	global.InitColNames()
	global.InitValidator()
	log.Info("Initialized collection names and validator")

	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}
	global.MongoDB_ServerConfig = cfg

	client, err := database.GetInstance(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	global.MongoDB_Session = client
	a := &App{Config: cfg, Mongo: client}

	db := client.Database(cfg.MongoDB_DBName)
	if err := InitCollections(db); err != nil {
		a.Close()
		return nil, err
	}
	if !opts.SkipIndexes {
		if err := database.CreateShopIndexes(ctx, db); err != nil {
			// Không dừng khởi động khi tạo index lỗi
			log.WithError(err).Warn("⚠️ [DATABASE] Tạo index thất bại")
		}
	}

	catalog, err := models.LoadPlanCatalog(cfg.PlanCatalogFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load plan catalog: %w", err)
	}

	if !opts.SkipCache {
		a.Cache = initCache(ctx, cfg)
	}

	services, err := shopsvc.NewMongoServices(shopsvc.ServicesOptions{
		Catalog:              catalog,
		TZOffsetMinutes:      cfg.RevenueTZOffsetMinutes,
		MirrorAgentShops:     cfg.MirrorAgentShops,
		DefaultRenewalAmount: cfg.DefaultRenewalAmount,
		Cache:                a.Cache,
		Notifier:             NewNotifier(cfg),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = services
	return a, nil
}

// InitCollections đăng ký các collection vào global.RegistryCollections
func InitCollections(db *mongo.Database) error {
	log := logger.GetAppLogger()
	for _, name := range global.AllColNames() {
		registered, err := global.RegistryCollections.Register(name, db.Collection(name))
		if err != nil {
			return fmt.Errorf("register collection %s: %w", name, err)
		}
		if registered {
			log.Debugf("Collection %s registered successfully", name)
		}
	}
	log.Info("Initialized collection registry")
	return nil
}

// initCache Redis khi có REDIS_ADDR và kết nối được, ngược lại cache trong bộ nhớ
func initCache(ctx context.Context, cfg *config.Configuration) cache.Cache {
	log := logger.GetAppLogger()
	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		client, err := cache.Connect(pingCtx, cfg.RedisAddr)
		if err == nil {
			log.Info("Connected to Redis cache")
			return cache.NewRedisCache(client, "rupiya:")
		}
		log.WithError(err).Warn("⚠️ [CACHE] Không kết nối được Redis, dùng cache trong bộ nhớ")
	}
	return cache.NewMemoryCache(time.Minute)
}

// NewNotifier log luôn bật; email khi đủ cấu hình SMTP; toàn bộ được giới hạn tốc độ
func NewNotifier(cfg *config.Configuration) notification.Notifier {
	channels := notification.Multi{notification.NewLogNotifier()}
	email := notification.EmailConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.NotifyFromEmail,
		FromName:  "Rupiya Directory",
		To:        cfg.NotifyOpsEmail,
	}
	if email.Enabled() {
		channels = append(channels, notification.NewEmailNotifier(email))
	}
	return notification.NewRateLimited(channels, cfg.NotifyRatePerSecond)
}

// Close đóng cache và kết nối MongoDB
func (a *App) Close() {
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Mongo != nil {
		_ = database.CloseInstance(a.Mongo)
	}
}
