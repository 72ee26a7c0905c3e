package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"

	basehdl "rupiya_directory/internal/api/base/handler"
	"rupiya_directory/internal/api/middleware"
	"rupiya_directory/internal/api/router"
	shophdl "rupiya_directory/internal/api/shop/handler"
	shoprouter "rupiya_directory/internal/api/shop/router"
	"rupiya_directory/internal/app"
	"rupiya_directory/internal/common"
	"rupiya_directory/internal/logger"
)

// InitFiberApp khởi tạo ứng dụng Fiber với các middleware cần thiết
func InitFiberApp(a *app.App) *fiber.App {
	cfg := a.Config
	log := logger.GetAppLogger()

	fiberApp := fiber.New(fiber.Config{
		// =========================================
		// 1. CẤU HÌNH CƠ BẢN
		// =========================================
		AppName:       "Rupiya Directory API",
		ServerHeader:  "Rupiya Directory API",
		CaseSensitive: true,
		UnescapePath:  true,

		// =========================================
		// 2. CẤU HÌNH PERFORMANCE / TIMEOUT
		// =========================================
		BodyLimit:    2 * 1024 * 1024, // Max size của request body (2MB)
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,

		// =========================================
		// 3. CẤU HÌNH ERROR HANDLING
		// =========================================
		ErrorHandler: func(c fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				errorCode := common.ErrCodeInternalServer.Code
				switch fe.Code {
				case fiber.StatusBadRequest:
					errorCode = common.ErrCodeValidationInput.Code
				case fiber.StatusUnauthorized:
					errorCode = common.ErrCodeAuthActor.Code
				case fiber.StatusForbidden:
					errorCode = common.ErrCodeAuthOwner.Code
				case fiber.StatusNotFound:
					errorCode = common.ErrCodeDatabaseQuery.Code
				}
				return basehdl.JSONResponse(c, fe.Code, fiber.Map{
					"code":    errorCode,
					"message": fe.Message,
					"status":  "error",
				})
			}

			logger.GetAppLogger().WithFields(map[string]interface{}{
				"path":      c.Path(),
				"method":    c.Method(),
				"requestId": requestid.FromContext(c),
				"error":     err.Error(),
			}).Error("Request error")
			return basehdl.HandleErrorResponse(c, err)
		},
	})

	// =========================================
	// MIDDLEWARE STACK
	// =========================================

	// 1. Request ID
	fiberApp.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))

	// 2. CORS: đặt sớm để xử lý preflight trước các middleware khác
	allowOrigins := []string{"*"}
	if cfg.CORS_Origins != "*" {
		allowOrigins = strings.Split(cfg.CORS_Origins, ",")
		for i, origin := range allowOrigins {
			allowOrigins[i] = strings.TrimSpace(origin)
		}
	}
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Request-ID",
			middleware.HeaderActorID,
			middleware.HeaderActorRole,
		},
		AllowCredentials: cfg.CORS_AllowCredentials,
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		MaxAge:           24 * 60 * 60,
	}))

	// 3. Security headers
	fiberApp.Use(func(c fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		return c.Next()
	})

	// 4. Rate limiting theo IP
	if cfg.RateLimit_Enabled && cfg.RateLimit_Max > 0 {
		fiberApp.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimit_Max,
			Expiration: time.Duration(cfg.RateLimit_Window) * time.Second,
			KeyGenerator: func(c fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c fiber.Ctx) error {
				return basehdl.JSONResponse(c, fiber.StatusTooManyRequests, fiber.Map{
					"code":    common.ErrCodeBusinessOperation.Code,
					"message": "Quá nhiều yêu cầu, vui lòng thử lại sau",
					"status":  "error",
				})
			},
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/health" || c.Method() == "OPTIONS"
			},
		}))
		log.Infof("Rate limiting enabled: %d requests per %d seconds", cfg.RateLimit_Max, cfg.RateLimit_Window)
	} else {
		log.Info("Rate limiting disabled")
	}

	// 5. Recover
	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			logger.GetAppLogger().WithFields(map[string]interface{}{
				"panic":     e,
				"path":      c.Path(),
				"requestId": requestid.FromContext(c),
			}).Error("Panic recovered")
		},
	}))

	// 6. Actor từ header do gateway xác thực gắn vào
	fiberApp.Use(middleware.ActorMiddleware())

	fiberApp.Get("/health", func(c fiber.Ctx) error {
		return basehdl.JSONResponse(c, fiber.StatusOK, fiber.Map{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	s := a.Services
	shopHandler := shophdl.NewShopHandler(s.Engine, s.Listing, s.Deletion, s.Ledger)
	if err := router.SetupRoutes(fiberApp, shoprouter.Register(shopHandler)); err != nil {
		panic(fmt.Sprintf("Failed to setup routes: %v", err))
	}
	return fiberApp
}
