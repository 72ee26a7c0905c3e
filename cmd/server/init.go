package main

import (
	"context"
	"fmt"

	"rupiya_directory/internal/app"
	"rupiya_directory/internal/logger"
)

// initLogger khởi tạo logger, tự đọc biến môi trường LOG_*
func initLogger() {
	if err := logger.Init(nil); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	logger.GetAppLogger().Info("Logger system initialized successfully")
}

// InitApp khởi tạo config, database, registry và service; lỗi ở bước này dừng server
func InitApp(ctx context.Context) *app.App {
	a, err := app.Bootstrap(ctx, app.Options{})
	if err != nil {
		logger.GetAppLogger().Fatalf("Failed to bootstrap application: %v", err)
	}
	return a
}
