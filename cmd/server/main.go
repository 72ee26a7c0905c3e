package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"

	"rupiya_directory/internal/logger"
)

// Hàm main
func main() {
	initLogger()
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := InitApp(ctx)
	defer a.Close()

	InitWorkers(ctx, a)

	fiberApp := InitFiberApp(a)
	address := ":" + a.Config.Address
	log := logger.GetAppLogger()

	go func() {
		<-ctx.Done()
		log.Info("Shutting down Fiber server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Error("Error during Fiber shutdown")
		}
	}()

	log.WithFields(map[string]interface{}{
		"address":  address,
		"protocol": "HTTP",
	}).Info("Starting server with HTTP")
	if err := fiberApp.Listen(address, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		log.Fatalf("Error in Fiber Listen: %v", err)
	}
}
