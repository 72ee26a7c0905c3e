// Lệnh shopctl: bảo trì vòng đời shop và ledger trên cùng cấu hình với server.
package main

import (
	"context"
	"fmt"
	"os"

	"rupiya_directory/internal/app"
	"rupiya_directory/internal/cli"
	"rupiya_directory/internal/logger"
)

func main() {
	if err := logger.Init(nil); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Close()

	load := func(ctx context.Context) (cli.Backend, func(), error) {
		a, err := app.Bootstrap(ctx, app.Options{SkipIndexes: true, SkipCache: true})
		if err != nil {
			return nil, nil, err
		}
		return cli.ServicesBackend{Services: a.Services}, a.Close, nil
	}

	if err := cli.NewRootCommand(load).Execute(); err != nil {
		logger.Close()
		os.Exit(1)
	}
}
