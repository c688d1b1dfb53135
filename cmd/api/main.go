package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"clinic-core/app"
	"clinic-core/internal/observability"
)

func main() {
	logger := observability.NewLogger()

	runtime, err := app.Build(app.Options{
		LoadDotEnv:    true,
		RunMigrations: app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", true),
	})
	if err != nil {
		logger.Errorw("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer runtime.Close()

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	addr := fmt.Sprintf(":%s", port)
	logger.Infow("server_start", "addr", addr)
	if err := http.ListenAndServe(addr, runtime.Handler); err != nil {
		logger.Errorw("server_failed", "error", err.Error())
		os.Exit(1)
	}
}
