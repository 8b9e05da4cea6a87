// Command migrate applies the embedded schema migrations and exits.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/BradenHooton/rollcall/internal/config"
	"github.com/BradenHooton/rollcall/internal/database"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL())
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("database unreachable", slog.Any("error", err))
		os.Exit(1)
	}

	if err := database.Migrate(ctx, db); err != nil {
		logger.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("migrations applied", slog.String("database", cfg.Database.Name))
}
