package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"storefront-service/config"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

func main() {
	seedPath := flag.String("seed", "", "YAML seed file (defaults to the embedded roles and settings)")
	skipSeed := flag.Bool("no-seed", false, "only apply schema migrations")
	flag.Parse()

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
	logger.Info("Schema up to date")

	if *skipSeed {
		return
	}

	var data []byte
	if *seedPath != "" {
		if data, err = os.ReadFile(*seedPath); err != nil {
			logger.Fatal("Failed to read seed file", zap.String("path", *seedPath), zap.Error(err))
		}
	}
	seed, err := store.LoadSeed(data)
	if err != nil {
		logger.Fatal("Failed to load seed", zap.Error(err))
	}
	if err := store.ApplySeed(ctx, db, seed); err != nil {
		logger.Fatal("Seeding failed", zap.Error(err))
	}
	logger.Info("Seed applied", zap.Int("roles", len(seed.Roles)))

	if cfg.Auth.BootstrapUser == "" {
		return
	}
	_, created, err := service.NewAccessService(db).BootstrapDeveloper(ctx, cfg.Auth.BootstrapUser, cfg.Auth.BootstrapPassword)
	if err != nil {
		logger.Fatal("Failed to bootstrap developer account", zap.Error(err))
	}
	if created {
		logger.Info("Developer account created", zap.String("username", cfg.Auth.BootstrapUser))
	}
}
