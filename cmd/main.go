package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	metacache "github.com/beam-cloud/metacache/pkg"
)

func main() {
	configManager, err := metacache.NewConfigManager[metacache.MetaCacheConfig]()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	config := configManager.GetConfig()
	metacache.InitLogger(config.DebugMode, config.PrettyLogs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := metacache.NewCacheService(ctx, config)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Cleanup()

	if err := s.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
