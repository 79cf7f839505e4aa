// Command migrate applies the store schema: tables, cascade foreign keys,
// and the pgvector embedding column sized to the configured dimension.
package main

import (
	"flag"
	"log"

	"insidelm/internal/config"
	"insidelm/internal/util"
	"insidelm/pkg/store"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.EmbeddingDim))
	if err != nil {
		log.Fatalf("failed to migrate store: %v", err)
	}
	logger.Info("store migrations applied", "embeddingDim", st.EmbeddingDim())
}
