package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/config"
	"github.com/vaultchat/vaultchat/internal/httpapi"
	"github.com/vaultchat/vaultchat/internal/queue"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	blobs, err := blob.Open(cfg)
	if err != nil {
		logger.Fatal("blob store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}

	// Queue is optional: without it the async endpoints report unavailable
	// but everything else works.
	var rabbit *queue.Publisher
	if cfg.RabbitURL != "" {
		rabbit, err = queue.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Warn("rabbit unavailable, async jobs disabled", zap.Error(err))
			rabbit = nil
		} else {
			defer rabbit.Close()
		}
	}

	r := httpapi.NewRouter(cfg, blobs, rabbit, logger)

	logger.Info("server listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("store", cfg.StoreBackend),
		zap.String("model", cfg.Model),
	)
	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
