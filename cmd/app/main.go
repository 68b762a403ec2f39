package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"CandleCast/internal/di"
	"CandleCast/internal/domain/models"
	"CandleCast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		var ce *models.ConfigError
		if errors.As(err, &ce) {
			log.Fatalf("invalid config: %v", ce)
		}
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s pairs=%v durations=%v horizon=%s", cfg.Environment, cfg.Pairs, cfg.Stream.Durations, cfg.Model.Horizon)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
