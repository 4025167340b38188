package main

import (
	"context"
	"log"

	"rppg-dashboard/internal/config"
	"rppg-dashboard/internal/dashboard"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := dashboard.BuildLogger(cfg)
	d, err := dashboard.New(cfg, logger)
	if err != nil {
		logger.Error("dashboard initialization failed", "error", err)
		return
	}

	if err := d.Run(context.Background()); err != nil {
		logger.Error("dashboard runtime failed", "error", err)
	}
}
