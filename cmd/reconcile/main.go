package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"mediastore/internal/config"
	"mediastore/internal/database"
	"mediastore/internal/domain/gc"
	"mediastore/internal/domain/registry"
)

// reconcile sweeps zero-refcount registry rows left behind by crashes
// between a decrement-to-zero and its async physical delete. Safe to run
// at any time; re-referenced hashes survive the re-check.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}

	registryRepo := registry.NewRepository(db)
	worker := gc.NewWorker(registryRepo, cfg.MediaRoot, 1, cfg.GCSweepInterval)
	worker.Sweep(context.Background())
	log.Println("reconciliation sweep complete")
}
