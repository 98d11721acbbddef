package main

import (
	"context"
	"fmt"
	"log"

	"github.com/sublatesublate-design/legal-database/config"
	"github.com/sublatesublate-design/legal-database/repository"
)

func main() {
	if !config.LoadEnv() {
		log.Println("Warning: No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.UseMemoryStore() {
		log.Fatal("DATABASE_URL must point at Postgres to create the schema")
	}

	ctx := context.Background()
	pool, err := repository.OpenPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	err = repository.Migrate(ctx, pool, func(name string) {
		log.Printf("✓ %s", name)
	})
	if err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	fmt.Printf("\n✓ Schema version %s is ready\n", repository.SchemaVersion)
}
