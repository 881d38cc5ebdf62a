package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/tazhate/familycal/config"
	"github.com/tazhate/familycal/internal/log"
	"github.com/tazhate/familycal/internal/seed"
	"github.com/tazhate/familycal/internal/service"
	"github.com/tazhate/familycal/internal/storage"
)

func main() {
	path := flag.String("f", "fixtures.yaml", "YAML file with series and events")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("load .env", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", err)
		os.Exit(1)
	}

	fixtures, err := seed.Load(*path)
	if err != nil {
		log.Error("load fixtures", err, "path", *path)
		os.Exit(1)
	}

	store, err := storage.New(cfg.DatabasePath, cfg.Timezone)
	if err != nil {
		log.Error("init storage", err, "path", cfg.DatabasePath)
		os.Exit(1)
	}
	defer store.Close()

	svc := service.NewSeriesService(store, cfg.Timezone, cfg.ExpandMaxCount)
	n, err := seed.Apply(context.Background(), svc, fixtures, cfg.Timezone)
	if err != nil {
		log.Error("apply fixtures", err, "created", n)
		store.Close()
		os.Exit(1)
	}
	log.Info("fixtures applied", "family", fixtures.Family, "created", n)
}
