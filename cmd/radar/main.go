package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThorfinnThor/radar/internal/config"
	"github.com/ThorfinnThor/radar/internal/observability"
	"github.com/ThorfinnThor/radar/internal/pipeline"
	"github.com/ThorfinnThor/radar/internal/platform/logger"
	"github.com/ThorfinnThor/radar/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config (missing file uses built-in defaults)")
	companiesPath := flag.String("companies", "", "optional YAML file with the watchlist companies")
	modeFlag := flag.String("mode", "full", "run mode: trials, companies, score or full")
	dbFlag := flag.String("db", "", "path to SQLite database file (overrides RADAR_DB_PATH and database.path)")
	flag.Parse()

	lg, err := logger.New(os.Getenv("RADAR_LOG_MODE"))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()

	mode, err := pipeline.ParseMode(*modeFlag)
	if err != nil {
		lg.Fatal("invalid mode", "error", err)
	}
	path := *configPath
	if _, statErr := os.Stat(path); statErr != nil {
		lg.Warn("config file not found, using defaults", "path", path)
		path = ""
	}
	cfg, err := config.Load(path, *companiesPath)
	if err != nil {
		lg.Fatal("load config", "error", err)
	}
	if *dbFlag != "" {
		cfg.Database.Path = *dbFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.InitOTel(ctx, lg, observability.OtelConfig{
		ServiceName: "radar",
		Environment: os.Getenv("RADAR_ENV"),
	})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	st, err := store.Open(cfg.Database.Path, store.Options{})
	if err != nil {
		lg.Fatal("open store", "path", cfg.Database.Path, "error", err)
	}
	defer st.Close()
	lg.Info("radar starting", "mode", mode, "db", cfg.Database.Path, "companies", len(cfg.Companies))

	sum, err := pipeline.FromConfig(cfg, st, lg).Run(ctx, mode)
	if err != nil {
		lg.Error("run failed", "run_id", sum.RunID, "error", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(sum)
}
