package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ThorfinnThor/radar/internal/config"
	"github.com/ThorfinnThor/radar/internal/httpapi"
	"github.com/ThorfinnThor/radar/internal/observability"
	"github.com/ThorfinnThor/radar/internal/pipeline"
	"github.com/ThorfinnThor/radar/internal/platform/logger"
	"github.com/ThorfinnThor/radar/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config (missing file uses built-in defaults)")
	companiesPath := flag.String("companies", "", "optional YAML file with the watchlist companies")
	dbFlag := flag.String("db", "", "path to SQLite database file (overrides RADAR_DB_PATH and database.path)")
	flag.Parse()

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	lg, err := logger.New(os.Getenv("RADAR_LOG_MODE"))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()
	if os.Getenv("RADAR_LOG_MODE") == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	path := *configPath
	if _, statErr := os.Stat(path); statErr != nil {
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
		ServiceName: "radar-api",
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

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(st, pipeline.NewScorer(cfg, st, nil), lg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	lg.Info("radar-api listening", "addr", addr, "db", cfg.Database.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Fatal("serve", "error", err)
	}
}
