package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AngelCh415/lead-funnel/internal/config"
	"github.com/AngelCh415/lead-funnel/internal/httpx"
	"github.com/AngelCh415/lead-funnel/internal/ingest"
	"github.com/AngelCh415/lead-funnel/internal/logger"
	"github.com/AngelCh415/lead-funnel/internal/metrics"
	"github.com/AngelCh415/lead-funnel/internal/store"
	"github.com/AngelCh415/lead-funnel/internal/store/postgres"
	"github.com/AngelCh415/lead-funnel/internal/telemetry"
)

type leadStore interface {
	metrics.LeadReader
	ingest.Sink
	httpx.Pinger
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := telemetry.NewRecorder()

	var st leadStore
	if cfg.DB.DSN != "" {
		pg, err := postgres.Open(cfg.DB.DSN, lg.Named("postgres"))
		if err != nil {
			lg.Fatal("open store", zap.Error(err))
		}
		defer pg.Close()
		if err := postgres.RunMigrations(cfg.DB.DSN, cfg.DB.MigrationsPath); err != nil {
			lg.Fatal("migrations", zap.Error(err))
		}
		lg.Info("migrations applied", zap.String("path", cfg.DB.MigrationsPath))
		st = pg
	} else {
		lg.Warn("DATABASE_DSN not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	engine := metrics.NewService(st, lg.Named("engine"), rec, metrics.Options{
		PotentialRate: decimal.NewFromFloat(cfg.Engine.PotentialRate),
		ChunkSize:     cfg.Engine.ScanChunkSize,
		DefaultLimit:  cfg.Engine.PageLimitDefault,
		MaxLimit:      cfg.Engine.PageLimitMax,
	})

	cl := ingest.NewHTTPClient(cfg.Feeds.HTTPTimeout)
	etl := ingest.NewETL(cl, st, engine, lg.Named("ingest"), rec, cfg.Feeds)

	if cfg.KafkaEnabled() {
		reader := ingest.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.StageTopic, cfg.Kafka.GroupID)
		consumer := ingest.NewStageConsumer(reader, st, lg.Named("stage-consumer"), rec)
		go func() {
			lg.Info("stage consumer started", zap.String("topic", cfg.Kafka.StageTopic))
			if err := consumer.Run(ctx); err != nil {
				lg.Error("stage consumer stopped", zap.Error(err))
			}
		}()
	}

	r := httpx.NewRouter(httpx.Deps{
		Log:    lg,
		Rec:    rec,
		Engine: engine,
		ETL:    etl,
		Store:  st,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		lg.Info("starting server", zap.String("port", cfg.HTTP.Port), zap.String("env", cfg.Env))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
	lg.Info("server stopped")
}
