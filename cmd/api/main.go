package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payledger/payledger/internal/api"
	"github.com/payledger/payledger/internal/config"
	"github.com/payledger/payledger/internal/service"
	"github.com/payledger/payledger/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	if err := store.Migrate(cfg.DBSource); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	dbPool, err := pgxpool.New(context.Background(), cfg.DBSource)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	ledgerStore := store.New(dbPool)
	processor := service.NewTransferProcessor(ledgerStore)
	handler := api.NewHandler(ledgerStore, processor)

	r := mux.NewRouter()
	r.Use(api.RequestLogger(logger))
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheck)
	handler.Register(r)

	logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
