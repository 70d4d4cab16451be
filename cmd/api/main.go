package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bank-data-pipeline/internal/api"
	"github.com/dvloznov/bank-data-pipeline/internal/api/handlers"
	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/config"
	"github.com/dvloznov/bank-data-pipeline/internal/gcsuploader"
	"github.com/dvloznov/bank-data-pipeline/internal/insights"
	"github.com/dvloznov/bank-data-pipeline/internal/jobs/inmemory"
	"github.com/dvloznov/bank-data-pipeline/internal/llm"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/mortgage"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
	"github.com/dvloznov/bank-data-pipeline/internal/plaidclient"
)

const benchmarkCacheTTL = time.Hour

func main() {
	var (
		configPath = flag.String("config", os.Getenv("BANKDATA_CONFIG"), "Optional YAML config file (or set BANKDATA_CONFIG env)")
		port       = flag.String("port", "", "HTTP server port (overrides PORT)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	creds, err := bank.LoadCredentials(cfg.Plaid)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid Plaid configuration")
	}
	bankPipeline := pipeline.New(cfg, plaidclient.New(creds))
	log.Info().
		Str("env", string(creds.Environment)).
		Str("token_store", bankPipeline.TokenStorePath()).
		Msg("Bank data pipeline ready")

	var archiver gcsuploader.Archiver
	if cfg.Sinks.GCSBucket != "" {
		gcs, err := gcsuploader.NewGCSArchiver(ctx, cfg.Sinks.GCSBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS archiver")
		}
		defer gcs.Close()
		archiver = gcs
	} else {
		log.Warn().Msg("No GCS bucket configured - download jobs will not be archived")
	}

	generator, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		log.Warn().Err(err).Msg("LLM backend unavailable - benchmarks fall back to rule of thumb")
		generator = nil
	} else {
		log.Info().Str("backend", generator.Name()).Msg("LLM backend configured")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.Server.DownloadWorkers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	workerCtx = logger.WithContext(workerCtx, logger.WithComponent(log, "download_worker"))
	if err := jobQueue.Start(workerCtx, handlers.DownloadJobHandler(bankPipeline, archiver)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start download workers")
	}
	log.Info().Int("workers", cfg.Server.DownloadWorkers).Msg("Download workers started")

	router := api.NewRouter(cfg.Server, api.Handlers{
		Plaid:    handlers.NewPlaidHandler(bankPipeline),
		Jobs:     handlers.NewJobsHandler(jobStore, jobQueue),
		Mortgage: handlers.NewMortgageHandler(mortgage.NewClient(cfg.Mortgage.SeriesURL, cfg.Mortgage.CacheTTL), cfg.Mortgage.YourRate),
		Insights: handlers.NewInsightsHandler(bankPipeline, insights.NewBenchmarker(generator, benchmarkCacheTTL), llm.NewSelector(cfg.LLM, generator)),
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      http.TimeoutHandler(router, cfg.Server.RequestTimeout, `{"success":false,"error":"request timed out"}`),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
