package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remuxkit/internal/handlers"
	"remuxkit/internal/jobs"
	"remuxkit/internal/libav"
	"remuxkit/internal/logging"
	"remuxkit/internal/memory"
	"remuxkit/internal/metrics"
	"remuxkit/internal/middleware"
	"remuxkit/internal/startup"
	"remuxkit/internal/thumbnail"
	"remuxkit/internal/workers"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	startTime := time.Now()
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	fw := libav.New(libav.Config{LogLevel: config.FFmpegLogLevel})
	startup.LogFrameworkInit(libav.Version(), nil)
	defer thumbnail.ShutdownVips()

	// Initialize job history
	dbStart := time.Now()
	store, err := jobs.Open(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer store.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	metrics.InitializeMetrics()
	collector := metrics.NewCollector(store, 30*time.Second)

	memMonitor := memory.NewMonitor(memory.DefaultConfig())
	memMonitor.Start()
	defer memMonitor.Stop()

	numWorkers := workers.Resolve(config.JobWorkers, 16)
	startup.LogWorkersInit(numWorkers, config.JobTimeout)
	runner := jobs.NewRunner(store, fw, jobs.RunnerConfig{
		WorkDir:           config.WorkDir,
		OutputDir:         config.OutputDir,
		Workers:           numWorkers,
		Timeout:           config.JobTimeout,
		DefaultSampleRate: config.DefaultSampleRate,
		Gate:              memMonitor,
	})

	// Running jobs are canceled by runner.Stop, after the servers stop.
	if err := runner.Start(context.Background()); err != nil {
		startup.LogFatal("Failed to start job runner: %v", err)
	}

	h := handlers.New(runner, store, config)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.RequestID(middleware.Logger(loggingConfig)(router))

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	servers := []*http.Server{srv}

	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		servers = append(servers, &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		})
		collector.Start()
		defer collector.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(runner, servers)
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := g.Wait(); err != nil {
		logging.Error("Server error: %v", err)
		os.Exit(1)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", h.SubmitJob).Methods("POST")
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id:[0-9]+}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id:[0-9]+}", h.CancelJob).Methods("DELETE")
	api.HandleFunc("/jobs/{id:[0-9]+}/output", h.GetJobOutput).Methods("GET")
	api.HandleFunc("/uploads/{name}", h.UploadInput).Methods("PUT")

	return r
}

func shutdown(runner *jobs.Runner, servers []*http.Server) error {
	startup.LogShutdownInitiated("signal")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP servers")
	var errs []error
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logging.Warn("Server shutdown error: %v", err)
			errs = append(errs, err)
		}
	}
	startup.LogShutdownStepComplete("HTTP servers stopped")

	startup.LogShutdownStep("Stopping job runner")
	if err := runner.Stop(); err != nil {
		errs = append(errs, err)
	}
	startup.LogShutdownStepComplete("Job runner stopped")

	startup.LogShutdownComplete()
	return errors.Join(errs...)
}
