package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"vmscore/internal/adapters/rest"
	"vmscore/internal/assist"
	"vmscore/internal/blob"
	"vmscore/internal/config"
	"vmscore/internal/core"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the validation workflow HTTP server",
	Long: `Starts the HTTP API on the configured listen address. Storage, evidence
blob driver, and assistant settings come from the optional config file and
VMSCORE_* environment overrides.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to YAML config file")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}

	store, err := core.OpenStorage(core.StorageDriver(cfg.Storage.Driver), cfg.Storage.SQLitePath, cfg.Storage.PostgresDSN, core.DefaultRules())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	evidence, err := openBlob(cmd.Context(), cfg.Blob)
	if err != nil {
		return fmt.Errorf("open evidence store: %w", err)
	}

	metrics, err := core.NewPrometheusMetricsRecorder(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	service := core.NewService(store,
		core.WithAssistant(assist.WithTimeout(assist.NewHeuristic(), cfg.Assist.Timeout)),
		core.WithEvidenceStore(evidence),
		core.WithMetrics(metrics),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", rest.NewHandler(service))

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "storage", cfg.Storage.Driver, "blob", cfg.Blob.Driver)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openBlob(ctx context.Context, cfg config.Blob) (blob.Store, error) {
	switch blob.Driver(cfg.Driver) {
	case blob.DriverFilesystem:
		return blob.NewFilesystem(cfg.FSRoot)
	case blob.DriverS3:
		return blob.NewS3(ctx, blob.S3Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case blob.DriverMemory:
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
