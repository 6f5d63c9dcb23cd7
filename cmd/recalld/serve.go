package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/httpapi"
	"github.com/fyrsmithlabs/recalld/internal/ingest"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/mcp"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/telemetry"
	"github.com/fyrsmithlabs/recalld/internal/vectorindex"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx)
}

// run initializes all dependencies and blocks until the context is
// cancelled:
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Creates the embedding provider and vector index
//  4. Wires the ingestion and retrieval services into the MCP server
//  5. Starts the optional HTTP sidecar
//  6. Serves MCP on stdio until shutdown
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting recalld",
		zap.String("version", version),
		zap.String("index_provider", cfg.Index.Provider),
		zap.String("embedding_provider", cfg.Embeddings.Provider))

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.NewProvider(cfg.BuildEmbeddings())
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	defer func() {
		_ = embedder.Close()
	}()

	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
		zap.Int("dimension", embedder.Dimension()))

	index, err := vectorindex.New(cfg.BuildIndex(embedder.Dimension()))
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			logger.Warn("index close failed", zap.Error(err))
		}
	}()

	ingestSvc, err := ingest.NewService(cfg.BuildIngest(), embedder, index, logger)
	if err != nil {
		return fmt.Errorf("creating ingestion service: %w", err)
	}

	retrievalSvc, err := retrieval.NewService(cfg.BuildRetrieval(), embedder, index, logger)
	if err != nil {
		return fmt.Errorf("creating retrieval service: %w", err)
	}

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "recalld",
		Version: version,
		Logger:  logger,
	}, ingestSvc, retrievalSvc)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	if cfg.Server.HTTPEnabled {
		httpSrv, err := httpapi.NewServer(index, logger, httpapi.Config{
			Addr: cfg.Server.HTTPAddr,
		})
		if err != nil {
			return fmt.Errorf("creating http server: %w", err)
		}

		go func() {
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown failed", zap.Error(err))
			}
		}()
	}

	// Blocks until the client disconnects or the context is cancelled.
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
