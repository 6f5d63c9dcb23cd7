// Package mcp exposes ingestion and retrieval as MCP tools over the stdio
// transport.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls internal services directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/ingest"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
)

// Server is the MCP server that calls internal services directly.
type Server struct {
	mcp          *mcp.Server
	ingestSvc    *ingest.Service
	retrievalSvc *retrieval.Service
	metrics      *Metrics
	logger       *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "recalld")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "recalld",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server with the given services.
func NewServer(cfg *Config, ingestSvc *ingest.Service, retrievalSvc *retrieval.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Name == "" {
		cfg.Name = "recalld"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if ingestSvc == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if retrievalSvc == nil {
		return nil, fmt.Errorf("retrieval service is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:          mcpServer,
		ingestSvc:    ingestSvc,
		retrievalSvc: retrievalSvc,
		metrics:      NewMetrics(cfg.Logger),
		logger:       cfg.Logger,
	}

	s.registerTools()
	s.registerPrompts()

	return s, nil
}

// Run starts the MCP server on the stdio transport. Logging must already be
// pointed at stderr; stdout belongs to the protocol.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
