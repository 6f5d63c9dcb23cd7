// Recalld is an MCP server exposing semantic search over a vector index.
//
// The server speaks the MCP protocol on stdio; all logs go to stderr. An
// optional HTTP sidecar serves health and Prometheus metrics endpoints.
//
// Usage:
//
//	# Start the server with defaults (embedded chromem index)
//	recalld serve
//
//	# Use a config file
//	recalld serve --config ~/.config/recalld/config.yaml
//
//	# Configure via environment
//	RECALLD_EMBEDDINGS_API_KEY=sk-... RECALLD_INDEX_PROVIDER=qdrant recalld serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "recalld",
	Short: "MCP server for semantic document search",
	Long: `recalld stores documents in a vector index and exposes them to MCP
clients through store, search, read, delete, and list tools.

Documents are chunked, embedded, and written as deterministic records so
re-ingesting a document replaces its previous version.`,
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the MCP server. The protocol runs on stdio, so this command is
meant to be launched by an MCP client, not interactively.

Examples:
  # Default configuration
  recalld serve

  # Explicit config file
  recalld serve --config /etc/recalld/config.yaml`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("recalld\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configFile, "config", "", "path to config file (default ~/.config/recalld/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
