package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inframehq/inframe/pkg/config"
	"github.com/inframehq/inframe/pkg/logging"
	"github.com/inframehq/inframe/pkg/mcpserver"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		addr      string
		cacheFile string
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cached screen context over MCP",
		Long:  "Runs the read-only MCP server so AI assistants can pull the latest recorded screen context as tools or a resource.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(nil)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger("inframe-mcp")
			if err != nil {
				// Logger fell back to stderr due to initialization failure
				logger.Warnf("Failed to initialize log file, using stderr fallback: %v", err)
			}
			defer logger.Close()

			store, err := openStore(cfg, cacheFile)
			if err != nil {
				return err
			}

			server := mcpserver.New(store, logger)
			switch transport {
			case "stdio":
				return server.ServeStdio()
			case "http":
				if addr == "" {
					addr = cfg.ListenAddr
				}
				return server.ServeHTTP(addr)
			default:
				return fmt.Errorf("unknown transport %q (expected stdio or http)", transport)
			}
		},
	}

	serveCmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport: stdio or http")
	serveCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config)")
	serveCmd.Flags().StringVar(&cacheFile, "cache-file", "",
		"serve this cache file instead of the day-keyed default")

	return serveCmd
}
