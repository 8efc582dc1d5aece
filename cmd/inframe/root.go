package main

import (
	"github.com/spf13/cobra"

	"github.com/inframehq/inframe/pkg/cache"
	"github.com/inframehq/inframe/pkg/config"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "inframe",
		Short:         "Screen context recorder and query engine",
		Long:          "inframe records your screen into a rolling context narrative, answers questions against it, and serves the cached context to AI assistants over MCP.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newRecordCmd(),
		newServeCmd(),
		newStatusCmd(),
		newContextCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// openStore resolves the context cache store, honoring a --cache-file
// override over the configured day-keyed root.
func openStore(cfg config.Config, cacheFile string) (cache.Store, error) {
	if cacheFile != "" {
		return cache.NewFileStoreAt(cacheFile), nil
	}
	return cache.NewFileStore(cfg.CacheRoot)
}
