package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inframehq/inframe/pkg/config"
	"github.com/inframehq/inframe/pkg/mcpserver"
)

func newContextCmd() *cobra.Command {
	var cacheFile string

	contextCmd := &cobra.Command{
		Use:   "context",
		Short: "Print the cached screen context",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(nil)
			if err != nil {
				return err
			}

			store, err := openStore(cfg, cacheFile)
			if err != nil {
				return err
			}

			content, err := store.Read()
			if err != nil {
				return err
			}
			if content == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), mcpserver.NoContextMessage)
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), content)
			return err
		},
	}

	contextCmd.Flags().StringVar(&cacheFile, "cache-file", "",
		"read this cache file instead of the day-keyed default")

	return contextCmd
}
