package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inframehq/inframe/pkg/config"
	"github.com/inframehq/inframe/pkg/logging"
	"github.com/inframehq/inframe/pkg/recorder"
	"github.com/inframehq/inframe/pkg/types"
)

const stopTimeout = 30 * time.Second

func newRecordCmd() *cobra.Command {
	var (
		duration     time.Duration
		includeApps  []string
		excludeApps  []string
		mode         string
		visualTask   string
		printContext bool
		cacheFile    string
		model        string
		baseURL      string
		apiKey       string
	)

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record screen context for a fixed duration",
		Long:  "Records the screen into rolling clips, analyzes each clip, and caches the integrated context narrative for the MCP server and queries.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if duration <= 0 {
				return fmt.Errorf("duration must be positive, got %s", duration)
			}

			recordingMode, err := types.ParseRecordingMode(mode)
			if err != nil {
				return err
			}

			cfg, err := config.Load(nil)
			if err != nil {
				return err
			}

			analyzer, err := config.BuildAnalyzer(cfg, model, baseURL, apiKey)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger("inframe")
			if err != nil {
				// Logger fell back to stderr due to initialization failure
				logger.Warnf("Failed to initialize log file, using stderr fallback: %v", err)
			}
			defer logger.Close()

			store, err := openStore(cfg, cacheFile)
			if err != nil {
				return err
			}

			registry := recorder.NewRegistry(analyzer, store, logger)

			params := cfg.SessionParams()
			params.Mode = recordingMode
			params.IncludeApps = includeApps
			params.ExcludeApps = excludeApps
			params.BufferDuration = duration
			if cmd.Flags().Changed("visual-task") {
				params.VisualTask = visualTask
			}

			id, err := registry.CreateSession(params)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				<-sigChan
				cancel()
			}()

			if err := registry.Start(ctx, id); err != nil {
				return fmt.Errorf("failed to start recording: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recording started (ID: %s...) for %s...\n", id[:8], duration)

			select {
			case <-time.After(duration):
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout(), "Interrupted by user.")
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			registry.Stop(stopCtx, id)
			fmt.Fprintln(cmd.OutOrStdout(), "Recording stopped.")
			fmt.Fprintf(cmd.OutOrStdout(), "Context cached at: %s\n", registry.CacheFilePath())

			if printContext {
				content, err := store.Read()
				if err != nil {
					return fmt.Errorf("failed to read cache file: %w", err)
				}
				if content == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Cache file not found - no context was generated during recording")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\n--- Cached Context ---\n\n%s\n", content)
			}
			return nil
		},
	}

	recordCmd.Flags().DurationVarP(&duration, "duration", "d", 30*time.Second, "recording duration")
	recordCmd.Flags().StringSliceVar(&includeApps, "include-apps",
		[]string{"Visual Studio Code", "Cursor", "PyCharm", "IntelliJ IDEA"},
		"app names to include (empty matches everything)")
	recordCmd.Flags().StringSliceVar(&excludeApps, "exclude-apps", nil,
		"app names to exclude; exclusion wins over inclusion")
	recordCmd.Flags().StringVar(&mode, "recording-mode", string(types.RecordingModeFullScreen),
		"recording mode: full_screen or window_only")
	recordCmd.Flags().StringVar(&visualTask, "visual-task", types.DefaultVisualTask,
		"visual analysis prompt applied to every captured frame")
	recordCmd.Flags().BoolVar(&printContext, "print-context", false,
		"print the cached context after recording")
	recordCmd.Flags().StringVar(&cacheFile, "cache-file", "",
		"write context to this file instead of the day-keyed default")
	recordCmd.Flags().StringVar(&model, "model", "", "OpenAI model (default from config)")
	recordCmd.Flags().StringVar(&baseURL, "base-url", "", "OpenAI API base URL")
	recordCmd.Flags().StringVar(&apiKey, "api-key", "", "OpenAI API key (default from OPENAI_API_KEY)")

	return recordCmd
}
