package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inframehq/inframe/pkg/cache"
	"github.com/inframehq/inframe/pkg/config"
	"github.com/inframehq/inframe/pkg/mcpserver"
)

var (
	statusHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1)

	statusLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// cacheStatus summarizes the context cache for display.
type cacheStatus struct {
	Path          string    `json:"path" yaml:"path"`
	Exists        bool      `json:"exists" yaml:"exists"`
	SizeBytes     int64     `json:"size_bytes" yaml:"size_bytes"`
	Characters    int       `json:"characters" yaml:"characters"`
	LatestSession string    `json:"latest_session,omitempty" yaml:"latest_session,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var (
		output    string
		cacheFile string
	)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the context cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(nil)
			if err != nil {
				return err
			}

			store, err := openStore(cfg, cacheFile)
			if err != nil {
				return err
			}

			status, err := collectStatus(store)
			if err != nil {
				return err
			}

			switch output {
			case "", "text":
				_, err = fmt.Fprint(cmd.OutOrStdout(), renderStatus(status, time.Now()))
				return err
			case "json":
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(status)
			case "yaml":
				data, err := yaml.Marshal(status)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			default:
				return fmt.Errorf("unknown output format %q (expected text, json or yaml)", output)
			}
		},
	}

	statusCmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	statusCmd.Flags().StringVar(&cacheFile, "cache-file", "",
		"inspect this cache file instead of the day-keyed default")

	return statusCmd
}

func collectStatus(store cache.Store) (cacheStatus, error) {
	status := cacheStatus{Path: store.Path()}

	info, err := os.Stat(status.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return status, nil
		}
		return status, err
	}
	status.Exists = true
	status.SizeBytes = info.Size()
	status.UpdatedAt = info.ModTime()

	content, err := store.Read()
	if err != nil {
		return status, err
	}
	status.Characters = utf8.RuneCountInString(content)
	status.LatestSession = mcpserver.LatestSessionMarker(content)
	return status, nil
}

func renderStatus(status cacheStatus, now time.Time) string {
	var b strings.Builder
	b.WriteString(statusHeaderStyle.Render("Screen Context Cache") + "\n")

	w := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", statusLabelStyle.Render("Cache file"), status.Path)

	if !status.Exists {
		fmt.Fprintf(w, "%s\t%s\n", statusLabelStyle.Render("State"),
			statusWarnStyle.Render("no context recorded yet"))
		w.Flush()
		return b.String()
	}

	fmt.Fprintf(w, "%s\t%d bytes (%d characters)\n",
		statusLabelStyle.Render("Size"), status.SizeBytes, status.Characters)

	latest := status.LatestSession
	if latest == "" {
		latest = statusWarnStyle.Render("no sessions found")
	}
	fmt.Fprintf(w, "%s\t%s\n", statusLabelStyle.Render("Latest session"), latest)

	age := now.Sub(status.UpdatedAt).Round(time.Second)
	fmt.Fprintf(w, "%s\t%s (%s ago)\n",
		statusLabelStyle.Render("Updated"), status.UpdatedAt.Format(time.RFC3339), age)

	w.Flush()
	return b.String()
}
