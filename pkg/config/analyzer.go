package config

import (
	"github.com/inframehq/inframe/pkg/analysis"
)

// BuildAnalyzer creates the OpenAI analyzer from resolved configuration,
// with CLI flag values taking precedence: flags > environment > config
// file > defaults. Empty flag values defer to the configuration.
func BuildAnalyzer(cfg Config, cliModel, cliBaseURL, cliAPIKey string) (*analysis.OpenAIAnalyzer, error) {
	model := cliModel
	if model == "" {
		model = cfg.Model
	}

	baseURL := cliBaseURL
	if baseURL == "" {
		baseURL = cfg.BaseURL
	}

	apiKey := cliAPIKey
	if apiKey == "" {
		apiKey = cfg.APIKey
	}

	opts := []analysis.Option{analysis.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, analysis.WithBaseURL(baseURL))
	}

	return analysis.NewOpenAIAnalyzer(apiKey, opts...)
}
