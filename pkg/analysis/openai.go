package analysis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/inframehq/inframe/pkg/types"
)

const (
	// DefaultModel is used when no model override is supplied.
	DefaultModel = "gpt-4o"

	defaultMaxTokens   = 1024
	defaultTemperature = 0.1

	// maxContextTokens bounds the context sent with a question. Older
	// narrative is dropped first.
	maxContextTokens = 6000

	speakersLinePrefix = "speakers:"
)

const answerSystemPrompt = `You answer questions about what happened in a screen recording, using only the provided recording context.
Respond with a single JSON object and nothing else:
{"answer": "<answer text>", "confidence": <number between 0.0 and 1.0>}
For yes/no questions the answer text must start with YES or NO.
If the context does not contain the information, answer with low confidence.`

// OpenAIAnalyzer implements Analyzer against the OpenAI chat completions
// API or any compatible endpoint.
type OpenAIAnalyzer struct {
	client      openai.Client
	model       string
	baseURL     string
	maxTokens   int64
	temperature float64
	tokenizer   *Tokenizer
}

// Option is a function that configures an OpenAIAnalyzer.
type Option func(*OpenAIAnalyzer)

// WithModel sets the model to use for analysis calls.
func WithModel(model string) Option {
	return func(a *OpenAIAnalyzer) {
		a.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
// This enables using Azure OpenAI, local models, or other compatible services.
func WithBaseURL(baseURL string) Option {
	return func(a *OpenAIAnalyzer) {
		a.baseURL = baseURL
	}
}

// WithMaxTokens caps the length of model responses.
func WithMaxTokens(n int64) Option {
	return func(a *OpenAIAnalyzer) {
		a.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *OpenAIAnalyzer) {
		a.temperature = t
	}
}

// NewOpenAIAnalyzer creates an analyzer with the given API key.
//
// If apiKey is empty, it will attempt to read from the OPENAI_API_KEY
// environment variable. If no base URL was set via WithBaseURL, the
// OPENAI_BASE_URL environment variable is checked.
func NewOpenAIAnalyzer(apiKey string, opts ...Option) (*OpenAIAnalyzer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	a := &OpenAIAnalyzer{
		model:       DefaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
		tokenizer:   NewTokenizer(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.baseURL == "" {
		a.baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if a.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(a.baseURL))
	}
	a.client = openai.NewClient(clientOpts...)

	return a, nil
}

// Model returns the model name being used.
func (a *OpenAIAnalyzer) Model() string {
	return a.model
}

// AnalyzeFrame describes one frame using the vision endpoint. The model is
// asked to append a speakers line, which is split out of the description.
func (a *OpenAIAnalyzer) AnalyzeFrame(ctx context.Context, req FrameRequest) (types.Analysis, error) {
	task := req.Task
	if task == "" {
		task = types.DefaultVisualTask
	}
	system := task + "\n\nIf people or meeting participants are identifiable on screen, end your response with a line \"Speakers: name1, name2\". Otherwise omit the line."

	content, err := a.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart("Describe this frame from the recording."),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: req.ImageDataURL,
			}),
		}),
	}, a.maxTokens)
	if err != nil {
		return types.Analysis{}, fmt.Errorf("frame analysis failed: %w", err)
	}

	text, speakers := splitSpeakers(content)
	return types.Analysis{
		ClipID:    req.ClipID,
		Text:      text,
		Speakers:  speakers,
		Frames:    1,
		CreatedAt: time.Now(),
	}, nil
}

// AnswerQuestion answers req.Question against req.Context. The context is
// trimmed to the token budget, dropping the oldest narrative first.
func (a *OpenAIAnalyzer) AnswerQuestion(ctx context.Context, req QuestionRequest) (Answer, error) {
	trimmed := a.tokenizer.Truncate(req.Context, maxContextTokens)
	user := fmt.Sprintf("Recording context:\n%s\n\nQuestion: %s", trimmed, req.Question)

	content, err := a.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(answerSystemPrompt),
		openai.UserMessage(user),
	}, a.maxTokens)
	if err != nil {
		return Answer{}, fmt.Errorf("question failed: %w", err)
	}

	return ParseAnswer(content), nil
}

// Summarize compacts a narrative to roughly budgetTokens tokens.
func (a *OpenAIAnalyzer) Summarize(ctx context.Context, text string, budgetTokens int) (string, error) {
	maxTokens := a.maxTokens
	if budgetTokens > 0 {
		maxTokens = int64(budgetTokens)
	}
	system := fmt.Sprintf("You compact a chronological screen recording narrative to at most %d tokens. Preserve timestamps, application names, file names and speaker names. Keep the most recent events in the most detail.", budgetTokens)

	content, err := a.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(text),
	}, maxTokens)
	if err != nil {
		return "", fmt.Errorf("summarize failed: %w", err)
	}

	return strings.TrimSpace(content), nil
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, maxTokens int64) (string, error) {
	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.model),
		Messages:    messages,
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(a.temperature),
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// splitSpeakers removes the trailing speakers line from a frame
// description and returns the names it carried.
func splitSpeakers(content string) (string, []string) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	var speakers []string
	kept := lines[:0]

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToLower(trimmed), speakersLinePrefix) {
			kept = append(kept, line)
			continue
		}
		raw := strings.TrimSpace(trimmed[len(speakersLinePrefix):])
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" || strings.EqualFold(name, "none") {
				continue
			}
			speakers = append(speakers, name)
		}
	}

	return strings.TrimSpace(strings.Join(kept, "\n")), speakers
}
