// Package analysis turns captured clips into textual context using a
// vision-capable language model, and answers polled questions against
// that context.
package analysis

import (
	"context"

	"github.com/inframehq/inframe/pkg/types"
)

// FrameRequest asks the backend to describe a single video frame.
type FrameRequest struct {
	// ClipID identifies the clip the frame was extracted from.
	ClipID string
	// ImageDataURL is the frame encoded as a base64 data URL.
	ImageDataURL string
	// Task is the visual instruction, e.g. "describe the screen content".
	Task string
}

// QuestionRequest asks the backend to answer a question against
// accumulated recording context.
type QuestionRequest struct {
	Question string
	Context  string
}

// Answer is a parsed model response to a polled question.
type Answer struct {
	// Text is the answer body. For yes/no style questions the model is
	// instructed to lead with YES or NO.
	Text string
	// Confidence is the backend's self-reported confidence in [0,1].
	Confidence float64
}

// Analyzer is the language-model backend for frame description, question
// answering, and narrative compaction.
type Analyzer interface {
	// AnalyzeFrame describes one frame. Speakers visible in the frame
	// (meeting tiles, participant lists) are reported when identifiable.
	AnalyzeFrame(ctx context.Context, req FrameRequest) (types.Analysis, error)

	// AnswerQuestion answers req.Question using only req.Context.
	AnswerQuestion(ctx context.Context, req QuestionRequest) (Answer, error)

	// Summarize compacts text down to roughly budgetTokens tokens while
	// preserving the most recent events.
	Summarize(ctx context.Context, text string, budgetTokens int) (string, error)
}
