package analysis

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/inframehq/inframe/pkg/types"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseAnswer extracts a structured answer from a raw model response.
// It accepts bare JSON, fenced JSON blocks, and JSON embedded in prose.
// A response with no parsable JSON is treated as a plain-text answer with
// zero confidence.
func ParseAnswer(raw string) Answer {
	trimmed := strings.TrimSpace(raw)

	for _, candidate := range jsonCandidates(trimmed) {
		if answer, ok := decodeAnswer(candidate); ok {
			return answer
		}
	}

	return Answer{Text: trimmed}
}

// jsonCandidates returns substrings that might hold the answer object, in
// decreasing order of confidence.
func jsonCandidates(s string) []string {
	var candidates []string
	if s != "" {
		candidates = append(candidates, s)
	}

	for _, match := range fencedBlockPattern.FindAllStringSubmatch(s, -1) {
		if block := strings.TrimSpace(match[1]); block != "" {
			candidates = append(candidates, block)
		}
	}

	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			candidates = append(candidates, s[start:end+1])
		}
	}

	return candidates
}

func decodeAnswer(candidate string) (Answer, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return Answer{}, false
	}

	text, ok := payload["answer"].(string)
	if !ok {
		return Answer{}, false
	}

	return Answer{
		Text:       strings.TrimSpace(text),
		Confidence: types.ClampConfidence(toFloat(payload["confidence"])),
	}, true
}

// toFloat tolerates confidence reported as a number or a numeric string.
func toFloat(v any) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
