package providers

import "context"

// Entity is one medical entity extracted from free text.
type Entity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score,omitempty"`
}

// EntityExtractor extracts medical entities from text (the local NLP service).
type EntityExtractor interface {
	Analyze(ctx context.Context, text string) ([]Entity, error)
}

// TextGenerator produces a short completion for a prompt (the local LLM service).
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
