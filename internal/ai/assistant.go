package ai

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the service answers without any text.
var ErrEmptyResponse = errors.New("empty response from reasoning service")

// Generator completes a prompt, constraining the answer to schema when it is set.
type Generator interface {
	Complete(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
	Model() string
}
