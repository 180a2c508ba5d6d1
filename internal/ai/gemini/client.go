package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/jobhound/internal/ai"
	"github.com/spigell/jobhound/internal/logger"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 2
	temperature       = 0.3

	retryBaseDelay = 2 * time.Second
	maxRetryDelay  = 30 * time.Second
)

var sleep = time.Sleep

var retryAfterRe = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

type modelService interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client for single-shot JSON completions.
type Generator struct {
	models     modelService
	model      string
	maxRetries int
	logger     *zap.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewClient creates the GenAI client shared by all generators of a process.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return client, nil
}

// NewGenerator creates a Generator for model on top of an existing client.
func NewGenerator(client *genai.Client, model string, maxRetries int, log *zap.Logger) (*Generator, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	return newGenerator(client.Models, model, maxRetries, log), nil
}

func newGenerator(models modelService, model string, maxRetries int, log *zap.Logger) *Generator {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Generator{
		models:     models,
		model:      model,
		maxRetries: maxRetries,
		logger:     logger.WithCommonFields(log, "gemini", model),
	}
}

// Complete sends the prompt and returns the text of the response. Transient
// API errors are retried up to maxRetries attempts in total.
func (g *Generator) Complete(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err == nil {
			return responseText(resp)
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == g.maxRetries {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		sleep(delay)
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("generate content: %w", lastErr)
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ai.ErrEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ai.ErrEmptyResponse
	}

	return output, nil
}

// retryDelay reports whether err is transient and how long to wait before
// the next attempt. Quota errors asking for a long pause are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		if m := retryAfterRe.FindStringSubmatch(apiErr.Message); m != nil {
			seconds, perr := strconv.ParseFloat(m[1], 64)
			if perr == nil {
				d := time.Duration(seconds * float64(time.Second))
				if d > maxRetryDelay {
					return 0, false
				}
				return d, true
			}
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
	default:
		return 0, false
	}

	return time.Duration(attempt) * retryBaseDelay, true
}
