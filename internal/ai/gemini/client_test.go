package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/jobhound/internal/ai"
)

type fakeModels struct {
	mu    sync.Mutex
	calls []modelCallRecord
	queue map[string][]fakeModelResponse
}

type modelCallRecord struct {
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

type fakeModelResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func newFakeModels() *fakeModels {
	return &fakeModels{queue: make(map[string][]fakeModelResponse)}
}

func (f *fakeModels) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeModelResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]

	var prompt string
	for _, c := range contents {
		for _, p := range c.Parts {
			prompt += p.Text
		}
	}
	f.calls = append(f.calls, modelCallRecord{model: model, prompt: prompt, config: config})
	return res.resp, res.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func noSleep(t *testing.T) {
	t.Helper()
	originalSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = originalSleep })
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	noSleep(t)

	models := newFakeModels()
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	models.enqueue("gemini-pro", nil, tempErr)
	models.enqueue("gemini-pro", textResponse("retry ok"), nil)

	g := &Generator{
		models:     models,
		model:      "gemini-pro",
		maxRetries: 2,
		logger:     zap.NewNop(),
	}

	schema := &genai.Schema{Type: genai.TypeObject}
	output, err := g.Complete(context.Background(), "message", schema)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}

	for _, call := range models.calls {
		if call.config == nil || call.config.ResponseMIMEType != "application/json" {
			t.Fatalf("expected json response mime type")
		}
		if call.config.ResponseSchema != schema {
			t.Fatalf("expected response schema to be passed through")
		}
		if call.prompt != "message" {
			t.Fatalf("unexpected prompt: %q", call.prompt)
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	noSleep(t)

	models := newFakeModels()
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models.enqueue("gemini-pro", nil, tempErr)
	models.enqueue("gemini-pro", nil, tempErr)

	g := newGenerator(models, "gemini-pro", 2, zap.NewNop())

	_, err := g.Complete(context.Background(), "msg", nil)
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped api error, got %v", err)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := newFakeModels()
	quotaErr := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}
	models.enqueue("gemini-pro", nil, quotaErr)

	g := newGenerator(models, "gemini-pro", 3, zap.NewNop())

	_, err := g.Complete(context.Background(), "msg", nil)
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	models := newFakeModels()
	models.enqueue("gemini-pro", nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := newGenerator(models, "gemini-pro", 3, zap.NewNop())
	if _, err := g.Complete(context.Background(), "msg", nil); err == nil {
		t.Fatal("expected error")
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorEmptyResponse(t *testing.T) {
	models := newFakeModels()
	models.enqueue("gemini-pro", textResponse("  ", ""), nil)

	g := newGenerator(models, "gemini-pro", 1, nil)
	_, err := g.Complete(context.Background(), "msg", nil)
	if !errors.Is(err, ai.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGeneratorJoinsParts(t *testing.T) {
	models := newFakeModels()
	models.enqueue("gemini-pro", textResponse(`{"results":`, `[]}`), nil)

	g := newGenerator(models, "gemini-pro", 1, nil)
	out, err := g.Complete(context.Background(), "msg", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{\"results\":\n[]}" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		retry bool
		delay time.Duration
	}{
		{name: "server error", err: genai.APIError{Code: 500}, retry: true, delay: 2 * retryBaseDelay},
		{name: "short quota hint", err: genai.APIError{Code: 429, Message: "retry in 5.5s"}, retry: true, delay: 5500 * time.Millisecond},
		{name: "quota without hint", err: genai.APIError{Code: 429}, retry: true, delay: 2 * retryBaseDelay},
		{name: "long quota hint", err: genai.APIError{Code: 429, Message: "retry after 120 seconds"}},
		{name: "not found", err: genai.APIError{Code: 404}},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			delay, retry := retryDelay(tt.err, 2)
			if retry != tt.retry || delay != tt.delay {
				t.Fatalf("retryDelay = %v/%t, expected %v/%t", delay, retry, tt.delay, tt.retry)
			}
		})
	}
}
