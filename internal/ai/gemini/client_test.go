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

	"github.com/spigell/job-radar/internal/embedding"
)

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeModels struct {
	mu      sync.Mutex
	queue   []fakeResponse
	prompts []string
	models  []string

	embedCalls [][]string
	embedErr   []error
	embedDrop  bool
	embedCfg   *genai.EmbedContentConfig
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = append(f.models, model)
	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompts = append(f.prompts, p.Text)
		}
	}
	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func (f *fakeModels) EmbedContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCfg = cfg

	var texts []string
	for _, c := range contents {
		texts = append(texts, c.Parts[0].Text)
	}
	f.embedCalls = append(f.embedCalls, texts)

	if len(f.embedErr) > 0 {
		err := f.embedErr[0]
		f.embedErr = f.embedErr[1:]
		if err != nil {
			return nil, err
		}
	}

	resp := &genai.EmbedContentResponse{}
	for _, text := range texts {
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: []float32{float32(len(text)), 1}})
	}
	if f.embedDrop {
		resp.Embeddings = resp.Embeddings[1:]
	}
	return resp, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	original := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = original })
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	noSleep(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("retry ok"), nil)

	g := newGenerator(models, Options{Model: "gemini-pro", MaxRetries: 2}, zap.NewNop())

	output, err := g.GenerateContent(context.Background(), "score this")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.prompts) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.prompts))
	}

	for i, model := range models.models {
		if model != "gemini-pro" {
			t.Fatalf("call %d used model %q", i, model)
		}
		if models.prompts[i] != "score this" {
			t.Fatalf("unexpected prompt: %q", models.prompts[i])
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	noSleep(t)

	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models.enqueue(nil, tempErr)
	models.enqueue(nil, tempErr)

	g := newGenerator(models, Options{Model: "gemini-pro", MaxRetries: 2}, zap.NewNop())

	_, err := g.GenerateContent(context.Background(), "msg")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if len(models.prompts) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.prompts))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	g := newGenerator(models, Options{Model: "gemini-pro", MaxRetries: 3}, zap.NewNop())

	_, err := g.GenerateContent(context.Background(), "msg")
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(models.prompts) != 1 {
		t.Fatalf("expected single call, got %d", len(models.prompts))
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := newGenerator(models, Options{MaxRetries: 3}, zap.NewNop())

	if _, err := g.GenerateContent(context.Background(), "msg"); err == nil {
		t.Fatal("expected error")
	}
	if len(models.prompts) != 1 {
		t.Fatalf("expected single call, got %d", len(models.prompts))
	}
	if g.Model() != defaultModel {
		t.Fatalf("expected default model, got %q", g.Model())
	}
}

func TestGeneratorRejectsEmptyInputAndOutput(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("   "), nil)

	g := newGenerator(models, Options{}, zap.NewNop())

	if _, err := g.GenerateContent(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if _, err := g.GenerateContent(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		wantRetry bool
		wantDelay time.Duration
	}{
		{name: "server error", err: genai.APIError{Code: 500}, wantRetry: true, wantDelay: time.Second},
		{name: "pointer error", err: &genai.APIError{Code: 503}, wantRetry: true, wantDelay: time.Second},
		{name: "short quota delay", err: genai.APIError{Code: 429, Message: "Please retry in 2.5s."}, wantRetry: true, wantDelay: 2500 * time.Millisecond},
		{name: "quota without hint", err: genai.APIError{Code: 429}, wantRetry: true, wantDelay: time.Second},
		{name: "not found", err: genai.APIError{Code: 404}},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			delay, ok := retryDelay(tc.err, 0)
			if ok != tc.wantRetry {
				t.Fatalf("retry = %v, want %v", ok, tc.wantRetry)
			}
			if ok && delay != tc.wantDelay {
				t.Fatalf("delay = %v, want %v", delay, tc.wantDelay)
			}
		})
	}
}

func TestEmbedderBatchesInOrder(t *testing.T) {
	models := &fakeModels{}
	e := newEmbedder(models, EmbedderOptions{BatchSize: 2, Dimensions: 768}, zap.NewNop())

	vectors, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(models.embedCalls) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(models.embedCalls))
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, want := range []float32{1, 2, 3} {
		if vectors[i][0] != want {
			t.Fatalf("vector %d out of order: %v", i, vectors[i])
		}
	}
	if models.embedCfg == nil || models.embedCfg.OutputDimensionality == nil || *models.embedCfg.OutputDimensionality != 768 {
		t.Fatalf("expected output dimensionality to be set, got %+v", models.embedCfg)
	}
}

func TestEmbedderMisaligned(t *testing.T) {
	models := &fakeModels{embedDrop: true}
	e := newEmbedder(models, EmbedderOptions{}, zap.NewNop())

	_, err := e.Embed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, embedding.ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
}

func TestEmbedderRetries(t *testing.T) {
	noSleep(t)

	models := &fakeModels{embedErr: []error{genai.APIError{Code: 429}}}
	e := newEmbedder(models, EmbedderOptions{MaxRetries: 2}, zap.NewNop())

	vectors, err := e.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 || len(models.embedCalls) != 2 {
		t.Fatalf("expected one vector after a retry, got %d vectors in %d calls", len(vectors), len(models.embedCalls))
	}

	if out, err := e.Embed(context.Background(), nil); err != nil || out != nil {
		t.Fatalf("expected empty result for no texts, got %v %v", out, err)
	}
}
