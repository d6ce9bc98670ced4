package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/job-radar/internal/embedding"
	"github.com/spigell/job-radar/internal/logger"
)

const (
	defaultEmbeddingModel = "gemini-embedding-001"
	// the batch embed endpoint accepts at most 100 contents per call
	maxEmbedBatch = 100
)

type EmbedderOptions struct {
	Model      string
	MaxRetries int
	BatchSize  int
	// Dimensions truncates the output vector when positive.
	Dimensions int
}

// Embedder implements embedding.Model with the Gemini embedding endpoint.
type Embedder struct {
	models     modelsAPI
	model      string
	maxRetries int
	batchSize  int
	dimensions int
	logger     *zap.Logger
}

var _ embedding.Model = (*Embedder)(nil)

func NewEmbedder(client *genai.Client, opts EmbedderOptions, log *zap.Logger) (*Embedder, error) {
	if client == nil || client.Models == nil {
		return nil, errors.New("gemini client is not initialized")
	}
	return newEmbedder(client.Models, opts, log), nil
}

func newEmbedder(models modelsAPI, opts EmbedderOptions, log *zap.Logger) *Embedder {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultEmbeddingModel
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BatchSize <= 0 || opts.BatchSize > maxEmbedBatch {
		opts.BatchSize = maxEmbedBatch
	}

	return &Embedder{
		models:     models,
		model:      model,
		maxRetries: opts.MaxRetries,
		batchSize:  opts.BatchSize,
		dimensions: opts.Dimensions,
		logger:     logger.WithCommonFields(log, provider, model),
	}
}

// Embed returns one vector per text in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var cfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(e.dimensions))}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		var resp *genai.EmbedContentResponse
		err := retry(ctx, e.maxRetries, e.logger, func() error {
			var err error
			resp, err = e.models.EmbedContent(ctx, e.model, contents, cfg)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("embed content: %w", err)
		}

		vectors, err := vectorsOf(resp, end-start)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)

		e.logger.Debug("gemini embed batch", zap.Int("texts", end-start))
	}

	return out, nil
}

func vectorsOf(resp *genai.EmbedContentResponse, want int) ([][]float32, error) {
	if resp == nil || len(resp.Embeddings) != want {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("%w: sent %d, got %d", embedding.ErrMisaligned, want, got)
	}

	vectors := make([][]float32, 0, want)
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		for _, v := range emb.Values {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("invalid embedding value at index %d", i)
			}
		}
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}
