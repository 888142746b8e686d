package clip

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/imago/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Encoder implements ai.Encoder using OpenAI-compatible multimodal embedding
// APIs. Images are submitted as base64 data URIs, which is how CLIP-family
// inference servers accept binary input on the /v1/embeddings endpoint.
type Encoder struct {
	embedder  embeddings.Embedder
	dimension int
	logger    *slog.Logger
}

var _ ai.Encoder = (*Encoder)(nil)

// newEncoder is an internal constructor that returns the concrete type.
func newEncoder(config *ai.Config) (*Encoder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, err
	}

	return &Encoder{
		embedder:  embedder,
		dimension: config.Dimension,
		logger:    slog.Default().With("component", "clip-encoder"),
	}, nil
}

// NewEncoder creates a new encoder using the provided configuration.
//
// Returns ai.Encoder interface to enforce abstraction.
func NewEncoder(config *ai.Config) (ai.Encoder, error) {
	return newEncoder(config)
}

// Encode generates an embedding vector for one image.
func (e *Encoder) Encode(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("encode: empty image")
	}

	e.logger.Debug("generating embedding for image", "bytes", len(image))

	uri := dataURI(image)
	vectors, err := e.embedder.EmbedDocuments(ctx, []string{uri})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}

	if len(vectors) == 0 {
		return nil, fmt.Errorf("encode: embedder returned no vectors")
	}

	vector := vectors[0]
	if e.dimension > 0 && len(vector) != e.dimension {
		return nil, fmt.Errorf("encode: got %d dimensions, want %d", len(vector), e.dimension)
	}

	return vector, nil
}

// dataURI wraps raw image bytes in a base64 data URI with a sniffed MIME type.
func dataURI(image []byte) string {
	mime := http.DetectContentType(image)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}
