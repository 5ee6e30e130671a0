package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/embeddings/ollama"
	"github.com/papercomputeco/engram/pkg/embeddings/openai"
)

// NewEmbedderOpts selects and configures an embedder implementation.
type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
}

// NewEmbedder creates an embedder for the configured provider.
func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewEmbedder(ollama.Config{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case "openai":
		return openai.NewEmbedder(openai.Config{
			BaseURL: o.TargetURL,
			Model:   o.Model,
			APIKey:  o.APIKey,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
