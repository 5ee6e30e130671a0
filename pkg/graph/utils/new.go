package graphutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/graph"
	neo4jstore "github.com/papercomputeco/engram/pkg/graph/neo4j"
	"github.com/papercomputeco/engram/pkg/graph/sqlite"
)

// NewGraphStoreOpts selects and configures a graph store implementation.
type NewGraphStoreOpts struct {
	ProviderType string
	Target       string
	Username     string
	Password     string
	Logger       *zap.Logger
}

// NewGraphStore creates a graph store for the configured provider.
func NewGraphStore(ctx context.Context, o *NewGraphStoreOpts) (graph.Store, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlite.NewStore(sqlite.Config{
			DBPath: o.Target,
		}, o.Logger)
	case "neo4j":
		return neo4jstore.NewStore(ctx, neo4jstore.Config{
			URI:      o.Target,
			Username: o.Username,
			Password: o.Password,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported graph store provider: %s", o.ProviderType)
	}
}
