package vectorutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/vector"
	qdrantdriver "github.com/papercomputeco/engram/pkg/vector/qdrant"
	"github.com/papercomputeco/engram/pkg/vector/sqlitevec"
)

// NewVectorDriverOpts selects and configures a vector driver implementation.
type NewVectorDriverOpts struct {
	ProviderType string
	Target       string
	Host         string
	Port         int
	APIKey       string
	Collection   string
	Dimensions   uint
	Logger       *zap.Logger
}

// NewVectorDriver creates a vector driver for the configured provider.
func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrantdriver.NewDriver(ctx, qdrantdriver.Config{
			Host:       o.Host,
			Port:       o.Port,
			APIKey:     o.APIKey,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
