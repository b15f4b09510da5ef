package sync

import (
	"fmt"

	"github.com/nwdata/ducksync/internal/config"
	"github.com/nwdata/ducksync/internal/dest"
	"github.com/nwdata/ducksync/internal/dest/lakehouse"
	"github.com/nwdata/ducksync/internal/dest/objectstore"
	"github.com/nwdata/ducksync/internal/dest/postgres"
	"github.com/nwdata/ducksync/internal/errs"
	"github.com/nwdata/ducksync/internal/logger"
)

// NewStrategy selects the destination implementation from configuration.
// The exporter is only used by the object-store variant, which delegates
// file writing to the source engine.
func NewStrategy(cfg *config.Config, exporter objectstore.Exporter, log *logger.Logger) (dest.Strategy, error) {
	switch cfg.Destination {
	case config.DestinationPostgres:
		return postgres.New(cfg.Postgres, cfg.BatchSize, cfg.TruncateBeforeLoad, log), nil
	case config.DestinationMotherDuck:
		return lakehouse.New(cfg.MotherDuck, cfg.BatchSize, cfg.TruncateBeforeLoad, log), nil
	case config.DestinationObjectStore:
		return objectstore.New(cfg.ObjectStore, exporter, log), nil
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown destination %q", cfg.Destination))
	}
}
