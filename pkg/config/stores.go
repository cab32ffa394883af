package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittometa/pkg/filemeta"
	filemetabadger "github.com/marmos91/dittometa/pkg/filemeta/badger"
	filemetamemory "github.com/marmos91/dittometa/pkg/filemeta/memory"
)

// CreateStore creates the metadata store selected by the configuration.
func CreateStore(ctx context.Context, cfg StoreConfig) (filemeta.Store, error) {
	switch cfg.Type {
	case "memory":
		return filemetamemory.NewMemoryStore(), nil
	case "badger":
		return createBadgerStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}

// createBadgerStore decodes the BadgerDB subsection and opens the store.
func createBadgerStore(ctx context.Context, cfg StoreConfig) (filemeta.Store, error) {
	var badgerCfg filemetabadger.BadgerStoreConfig
	if err := mapstructure.Decode(cfg.Badger, &badgerCfg); err != nil {
		return nil, fmt.Errorf("invalid badger config: %w", err)
	}
	store, err := filemetabadger.NewBadgerStore(ctx, badgerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return store, nil
}
