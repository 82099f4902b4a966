package store

import (
	"context"
	"fmt"

	"github.com/saifalharthi/materialize/internal/catalog"
)

// LoadCatalog rebuilds a catalog registry from every stored dataflow.
// The batch is registered atomically, so a store whose contents no longer
// form a valid catalog returns the catalog error and no registry.
func (s *Store) LoadCatalog(ctx context.Context) (*catalog.Registry, error) {
	dataflows, err := s.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	reg := catalog.NewRegistry()
	if err := reg.RegisterAll(dataflows); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return reg, nil
}

// SaveCatalog writes every dataflow of reg in build order, assigning
// consecutive seq values starting at next. Tail sinks are skipped. It
// returns the seq following the last one written.
func (s *Store) SaveCatalog(ctx context.Context, reg *catalog.Registry, next int64) (int64, error) {
	for _, name := range reg.BuildOrder() {
		d, ok := reg.Get(name)
		if !ok {
			continue
		}
		if err := s.WriteDataflow(ctx, next, d); err != nil {
			if IsNotPersistable(err) {
				continue
			}
			return next, fmt.Errorf("save catalog: %w", err)
		}
		next++
	}
	return next, nil
}
