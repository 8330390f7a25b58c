package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/server/config"
	"github.com/systemshift/drumbeat/internal/server/graph"
)

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (graph.Store, error) {
	sc := cfg.Store
	switch sc.Backend {
	case config.BackendMemory:
		logger.Warn("Using the in-memory store; data is lost on exit")
		return graph.NewMemory(), nil
	case config.BackendSQLite:
		s, err := graph.NewSQLite(ctx, sc.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	case config.BackendNeo4j:
		s, err := graph.NewNeo4j(ctx, graph.Neo4jConfig{
			URI:      sc.Neo4j.URI,
			Username: sc.Neo4j.Username,
			Password: sc.Neo4j.Password,
			Database: sc.Neo4j.Database,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
		}
		return s, nil
	case config.BackendSPARQL:
		s, err := graph.NewSPARQL(graph.SPARQLConfig{
			QueryEndpoint:  sc.SPARQL.QueryEndpoint,
			UpdateEndpoint: sc.SPARQL.UpdateEndpoint,
			Username:       sc.SPARQL.Username,
			Password:       sc.SPARQL.Password,
			Timeout:        sc.SPARQL.Timeout,
			MaxFailures:    sc.SPARQL.MaxFailures,
			OpenTimeout:    sc.SPARQL.OpenTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure SPARQL store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
}
