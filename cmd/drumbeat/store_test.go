package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/server/config"
	"github.com/systemshift/drumbeat/internal/server/graph"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	s, err := openStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &graph.MemoryStore{}, s)

	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "drumbeat.db")
	s, err = openStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &graph.SQLiteStore{}, s)
	require.NoError(t, s.Close(ctx))

	cfg.Store.Backend = "oracle"
	_, err = openStore(ctx, cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := rootCmd()
	names := []string{}
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "version")
	assert.NotNil(t, cmd.Commands()[0].Flags().Lookup("config"))
}
