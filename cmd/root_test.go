package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "run-all", "sweep", "migrate"}, names)
}

func TestMigrateRequiresPostgres(t *testing.T) {
	t.Setenv("CATALOG_FILE", "catalog.yaml")
	t.Setenv("WATCH_STORE", "memory")

	root := newRootCmd()
	root.SetArgs([]string{"migrate"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WATCH_STORE=postgres")
}

func TestConfigErrorsSurface(t *testing.T) {
	t.Setenv("CATALOG_FILE", "")
	t.Setenv("CATALOG_URL", "")

	root := newRootCmd()
	root.SetArgs([]string{"sweep"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CATALOG_URL or CATALOG_FILE")
}
