package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrops-br/products-kv-api/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewRepository_Memory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, closeStore, err := newRepository(context.Background(), &config.StoreConfig{Backend: config.BackendMemory}, noop.NewTracerProvider().Tracer("test"), logger)
	require.NoError(t, err)
	defer closeStore()

	assert.NoError(t, repo.Ping(context.Background()))
}

func TestNewRepository_UnknownBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, _, err := newRepository(context.Background(), &config.StoreConfig{Backend: "cassandra"}, noop.NewTracerProvider().Tracer("test"), logger)
	assert.ErrorContains(t, err, "cassandra")
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"Id":"1","Barcode":"123","Name":"Widget","Price":9.99},
		{"Id":"2","Barcode":"456","Name":"Gadget","Description":"Shiny","Price":"19.50"}
	]`), 0o600))

	products, err := loadSeed(path)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Widget", products[0].Name)
	assert.Equal(t, "19.5", products[1].Price.String())
}

func TestLoadSeed_Errors(t *testing.T) {
	_, err := loadSeed(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Id":"1"}`), 0o600))
	_, err = loadSeed(path)
	assert.ErrorContains(t, err, "failed to parse seed file")
}
