package memory

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mrops-br/products-kv-api/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newRepo() *ProductRepository {
	return NewProductRepository(noop.NewTracerProvider().Tracer("test"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func widget() *domain.Product {
	return &domain.Product{ID: "1", Barcode: "123", Name: "Widget", Price: decimal.RequireFromString("9.99")}
}

func TestProductRepository_InsertLoad(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()

	require.NoError(t, repo.Insert(ctx, widget()))

	got, err := repo.Load(ctx, domain.ProductKey{ID: "1", Barcode: "123"})
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)

	err = repo.Insert(ctx, &domain.Product{ID: "1", Barcode: "123", Name: "Other"})
	assert.ErrorIs(t, err, domain.ErrProductAlreadyExists)

	got, err = repo.Load(ctx, domain.ProductKey{ID: "1", Barcode: "123"})
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name, "existing record must not change")
}

func TestProductRepository_SameIDDifferentBarcode(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()

	require.NoError(t, repo.Insert(ctx, widget()))
	require.NoError(t, repo.Insert(ctx, &domain.Product{ID: "1", Barcode: "456"}))

	all, err := repo.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestProductRepository_Replace(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()

	err := repo.Replace(ctx, widget())
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	require.NoError(t, repo.Save(ctx, widget()))
	require.NoError(t, repo.Replace(ctx, &domain.Product{ID: "1", Barcode: "123", Name: "Widget v2"}))

	got, err := repo.Load(ctx, domain.ProductKey{ID: "1", Barcode: "123"})
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", got.Name)
	assert.True(t, got.Price.IsZero(), "replace is a full overwrite")
}

func TestProductRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	key := domain.ProductKey{ID: "1", Barcode: "123"}

	assert.ErrorIs(t, repo.Delete(ctx, key), domain.ErrProductNotFound)

	require.NoError(t, repo.Save(ctx, widget()))
	require.NoError(t, repo.Delete(ctx, key))

	_, err := repo.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestProductRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	require.NoError(t, repo.Save(ctx, widget()))

	got, err := repo.Load(ctx, domain.ProductKey{ID: "1", Barcode: "123"})
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := repo.Load(ctx, domain.ProductKey{ID: "1", Barcode: "123"})
	require.NoError(t, err)
	assert.Equal(t, "Widget", again.Name)
}

func TestProductRepository_ConcurrentInsertSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Insert(ctx, widget())
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrProductAlreadyExists)
	}
	assert.Equal(t, 1, succeeded)
}
