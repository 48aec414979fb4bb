package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"neuroaid-diagnostic-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRepositoryCaches(t *testing.T) {
	loader := &countingLoader{CatalogLoader: NewDefaultCatalogLoader()}
	repo := NewCatalogRepository(loader, time.Minute)

	catalog, err := repo.GetCatalog(context.Background(), domain.DefaultCatalogID)
	require.NoError(t, err)
	assert.Len(t, catalog.Checklist, 11)
	assert.Len(t, catalog.Tasks, 4)
	assert.Equal(t, 1, loader.calls)

	_, err = repo.GetCatalog(context.Background(), domain.DefaultCatalogID)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls, "second lookup should hit the cache")
}

func TestCatalogRepositoryReloadsAfterExpiry(t *testing.T) {
	loader := &countingLoader{CatalogLoader: NewDefaultCatalogLoader()}
	repo := NewCatalogRepository(loader, time.Minute)
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, err := repo.GetCatalog(context.Background(), domain.DefaultCatalogID)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = repo.GetCatalog(context.Background(), domain.DefaultCatalogID)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
}

func TestCatalogRepositoryUnknownCatalog(t *testing.T) {
	repo := NewCatalogRepository(NewDefaultCatalogLoader(), time.Minute)

	_, err := repo.GetCatalog(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrCatalogNotFound))
}

func TestCatalogRepositoryRejectsInvalidCatalog(t *testing.T) {
	broken := domain.DefaultCatalog()
	broken.ID = "broken"
	broken.Tasks[0].ExpectedAnswer = "blub"
	loader := &countingLoader{CatalogLoader: NewStaticCatalogLoader(map[string]domain.Catalog{"broken": broken})}
	repo := NewCatalogRepository(loader, time.Minute)

	_, err := repo.GetCatalog(context.Background(), "broken")
	require.ErrorIs(t, err, domain.ErrInvalidCatalog)

	_, _ = repo.GetCatalog(context.Background(), "broken")
	assert.Equal(t, 2, loader.calls, "invalid catalogs must not be cached")
}

type countingLoader struct {
	CatalogLoader
	calls int
}

func (l *countingLoader) LoadCatalog(ctx context.Context, catalogID string) (domain.Catalog, error) {
	l.calls++
	return l.CatalogLoader.LoadCatalog(ctx, catalogID)
}
