package scraper_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/scraper"
)

const retailPageHTML = `
<html><body data-shop-name="BrickDeals" >
  <div data-shop-name="BrickDeals">
    <div class="product-card" data-product-id="p-1001">
      <span class="product-name">Falcon 75192</span>
      <span class="product-price">$649.99</span>
      <span class="product-sold">1.2k sold</span>
    </div>
    <div class="product-card" data-product-id="p-1002">
      <span class="product-name">Razor Crest 75331</span>
      <span class="product-price">$89.50</span>
      <span class="product-sold">87 sold</span>
    </div>
  </div>
</body></html>`

type fakeRetailRepo struct {
	mu      sync.Mutex
	batches [][]entity.RetailListing
}

func (r *fakeRetailRepo) FindByProductID(context.Context, string) (*entity.RetailListing, error) {
	return nil, nil
}

func (r *fakeRetailRepo) BatchUpsert(_ context.Context, listings []entity.RetailListing) (*entity.BatchUpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, listings)
	return &entity.BatchUpsertResult{Created: len(listings), Total: len(listings)}, nil
}

func TestRetailImport(t *testing.T) {
	repo := &fakeRetailRepo{}
	sessions := &fakeSessions{}
	payloads := &fakePayloads{}
	importer := scraper.NewRetailImporter(repo, sessions, payloads)

	batch, err := importer.Import(context.Background(), retailPageHTML, "https://shop.example/store/brickdeals")

	require.NoError(t, err)
	assert.Equal(t, 2, batch.Total)

	require.Len(t, repo.batches, 1)
	listings := repo.batches[0]
	assert.Equal(t, "p-1001", listings[0].ProductID)
	assert.Equal(t, int64(64999), listings[0].PriceCents)
	assert.Equal(t, 1200, listings[0].SoldCount)
	assert.Equal(t, "BrickDeals", listings[0].ShopName)

	// pasted HTML is preserved like any fetched page
	require.Len(t, payloads.saved, 1)
	assert.Equal(t, entity.SourceRetailListing, payloads.saved[0].source)

	require.Len(t, sessions.closed, 1)
	assert.Equal(t, entity.SessionStatusSuccess, sessions.closed[0].status)
	assert.Equal(t, 2, sessions.closed[0].stored)
}

func TestRetailImportUnparseablePage(t *testing.T) {
	repo := &fakeRetailRepo{}
	sessions := &fakeSessions{}
	importer := scraper.NewRetailImporter(repo, sessions, &fakePayloads{})

	_, err := importer.Import(context.Background(), "<html><body>nothing</body></html>", "https://shop.example/x")

	require.Error(t, err)
	assert.Empty(t, repo.batches)
	require.Len(t, sessions.closed, 1)
	assert.Equal(t, entity.SessionStatusFailed, sessions.closed[0].status)
}

func TestRetailImportRejectsMissingInput(t *testing.T) {
	importer := scraper.NewRetailImporter(&fakeRetailRepo{}, &fakeSessions{}, &fakePayloads{})

	var invalid *scraper.InvalidInputError

	_, err := importer.Import(context.Background(), "", "https://shop.example/x")
	require.ErrorAs(t, err, &invalid)

	_, err = importer.Import(context.Background(), "<html></html>", "ftp://shop.example/x")
	require.ErrorAs(t, err, &invalid)
}

func TestRegistryDispatch(t *testing.T) {
	fetch := &scriptedFetcher{script: []fetchStep{respondWith(marketplaceItemHTML)}}
	engine, _, _, _ := newTestEngine(fetch, &stubBreaker{})
	marketplace := scraper.NewMarketplaceScraper(engine, newFakeMarketplaceRepo(), scraper.MarketplaceConfig{
		BaseURL: "https://marketplace.example",
	})
	registry := scraper.NewRegistry(marketplace)

	result, err := registry.Dispatch(context.Background(), "scrape-marketplace", scraper.Request{
		ItemID:   "75192-1",
		SaveToDB: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, err = registry.Dispatch(context.Background(), "scrape-unknown", scraper.Request{})
	assert.Error(t, err)
}
