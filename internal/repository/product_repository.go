package repository

import (
	"context"

	"brickwatch/internal/domain/entity"
)

// ProductRepository manages the cross-source product catalog. The catalog
// anchors discovery: a product row with no record in some source table is
// what FindNewItems and the missing-data detector key off.
type ProductRepository interface {
	// FindByItemID returns the product for a marketplace item id, or (nil, nil).
	FindByItemID(ctx context.Context, itemID string) (*entity.Product, error)

	// ListActive returns every active catalog product.
	ListActive(ctx context.Context) ([]*entity.Product, error)

	// CreateStub inserts a minimal product row if none exists for its item
	// id, typically from the new-release discovery feed. Returns true when a
	// row was created.
	CreateStub(ctx context.Context, product *entity.Product) (bool, error)

	// CountActive returns the number of active products, for gauges.
	CountActive(ctx context.Context) (int64, error)

	// FindSetNumbersMissingReddit returns active products with a set number
	// but no community-board mentions row.
	FindSetNumbersMissingReddit(ctx context.Context) ([]string, error)
}
