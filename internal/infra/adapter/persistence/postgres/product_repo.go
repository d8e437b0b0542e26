package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/repository"
)

type ProductRepo struct{ db DB }

func NewProductRepo(db DB) repository.ProductRepository {
	return &ProductRepo{db: db}
}

const productColumns = `id, item_id, item_type, set_number, name, is_active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*entity.Product, error) {
	var p entity.Product
	err := row.Scan(&p.ID, &p.ItemID, &p.ItemType, &p.SetNumber, &p.Name, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (repo *ProductRepo) FindByItemID(ctx context.Context, itemID string) (*entity.Product, error) {
	query := `SELECT ` + productColumns + `
FROM products
WHERE item_id = $1
LIMIT 1`
	p, err := scanProduct(repo.db.QueryRowContext(ctx, query, itemID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByItemID: %w", err)
	}
	return p, nil
}

func (repo *ProductRepo) ListActive(ctx context.Context) ([]*entity.Product, error) {
	query := `SELECT ` + productColumns + `
FROM products
WHERE is_active = TRUE
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	products := make([]*entity.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateStub inserts a minimal catalog row for a newly discovered item. The
// conflict target makes rediscovery a no-op, so the discovery feed can be
// replayed freely.
func (repo *ProductRepo) CreateStub(ctx context.Context, product *entity.Product) (bool, error) {
	const query = `
INSERT INTO products (item_id, item_type, set_number, name, is_active)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT (item_id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, query,
		product.ItemID, product.ItemType, product.SetNumber, product.Name)
	if err != nil {
		return false, fmt.Errorf("CreateStub: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CreateStub: %w", err)
	}
	return n > 0, nil
}

func (repo *ProductRepo) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := repo.db.QueryRowContext(ctx,
		`SELECT count(*) FROM products WHERE is_active = TRUE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("CountActive: %w", err)
	}
	return count, nil
}

func (repo *ProductRepo) FindSetNumbersMissingReddit(ctx context.Context) ([]string, error) {
	const query = `
SELECT p.set_number
FROM products p
LEFT JOIN reddit_mentions r ON r.set_number = p.set_number
WHERE p.is_active = TRUE AND p.set_number <> '' AND r.set_number IS NULL
ORDER BY p.id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("FindSetNumbersMissingReddit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	setNumbers := make([]string, 0, 32)
	for rows.Next() {
		var sn string
		if err := rows.Scan(&sn); err != nil {
			return nil, fmt.Errorf("FindSetNumbersMissingReddit: %w", err)
		}
		setNumbers = append(setNumbers, sn)
	}
	return setNumbers, rows.Err()
}
