package store

import (
	"context"
	"fmt"
	"strings"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetProductByID retrieves a product with its variants
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := s.q.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id); err != nil {
		return nil, mapError(err)
	}

	variants, err := s.ListVariants(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Variants = variants
	return &product, nil
}

// ListProducts retrieves products matching filter, variants attached
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	query := "SELECT * FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	products := []models.Product{}
	if err := s.q.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return products, nil
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	inQuery, inArgs, err := sqlx.In(
		"SELECT * FROM variants WHERE product_id IN (?) ORDER BY sort_order, id", ids)
	if err != nil {
		return nil, err
	}

	var variants []models.Variant
	if err := s.q.SelectContext(ctx, &variants, s.q.Rebind(inQuery), inArgs...); err != nil {
		return nil, err
	}

	byProduct := make(map[int64][]models.Variant, len(products))
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	for i := range products {
		products[i].Variants = byProduct[products[i].ID]
		if products[i].Variants == nil {
			products[i].Variants = []models.Variant{}
		}
	}
	return products, nil
}

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, stock, status, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.q.GetContext(ctx, product, query,
		product.Name, product.Description, product.Price, product.Stock, product.Status, product.ImageURL)
	return mapError(err)
}

// UpdateProduct overwrites the editable product fields. Stock only moves
// through the increment and decrement statements.
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, status = $4, image_url = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	err := s.q.GetContext(ctx, &product.UpdatedAt, query,
		product.Name, product.Description, product.Price, product.Status, product.ImageURL, product.ID)
	return mapError(err)
}

// DeleteProduct removes a product; fails with ErrReferenced while
// transactions point at it
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return expectAffected(s.q.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id))
}

// GetVariantByID retrieves a variant
func (s *Store) GetVariantByID(ctx context.Context, id int64) (*models.Variant, error) {
	var variant models.Variant
	if err := s.q.GetContext(ctx, &variant, "SELECT * FROM variants WHERE id = $1", id); err != nil {
		return nil, mapError(err)
	}
	return &variant, nil
}

// ListVariants retrieves the variants of a product in display order
func (s *Store) ListVariants(ctx context.Context, productID int64) ([]models.Variant, error) {
	variants := []models.Variant{}
	err := s.q.SelectContext(ctx, &variants,
		"SELECT * FROM variants WHERE product_id = $1 ORDER BY sort_order, id", productID)
	return variants, err
}

// CountVariants returns how many variants a product has
func (s *Store) CountVariants(ctx context.Context, productID int64) (int, error) {
	var n int
	err := s.q.GetContext(ctx, &n, "SELECT COUNT(*) FROM variants WHERE product_id = $1", productID)
	return n, err
}

// CreateVariant inserts a variant
func (s *Store) CreateVariant(ctx context.Context, variant *models.Variant) error {
	query := `
		INSERT INTO variants (product_id, name, value, stock, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.q.GetContext(ctx, variant, query,
		variant.ProductID, variant.Name, variant.Value, variant.Stock, variant.SortOrder)
	return mapError(err)
}

// UpdateVariant overwrites the editable variant fields, stock excluded
func (s *Store) UpdateVariant(ctx context.Context, variant *models.Variant) error {
	query := `
		UPDATE variants
		SET name = $1, value = $2, sort_order = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`

	err := s.q.GetContext(ctx, &variant.UpdatedAt, query,
		variant.Name, variant.Value, variant.SortOrder, variant.ID)
	return mapError(err)
}

// DeleteVariant removes a variant
func (s *Store) DeleteVariant(ctx context.Context, id int64) error {
	return expectAffected(s.q.ExecContext(ctx, "DELETE FROM variants WHERE id = $1", id))
}

// DecrementProductStock performs the conditional decrement on a product
func (s *Store) DecrementProductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	return s.adjustStock(ctx, `
		UPDATE products SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
		RETURNING stock`, quantity, productID)
}

// DecrementVariantStock performs the conditional decrement on a variant
func (s *Store) DecrementVariantStock(ctx context.Context, variantID int64, quantity int) (int, error) {
	return s.adjustStock(ctx, `
		UPDATE variants SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
		RETURNING stock`, quantity, variantID)
}

// IncrementProductStock gives units back to a product
func (s *Store) IncrementProductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	stock, err := s.adjustStock(ctx, `
		UPDATE products SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING stock`, quantity, productID)
	if err == ErrInsufficientStock {
		return 0, ErrNotFound
	}
	return stock, err
}

// IncrementVariantStock gives units back to a variant
func (s *Store) IncrementVariantStock(ctx context.Context, variantID int64, quantity int) (int, error) {
	stock, err := s.adjustStock(ctx, `
		UPDATE variants SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING stock`, quantity, variantID)
	if err == ErrInsufficientStock {
		return 0, ErrNotFound
	}
	return stock, err
}

// adjustStock runs a single-statement stock update. No returned row means
// the guard rejected it.
func (s *Store) adjustStock(ctx context.Context, query string, quantity int, id int64) (int, error) {
	var stock int
	err := s.q.GetContext(ctx, &stock, query, quantity, id)
	if err != nil {
		err = mapError(err)
		if err == ErrNotFound {
			return 0, ErrInsufficientStock
		}
		return 0, err
	}
	return stock, nil
}

// paginate appends LIMIT/OFFSET when requested
func paginate(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
