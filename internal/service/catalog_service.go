package service

import (
	"context"
	"errors"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService manages products and their variants
type CatalogService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewCatalogService creates a catalog service
func NewCatalogService(repo store.Repository) *CatalogService {
	return &CatalogService{repo: repo, logger: util.GetLogger()}
}

// VariantInput describes a variant in a product write. A nil ID creates one.
// A nil Stock creates with zero units or leaves an existing count alone.
type VariantInput struct {
	ID        *int64 `json:"id,omitempty"`
	Name      string `json:"name" validate:"max=100"`
	Value     string `json:"value" validate:"required,max=100"`
	Stock     *int   `json:"stock,omitempty" validate:"omitempty,gte=0"`
	SortOrder int    `json:"sort_order"`
}

// ProductInput is the admin payload for creating or updating a product.
// On update, a nil Variants leaves variants untouched; a non-nil slice
// replaces the set. A nil Stock leaves the count alone; a value is a
// target reached through the same guarded adjustments checkout uses.
type ProductInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock,omitempty" validate:"omitempty,gte=0"`
	Status      string          `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url,max=1000"`
	Variants    []VariantInput  `json:"variants" validate:"omitempty,dive"`
}

func (in *ProductInput) check() error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return invalidField("price", "must be at least 0")
	}
	if in.Status == "" {
		in.Status = models.ProductStatusActive
	}
	return nil
}

// ListPublic returns the active catalog shown to shoppers
func (s *CatalogService) ListPublic(ctx context.Context, search string, limit, offset int) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListPublic")
	defer span.End()

	return s.repo.ListProducts(ctx, store.ProductFilter{
		Status: models.ProductStatusActive,
		Search: strings.TrimSpace(search),
		Limit:  clampLimit(limit),
		Offset: offset,
	})
}

// GetPublic returns an active product
func (s *CatalogService) GetPublic(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if !product.IsActive() {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// List returns every product for the back office
func (s *CatalogService) List(ctx context.Context, filter store.ProductFilter) ([]models.Product, error) {
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListProducts(ctx, filter)
}

// Get returns any product
func (s *CatalogService) Get(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return product, err
}

// Create inserts a product with its variants
func (s *CatalogService) Create(ctx context.Context, principal *models.Principal, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Create")
	defer span.End()

	if err := Authorize(principal, PermProductsCreate); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}

	var id int64
	err := s.repo.InTx(ctx, func(repo store.Repository) error {
		product := &models.Product{
			Name:        strings.TrimSpace(in.Name),
			Description: in.Description,
			Price:       in.Price,
			Stock:       intOr(in.Stock, 0),
			Status:      in.Status,
			ImageURL:    in.ImageURL,
		}
		if err := repo.CreateProduct(ctx, product); err != nil {
			return translateStoreError(err)
		}
		id = product.ID
		return s.replaceVariants(ctx, repo, product.ID, in.Variants)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.Int64("product_id", id), zap.String("by", principal.Username))
	return s.repo.GetProductByID(ctx, id)
}

// Update overwrites a product's details and, when given, its stock target
// and variant set
func (s *CatalogService) Update(ctx context.Context, principal *models.Principal, id int64, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Update")
	defer span.End()

	if err := Authorize(principal, PermProductsUpdate); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}

	err := s.repo.InTx(ctx, func(repo store.Repository) error {
		product := &models.Product{
			ID:          id,
			Name:        strings.TrimSpace(in.Name),
			Description: in.Description,
			Price:       in.Price,
			Status:      in.Status,
			ImageURL:    in.ImageURL,
		}
		if err := repo.UpdateProduct(ctx, product); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrProductNotFound
			}
			return translateStoreError(err)
		}
		if in.Stock != nil {
			current, err := repo.GetProductByID(ctx, id)
			if err != nil {
				return translateStoreError(err)
			}
			if err := s.moveStock(ctx, repo, id, nil, *in.Stock-current.Stock); err != nil {
				return err
			}
		}
		if in.Variants == nil {
			return nil
		}
		return s.replaceVariants(ctx, repo, id, in.Variants)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product updated", zap.Int64("product_id", id), zap.String("by", principal.Username))
	return s.repo.GetProductByID(ctx, id)
}

// replaceVariants makes the stored variant set equal to inputs
func (s *CatalogService) replaceVariants(ctx context.Context, repo store.Repository, productID int64, inputs []VariantInput) error {
	existing, err := repo.ListVariants(ctx, productID)
	if err != nil {
		return err
	}
	keep := make(map[int64]bool, len(existing))

	for i, in := range inputs {
		v := &models.Variant{
			ProductID: productID,
			Name:      strings.TrimSpace(in.Name),
			Value:     strings.TrimSpace(in.Value),
			Stock:     intOr(in.Stock, 0),
			SortOrder: in.SortOrder,
		}
		if v.SortOrder == 0 {
			v.SortOrder = i
		}

		if in.ID == nil {
			if err := repo.CreateVariant(ctx, v); err != nil {
				return translateStoreError(err)
			}
			continue
		}

		found := false
		for _, e := range existing {
			if e.ID == *in.ID {
				found = true
				break
			}
		}
		if !found {
			return ErrVariantNotFound
		}
		v.ID = *in.ID
		keep[v.ID] = true
		if err := repo.UpdateVariant(ctx, v); err != nil {
			return translateStoreError(err)
		}
		if in.Stock != nil {
			// the update holds the row lock, so this read is current
			current, err := repo.GetVariantByID(ctx, v.ID)
			if err != nil {
				return translateStoreError(err)
			}
			if err := s.moveStock(ctx, repo, productID, &v.ID, *in.Stock-current.Stock); err != nil {
				return err
			}
		}
	}

	for _, e := range existing {
		if keep[e.ID] {
			continue
		}
		if err := repo.DeleteVariant(ctx, e.ID); err != nil {
			return translateStoreError(err)
		}
	}
	return nil
}

// moveStock applies delta through the conditional increment or decrement.
// A decrement that no longer fits means a sale landed since the count was
// read.
func (s *CatalogService) moveStock(ctx context.Context, repo store.Repository, productID int64, variantID *int64, delta int) error {
	var err error
	switch {
	case delta > 0 && variantID != nil:
		_, err = repo.IncrementVariantStock(ctx, *variantID, delta)
	case delta > 0:
		_, err = repo.IncrementProductStock(ctx, productID, delta)
	case delta < 0 && variantID != nil:
		_, err = repo.DecrementVariantStock(ctx, *variantID, -delta)
	case delta < 0:
		_, err = repo.DecrementProductStock(ctx, productID, -delta)
	}
	if errors.Is(err, store.ErrInsufficientStock) {
		return ErrConcurrentUpdate
	}
	return translateStoreError(err)
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

// Delete removes a product. Products with sales cannot be deleted; set
// them INACTIVE instead.
func (s *CatalogService) Delete(ctx context.Context, principal *models.Principal, id int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.Delete")
	defer span.End()

	if err := Authorize(principal, PermProductsDelete); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrProductNotFound
		}
		return translateStoreError(err)
	}

	s.logger.Info("Product deleted", zap.Int64("product_id", id), zap.String("by", principal.Username))
	return nil
}

// AdjustStock adds delta units (negative to remove) without overwriting
// concurrent checkout decrements. A removal never takes stock below zero.
func (s *CatalogService) AdjustStock(ctx context.Context, principal *models.Principal, productID int64, variantID *int64, delta int) (int, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.AdjustStock")
	defer span.End()

	if err := Authorize(principal, PermProductsUpdate); err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, invalidField("delta", "must not be zero")
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}

	if variantID != nil {
		var current *models.Variant
		for i := range product.Variants {
			if product.Variants[i].ID == *variantID {
				current = &product.Variants[i]
			}
		}
		if current == nil {
			return 0, ErrVariantNotFound
		}
		if delta > 0 {
			return s.repo.IncrementVariantStock(ctx, *variantID, delta)
		}
		left, err := s.repo.DecrementVariantStock(ctx, *variantID, -delta)
		if errors.Is(err, store.ErrInsufficientStock) {
			id := *variantID
			return 0, &InsufficientStockError{ProductID: productID, VariantID: &id, Requested: -delta, Available: current.Stock}
		}
		return left, err
	}

	if len(product.Variants) > 0 {
		return 0, ErrVariantRequired
	}
	if delta > 0 {
		return s.repo.IncrementProductStock(ctx, productID, delta)
	}
	left, err := s.repo.DecrementProductStock(ctx, productID, -delta)
	if errors.Is(err, store.ErrInsufficientStock) {
		return 0, &InsufficientStockError{ProductID: productID, Requested: -delta, Available: product.Stock}
	}
	return left, err
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
