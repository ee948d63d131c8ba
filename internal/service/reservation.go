package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reservation is the result of a successful stock decrement. UnitPrice is
// the product price read in the same unit of work.
type Reservation struct {
	ProductID      int64
	VariantID      *int64
	Quantity       int
	RemainingStock int
	UnitPrice      decimal.Decimal
	ProductName    string
	VariantLabel   string
}

// ReservationEngine decrements stock for a single line
type ReservationEngine struct {
	logger *zap.Logger
}

// NewReservationEngine creates a reservation engine
func NewReservationEngine() *ReservationEngine {
	return &ReservationEngine{logger: util.GetLogger()}
}

// Reserve validates the target and atomically takes quantity units from
// either the variant or the product, never both. Not idempotent: each
// successful call removes stock once.
func (e *ReservationEngine) Reserve(ctx context.Context, repo store.CatalogRepository, productID int64, variantID *int64, quantity int) (*Reservation, error) {
	ctx, span := util.StartSpan(ctx, "ReservationEngine.Reserve")
	defer span.End()

	start := time.Now()
	res, err := e.reserve(ctx, repo, productID, variantID, quantity)
	util.StockReserveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.StockReservationsFailed.WithLabelValues(reservationFailureReason(err)).Inc()
		util.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

func (e *ReservationEngine) reserve(ctx context.Context, repo store.CatalogRepository, productID int64, variantID *int64, quantity int) (*Reservation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := repo.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if !product.IsActive() {
		return nil, ErrProductInactive
	}

	res := &Reservation{
		ProductID:   product.ID,
		Quantity:    quantity,
		UnitPrice:   product.Price,
		ProductName: product.Name,
	}

	if variantID != nil {
		if len(product.Variants) == 0 {
			return nil, ErrVariantNotApplicable
		}
		var variant *models.Variant
		for i := range product.Variants {
			if product.Variants[i].ID == *variantID {
				variant = &product.Variants[i]
				break
			}
		}
		if variant == nil {
			return nil, ErrVariantNotFound
		}

		remaining, err := repo.DecrementVariantStock(ctx, variant.ID, quantity)
		if errors.Is(err, store.ErrInsufficientStock) {
			available := variant.Stock
			if current, gerr := repo.GetVariantByID(ctx, variant.ID); gerr == nil {
				available = current.Stock
			}
			id := variant.ID
			return nil, &InsufficientStockError{ProductID: product.ID, VariantID: &id, Requested: quantity, Available: available}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to reserve variant stock: %w", err)
		}

		id := variant.ID
		res.VariantID = &id
		res.VariantLabel = variant.Label()
		res.RemainingStock = remaining
		return res, nil
	}

	if len(product.Variants) > 0 {
		return nil, ErrVariantRequired
	}

	remaining, err := repo.DecrementProductStock(ctx, product.ID, quantity)
	if errors.Is(err, store.ErrInsufficientStock) {
		available := product.Stock
		if current, gerr := repo.GetProductByID(ctx, product.ID); gerr == nil {
			available = current.Stock
		}
		return nil, &InsufficientStockError{ProductID: product.ID, Requested: quantity, Available: available}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve product stock: %w", err)
	}

	res.RemainingStock = remaining
	return res, nil
}

// Release gives the reserved units back to whichever row they came from
func (e *ReservationEngine) Release(ctx context.Context, repo store.CatalogRepository, res *Reservation) error {
	ctx, span := util.StartSpan(ctx, "ReservationEngine.Release")
	defer span.End()

	var err error
	if res.VariantID != nil {
		_, err = repo.IncrementVariantStock(ctx, *res.VariantID, res.Quantity)
	} else {
		_, err = repo.IncrementProductStock(ctx, res.ProductID, res.Quantity)
	}
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to release stock: %w", err)
	}

	util.StockReleasedUnits.Add(float64(res.Quantity))
	e.logger.Info("Stock released",
		zap.Int64("product_id", res.ProductID),
		zap.Int("quantity", res.Quantity))
	return nil
}

// reservationOf rebuilds the reservation a committed line holds
func reservationOf(t *models.Transaction) *Reservation {
	return &Reservation{
		ProductID: t.ProductID,
		VariantID: t.VariantID,
		Quantity:  t.Quantity,
		UnitPrice: t.UnitPrice,
	}
}

func reservationFailureReason(err error) string {
	var stock *InsufficientStockError
	var domain *Error
	switch {
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &domain):
		return domain.Code
	}
	return "error"
}
