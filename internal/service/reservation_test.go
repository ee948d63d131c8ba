package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveProductStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kaos Polos", 50000, 5)

	res, err := f.engine.Reserve(ctx, f.repo, p.ID, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RemainingStock)
	assert.True(t, res.UnitPrice.Equal(p.Price))
	assert.Equal(t, 2, f.productStock(t, p.ID))

	_, err = f.engine.Reserve(ctx, f.repo, p.ID, nil, 3)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
	assert.Nil(t, stockErr.VariantID)
	assert.Equal(t, 2, f.productStock(t, p.ID))
}

func TestReserveVariantStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Hoodie", 150000, 40)
	v1 := f.variant(t, p.ID, "M", 10)
	v2 := f.variant(t, p.ID, "L", 0)

	res, err := f.engine.Reserve(ctx, f.repo, p.ID, &v1.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Size: M", res.VariantLabel)
	assert.Equal(t, 9, f.variantStock(t, v1.ID))

	_, err = f.engine.Reserve(ctx, f.repo, p.ID, &v2.ID, 1)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.NotNil(t, stockErr.VariantID)
	assert.Equal(t, v2.ID, *stockErr.VariantID)
	assert.Equal(t, 0, stockErr.Available)

	_, err = f.engine.Reserve(ctx, f.repo, p.ID, nil, 1)
	assert.ErrorIs(t, err, ErrVariantRequired)

	// product-level stock is never touched when variants exist
	assert.Equal(t, 40, f.productStock(t, p.ID))
}

func TestReserveRejectsInvalidTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	plain := f.product(t, "Topi", 30000, 5)
	withVariants := f.product(t, "Jaket", 200000, 0)
	f.variant(t, withVariants.ID, "S", 5)
	other := f.product(t, "Celana", 120000, 0)
	foreign := f.variant(t, other.ID, "S", 5)

	inactive := f.product(t, "Lama", 10000, 5)
	inactive.Status = models.ProductStatusInactive
	require.NoError(t, f.repo.UpdateProduct(ctx, inactive))

	tests := []struct {
		name      string
		productID int64
		variantID *int64
		qty       int
		want      error
	}{
		{"zero quantity", plain.ID, nil, 0, ErrInvalidQuantity},
		{"negative quantity", plain.ID, nil, -2, ErrInvalidQuantity},
		{"unknown product", 99999, nil, 1, ErrProductNotFound},
		{"inactive product", inactive.ID, nil, 1, ErrProductInactive},
		{"variant on plain product", plain.ID, int64Ptr(foreign.ID), 1, ErrVariantNotApplicable},
		{"variant of another product", withVariants.ID, int64Ptr(foreign.ID), 1, ErrVariantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Reserve(ctx, f.repo, tt.productID, tt.variantID, tt.qty)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 5, f.productStock(t, plain.ID))
	assert.Equal(t, 5, f.variantStock(t, foreign.ID))
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Limited", 75000, 7)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Reserve(ctx, f.repo, p.ID, nil, 1)
			mu.Lock()
			defer mu.Unlock()
			var stockErr *InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &stockErr):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, succeeded)
	assert.Equal(t, 3, rejected)
	assert.Equal(t, 0, f.productStock(t, p.ID))
}

func TestReleaseRestoresTheReservedRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Hoodie", 150000, 20)
	v := f.variant(t, p.ID, "XL", 4)

	res, err := f.engine.Reserve(ctx, f.repo, p.ID, &v.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, f.variantStock(t, v.ID))

	require.NoError(t, f.engine.Release(ctx, f.repo, res))
	assert.Equal(t, 4, f.variantStock(t, v.ID))
	assert.Equal(t, 20, f.productStock(t, p.ID))
}
