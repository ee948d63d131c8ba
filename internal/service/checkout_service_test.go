package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckoutDirectSale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kaos Polos", 50000, 5)

	resp, err := f.checkout.Checkout(ctx, &CheckoutRequest{
		ProductID:     p.ID,
		Quantity:      2,
		CustomerName:  "Budi",
		CustomerPhone: "08111111111",
	})
	require.NoError(t, err)

	assert.NotZero(t, resp.OrderID)
	assert.True(t, strings.HasPrefix(resp.OrderNumber, "ORD-20240315-"))
	assert.Equal(t, []int64{resp.TransactionID}, resp.TransactionIDs)
	assert.True(t, resp.TotalPrice.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, "Direct", resp.ResellerName)
	assert.Contains(t, resp.MessageText, "Kaos Polos")
	assert.Contains(t, resp.MessageText, "Rp 100.000")
	assert.True(t, strings.HasPrefix(resp.WhatsAppURL, "https://wa.me/6281234567890?text="))
	assert.NotEmpty(t, resp.IdempotencyKey)
	assert.False(t, resp.Replayed)

	txn, err := f.repo.GetTransactionByID(ctx, resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, txn.Status)
	assert.Nil(t, txn.ResellerID)
	assert.Equal(t, 3, f.productStock(t, p.ID))
}

func TestCheckoutRoutesToReseller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kaos Polos", 50000, 5)
	r := f.reseller(t, "Ani", "ANI01", "0899 1234 567")

	resp, err := f.checkout.Checkout(ctx, &CheckoutRequest{
		ProductID:   p.ID,
		Quantity:    1,
		ResellerRef: "  ANI01 ",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ani", resp.ResellerName)
	assert.True(t, strings.HasPrefix(resp.WhatsAppURL, "https://wa.me/628991234567?text="))

	txn, err := f.repo.GetTransactionByID(ctx, resp.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, txn.ResellerID)
	assert.Equal(t, r.ID, *txn.ResellerID)
}

func TestCheckoutUnknownResellerIsDirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kaos Polos", 50000, 5)

	reseller, err := f.resolver.Resolve(ctx, "NONEXISTENT-CODE")
	require.NoError(t, err)
	assert.Nil(t, reseller)

	resp, err := f.checkout.Checkout(ctx, &CheckoutRequest{
		ProductID:   p.ID,
		Quantity:    1,
		ResellerRef: "NONEXISTENT-CODE",
	})
	require.NoError(t, err)
	assert.Equal(t, "Direct", resp.ResellerName)

	txn, err := f.repo.GetTransactionByID(ctx, resp.TransactionID)
	require.NoError(t, err)
	assert.Nil(t, txn.ResellerID)
}

func TestCheckoutCartIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.product(t, "Kopi", 20000, 10)
	b := f.product(t, "Gula", 15000, 1)

	_, err := f.checkout.Checkout(ctx, &CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: a.ID, Quantity: 4},
			{ProductID: b.ID, Quantity: 2},
		},
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, b.ID, stockErr.ProductID)

	// the first line's reservation is rolled back with the second
	assert.Equal(t, 10, f.productStock(t, a.ID))
	assert.Equal(t, 1, f.productStock(t, b.ID))

	rows, err := f.repo.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCheckoutCartCommitsEveryLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.product(t, "Kopi", 20000, 10)
	b := f.product(t, "Hoodie", 150000, 0)
	v := f.variant(t, b.ID, "L", 3)

	resp, err := f.checkout.Checkout(ctx, &CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, VariantID: &v.ID, Quantity: 1},
		},
		Notes: "gift wrap",
	})
	require.NoError(t, err)
	require.Len(t, resp.TransactionIDs, 2)
	assert.Equal(t, resp.TransactionIDs[0], resp.TransactionID)
	assert.True(t, resp.TotalPrice.Equal(decimal.NewFromInt(190000)))
	assert.Contains(t, resp.MessageText, "Hoodie (Size: L)")

	assert.Equal(t, 8, f.productStock(t, a.ID))
	assert.Equal(t, 2, f.variantStock(t, v.ID))

	order, err := f.repo.GetOrderByID(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.True(t, order.TotalPrice.Equal(resp.TotalPrice))
}

func TestCheckoutValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name  string
		req   CheckoutRequest
		field string
	}{
		{"empty request", CheckoutRequest{}, "productId"},
		{"bad email", CheckoutRequest{ProductID: 1, Quantity: 1, CustomerEmail: "nope"}, "customerEmail"},
		{"bad item quantity", CheckoutRequest{Items: []CheckoutItem{{ProductID: 1}}}, "items[0].quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.checkout.Checkout(ctx, &tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}

	p := f.product(t, "Kopi", 20000, 10)
	_, err := f.checkout.Checkout(ctx, &CheckoutRequest{ProductID: p.ID})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCheckoutRejectsZeroQuantityBeforeClaiming(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kopi", 20000, 10)

	guard := &mockGuard{}
	checkout := NewCheckoutService(f.repo, guard, f.resolver, f.engine, f.recorder, f.publisher, CheckoutConfig{})

	_, err := checkout.Checkout(ctx, &CheckoutRequest{ProductID: p.ID, Quantity: 0, IdempotencyKey: "zero"})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	guard.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 10, f.productStock(t, p.ID))
}

func TestCheckoutRestoresStockWhenRecordingFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kaos", 50000, 5)
	v := f.variant(t, p.ID, "L", 3)

	writeErr := errors.New("store unavailable")
	repo := &failingTxnRepo{Repository: f.repo, err: writeErr}
	checkout := NewCheckoutService(repo, nil, f.resolver, f.engine, f.recorder, f.publisher, CheckoutConfig{})

	_, err := checkout.Checkout(ctx, &CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: p.ID, Quantity: 2},
			{ProductID: p.ID, VariantID: &v.ID, Quantity: 1},
		},
		IdempotencyKey: "write-fails",
	})
	require.ErrorIs(t, err, writeErr)

	assert.Equal(t, 5, f.productStock(t, p.ID))
	assert.Equal(t, 3, f.variantStock(t, v.ID))
	order, err := f.repo.GetOrderByIdempotencyKey(ctx, "write-fails")
	require.NoError(t, err)
	assert.Nil(t, order)
	rows, err := f.repo.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	f.publisher.AssertNotCalled(t, "PublishTransactionCreated", mock.Anything, mock.Anything)
}

func TestCheckoutFallsBackToDirectWhenResellerVanishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kaos Polos", 50000, 5)
	r := f.reseller(t, "Ani", "ANI01", "0899 1234 567")
	stale := *r
	require.NoError(t, f.repo.DeleteReseller(ctx, r.ID))

	cache := &mockResellerCache{}
	cache.On("GetReseller", mock.Anything, "ANI01").Return(&stale, nil).Once()
	cache.On("InvalidateReseller", mock.Anything, []string{"ANI01"}).Return(nil).Once()
	checkout := NewCheckoutService(f.repo, nil, NewResellerResolver(f.repo, cache), f.engine, f.recorder, f.publisher, CheckoutConfig{})

	resp, err := checkout.Checkout(ctx, &CheckoutRequest{ProductID: p.ID, Quantity: 1, ResellerRef: "ANI01"})
	require.NoError(t, err)

	assert.Equal(t, "Direct", resp.ResellerName)
	assert.True(t, strings.HasPrefix(resp.WhatsAppURL, "https://wa.me/6281234567890?text="))
	txn, err := f.repo.GetTransactionByID(ctx, resp.TransactionID)
	require.NoError(t, err)
	assert.Nil(t, txn.ResellerID)
	assert.Equal(t, 4, f.productStock(t, p.ID))
	cache.AssertExpectations(t)
}

func TestLockOrderSortsByProductThenVariant(t *testing.T) {
	lines := []CheckoutItem{
		{ProductID: 9, VariantID: int64Ptr(4)},
		{ProductID: 3},
		{ProductID: 9, VariantID: int64Ptr(2)},
		{ProductID: 3, VariantID: int64Ptr(7)},
		{ProductID: 9},
	}
	assert.Equal(t, []int{1, 3, 4, 2, 0}, lockOrder(lines))
}

func TestCheckoutReplaysCompletedKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kopi", 20000, 10)

	req := CheckoutRequest{ProductID: p.ID, Quantity: 2, IdempotencyKey: "retry-me"}
	first, err := f.checkout.Checkout(ctx, &req)
	require.NoError(t, err)

	req2 := req
	second, err := f.checkout.Checkout(ctx, &req2)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.TransactionIDs, second.TransactionIDs)
	assert.Equal(t, first.MessageText, second.MessageText)
	assert.Equal(t, 8, f.productStock(t, p.ID))
}

func TestCheckoutRejectsInFlightDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kopi", 20000, 10)

	guard := &mockGuard{}
	guard.On("Claim", mock.Anything, "busy", mock.Anything).Return(false, nil).Once()
	f.checkout.guard = guard

	_, err := f.checkout.Checkout(ctx, &CheckoutRequest{ProductID: p.ID, Quantity: 1, IdempotencyKey: "busy"})
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.Equal(t, 10, f.productStock(t, p.ID))
	guard.AssertExpectations(t)
	guard.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutReleasesClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kopi", 20000, 1)

	var owner string
	guard := &mockGuard{}
	guard.On("Claim", mock.Anything, "k-1", mock.Anything).
		Run(func(args mock.Arguments) { owner = args.String(2) }).
		Return(true, nil).Once()
	guard.On("Release", mock.Anything, "k-1", mock.Anything).Return(nil).Once()
	f.checkout.guard = guard

	_, err := f.checkout.Checkout(ctx, &CheckoutRequest{ProductID: p.ID, Quantity: 5, IdempotencyKey: "k-1"})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	guard.AssertExpectations(t)
	guard.AssertCalled(t, "Release", mock.Anything, "k-1", owner)
}

func TestCheckoutSurvivesGuardOutage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kopi", 20000, 3)

	guard := &mockGuard{}
	guard.On("Claim", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	guard.On("Release", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	f.checkout.guard = guard

	resp, err := f.checkout.Checkout(ctx, &CheckoutRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	assert.NotZero(t, resp.OrderID)
}

func TestCheckoutPublishesCreatedEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kopi", 20000, 3)
	f.reseller(t, "Ani", "ANI01", "0899")

	pub := &mockPublisher{}
	pub.On("PublishTransactionCreated", mock.Anything, mock.MatchedBy(func(e *models.TransactionCreatedEvent) bool {
		return e.EventType == models.EventTypeTransactionCreated &&
			e.Reseller != nil && e.Reseller.UniqueID == "ANI01" &&
			e.Recipient == "0899" &&
			len(e.Transactions) == 1 &&
			e.Transactions[0].ProductName == "Kopi" &&
			e.TotalPrice.Equal(decimal.NewFromInt(40000))
	})).Return(errors.New("broker down")).Once()
	f.checkout.publisher = pub

	// a publish failure does not undo a committed sale
	resp, err := f.checkout.Checkout(ctx, &CheckoutRequest{ProductID: p.ID, Quantity: 2, ResellerRef: "ANI01"})
	require.NoError(t, err)
	assert.NotZero(t, resp.OrderID)
	pub.AssertExpectations(t)
}

func TestCheckoutConcurrentBuyersNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Limited", 99000, 9)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     int
		rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.checkout.Checkout(ctx, &CheckoutRequest{ProductID: p.ID, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			var stockErr *InsufficientStockError
			switch {
			case err == nil:
				sold++
			case errors.As(err, &stockErr):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, sold)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 0, f.productStock(t, p.ID))

	rows, err := f.repo.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 9)
}

func TestResolverUsesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.reseller(t, "Ani", "ANI01", "0899")

	cache := &mockResellerCache{}
	cache.On("GetReseller", mock.Anything, "ANI01").Return(nil, nil).Once()
	cache.On("SetReseller", mock.Anything, mock.MatchedBy(func(got *models.Reseller) bool { return got.ID == r.ID })).Return(nil).Once()
	cache.On("GetReseller", mock.Anything, "ANI01").Return(r, nil).Once()
	cache.On("GetReseller", mock.Anything, "ZZZ").Return(nil, errors.New("redis down")).Once()

	resolver := NewResellerResolver(f.repo, cache)

	got, err := resolver.Resolve(ctx, "ANI01")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	got, err = resolver.Resolve(ctx, "ANI01")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	got, err = resolver.Resolve(ctx, "ZZZ")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = resolver.Resolve(ctx, "   ")
	require.NoError(t, err)
	assert.Nil(t, got)

	cache.AssertExpectations(t)
}
