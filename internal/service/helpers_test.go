package service

import (
	"context"
	"testing"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishTransactionCreated(ctx context.Context, event *models.TransactionCreatedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishTransactionStatusChanged(ctx context.Context, event *models.TransactionStatusChangedEvent) error {
	return m.Called(ctx, event).Error(0)
}

type mockGuard struct {
	mock.Mock
}

func (m *mockGuard) Claim(ctx context.Context, key, owner string) (bool, error) {
	args := m.Called(ctx, key, owner)
	return args.Bool(0), args.Error(1)
}

func (m *mockGuard) Release(ctx context.Context, key, owner string) error {
	return m.Called(ctx, key, owner).Error(0)
}

type mockResellerCache struct {
	mock.Mock
}

func (m *mockResellerCache) GetReseller(ctx context.Context, uniqueID string) (*models.Reseller, error) {
	args := m.Called(ctx, uniqueID)
	r, _ := args.Get(0).(*models.Reseller)
	return r, args.Error(1)
}

func (m *mockResellerCache) SetReseller(ctx context.Context, reseller *models.Reseller) error {
	return m.Called(ctx, reseller).Error(0)
}

func (m *mockResellerCache) InvalidateReseller(ctx context.Context, uniqueIDs ...string) error {
	return m.Called(ctx, uniqueIDs).Error(0)
}

// failingTxnRepo refuses transaction writes, including those made through
// the repository handed to an InTx callback
type failingTxnRepo struct {
	store.Repository
	err error
}

func (r *failingTxnRepo) InTx(ctx context.Context, fn func(store.Repository) error) error {
	return r.Repository.InTx(ctx, func(inner store.Repository) error {
		return fn(&failingTxnRepo{Repository: inner, err: r.err})
	})
}

func (r *failingTxnRepo) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.err
}

type fixture struct {
	repo      *store.MemoryStore
	publisher *mockPublisher
	engine    *ReservationEngine
	recorder  *Recorder
	resolver  *ResellerResolver
	checkout  *CheckoutService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := store.NewMemoryStore().WithClock(func() time.Time { return fixedNow })
	require.NoError(t, repo.UpsertSettings(context.Background(), map[string]string{
		models.SettingStoreName:     "Toko Kami",
		models.SettingStoreWhatsApp: "081234567890",
		models.SettingLocale:        "id",
	}))

	pub := &mockPublisher{}
	pub.On("PublishTransactionCreated", mock.Anything, mock.Anything).Return(nil).Maybe()
	pub.On("PublishTransactionStatusChanged", mock.Anything, mock.Anything).Return(nil).Maybe()

	engine := NewReservationEngine()
	recorder := NewRecorder(repo, engine, pub)
	recorder.now = func() time.Time { return fixedNow }
	resolver := NewResellerResolver(repo, nil)
	checkout := NewCheckoutService(repo, nil, resolver, engine, recorder, pub, CheckoutConfig{})
	checkout.now = func() time.Time { return fixedNow }

	return &fixture{
		repo:      repo,
		publisher: pub,
		engine:    engine,
		recorder:  recorder,
		resolver:  resolver,
		checkout:  checkout,
	}
}

func (f *fixture) product(t *testing.T, name string, price int64, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:   name,
		Price:  decimal.NewFromInt(price),
		Stock:  stock,
		Status: models.ProductStatusActive,
	}
	require.NoError(t, f.repo.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) variant(t *testing.T, productID int64, value string, stock int) *models.Variant {
	t.Helper()
	v := &models.Variant{ProductID: productID, Name: "Size", Value: value, Stock: stock}
	require.NoError(t, f.repo.CreateVariant(context.Background(), v))
	return v
}

func (f *fixture) reseller(t *testing.T, name, code, phone string) *models.Reseller {
	t.Helper()
	r := &models.Reseller{Name: name, UniqueID: code, Phone: phone}
	require.NoError(t, f.repo.CreateReseller(context.Background(), r))
	return r
}

func (f *fixture) productStock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.repo.GetProductByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) variantStock(t *testing.T, id int64) int {
	t.Helper()
	v, err := f.repo.GetVariantByID(context.Background(), id)
	require.NoError(t, err)
	return v.Stock
}

// buy commits a single-line checkout and returns the created line
func (f *fixture) buy(t *testing.T, productID int64, variantID *int64, qty int) *models.Transaction {
	t.Helper()
	resp, err := f.checkout.Checkout(context.Background(), &CheckoutRequest{
		ProductID:     productID,
		VariantID:     variantID,
		Quantity:      qty,
		CustomerName:  "Budi",
		CustomerPhone: "08111111111",
	})
	require.NoError(t, err)
	txn, err := f.repo.GetTransactionByID(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	return txn
}

func principalWith(perms ...string) *models.Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return &models.Principal{UserID: 1000, Username: "staff", Role: "STAFF", Permissions: set}
}

func adminPrincipal() *models.Principal {
	p := principalWith(AllPermissions...)
	p.Username = "admin"
	p.Role = "ADMIN"
	return p
}

func developerPrincipal() *models.Principal {
	return &models.Principal{UserID: 1, Username: "dev", Role: models.DeveloperRole, Permissions: map[string]struct{}{}}
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }
