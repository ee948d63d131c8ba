package store

import (
	"context"
	"time"

	"storefront-service/internal/models"
)

// CatalogRepository covers products, variants and their stock counters
type CatalogRepository interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	GetVariantByID(ctx context.Context, id int64) (*models.Variant, error)
	ListVariants(ctx context.Context, productID int64) ([]models.Variant, error)
	CountVariants(ctx context.Context, productID int64) (int, error)
	CreateVariant(ctx context.Context, variant *models.Variant) error
	UpdateVariant(ctx context.Context, variant *models.Variant) error
	DeleteVariant(ctx context.Context, id int64) error

	// DecrementProductStock subtracts quantity only when enough stock is
	// left and returns the remaining stock. ErrInsufficientStock otherwise.
	DecrementProductStock(ctx context.Context, productID int64, quantity int) (int, error)
	DecrementVariantStock(ctx context.Context, variantID int64, quantity int) (int, error)
	IncrementProductStock(ctx context.Context, productID int64, quantity int) (int, error)
	IncrementVariantStock(ctx context.Context, variantID int64, quantity int) (int, error)
}

// ResellerRepository covers reseller records
type ResellerRepository interface {
	GetResellerByID(ctx context.Context, id int64) (*models.Reseller, error)
	GetResellerByUniqueID(ctx context.Context, uniqueID string) (*models.Reseller, error)
	ListResellers(ctx context.Context) ([]models.Reseller, error)
	CreateReseller(ctx context.Context, reseller *models.Reseller) error
	UpdateReseller(ctx context.Context, reseller *models.Reseller) error
	DeleteReseller(ctx context.Context, id int64) error
}

// OrderRepository covers orders and their transaction lines
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// GetOrderByIdempotencyKey returns nil, nil when no order carries key
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)

	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)
	// UpdateTransactionStatus applies only while the row is still in status
	// from. ErrStaleStatus otherwise.
	UpdateTransactionStatus(ctx context.Context, id int64, from, to models.TransactionStatus, notes *string) error
	UpdateTransactionDetails(ctx context.Context, id int64, customer models.Customer, notes string) error
	DeleteTransaction(ctx context.Context, id int64) error
	SummarizeTransactions(ctx context.Context) (*models.DashboardSummary, error)
}

// AccessRepository covers roles and users
type AccessRepository interface {
	GetRoleByID(ctx context.Context, id int64) (*models.Role, error)
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	CreateRole(ctx context.Context, role *models.Role) error
	UpdateRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, id int64) error

	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id int64) error
}

// SiteRepository covers settings, the notification outbox and consumed events
type SiteRepository interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	UpsertSettings(ctx context.Context, values map[string]string) error

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repository is the full persistence surface. InTx runs fn against a
// repository bound to a single unit of work; an error from fn rolls back
// every write made through it.
type Repository interface {
	CatalogRepository
	ResellerRepository
	OrderRepository
	AccessRepository
	SiteRepository

	InTx(ctx context.Context, fn func(Repository) error) error
}

// ProductFilter narrows product listings
type ProductFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// TransactionFilter narrows transaction listings
type TransactionFilter struct {
	Status     models.TransactionStatus
	ResellerID *int64
	OrderID    *int64
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
