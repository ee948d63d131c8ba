package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product statuses
const (
	ProductStatusActive   = "ACTIVE"
	ProductStatusInactive = "INACTIVE"
)

// Product represents a catalog product
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	Status      string          `db:"status" json:"status"`
	ImageURL    string          `db:"image_url" json:"image_url"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	Variants    []Variant       `db:"-" json:"variants"`
}

// IsActive reports whether the product can be sold
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}

// Variant is a sellable configuration of a product with its own stock
type Variant struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Name      string    `db:"name" json:"name"`
	Value     string    `db:"value" json:"value"`
	Stock     int       `db:"stock" json:"stock"`
	SortOrder int       `db:"sort_order" json:"sort_order"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Label renders the variant as "Name: Value"
func (v *Variant) Label() string {
	if v.Name == "" {
		return v.Value
	}
	return v.Name + ": " + v.Value
}

// Reseller is an attribution entity reached through a referral code
type Reseller struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone"`
	UniqueID  string    `db:"unique_id" json:"unique_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Customer holds the contact fields captured at checkout
type Customer struct {
	Name    string `db:"customer_name" json:"customer_name"`
	Phone   string `db:"customer_phone" json:"customer_phone"`
	Email   string `db:"customer_email" json:"customer_email,omitempty"`
	Address string `db:"customer_address" json:"customer_address,omitempty"`
}

// Order groups the transaction lines committed by a single checkout
type Order struct {
	ID             int64           `db:"id" json:"id"`
	OrderNumber    string          `db:"order_number" json:"order_number"`
	ResellerID     *int64          `db:"reseller_id" json:"reseller_id"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Customer
}

// Transaction is one committed sale line. ProductID, VariantID, Quantity,
// UnitPrice and TotalPrice never change after insert.
type Transaction struct {
	ID         int64             `db:"id" json:"id"`
	OrderID    int64             `db:"order_id" json:"order_id"`
	ProductID  int64             `db:"product_id" json:"product_id"`
	VariantID  *int64            `db:"variant_id" json:"variant_id"`
	ResellerID *int64            `db:"reseller_id" json:"reseller_id"`
	Quantity   int               `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal   `db:"unit_price" json:"unit_price"`
	TotalPrice decimal.Decimal   `db:"total_price" json:"total_price"`
	Status     TransactionStatus `db:"status" json:"status"`
	Notes      string            `db:"notes" json:"notes"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`
	Customer

	// Read-side fields joined from products, variants and resellers
	ProductName  string `db:"product_name" json:"product_name"`
	VariantLabel string `db:"variant_label" json:"variant_label,omitempty"`
	ResellerName string `db:"reseller_name" json:"reseller_name,omitempty"`
}

// DeveloperRole is the built-in role that can never be edited or deleted
const DeveloperRole = "DEVELOPER"

// IsProtectedRole reports whether name refers to the built-in developer role
func IsProtectedRole(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), DeveloperRole)
}

// Role is a named flat set of permission strings
type Role struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Permissions pq.StringArray `db:"permissions" json:"permissions"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// User is an administrator account
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	RoleID       int64     `db:"role_id" json:"role_id"`
	RoleName     string    `db:"role_name" json:"role_name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Principal is the acting administrator of a request
type Principal struct {
	UserID      int64
	Username    string
	Role        string
	Permissions map[string]struct{}
}

// NewPrincipal builds a principal from a user and its role
func NewPrincipal(user *User, role *Role) *Principal {
	perms := make(map[string]struct{}, len(role.Permissions))
	for _, p := range role.Permissions {
		perms[p] = struct{}{}
	}
	return &Principal{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        role.Name,
		Permissions: perms,
	}
}

// Has reports whether the principal holds permission
func (p *Principal) Has(permission string) bool {
	if p == nil {
		return false
	}
	if IsProtectedRole(p.Role) {
		return true
	}
	_, ok := p.Permissions[permission]
	return ok
}

// Setting keys
const (
	SettingStoreName     = "store_name"
	SettingStoreWhatsApp = "store_whatsapp"
	SettingLocale        = "locale"
	SettingThemeColor    = "theme_primary_color"
	SettingLogoURL       = "logo_url"
)

// Setting is a single site setting
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Notification is a formatted outbound WhatsApp message
type Notification struct {
	ID            int64     `db:"id" json:"id"`
	TransactionID int64     `db:"transaction_id" json:"transaction_id"`
	EventID       string    `db:"event_id" json:"event_id"`
	Recipient     string    `db:"recipient" json:"recipient"`
	Message       string    `db:"message" json:"message"`
	Link          string    `db:"link" json:"link"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// StatusCount is one row of the dashboard breakdown
type StatusCount struct {
	Status TransactionStatus `db:"status" json:"status"`
	Count  int64             `db:"count" json:"count"`
}

// DashboardSummary aggregates transaction figures for the back office
type DashboardSummary struct {
	TotalTransactions int64           `json:"total_transactions"`
	Revenue           decimal.Decimal `json:"revenue"`
	ByStatus          []StatusCount   `json:"by_status"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
