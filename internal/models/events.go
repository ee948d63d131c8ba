package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeTransactionCreated       = "TRANSACTION_CREATED"
	EventTypeTransactionStatusChanged = "TRANSACTION_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionCreatedEvent published once per committed checkout
type TransactionCreatedEvent struct {
	BaseEvent
	OrderID      int64             `json:"order_id"`
	OrderNumber  string            `json:"order_number"`
	Customer     Customer          `json:"customer"`
	Notes        string            `json:"notes,omitempty"`
	Reseller     *Reseller         `json:"reseller,omitempty"`
	Recipient    string            `json:"recipient"`
	TotalPrice   decimal.Decimal   `json:"total_price"`
	Transactions []TransactionData `json:"transactions"`
}

// TransactionStatusChangedEvent published after every accepted status change
type TransactionStatusChangedEvent struct {
	BaseEvent
	TransactionID int64             `json:"transaction_id"`
	OrderID       int64             `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	From          TransactionStatus `json:"from"`
	To            TransactionStatus `json:"to"`
	Notes         string            `json:"notes,omitempty"`
	ChangedBy     string            `json:"changed_by"`
	Recipient     string            `json:"recipient"`
	Line          TransactionData   `json:"line"`
}

// TransactionData represents a transaction line in events
type TransactionData struct {
	TransactionID int64           `json:"transaction_id"`
	ProductID     int64           `json:"product_id"`
	VariantID     *int64          `json:"variant_id,omitempty"`
	ProductName   string          `json:"product_name"`
	VariantLabel  string          `json:"variant_label,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// NewTransactionData copies the event view of a transaction line
func NewTransactionData(t *Transaction) TransactionData {
	return TransactionData{
		TransactionID: t.ID,
		ProductID:     t.ProductID,
		VariantID:     t.VariantID,
		ProductName:   t.ProductName,
		VariantLabel:  t.VariantLabel,
		Quantity:      t.Quantity,
		UnitPrice:     t.UnitPrice,
		TotalPrice:    t.TotalPrice,
	}
}
