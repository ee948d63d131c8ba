package store

import (
	"context"
	"fmt"
	"strings"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
)

const transactionSelect = `
	SELECT t.*,
		p.name AS product_name,
		CASE
			WHEN v.id IS NULL THEN ''
			WHEN v.name = '' THEN v.value
			ELSE v.name || ': ' || v.value
		END AS variant_label,
		COALESCE(r.name, '') AS reseller_name
	FROM transactions t
	JOIN products p ON p.id = t.product_id
	LEFT JOIN variants v ON v.id = t.variant_id
	LEFT JOIN resellers r ON r.id = t.reseller_id`

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, customer_name, customer_phone, customer_email,
			customer_address, reseller_id, idempotency_key, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := s.q.GetContext(ctx, order, query,
		order.OrderNumber, order.Customer.Name, order.Customer.Phone, order.Customer.Email,
		order.Customer.Address, order.ResellerID, order.IdempotencyKey, order.TotalPrice)
	return mapError(err)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := s.q.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id); err != nil {
		return nil, mapError(err)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.q.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err = mapError(err); err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateTransaction inserts a committed line. Status defaults to PENDING.
func (s *Store) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.Status == "" {
		txn.Status = models.StatusPending
	}

	query := `
		INSERT INTO transactions (order_id, product_id, variant_id, reseller_id,
			customer_name, customer_phone, customer_email, customer_address,
			quantity, unit_price, total_price, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	err := s.q.GetContext(ctx, txn, query,
		txn.OrderID, txn.ProductID, txn.VariantID, txn.ResellerID,
		txn.Customer.Name, txn.Customer.Phone, txn.Customer.Email, txn.Customer.Address,
		txn.Quantity, txn.UnitPrice, txn.TotalPrice, txn.Status, txn.Notes)
	return mapError(err)
}

// GetTransactionByID retrieves a transaction with its joined names
func (s *Store) GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.q.GetContext(ctx, &txn, transactionSelect+" WHERE t.id = $1", id); err != nil {
		return nil, mapError(err)
	}
	return &txn, nil
}

// ListTransactions retrieves transactions newest first
func (s *Store) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("t.status = $%d", filter.Status)
	}
	if filter.ResellerID != nil {
		add("t.reseller_id = $%d", *filter.ResellerID)
	}
	if filter.OrderID != nil {
		add("t.order_id = $%d", *filter.OrderID)
	}
	if filter.From != nil {
		add("t.created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("t.created_at < $%d", *filter.To)
	}

	query := transactionSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.created_at DESC, t.id DESC"
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	txns := []models.Transaction{}
	err := s.q.SelectContext(ctx, &txns, query, args...)
	return txns, err
}

// UpdateTransactionStatus moves a line from one status to another. The
// WHERE clause on the current status makes racing updates mutually exclusive.
func (s *Store) UpdateTransactionStatus(ctx context.Context, id int64, from, to models.TransactionStatus, notes *string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, notes = COALESCE($2, notes), updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		to, notes, id, from)
	if err := expectAffected(res, err); err != nil {
		if err == ErrNotFound {
			return ErrStaleStatus
		}
		return err
	}
	return nil
}

// UpdateTransactionDetails changes contact fields and notes only
func (s *Store) UpdateTransactionDetails(ctx context.Context, id int64, customer models.Customer, notes string) error {
	return expectAffected(s.q.ExecContext(ctx, `
		UPDATE transactions
		SET customer_name = $1, customer_phone = $2, customer_email = $3,
			customer_address = $4, notes = $5, updated_at = NOW()
		WHERE id = $6`,
		customer.Name, customer.Phone, customer.Email, customer.Address, notes, id))
}

// DeleteTransaction removes a line
func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	return expectAffected(s.q.ExecContext(ctx, "DELETE FROM transactions WHERE id = $1", id))
}

// SummarizeTransactions counts lines per status and sums completed revenue
func (s *Store) SummarizeTransactions(ctx context.Context) (*models.DashboardSummary, error) {
	summary := &models.DashboardSummary{ByStatus: []models.StatusCount{}}

	err := s.q.SelectContext(ctx, &summary.ByStatus,
		"SELECT status, COUNT(*) AS count FROM transactions GROUP BY status ORDER BY status")
	if err != nil {
		return nil, err
	}
	for _, c := range summary.ByStatus {
		summary.TotalTransactions += c.Count
	}

	var revenue decimal.Decimal
	err = s.q.GetContext(ctx, &revenue,
		"SELECT COALESCE(SUM(total_price), 0) FROM transactions WHERE status = $1", models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	summary.Revenue = revenue
	return summary, nil
}
