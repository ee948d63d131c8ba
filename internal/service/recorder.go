package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventPublisher publishes transaction lifecycle events
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, event *models.TransactionCreatedEvent) error
	PublishTransactionStatusChanged(ctx context.Context, event *models.TransactionStatusChangedEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishTransactionCreated(context.Context, *models.TransactionCreatedEvent) error {
	return nil
}

func (nopPublisher) PublishTransactionStatusChanged(context.Context, *models.TransactionStatusChangedEvent) error {
	return nil
}

// Recorder commits transaction lines and drives their status machine
type Recorder struct {
	repo      store.Repository
	engine    *ReservationEngine
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewRecorder creates a recorder. publisher may be nil.
func NewRecorder(repo store.Repository, engine *ReservationEngine, publisher EventPublisher) *Recorder {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Recorder{
		repo:      repo,
		engine:    engine,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Commit records one line for a reservation taken in the same unit of work.
// The total is frozen as unit price times quantity.
func (r *Recorder) Commit(ctx context.Context, repo store.OrderRepository, order *models.Order, res *Reservation, notes string) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "Recorder.Commit")
	defer span.End()

	txn := &models.Transaction{
		OrderID:      order.ID,
		ProductID:    res.ProductID,
		VariantID:    res.VariantID,
		ResellerID:   order.ResellerID,
		Customer:     order.Customer,
		Quantity:     res.Quantity,
		UnitPrice:    res.UnitPrice,
		TotalPrice:   lineTotal(res.UnitPrice, res.Quantity),
		Status:       models.StatusPending,
		Notes:        notes,
		ProductName:  res.ProductName,
		VariantLabel: res.VariantLabel,
	}

	if err := repo.CreateTransaction(ctx, txn); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	return txn, nil
}

func lineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// UpdateStatus moves a line along the status machine. Cancelling a line
// that still holds stock gives the units back in the same unit of work.
func (r *Recorder) UpdateStatus(ctx context.Context, principal *models.Principal, id int64, to models.TransactionStatus, notes *string) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "Recorder.UpdateStatus")
	defer span.End()

	if err := Authorize(principal, PermTransactionsUpdate); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, invalidField("status", "must be one of PENDING CONFIRMED SHIPPED COMPLETED CANCELLED REFUNDED")
	}

	var (
		from    models.TransactionStatus
		updated *models.Transaction
	)
	err := r.repo.InTx(ctx, func(repo store.Repository) error {
		current, err := repo.GetTransactionByID(ctx, id)
		if err != nil {
			return translateStoreError(err)
		}
		from = current.Status

		if !models.CanTransition(from, to) {
			return &InvalidStatusTransitionError{From: from, To: to}
		}

		if err := repo.UpdateTransactionStatus(ctx, id, from, to, notes); err != nil {
			if errors.Is(err, store.ErrStaleStatus) {
				return ErrConcurrentUpdate
			}
			return err
		}

		if to == models.StatusCancelled && from.HoldsStock() {
			if err := r.engine.Release(ctx, repo, reservationOf(current)); err != nil {
				return err
			}
		}

		updated, err = repo.GetTransactionByID(ctx, id)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.StatusTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	r.logger.Info("Transaction status changed",
		zap.Int64("transaction_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("by", principal.Username))

	event := &models.TransactionStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTransactionStatusChanged,
			Timestamp: r.now(),
		},
		TransactionID: updated.ID,
		OrderID:       updated.OrderID,
		From:          from,
		To:            to,
		Notes:         updated.Notes,
		ChangedBy:     principal.Username,
		Recipient:     updated.Customer.Phone,
		Line:          models.NewTransactionData(updated),
	}
	if order, err := r.repo.GetOrderByID(ctx, updated.OrderID); err == nil {
		event.OrderNumber = order.OrderNumber
	}
	if err := r.publisher.PublishTransactionStatusChanged(ctx, event); err != nil {
		r.logger.Error("Failed to publish TransactionStatusChanged event", zap.Error(err))
	}

	return updated, nil
}

// DetailsInput carries the mutable fields of a line
type DetailsInput struct {
	Customer models.Customer `json:"customer"`
	Notes    string          `json:"notes" validate:"max=1000"`
}

// UpdateDetails edits contact fields and notes. Quantity, price and target
// are not editable.
func (r *Recorder) UpdateDetails(ctx context.Context, principal *models.Principal, id int64, in DetailsInput) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "Recorder.UpdateDetails")
	defer span.End()

	if err := Authorize(principal, PermTransactionsUpdate); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := validateCustomer(in.Customer); err != nil {
		return nil, err
	}

	if err := r.repo.UpdateTransactionDetails(ctx, id, in.Customer, in.Notes); err != nil {
		return nil, translateStoreError(err)
	}
	txn, err := r.repo.GetTransactionByID(ctx, id)
	return txn, translateStoreError(err)
}

// Delete removes a line as an administrative override. Units still held by
// the line go back to stock.
func (r *Recorder) Delete(ctx context.Context, principal *models.Principal, id int64) error {
	ctx, span := util.StartSpan(ctx, "Recorder.Delete")
	defer span.End()

	if err := Authorize(principal, PermTransactionsDelete); err != nil {
		return err
	}

	err := r.repo.InTx(ctx, func(repo store.Repository) error {
		current, err := repo.GetTransactionByID(ctx, id)
		if err != nil {
			return translateStoreError(err)
		}
		if err := repo.DeleteTransaction(ctx, id); err != nil {
			return translateStoreError(err)
		}
		if current.Status.HoldsStock() {
			return r.engine.Release(ctx, repo, reservationOf(current))
		}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	r.logger.Info("Transaction deleted",
		zap.Int64("transaction_id", id),
		zap.String("by", principal.Username))
	return nil
}

// Get returns one line
func (r *Recorder) Get(ctx context.Context, principal *models.Principal, id int64) (*models.Transaction, error) {
	if err := Authorize(principal, PermTransactionsRead); err != nil {
		return nil, err
	}
	txn, err := r.repo.GetTransactionByID(ctx, id)
	return txn, translateStoreError(err)
}

// List returns lines matching filter, newest first
func (r *Recorder) List(ctx context.Context, principal *models.Principal, filter store.TransactionFilter) ([]models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "Recorder.List")
	defer span.End()

	if err := Authorize(principal, PermTransactionsRead); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidField("status", "unknown status")
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return r.repo.ListTransactions(ctx, filter)
}

// Summary returns the dashboard aggregates
func (r *Recorder) Summary(ctx context.Context, principal *models.Principal) (*models.DashboardSummary, error) {
	if err := Authorize(principal, PermTransactionsRead); err != nil {
		return nil, err
	}
	return r.repo.SummarizeTransactions(ctx)
}
