package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/notify"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IdempotencyGuard rejects concurrent in-flight requests sharing a key
type IdempotencyGuard interface {
	Claim(ctx context.Context, key, owner string) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// CheckoutConfig holds storefront defaults used when settings are empty
type CheckoutConfig struct {
	DefaultLocale string
	StoreWhatsApp string
	CountryCode   string
}

// CheckoutService turns a checkout request into a committed order
type CheckoutService struct {
	repo      store.Repository
	guard     IdempotencyGuard
	resolver  *ResellerResolver
	engine    *ReservationEngine
	recorder  *Recorder
	publisher EventPublisher
	cfg       CheckoutConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewCheckoutService creates a checkout service. guard and publisher may be nil.
func NewCheckoutService(
	repo store.Repository,
	guard IdempotencyGuard,
	resolver *ResellerResolver,
	engine *ReservationEngine,
	recorder *Recorder,
	publisher EventPublisher,
	cfg CheckoutConfig,
) *CheckoutService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = notify.DefaultLocale
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = notify.DefaultCountryCode
	}
	return &CheckoutService{
		repo:      repo,
		guard:     guard,
		resolver:  resolver,
		engine:    engine,
		recorder:  recorder,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CheckoutItem is one cart line
type CheckoutItem struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	VariantID *int64 `json:"variantId,omitempty" validate:"omitempty,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CheckoutRequest is either a single product line (ProductID, VariantID,
// Quantity) or a cart (Items)
type CheckoutRequest struct {
	ProductID       int64          `json:"productId" validate:"omitempty,gt=0"`
	VariantID       *int64         `json:"variantId,omitempty" validate:"omitempty,gt=0"`
	Quantity        int            `json:"quantity" validate:"gte=0"`
	Items           []CheckoutItem `json:"items,omitempty" validate:"omitempty,max=50,dive"`
	ResellerRef     string         `json:"resellerRef" validate:"max=64"`
	CustomerName    string         `json:"customerName" validate:"max=120"`
	CustomerPhone   string         `json:"customerPhone" validate:"max=32"`
	CustomerEmail   string         `json:"customerEmail" validate:"omitempty,email,max=254"`
	CustomerAddress string         `json:"customerAddress" validate:"max=500"`
	Notes           string         `json:"notes" validate:"max=1000"`
	IdempotencyKey  string         `json:"idempotencyKey" validate:"max=128"`
}

// CheckoutResponse is returned for a committed or replayed checkout
type CheckoutResponse struct {
	OrderID        int64           `json:"orderId"`
	OrderNumber    string          `json:"orderNumber"`
	TransactionID  int64           `json:"transactionId"`
	TransactionIDs []int64         `json:"transactionIds"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	ResellerName   string          `json:"resellerName"`
	MessageText    string          `json:"messageText"`
	WhatsAppURL    string          `json:"whatsappUrl"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Replayed       bool            `json:"replayed"`
}

func (r *CheckoutRequest) lines() []CheckoutItem {
	if len(r.Items) > 0 {
		return r.Items
	}
	if r.ProductID == 0 {
		return nil
	}
	return []CheckoutItem{{ProductID: r.ProductID, VariantID: r.VariantID, Quantity: r.Quantity}}
}

func (r *CheckoutRequest) customer() models.Customer {
	return models.Customer{
		Name:    strings.TrimSpace(r.CustomerName),
		Phone:   strings.TrimSpace(r.CustomerPhone),
		Email:   strings.TrimSpace(r.CustomerEmail),
		Address: strings.TrimSpace(r.CustomerAddress),
	}
}

// Checkout reserves stock for every line and records the order in one unit
// of work. Nothing is written when any line fails. Retrying with the same
// idempotency key returns the original result.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if err := validateStruct(req); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	lines := req.lines()
	if len(lines) == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("validation").Inc()
		return nil, invalidField("productId", "a product or at least one item is required")
	}
	if len(req.Items) == 0 && req.Quantity <= 0 {
		util.CheckoutsFailedTotal.WithLabelValues("validation").Inc()
		return nil, ErrInvalidQuantity
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}
	key := req.IdempotencyKey

	if resp, err := s.replay(ctx, key); err != nil || resp != nil {
		return resp, err
	}

	owner := uuid.New().String()
	if s.guard != nil {
		claimed, err := s.guard.Claim(ctx, key, owner)
		if err != nil {
			s.logger.Warn("Idempotency claim unavailable, relying on database uniqueness",
				zap.String("idempotency_key", key), zap.Error(err))
		} else if !claimed {
			util.CheckoutsFailedTotal.WithLabelValues("in_progress").Inc()
			return nil, ErrCheckoutInProgress
		}
		defer func() {
			if err := s.guard.Release(context.Background(), key, owner); err != nil {
				s.logger.Warn("Failed to release idempotency claim", zap.String("idempotency_key", key), zap.Error(err))
			}
		}()
	}

	reseller, err := s.resolver.Resolve(ctx, req.ResellerRef)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("reseller").Inc()
		return nil, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		s.logger.Warn("Failed to load settings, using defaults", zap.Error(err))
		settings = map[string]string{}
	}

	customer := req.customer()
	order, txns, err := s.commit(ctx, lines, key, customer, reseller, req.Notes)
	if reseller != nil && errors.Is(err, store.ErrReferenced) {
		// deleted after it was resolved; the sale goes through as direct
		s.logger.Warn("Reseller vanished during checkout, recording as direct sale",
			zap.String("ref", reseller.UniqueID), zap.Int64("reseller_id", reseller.ID))
		s.resolver.Invalidate(ctx, reseller.UniqueID)
		reseller = nil
		order, txns, err = s.commit(ctx, lines, key, customer, nil, req.Notes)
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			if resp, rerr := s.replay(ctx, key); rerr == nil && resp != nil {
				return resp, nil
			}
		}
		util.CheckoutsFailedTotal.WithLabelValues(reservationFailureReason(err)).Inc()
		util.RecordError(span, err)
		return nil, err
	}

	util.CheckoutsTotal.Inc()
	s.logger.Info("Checkout committed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("lines", len(txns)),
		zap.String("total", order.TotalPrice.String()))

	resp := s.buildResponse(order, txns, reseller, settings)
	resp.IdempotencyKey = key

	s.publishCreated(ctx, order, txns, reseller, req.Notes, s.recipient(reseller, settings))
	return resp, nil
}

// commit reserves every line and records the order in one unit of work.
// Stock rows are locked in (product, variant) order; transactions keep the
// request order.
func (s *CheckoutService) commit(ctx context.Context, lines []CheckoutItem, key string, customer models.Customer, reseller *models.Reseller, notes string) (*models.Order, []*models.Transaction, error) {
	var (
		order *models.Order
		txns  []*models.Transaction
	)
	err := s.repo.InTx(ctx, func(repo store.Repository) error {
		reservations := make([]*Reservation, len(lines))
		total := decimal.Zero
		for _, i := range lockOrder(lines) {
			line := lines[i]
			res, err := s.engine.Reserve(ctx, repo, line.ProductID, line.VariantID, line.Quantity)
			if err != nil {
				return err
			}
			reservations[i] = res
			total = total.Add(lineTotal(res.UnitPrice, res.Quantity))
		}

		order = &models.Order{
			OrderNumber:    s.orderNumber(),
			IdempotencyKey: key,
			TotalPrice:     total,
			Customer:       customer,
		}
		if reseller != nil {
			id := reseller.ID
			order.ResellerID = &id
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		txns = make([]*models.Transaction, 0, len(reservations))
		for _, res := range reservations {
			txn, err := s.recorder.Commit(ctx, repo, order, res, notes)
			if err != nil {
				return err
			}
			txns = append(txns, txn)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, txns, nil
}

// lockOrder returns the indexes of lines sorted by product id, then variant
// id with product-level lines first
func lockOrder(lines []CheckoutItem) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		la, lb := lines[idx[a]], lines[idx[b]]
		if la.ProductID != lb.ProductID {
			return la.ProductID < lb.ProductID
		}
		return variantKey(la.VariantID) < variantKey(lb.VariantID)
	})
	return idx
}

func variantKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

// replay answers a retried key from the stored order, if any
func (s *CheckoutService) replay(ctx context.Context, key string) (*CheckoutResponse, error) {
	existing, err := s.repo.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}

	orderID := existing.ID
	rows, err := s.repo.ListTransactions(ctx, store.TransactionFilter{OrderID: &orderID})
	if err != nil {
		return nil, err
	}
	txns := make([]*models.Transaction, len(rows))
	for i := range rows {
		// list is newest first; committed order is ascending id
		txns[len(rows)-1-i] = &rows[i]
	}

	var reseller *models.Reseller
	if existing.ResellerID != nil {
		reseller, err = s.repo.GetResellerByID(ctx, *existing.ResellerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		settings = map[string]string{}
	}

	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", existing.ID))
	util.CheckoutReplaysTotal.Inc()

	resp := s.buildResponse(existing, txns, reseller, settings)
	resp.IdempotencyKey = key
	resp.Replayed = true
	return resp, nil
}

func (s *CheckoutService) buildResponse(order *models.Order, txns []*models.Transaction, reseller *models.Reseller, settings map[string]string) *CheckoutResponse {
	resp := &CheckoutResponse{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		TransactionIDs: make([]int64, len(txns)),
		TotalPrice:     order.TotalPrice,
		ResellerName:   notify.ResellerName(reseller),
	}
	for i, t := range txns {
		resp.TransactionIDs[i] = t.ID
	}
	if len(txns) > 0 {
		resp.TransactionID = txns[0].ID
	}

	msg := notify.Message{
		StoreName:   settings[models.SettingStoreName],
		OrderNumber: order.OrderNumber,
		Customer:    order.Customer,
		Reseller:    reseller,
	}
	for _, t := range txns {
		msg.Lines = append(msg.Lines, notify.LineFromTransaction(t))
	}
	if len(txns) > 0 {
		msg.Notes = txns[0].Notes
	}

	text, err := notify.Format(msg, s.locale(settings), order.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to format checkout message", zap.Int64("order_id", order.ID), zap.Error(err))
		return resp
	}
	resp.MessageText = text

	if phone := s.recipient(reseller, settings); phone != "" {
		link, err := notify.WhatsAppLink(phone, text, s.cfg.CountryCode)
		if err != nil {
			s.logger.Warn("Failed to build WhatsApp link", zap.Int64("order_id", order.ID), zap.Error(err))
		} else {
			resp.WhatsAppURL = link
		}
	}
	return resp
}

func (s *CheckoutService) publishCreated(ctx context.Context, order *models.Order, txns []*models.Transaction, reseller *models.Reseller, notes, recipient string) {
	event := &models.TransactionCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTransactionCreated,
			Timestamp: s.now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Customer:    order.Customer,
		Notes:       notes,
		Reseller:    reseller,
		Recipient:   recipient,
		TotalPrice:  order.TotalPrice,
	}
	for _, t := range txns {
		event.Transactions = append(event.Transactions, models.NewTransactionData(t))
	}

	if err := s.publisher.PublishTransactionCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish TransactionCreated event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// recipient is the reseller's phone, else the store's WhatsApp number
func (s *CheckoutService) recipient(reseller *models.Reseller, settings map[string]string) string {
	if reseller != nil && reseller.Phone != "" {
		return reseller.Phone
	}
	if v := settings[models.SettingStoreWhatsApp]; v != "" {
		return v
	}
	return s.cfg.StoreWhatsApp
}

func (s *CheckoutService) locale(settings map[string]string) string {
	if v := settings[models.SettingLocale]; v != "" {
		return v
	}
	return s.cfg.DefaultLocale
}

func (s *CheckoutService) orderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", s.now().Format("20060102"), suffix)
}
