package worker

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/notify"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// LiveEventNotification is the live feed frame type for a new notification
const LiveEventNotification = "notification"

// MessageSource delivers raw events. broker.Consumer and broker.LocalBus
// implement it.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// Broadcaster pushes frames to connected admin dashboards
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// Config holds notification defaults used when settings are empty
type Config struct {
	DefaultLocale string
	CountryCode   string
}

// NotificationWorker turns transaction events into WhatsApp notifications
type NotificationWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	repo         store.Repository
	live         Broadcaster
	cfg          Config
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker. live may be nil.
func NewNotificationWorker(source MessageSource, repo store.Repository, live Broadcaster, cfg Config) *NotificationWorker {
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = notify.DefaultLocale
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = notify.DefaultCountryCode
	}

	w := &NotificationWorker{
		source: source,
		repo:   repo,
		live:   live,
		cfg:    cfg,
		logger: util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnTransactionCreated(w.HandleTransactionCreated)
	eventHandler.OnTransactionStatusChanged(w.HandleTransactionStatusChanged)
	w.eventHandler = eventHandler
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.source.Close()
}

// HandleTransactionCreated records the new-order message for a checkout
func (w *NotificationWorker) HandleTransactionCreated(ctx context.Context, event *models.TransactionCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.HandleTransactionCreated")
	defer span.End()

	if len(event.Transactions) == 0 {
		return fmt.Errorf("%w: event %s has no transactions", broker.ErrMalformedMessage, event.EventID)
	}

	return w.deliver(ctx, event.BaseEvent, func(settings map[string]string) (*models.Notification, error) {
		msg := notify.Message{
			StoreName:   settings[models.SettingStoreName],
			OrderNumber: event.OrderNumber,
			Customer:    event.Customer,
			Notes:       event.Notes,
			Reseller:    event.Reseller,
		}
		for _, t := range event.Transactions {
			msg.Lines = append(msg.Lines, notify.LineFromEvent(t))
		}

		text, err := notify.Format(msg, w.locale(settings), event.Timestamp)
		if err != nil {
			return nil, err
		}
		return &models.Notification{
			TransactionID: event.Transactions[0].TransactionID,
			Recipient:     event.Recipient,
			Message:       text,
		}, nil
	})
}

// HandleTransactionStatusChanged records the status message for the customer
func (w *NotificationWorker) HandleTransactionStatusChanged(ctx context.Context, event *models.TransactionStatusChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.HandleTransactionStatusChanged")
	defer span.End()

	return w.deliver(ctx, event.BaseEvent, func(settings map[string]string) (*models.Notification, error) {
		text, err := notify.FormatStatusUpdate(notify.StatusUpdate{
			OrderNumber: event.OrderNumber,
			Line:        notify.LineFromEvent(event.Line),
			From:        event.From,
			To:          event.To,
			Notes:       event.Notes,
		}, w.locale(settings), event.Timestamp)
		if err != nil {
			return nil, err
		}
		return &models.Notification{
			TransactionID: event.TransactionID,
			Recipient:     event.Recipient,
			Message:       text,
		}, nil
	})
}

// deliver runs build once per event id and stores the result together with
// the processed marker, then pushes it to the live feed
func (w *NotificationWorker) deliver(ctx context.Context, base models.BaseEvent, build func(map[string]string) (*models.Notification, error)) error {
	log := util.LoggerFromContext(ctx).With(
		zap.String("event_id", base.EventID),
		zap.String("event_type", base.EventType))

	var stored *models.Notification
	err := w.repo.InTx(ctx, func(repo store.Repository) error {
		processed, err := repo.IsEventProcessed(ctx, base.EventID)
		if err != nil {
			return err
		}
		if processed {
			log.Info("Event already processed, skipping")
			return nil
		}

		settings, err := repo.GetSettings(ctx)
		if err != nil {
			return err
		}

		n, err := build(settings)
		if err != nil {
			var ferr *notify.FormatError
			if errors.As(err, &ferr) {
				// malformed events are marked processed and never retried
				log.Error("Dropping unformattable event", zap.Error(err))
				return repo.MarkEventProcessed(ctx, base.EventID, base.EventType)
			}
			return err
		}

		n.EventID = base.EventID
		if n.Recipient != "" {
			link, err := notify.WhatsAppLink(n.Recipient, n.Message, w.cfg.CountryCode)
			if err != nil {
				log.Warn("Failed to build WhatsApp link", zap.String("recipient", n.Recipient), zap.Error(err))
			} else {
				n.Link = link
			}
		}

		if err := repo.CreateNotification(ctx, n); err != nil {
			return fmt.Errorf("failed to save notification: %w", err)
		}
		if err := repo.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
			return fmt.Errorf("failed to mark event processed: %w", err)
		}
		stored = n
		return nil
	})
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}

	util.NotificationsSentTotal.WithLabelValues(base.EventType).Inc()
	log.Info("Notification recorded",
		zap.Int64("notification_id", stored.ID),
		zap.Int64("transaction_id", stored.TransactionID))

	if w.live != nil {
		w.live.Broadcast(LiveEventNotification, stored)
	}
	return nil
}

func (w *NotificationWorker) locale(settings map[string]string) string {
	if v := settings[models.SettingLocale]; v != "" {
		return v
	}
	return w.cfg.DefaultLocale
}
