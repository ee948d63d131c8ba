package store

import (
	"context"
	"sort"

	"storefront-service/internal/models"
)

// GetSettings returns all settings as a key/value map
func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	if err := s.q.SelectContext(ctx, &rows, "SELECT * FROM settings"); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// UpsertSettings writes every key in values
func (s *Store) UpsertSettings(ctx context.Context, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			k, values[k])
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

// CreateNotification stores a formatted outbound message
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	err := s.q.GetContext(ctx, n, `
		INSERT INTO notifications (transaction_id, event_id, recipient, message, link)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		n.TransactionID, n.EventID, n.Recipient, n.Message, n.Link)
	return mapError(err)
}

// ListNotifications retrieves notifications newest first
func (s *Store) ListNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error) {
	query, args := paginate("SELECT * FROM notifications ORDER BY created_at DESC, id DESC", nil, limit, offset)
	notifications := []models.Notification{}
	err := s.q.SelectContext(ctx, &notifications, query, args...)
	return notifications, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.q.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
