package store

import (
	"context"

	"storefront-service/internal/models"
)

// GetResellerByID retrieves a reseller
func (s *Store) GetResellerByID(ctx context.Context, id int64) (*models.Reseller, error) {
	var reseller models.Reseller
	if err := s.q.GetContext(ctx, &reseller, "SELECT * FROM resellers WHERE id = $1", id); err != nil {
		return nil, mapError(err)
	}
	return &reseller, nil
}

// GetResellerByUniqueID retrieves a reseller by exact referral code
func (s *Store) GetResellerByUniqueID(ctx context.Context, uniqueID string) (*models.Reseller, error) {
	var reseller models.Reseller
	if err := s.q.GetContext(ctx, &reseller, "SELECT * FROM resellers WHERE unique_id = $1", uniqueID); err != nil {
		return nil, mapError(err)
	}
	return &reseller, nil
}

// ListResellers retrieves all resellers by name
func (s *Store) ListResellers(ctx context.Context) ([]models.Reseller, error) {
	resellers := []models.Reseller{}
	err := s.q.SelectContext(ctx, &resellers, "SELECT * FROM resellers ORDER BY name, id")
	return resellers, err
}

// CreateReseller inserts a reseller
func (s *Store) CreateReseller(ctx context.Context, reseller *models.Reseller) error {
	query := `
		INSERT INTO resellers (name, phone, unique_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := s.q.GetContext(ctx, reseller, query, reseller.Name, reseller.Phone, reseller.UniqueID)
	return mapError(err)
}

// UpdateReseller overwrites the editable reseller fields
func (s *Store) UpdateReseller(ctx context.Context, reseller *models.Reseller) error {
	query := `
		UPDATE resellers SET name = $1, phone = $2, unique_id = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`

	err := s.q.GetContext(ctx, &reseller.UpdatedAt, query,
		reseller.Name, reseller.Phone, reseller.UniqueID, reseller.ID)
	return mapError(err)
}

// DeleteReseller removes a reseller; past transactions keep their rows
// with reseller_id set to NULL
func (s *Store) DeleteReseller(ctx context.Context, id int64) error {
	return expectAffected(s.q.ExecContext(ctx, "DELETE FROM resellers WHERE id = $1", id))
}
