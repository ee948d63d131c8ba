package service

import (
	"context"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ResellerService manages resellers
type ResellerService struct {
	repo     store.Repository
	resolver *ResellerResolver
	logger   *zap.Logger
}

// NewResellerService creates a reseller service. Writes invalidate the
// resolver's cache.
func NewResellerService(repo store.Repository, resolver *ResellerResolver) *ResellerService {
	return &ResellerService{repo: repo, resolver: resolver, logger: util.GetLogger()}
}

// ResellerInput is the admin payload for a reseller
type ResellerInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"required,max=32"`
	UniqueID string `json:"unique_id" validate:"required,max=64,excludesall= /?#&"`
}

func (in *ResellerInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.UniqueID = strings.TrimSpace(in.UniqueID)
}

// Validate resolves a referral code for the storefront. A miss is not an
// error; the reseller is nil.
func (s *ResellerService) Validate(ctx context.Context, ref string) (*models.Reseller, error) {
	return s.resolver.Resolve(ctx, ref)
}

// List returns all resellers
func (s *ResellerService) List(ctx context.Context) ([]models.Reseller, error) {
	return s.repo.ListResellers(ctx)
}

// Get returns a reseller
func (s *ResellerService) Get(ctx context.Context, id int64) (*models.Reseller, error) {
	r, err := s.repo.GetResellerByID(ctx, id)
	return r, translateStoreError(err)
}

// Create inserts a reseller
func (s *ResellerService) Create(ctx context.Context, principal *models.Principal, in ResellerInput) (*models.Reseller, error) {
	ctx, span := util.StartSpan(ctx, "ResellerService.Create")
	defer span.End()

	if err := Authorize(principal, PermResellersCreate); err != nil {
		return nil, err
	}
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	reseller := &models.Reseller{Name: in.Name, Phone: in.Phone, UniqueID: in.UniqueID}
	if err := s.repo.CreateReseller(ctx, reseller); err != nil {
		return nil, translateStoreError(err)
	}

	s.logger.Info("Reseller created", zap.Int64("reseller_id", reseller.ID), zap.String("by", principal.Username))
	return reseller, nil
}

// Update overwrites a reseller
func (s *ResellerService) Update(ctx context.Context, principal *models.Principal, id int64, in ResellerInput) (*models.Reseller, error) {
	ctx, span := util.StartSpan(ctx, "ResellerService.Update")
	defer span.End()

	if err := Authorize(principal, PermResellersUpdate); err != nil {
		return nil, err
	}
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	current, err := s.repo.GetResellerByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}

	reseller := &models.Reseller{ID: id, Name: in.Name, Phone: in.Phone, UniqueID: in.UniqueID, CreatedAt: current.CreatedAt}
	if err := s.repo.UpdateReseller(ctx, reseller); err != nil {
		return nil, translateStoreError(err)
	}
	s.resolver.Invalidate(ctx, current.UniqueID, reseller.UniqueID)

	s.logger.Info("Reseller updated", zap.Int64("reseller_id", id), zap.String("by", principal.Username))
	return reseller, nil
}

// Delete removes a reseller. Its past sales become direct sales.
func (s *ResellerService) Delete(ctx context.Context, principal *models.Principal, id int64) error {
	ctx, span := util.StartSpan(ctx, "ResellerService.Delete")
	defer span.End()

	if err := Authorize(principal, PermResellersDelete); err != nil {
		return err
	}

	current, err := s.repo.GetResellerByID(ctx, id)
	if err != nil {
		return translateStoreError(err)
	}
	if err := s.repo.DeleteReseller(ctx, id); err != nil {
		return translateStoreError(err)
	}
	s.resolver.Invalidate(ctx, current.UniqueID)

	s.logger.Info("Reseller deleted", zap.Int64("reseller_id", id), zap.String("by", principal.Username))
	return nil
}
