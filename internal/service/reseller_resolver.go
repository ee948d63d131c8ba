package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ResellerCache caches resolved referral codes
type ResellerCache interface {
	GetReseller(ctx context.Context, uniqueID string) (*models.Reseller, error)
	SetReseller(ctx context.Context, reseller *models.Reseller) error
	InvalidateReseller(ctx context.Context, uniqueIDs ...string) error
}

// ResellerResolver maps a referral code to a reseller
type ResellerResolver struct {
	repo   store.ResellerRepository
	cache  ResellerCache
	logger *zap.Logger
}

// NewResellerResolver creates a resolver. cache may be nil.
func NewResellerResolver(repo store.ResellerRepository, cache ResellerCache) *ResellerResolver {
	return &ResellerResolver{
		repo:   repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Resolve returns the reseller whose code equals ref exactly. An empty ref
// or a code nobody owns is direct attribution: nil, nil.
func (r *ResellerResolver) Resolve(ctx context.Context, ref string) (*models.Reseller, error) {
	ctx, span := util.StartSpan(ctx, "ResellerResolver.Resolve")
	defer span.End()

	ref = strings.TrimSpace(ref)
	if ref == "" {
		util.ResellerLookupsTotal.WithLabelValues("direct").Inc()
		return nil, nil
	}

	if r.cache != nil {
		cached, err := r.cache.GetReseller(ctx, ref)
		if err != nil {
			r.logger.Warn("Reseller cache read failed", zap.String("ref", ref), zap.Error(err))
		} else if cached != nil {
			util.ResellerLookupsTotal.WithLabelValues("cache_hit").Inc()
			return cached, nil
		}
	}

	reseller, err := r.repo.GetResellerByUniqueID(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		util.ResellerLookupsTotal.WithLabelValues("miss").Inc()
		r.logger.Info("Unknown reseller reference, using direct attribution", zap.String("ref", ref))
		return nil, nil
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to resolve reseller: %w", err)
	}

	util.ResellerLookupsTotal.WithLabelValues("hit").Inc()
	if r.cache != nil {
		if err := r.cache.SetReseller(ctx, reseller); err != nil {
			r.logger.Warn("Reseller cache write failed", zap.String("ref", ref), zap.Error(err))
		}
	}
	return reseller, nil
}

// Invalidate drops cached entries for the given codes
func (r *ResellerResolver) Invalidate(ctx context.Context, uniqueIDs ...string) {
	if r.cache == nil || len(uniqueIDs) == 0 {
		return
	}
	if err := r.cache.InvalidateReseller(ctx, uniqueIDs...); err != nil {
		r.logger.Warn("Reseller cache invalidation failed", zap.Strings("refs", uniqueIDs), zap.Error(err))
	}
}
