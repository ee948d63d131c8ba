package service

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/notify"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// settingRules validates each known setting key
var settingRules = map[string]func(string) string{
	models.SettingStoreName: func(v string) string {
		if v == "" || len(v) > 120 {
			return "must be 1 to 120 characters"
		}
		return ""
	},
	models.SettingStoreWhatsApp: func(v string) string {
		if v != "" && notify.NormalizePhone(v, "") == "" {
			return "must contain digits"
		}
		return ""
	},
	models.SettingLocale: func(v string) string {
		for _, l := range notify.SupportedLocales() {
			if l == v {
				return ""
			}
		}
		return "must be one of " + strings.Join(notify.SupportedLocales(), " ")
	},
	models.SettingThemeColor: func(v string) string {
		if !hexColor.MatchString(v) {
			return "must be a hex color like #16a34a"
		}
		return ""
	},
	models.SettingLogoURL: func(v string) string {
		if v == "" {
			return ""
		}
		if err := validate.Var(v, "url"); err != nil {
			return "must be a valid URL"
		}
		return ""
	},
}

// SettingsService manages site settings and the notification outbox
type SettingsService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewSettingsService creates a settings service
func NewSettingsService(repo store.Repository) *SettingsService {
	return &SettingsService{repo: repo, logger: util.GetLogger()}
}

// Public returns the settings visible to the storefront
func (s *SettingsService) Public(ctx context.Context) (map[string]string, error) {
	all, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settingRules))
	for key := range settingRules {
		if v, ok := all[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}

// Update writes the given settings. Unknown keys are rejected.
func (s *SettingsService) Update(ctx context.Context, principal *models.Principal, values map[string]string) (map[string]string, error) {
	ctx, span := util.StartSpan(ctx, "SettingsService.Update")
	defer span.End()

	if err := Authorize(principal, PermSettingsUpdate); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, invalidField("settings", "must not be empty")
	}

	clean := make(map[string]string, len(values))
	verr := &ValidationError{}
	for key, value := range values {
		rule, ok := settingRules[key]
		if !ok {
			verr.Fields = append(verr.Fields, FieldError{Field: key, Message: "unknown setting"})
			continue
		}
		value = strings.TrimSpace(value)
		if msg := rule(value); msg != "" {
			verr.Fields = append(verr.Fields, FieldError{Field: key, Message: msg})
			continue
		}
		clean[key] = value
	}
	if len(verr.Fields) > 0 {
		sort.Slice(verr.Fields, func(i, j int) bool { return verr.Fields[i].Field < verr.Fields[j].Field })
		return nil, verr
	}

	if err := s.repo.UpsertSettings(ctx, clean); err != nil {
		return nil, err
	}

	s.logger.Info("Settings updated", zap.Int("count", len(clean)), zap.String("by", principal.Username))
	return s.Public(ctx)
}

// Notifications lists formatted outbound messages, newest first
func (s *SettingsService) Notifications(ctx context.Context, principal *models.Principal, limit, offset int) ([]models.Notification, error) {
	if err := Authorize(principal, PermNotificationsRead); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListNotifications(ctx, clampLimit(limit), offset)
}
