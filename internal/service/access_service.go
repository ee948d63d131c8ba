package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// RoleInput is the admin payload for a role
type RoleInput struct {
	Name        string   `json:"name" validate:"required,max=64"`
	Permissions []string `json:"permissions"`
}

func (in *RoleInput) check() error {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return err
	}

	seen := make(map[string]bool, len(in.Permissions))
	perms := make([]string, 0, len(in.Permissions))
	for _, p := range in.Permissions {
		p = strings.TrimSpace(p)
		if !isKnownPermission(p) {
			return invalidField("permissions", "unknown permission "+p)
		}
		if !seen[p] {
			seen[p] = true
			perms = append(perms, p)
		}
	}
	sort.Strings(perms)
	in.Permissions = perms
	return nil
}

// AccessService manages roles and users
type AccessService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewAccessService creates an access service
func NewAccessService(repo store.Repository) *AccessService {
	return &AccessService{repo: repo, logger: util.GetLogger()}
}

// ListRoles returns every role
func (s *AccessService) ListRoles(ctx context.Context) ([]models.Role, error) {
	return s.repo.ListRoles(ctx)
}

// CreateRole inserts a role. The protected role name cannot be taken.
func (s *AccessService) CreateRole(ctx context.Context, principal *models.Principal, in RoleInput) (*models.Role, error) {
	ctx, span := util.StartSpan(ctx, "AccessService.CreateRole")
	defer span.End()

	if err := Authorize(principal, PermRolesCreate); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}
	if err := GuardRoleMutation(in.Name); err != nil {
		return nil, err
	}

	role := &models.Role{Name: in.Name, Permissions: in.Permissions}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, translateStoreError(err)
	}

	s.logger.Info("Role created", zap.Int64("role_id", role.ID), zap.String("by", principal.Username))
	return role, nil
}

// UpdateRole overwrites a role. Any update aimed at, or renaming to, the
// protected role fails.
func (s *AccessService) UpdateRole(ctx context.Context, principal *models.Principal, id int64, in RoleInput) (*models.Role, error) {
	ctx, span := util.StartSpan(ctx, "AccessService.UpdateRole")
	defer span.End()

	if err := Authorize(principal, PermRolesUpdate); err != nil {
		return nil, err
	}

	current, err := s.repo.GetRoleByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if err := GuardRoleMutation(current.Name); err != nil {
		s.logger.Warn("Rejected protected role update", zap.Int64("role_id", id), zap.String("by", principal.Username))
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}
	if err := GuardRoleMutation(in.Name); err != nil {
		return nil, err
	}

	role := &models.Role{ID: id, Name: in.Name, Permissions: in.Permissions, CreatedAt: current.CreatedAt}
	if err := s.repo.UpdateRole(ctx, role); err != nil {
		return nil, translateStoreError(err)
	}

	s.logger.Info("Role updated", zap.Int64("role_id", id), zap.String("by", principal.Username))
	return role, nil
}

// DeleteRole removes a role that no user holds
func (s *AccessService) DeleteRole(ctx context.Context, principal *models.Principal, id int64) error {
	ctx, span := util.StartSpan(ctx, "AccessService.DeleteRole")
	defer span.End()

	if err := Authorize(principal, PermRolesDelete); err != nil {
		return err
	}

	current, err := s.repo.GetRoleByID(ctx, id)
	if err != nil {
		return translateStoreError(err)
	}
	if err := GuardRoleMutation(current.Name); err != nil {
		s.logger.Warn("Rejected protected role delete", zap.Int64("role_id", id), zap.String("by", principal.Username))
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return translateStoreError(err)
	}

	s.logger.Info("Role deleted", zap.Int64("role_id", id), zap.String("by", principal.Username))
	return nil
}

// UserInput is the admin payload for a user. Password may be empty on
// update to keep the current one.
type UserInput struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"omitempty,min=8,max=72"`
	RoleID   int64  `json:"role_id" validate:"required,gt=0"`
}

// ListUsers returns every user
func (s *AccessService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.repo.ListUsers(ctx)
}

// guardDeveloperAccount keeps non-developers from creating, editing or
// removing accounts that hold the protected role
func (s *AccessService) guardDeveloperAccount(ctx context.Context, principal *models.Principal, roleID int64) error {
	role, err := s.repo.GetRoleByID(ctx, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return invalidField("role_id", "unknown role")
	}
	if err != nil {
		return err
	}
	if models.IsProtectedRole(role.Name) && !models.IsProtectedRole(principal.Role) {
		return ErrUnauthorized
	}
	return nil
}

// CreateUser inserts a user with a bcrypt password hash
func (s *AccessService) CreateUser(ctx context.Context, principal *models.Principal, in UserInput) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccessService.CreateUser")
	defer span.End()

	if err := Authorize(principal, PermUsersCreate); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, invalidField("password", "is required")
	}
	if err := s.guardDeveloperAccount(ctx, principal, in.RoleID); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{Username: in.Username, PasswordHash: hash, RoleID: in.RoleID}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, translateStoreError(err)
	}

	s.logger.Info("User created", zap.Int64("user_id", user.ID), zap.String("by", principal.Username))
	return s.repo.GetUserByID(ctx, user.ID)
}

// UpdateUser changes username, role and optionally password
func (s *AccessService) UpdateUser(ctx context.Context, principal *models.Principal, id int64, in UserInput) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AccessService.UpdateUser")
	defer span.End()

	if err := Authorize(principal, PermUsersUpdate); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	current, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if err := s.guardDeveloperAccount(ctx, principal, current.RoleID); err != nil {
		return nil, err
	}
	if err := s.guardDeveloperAccount(ctx, principal, in.RoleID); err != nil {
		return nil, err
	}

	user := &models.User{ID: id, Username: in.Username, PasswordHash: current.PasswordHash, RoleID: in.RoleID}
	if in.Password != "" {
		if user.PasswordHash, err = HashPassword(in.Password); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, translateStoreError(err)
	}

	s.logger.Info("User updated", zap.Int64("user_id", id), zap.String("by", principal.Username))
	return s.repo.GetUserByID(ctx, id)
}

// DeleteUser removes a user other than the caller
func (s *AccessService) DeleteUser(ctx context.Context, principal *models.Principal, id int64) error {
	ctx, span := util.StartSpan(ctx, "AccessService.DeleteUser")
	defer span.End()

	if err := Authorize(principal, PermUsersDelete); err != nil {
		return err
	}
	if principal.UserID == id {
		return ErrSelfDelete
	}

	current, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return translateStoreError(err)
	}
	if err := s.guardDeveloperAccount(ctx, principal, current.RoleID); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return translateStoreError(err)
	}

	s.logger.Info("User deleted", zap.Int64("user_id", id), zap.String("by", principal.Username))
	return nil
}

// BootstrapDeveloper creates the first developer account if no user with
// username exists yet. Used by the migrate command.
func (s *AccessService) BootstrapDeveloper(ctx context.Context, username, password string) (*models.User, bool, error) {
	if existing, err := s.repo.GetUserByUsername(ctx, username); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	if len(password) < 8 {
		return nil, false, invalidField("password", "must be at least 8")
	}

	role, err := s.repo.GetRoleByName(ctx, models.DeveloperRole)
	if err != nil {
		return nil, false, translateStoreError(err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	user := &models.User{Username: username, PasswordHash: hash, RoleID: role.ID}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, false, translateStoreError(err)
	}
	return user, true, nil
}

// HashPassword hashes the password using bcrypt
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword checks if the provided password matches the hash
func CheckPassword(password, hashed string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
}
