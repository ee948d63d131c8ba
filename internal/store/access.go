package store

import (
	"context"

	"storefront-service/internal/models"
)

const userSelect = `
	SELECT u.*, r.name AS role_name
	FROM users u
	JOIN roles r ON r.id = u.role_id`

// GetRoleByID retrieves a role
func (s *Store) GetRoleByID(ctx context.Context, id int64) (*models.Role, error) {
	var role models.Role
	if err := s.q.GetContext(ctx, &role, "SELECT * FROM roles WHERE id = $1", id); err != nil {
		return nil, mapError(err)
	}
	return &role, nil
}

// GetRoleByName retrieves a role by its unique name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := s.q.GetContext(ctx, &role, "SELECT * FROM roles WHERE name = $1", name); err != nil {
		return nil, mapError(err)
	}
	return &role, nil
}

// ListRoles retrieves all roles
func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles := []models.Role{}
	err := s.q.SelectContext(ctx, &roles, "SELECT * FROM roles ORDER BY id")
	return roles, err
}

// CreateRole inserts a role
func (s *Store) CreateRole(ctx context.Context, role *models.Role) error {
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	err := s.q.GetContext(ctx, role,
		"INSERT INTO roles (name, permissions) VALUES ($1, $2) RETURNING id, created_at, updated_at",
		role.Name, role.Permissions)
	return mapError(err)
}

// UpdateRole overwrites name and permissions
func (s *Store) UpdateRole(ctx context.Context, role *models.Role) error {
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	err := s.q.GetContext(ctx, &role.UpdatedAt,
		"UPDATE roles SET name = $1, permissions = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at",
		role.Name, role.Permissions, role.ID)
	return mapError(err)
}

// DeleteRole removes a role; fails with ErrReferenced while users hold it
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	return expectAffected(s.q.ExecContext(ctx, "DELETE FROM roles WHERE id = $1", id))
}

// GetUserByID retrieves a user with its role name
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := s.q.GetContext(ctx, &user, userSelect+" WHERE u.id = $1", id); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user for login
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.q.GetContext(ctx, &user, userSelect+" WHERE u.username = $1", username); err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// ListUsers retrieves all users
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.q.SelectContext(ctx, &users, userSelect+" ORDER BY u.id")
	return users, err
}

// CreateUser inserts a user
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	err := s.q.GetContext(ctx, user,
		"INSERT INTO users (username, password_hash, role_id) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at",
		user.Username, user.PasswordHash, user.RoleID)
	return mapError(err)
}

// UpdateUser overwrites username, password hash and role
func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	err := s.q.GetContext(ctx, &user.UpdatedAt, `
		UPDATE users SET username = $1, password_hash = $2, role_id = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`,
		user.Username, user.PasswordHash, user.RoleID, user.ID)
	return mapError(err)
}

// DeleteUser removes a user
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return expectAffected(s.q.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id))
}
