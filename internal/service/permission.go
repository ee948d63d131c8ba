package service

import (
	"storefront-service/internal/models"
)

// Permissions
const (
	PermProductsCreate = "products:create"
	PermProductsUpdate = "products:update"
	PermProductsDelete = "products:delete"

	PermResellersCreate = "resellers:create"
	PermResellersUpdate = "resellers:update"
	PermResellersDelete = "resellers:delete"

	PermRolesCreate = "roles:create"
	PermRolesUpdate = "roles:update"
	PermRolesDelete = "roles:delete"

	PermUsersCreate = "users:create"
	PermUsersUpdate = "users:update"
	PermUsersDelete = "users:delete"

	PermTransactionsRead   = "transactions:read"
	PermTransactionsUpdate = "transactions:update"
	PermTransactionsDelete = "transactions:delete"

	PermSettingsUpdate    = "settings:update"
	PermNotificationsRead = "notifications:read"
)

// AllPermissions is the permission catalogue roles may draw from
var AllPermissions = []string{
	PermProductsCreate, PermProductsUpdate, PermProductsDelete,
	PermResellersCreate, PermResellersUpdate, PermResellersDelete,
	PermRolesCreate, PermRolesUpdate, PermRolesDelete,
	PermUsersCreate, PermUsersUpdate, PermUsersDelete,
	PermTransactionsRead, PermTransactionsUpdate, PermTransactionsDelete,
	PermSettingsUpdate, PermNotificationsRead,
}

func isKnownPermission(p string) bool {
	for _, known := range AllPermissions {
		if known == p {
			return true
		}
	}
	return false
}

// Authorize checks flat membership of permission in the principal's set.
// Every denial is the same ErrUnauthorized.
func Authorize(principal *models.Principal, permission string) error {
	if !principal.Has(permission) {
		return ErrUnauthorized
	}
	return nil
}

// GuardRoleMutation rejects any change aimed at the protected role
func GuardRoleMutation(roleName string) error {
	if models.IsProtectedRole(roleName) {
		return ErrUnauthorized
	}
	return nil
}
