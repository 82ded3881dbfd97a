// Package rls binds the current tenant onto a database transaction so
// Postgres row-level-security policies can reference it.
package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithTenant sets the app.current_org_id GUC for the duration of the
// surrounding transaction. Callers must run it inside a transaction;
// SET LOCAL is a no-op outside one.
func WithTenant(tx *gorm.DB, tenantID int64) error {
	return tx.Exec(
		"SET LOCAL app.current_org_id = ?",
		fmt.Sprintf("%d", tenantID),
	).Error
}

// Supported reports whether the connected dialect enforces RLS policies.
func Supported(tx *gorm.DB) bool {
	return tx != nil && tx.Dialector != nil && tx.Dialector.Name() == "postgres"
}
