package feature

import (
	"context"
	"errors"
)

// GlobalTenant holds defaults applied to tenants without an override.
const GlobalTenant = "_global"

// Provider resolves tenant scoped boolean flags.
type Provider interface {
	// IsEnabled returns the tenant's value, falling back to the global
	// default. ErrFlagNotFound is returned when neither is set.
	IsEnabled(ctx context.Context, tenantID, flag string) (bool, error)

	// SetFlag stores a value for tenantID, or the global default when
	// tenantID is GlobalTenant.
	SetFlag(ctx context.Context, tenantID, flag string, enabled bool) error

	// ListFlags returns the effective values for a tenant, defaults included.
	ListFlags(ctx context.Context, tenantID string) (map[string]bool, error)

	Close() error
}

// Enabled is IsEnabled with a fallback for unknown flags. Provider errors are
// returned alongside the fallback value.
func Enabled(ctx context.Context, p Provider, tenantID, flag string, fallback bool) (bool, error) {
	ok, err := p.IsEnabled(ctx, tenantID, flag)
	switch {
	case err == nil:
		return ok, nil
	case errors.Is(err, ErrFlagNotFound):
		return fallback, nil
	default:
		return fallback, err
	}
}

func validate(tenantID, flag string) error {
	if tenantID == "" || flag == "" {
		return ErrInvalidFlag
	}
	return nil
}
