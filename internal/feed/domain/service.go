package domain

import (
	"context"

	"github.com/formgate/formgate/internal/config"
)

// SaveOverrideRequest stores or updates a form's feed. Credentials are only
// persisted (encrypted) when UseOverride is set.
type SaveOverrideRequest struct {
	FormID      int64
	Name        string
	IsActive    bool
	UseOverride bool
	Credentials config.CheckoutConfig
}

type Service interface {
	// CredentialsForForm resolves the processor credential set for a form.
	// No feed, an inactive feed, or a feed without an override all fall back
	// to the global set.
	CredentialsForForm(ctx context.Context, formID int64) (config.CheckoutConfig, error)
	SaveOverride(ctx context.Context, req SaveOverrideRequest) (*Feed, error)
}
