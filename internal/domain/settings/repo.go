package settings

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetOrCreate returns the provider's settings, inserting the defaults
	// first if the provider has none.
	GetOrCreate(ctx context.Context, providerID uuid.UUID) (*ProviderSettings, error)
	Update(ctx context.Context, s *ProviderSettings) error
}
