package settings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetSettings returns the provider's settings, creating the defaults on
// first access.
func (s *Service) GetSettings(ctx context.Context, providerID uuid.UUID) (*ProviderSettings, error) {
	if providerID == uuid.Nil {
		return nil, fmt.Errorf("provider_id is required")
	}
	return s.repo.GetOrCreate(ctx, providerID)
}

// UpdateSettings applies a partial update and returns the result.
func (s *Service) UpdateSettings(ctx context.Context, providerID uuid.UUID, patch Patch) (*ProviderSettings, error) {
	current, err := s.repo.GetOrCreate(ctx, providerID)
	if err != nil {
		return nil, err
	}

	if patch.MaxParticipants != nil && *patch.MaxParticipants < 2 {
		return nil, fmt.Errorf("max_participants must allow at least the patient and the provider")
	}
	if patch.MaxDurationMinutes != nil && *patch.MaxDurationMinutes <= 0 {
		return nil, fmt.Errorf("max_duration_minutes must be positive")
	}
	if patch.AutoEndWarningMinutes != nil && *patch.AutoEndWarningMinutes < 0 {
		return nil, fmt.Errorf("auto_end_warning_minutes must not be negative")
	}

	patch.Apply(current)
	if err := s.repo.Update(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}
