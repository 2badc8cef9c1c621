package settings

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

type mockRepo struct {
	settings map[uuid.UUID]*ProviderSettings
	creates  int
}

func newMockRepo() *mockRepo {
	return &mockRepo{settings: make(map[uuid.UUID]*ProviderSettings)}
}

func (m *mockRepo) GetOrCreate(_ context.Context, providerID uuid.UUID) (*ProviderSettings, error) {
	if s, ok := m.settings[providerID]; ok {
		cp := *s
		return &cp, nil
	}
	m.creates++
	s := DefaultSettings(providerID)
	m.settings[providerID] = s
	cp := *s
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, s *ProviderSettings) error {
	if _, ok := m.settings[s.ProviderID]; !ok {
		return fmt.Errorf("no settings for provider %s", s.ProviderID)
	}
	cp := *s
	m.settings[s.ProviderID] = &cp
	return nil
}

func TestGetSettingsCreatesDefaults(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	providerID := uuid.New()

	s, err := svc.GetSettings(context.Background(), providerID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}

	if !s.WaitingRoomEnabled {
		t.Error("expected waiting room enabled by default")
	}
	if s.AutoRecord {
		t.Error("expected auto record disabled by default")
	}
	if s.MaxDurationMinutes != 60 {
		t.Errorf("expected max duration 60, got %d", s.MaxDurationMinutes)
	}
	if s.MaxParticipants != 4 {
		t.Errorf("expected max participants 4, got %d", s.MaxParticipants)
	}
	if !s.ScreenShareEnabled || !s.PhotoCaptureEnabled || !s.MultiParticipant {
		t.Error("expected feature toggles enabled by default")
	}
}

func TestGetSettingsIsIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	providerID := uuid.New()

	if _, err := svc.GetSettings(context.Background(), providerID); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if _, err := svc.GetSettings(context.Background(), providerID); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if repo.creates != 1 {
		t.Errorf("expected 1 insert, got %d", repo.creates)
	}
}

func TestGetSettingsRequiresProvider(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.GetSettings(context.Background(), uuid.Nil); err == nil {
		t.Error("expected error for nil provider id")
	}
}

func TestUpdateSettingsPartialPatch(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	providerID := uuid.New()

	autoRecord := true
	maxDur := 90
	updated, err := svc.UpdateSettings(context.Background(), providerID, Patch{
		AutoRecord:         &autoRecord,
		MaxDurationMinutes: &maxDur,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if !updated.AutoRecord {
		t.Error("expected auto record enabled")
	}
	if updated.MaxDurationMinutes != 90 {
		t.Errorf("expected max duration 90, got %d", updated.MaxDurationMinutes)
	}
	// Untouched fields keep their defaults.
	if !updated.WaitingRoomEnabled {
		t.Error("partial patch must not clear waiting room flag")
	}
	if updated.MaxParticipants != 4 {
		t.Errorf("partial patch must not change max participants, got %d", updated.MaxParticipants)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	svc := NewService(newMockRepo())
	providerID := uuid.New()

	one := 1
	if _, err := svc.UpdateSettings(context.Background(), providerID, Patch{MaxParticipants: &one}); err == nil {
		t.Error("expected error for max_participants below 2")
	}

	zero := 0
	if _, err := svc.UpdateSettings(context.Background(), providerID, Patch{MaxDurationMinutes: &zero}); err == nil {
		t.Error("expected error for non-positive max duration")
	}

	neg := -1
	if _, err := svc.UpdateSettings(context.Background(), providerID, Patch{AutoEndWarningMinutes: &neg}); err == nil {
		t.Error("expected error for negative warning minutes")
	}
}
