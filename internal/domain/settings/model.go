// Package settings manages per-provider telehealth configuration. Settings
// are created lazily with defaults the first time a provider is looked up,
// and only the owning provider may change them.
package settings

import (
	"time"

	"github.com/google/uuid"
)

// Defaults applied when a provider is first seen.
const (
	DefaultMaxDurationMinutes    = 60
	DefaultAutoEndWarningMinutes = 5
	DefaultMaxParticipants       = 4
)

// ProviderSettings maps to the provider_settings table.
type ProviderSettings struct {
	ProviderID            uuid.UUID `db:"provider_id" json:"provider_id"`
	WaitingRoomEnabled    bool      `db:"waiting_room_enabled" json:"waiting_room_enabled"`
	AutoRecord            bool      `db:"auto_record" json:"auto_record"`
	MaxDurationMinutes    int       `db:"max_duration_minutes" json:"max_duration_minutes"`
	AutoEndWarningMinutes int       `db:"auto_end_warning_minutes" json:"auto_end_warning_minutes"`
	ScreenShareEnabled    bool      `db:"screen_share_enabled" json:"screen_share_enabled"`
	PhotoCaptureEnabled   bool      `db:"photo_capture_enabled" json:"photo_capture_enabled"`
	MultiParticipant      bool      `db:"multi_participant_enabled" json:"multi_participant_enabled"`
	MaxParticipants       int       `db:"max_participants" json:"max_participants"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// Patch carries the fields a provider may change. Nil fields are left
// untouched, so a partial update never clobbers unrelated settings.
type Patch struct {
	WaitingRoomEnabled    *bool `json:"waiting_room_enabled,omitempty"`
	AutoRecord            *bool `json:"auto_record,omitempty"`
	MaxDurationMinutes    *int  `json:"max_duration_minutes,omitempty"`
	AutoEndWarningMinutes *int  `json:"auto_end_warning_minutes,omitempty"`
	ScreenShareEnabled    *bool `json:"screen_share_enabled,omitempty"`
	PhotoCaptureEnabled   *bool `json:"photo_capture_enabled,omitempty"`
	MultiParticipant      *bool `json:"multi_participant_enabled,omitempty"`
	MaxParticipants       *int  `json:"max_participants,omitempty"`
}

// Apply copies the present fields of the patch onto the settings.
func (p Patch) Apply(s *ProviderSettings) {
	if p.WaitingRoomEnabled != nil {
		s.WaitingRoomEnabled = *p.WaitingRoomEnabled
	}
	if p.AutoRecord != nil {
		s.AutoRecord = *p.AutoRecord
	}
	if p.MaxDurationMinutes != nil {
		s.MaxDurationMinutes = *p.MaxDurationMinutes
	}
	if p.AutoEndWarningMinutes != nil {
		s.AutoEndWarningMinutes = *p.AutoEndWarningMinutes
	}
	if p.ScreenShareEnabled != nil {
		s.ScreenShareEnabled = *p.ScreenShareEnabled
	}
	if p.PhotoCaptureEnabled != nil {
		s.PhotoCaptureEnabled = *p.PhotoCaptureEnabled
	}
	if p.MultiParticipant != nil {
		s.MultiParticipant = *p.MultiParticipant
	}
	if p.MaxParticipants != nil {
		s.MaxParticipants = *p.MaxParticipants
	}
}

// DefaultSettings returns the settings a provider starts with.
func DefaultSettings(providerID uuid.UUID) *ProviderSettings {
	return &ProviderSettings{
		ProviderID:            providerID,
		WaitingRoomEnabled:    true,
		AutoRecord:            false,
		MaxDurationMinutes:    DefaultMaxDurationMinutes,
		AutoEndWarningMinutes: DefaultAutoEndWarningMinutes,
		ScreenShareEnabled:    true,
		PhotoCaptureEnabled:   true,
		MultiParticipant:      true,
		MaxParticipants:       DefaultMaxParticipants,
	}
}
