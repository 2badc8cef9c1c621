// Package consent keeps the append-only ledger of patient authorizations.
// A consent is never edited in place: granting writes a new record, revoking
// stamps the current one. The current consent for a type is the most recent
// non-revoked, non-expired record.
package consent

import (
	"time"

	"github.com/google/uuid"
)

// Consent types gating telehealth features.
const (
	TypeGeneralTelehealth = "general_telehealth"
	TypeRecording         = "recording"
	TypePhotoCapture      = "photo_capture"
	TypeScreenShare       = "screen_share"
	TypeMultiParticipant  = "multi_participant"
)

// Capture methods.
const (
	MethodVerbal     = "verbal"
	MethodWritten    = "written"
	MethodElectronic = "electronic"
)

// ValidType reports whether t is a known consent type.
func ValidType(t string) bool {
	switch t {
	case TypeGeneralTelehealth, TypeRecording, TypePhotoCapture, TypeScreenShare, TypeMultiParticipant:
		return true
	}
	return false
}

// ConsentRecord maps to the consent_record table.
type ConsentRecord struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	ConsentType  string     `db:"consent_type" json:"consent_type"`
	ConsentGiven bool       `db:"consent_given" json:"consent_given"`
	Method       string     `db:"method" json:"method"`
	Origin       *string    `db:"origin" json:"origin,omitempty"`
	RecordedBy   *string    `db:"recorded_by" json:"recorded_by,omitempty"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	RevokedAt    *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Active reports whether the record grants consent at the given instant.
func (r *ConsentRecord) Active(at time.Time) bool {
	if !r.ConsentGiven || r.RevokedAt != nil {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(at) {
		return false
	}
	return true
}
