// Package telehealth owns the virtual visit lifecycle: the session state
// machine, the participant registry with its capacity cap, and the visit
// notes record. Sessions are never deleted, only moved to a terminal status.
package telehealth

import (
	"time"

	"github.com/google/uuid"
)

// Session statuses. Cancellation and no-show are written by the booking
// subsystem; this package only honors the resulting terminal status.
const (
	StatusScheduled  = "scheduled"
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Session maps to the telehealth_session table.
type Session struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	TenantID             string     `db:"tenant_id" json:"tenant_id"`
	AppointmentID        uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	ProviderID           uuid.UUID  `db:"provider_id" json:"provider_id"`
	ScheduledStart       time.Time  `db:"scheduled_start" json:"scheduled_start"`
	ActualStart          *time.Time `db:"actual_start" json:"actual_start,omitempty"`
	ActualEnd            *time.Time `db:"actual_end" json:"actual_end,omitempty"`
	Status               string     `db:"status" json:"status"`
	RoomID               string     `db:"room_id" json:"room_id"`
	RoomURL              string     `db:"room_url" json:"room_url"`
	HostToken            string     `db:"host_token" json:"-"`
	RecordingEnabled     bool       `db:"recording_enabled" json:"recording_enabled"`
	RecordingURL         *string    `db:"recording_url" json:"recording_url,omitempty"`
	WaitingRoomEnabled   bool       `db:"waiting_room_enabled" json:"waiting_room_enabled"`
	DurationMinutes      *int       `db:"duration_minutes" json:"duration_minutes,omitempty"`
	TechnicalIssuesCount int        `db:"technical_issues_count" json:"technical_issues_count"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the session can no longer change.
func (s *Session) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Participant maps to the session_participant table. Patient and provider
// carry a stable identity; ad-hoc roles (interpreter, family, caregiver,
// specialist) are identified by free-text name/email and may repeat.
type Participant struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	SessionID       uuid.UUID  `db:"session_id" json:"session_id"`
	ParticipantType string     `db:"participant_type" json:"participant_type"`
	ParticipantID   *uuid.UUID `db:"participant_id" json:"participant_id,omitempty"`
	Name            *string    `db:"name" json:"name,omitempty"`
	Email           *string    `db:"email" json:"email,omitempty"`
	JoinToken       string     `db:"join_token" json:"-"`
	JoinedAt        *time.Time `db:"joined_at" json:"joined_at,omitempty"`
	LeftAt          *time.Time `db:"left_at" json:"left_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// VisitNotes is the structured annotation record, one row per session.
type VisitNotes struct {
	SessionID           uuid.UUID `db:"session_id" json:"session_id"`
	ConsentVerified     bool      `db:"consent_verified" json:"consent_verified"`
	InterpreterUsed     bool      `db:"interpreter_used" json:"interpreter_used"`
	InterpreterLanguage *string   `db:"interpreter_language" json:"interpreter_language,omitempty"`
	FamilyMemberPresent bool      `db:"family_member_present" json:"family_member_present"`
	FamilyMemberNames   []string  `db:"family_member_names" json:"family_member_names"`
	TechIssues          []string  `db:"tech_issues" json:"tech_issues"`
	FollowUpRequired    bool      `db:"follow_up_required" json:"follow_up_required"`
	FollowUpNotes       *string   `db:"follow_up_notes" json:"follow_up_notes,omitempty"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// NotesPatch carries the note fields callers may change. Nil fields keep
// their prior value; list fields (tech issues, family names) are appended
// through their own operations, never replaced here.
type NotesPatch struct {
	ConsentVerified     *bool   `json:"consent_verified,omitempty"`
	InterpreterUsed     *bool   `json:"interpreter_used,omitempty"`
	InterpreterLanguage *string `json:"interpreter_language,omitempty"`
	FamilyMemberPresent *bool   `json:"family_member_present,omitempty"`
	FollowUpRequired    *bool   `json:"follow_up_required,omitempty"`
	FollowUpNotes       *string `json:"follow_up_notes,omitempty"`
}

// Apply copies the present fields of the patch onto the notes.
func (p NotesPatch) Apply(n *VisitNotes) {
	if p.ConsentVerified != nil {
		n.ConsentVerified = *p.ConsentVerified
	}
	if p.InterpreterUsed != nil {
		n.InterpreterUsed = *p.InterpreterUsed
	}
	if p.InterpreterLanguage != nil {
		n.InterpreterLanguage = p.InterpreterLanguage
	}
	if p.FamilyMemberPresent != nil {
		n.FamilyMemberPresent = *p.FamilyMemberPresent
	}
	if p.FollowUpRequired != nil {
		n.FollowUpRequired = *p.FollowUpRequired
	}
	if p.FollowUpNotes != nil {
		n.FollowUpNotes = p.FollowUpNotes
	}
}

// CreateOptions overrides the provider's settings for a single session.
type CreateOptions struct {
	RecordingEnabled   *bool `json:"recording_enabled,omitempty"`
	WaitingRoomEnabled *bool `json:"waiting_room_enabled,omitempty"`
	MaxParticipants    *int  `json:"max_participants,omitempty"`
}

// JoinResult is handed to a participant entering the call.
type JoinResult struct {
	RoomURL string   `json:"room_url"`
	Token   string   `json:"token"`
	Session *Session `json:"session"`
}
