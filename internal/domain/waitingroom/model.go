// Package waitingroom orders patients waiting for a provider and advances
// the provider's "next patient" pointer safely under concurrent access. The
// two correctness-critical operations, position assignment and call-next,
// are single atomic SQL statements.
package waitingroom

import (
	"time"

	"github.com/google/uuid"
)

// Queue entry statuses. waiting/ready/called count as active; joined, left
// and no_show are terminal.
const (
	StatusWaiting = "waiting"
	StatusReady   = "ready"
	StatusCalled  = "called"
	StatusJoined  = "joined"
	StatusLeft    = "left"
	StatusNoShow  = "no_show"
)

// EstimatedMinutesPerPatient is the per-patient interval behind the wait
// estimate heuristic.
const EstimatedMinutesPerPatient = 15

// WaitingQueueEntry maps to the waiting_queue_entry table.
type WaitingQueueEntry struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	SessionID            uuid.UUID  `db:"session_id" json:"session_id"`
	ProviderID           uuid.UUID  `db:"provider_id" json:"provider_id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	QueuePosition        int        `db:"queue_position" json:"queue_position"`
	EstimatedWaitMinutes int        `db:"estimated_wait_minutes" json:"estimated_wait_minutes"`
	CameraOK             bool       `db:"camera_ok" json:"camera_ok"`
	MicrophoneOK         bool       `db:"microphone_ok" json:"microphone_ok"`
	SpeakerOK            bool       `db:"speaker_ok" json:"speaker_ok"`
	BandwidthOK          bool       `db:"bandwidth_ok" json:"bandwidth_ok"`
	BrowserOK            bool       `db:"browser_ok" json:"browser_ok"`
	DeviceCheckCompleted bool       `db:"device_check_completed" json:"device_check_completed"`
	Status               string     `db:"status" json:"status"`
	CalledAt             *time.Time `db:"called_at" json:"called_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Active reports whether the entry still occupies a queue position.
func (e *WaitingQueueEntry) Active() bool {
	switch e.Status {
	case StatusWaiting, StatusReady, StatusCalled:
		return true
	}
	return false
}

// DeviceCheckPatch carries the device flags reported by the client. Nil
// fields keep their prior value.
type DeviceCheckPatch struct {
	CameraOK     *bool `json:"camera_ok,omitempty"`
	MicrophoneOK *bool `json:"microphone_ok,omitempty"`
	SpeakerOK    *bool `json:"speaker_ok,omitempty"`
	BandwidthOK  *bool `json:"bandwidth_ok,omitempty"`
	BrowserOK    *bool `json:"browser_ok,omitempty"`
}

// Apply copies the present flags onto the entry and recomputes
// device_check_completed.
func (p DeviceCheckPatch) Apply(e *WaitingQueueEntry) {
	if p.CameraOK != nil {
		e.CameraOK = *p.CameraOK
	}
	if p.MicrophoneOK != nil {
		e.MicrophoneOK = *p.MicrophoneOK
	}
	if p.SpeakerOK != nil {
		e.SpeakerOK = *p.SpeakerOK
	}
	if p.BandwidthOK != nil {
		e.BandwidthOK = *p.BandwidthOK
	}
	if p.BrowserOK != nil {
		e.BrowserOK = *p.BrowserOK
	}
	e.DeviceCheckCompleted = e.CameraOK && e.MicrophoneOK && e.SpeakerOK && e.BandwidthOK && e.BrowserOK
}

// PositionInfo is the patient-facing view of their place in line.
type PositionInfo struct {
	QueueID              uuid.UUID `json:"queue_id"`
	Status               string    `json:"status"`
	Position             int       `json:"position"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
}
