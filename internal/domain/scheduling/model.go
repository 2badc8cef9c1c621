// Package scheduling exposes the appointment book as a read-only source.
// Appointments are created and mutated by the booking subsystem; the
// telehealth core only reads them when turning a booking into a session.
package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses as written by the booking subsystem.
const (
	AppointmentBooked    = "booked"
	AppointmentFulfilled = "fulfilled"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no_show"
)

// Appointment is a booked visit slot for a patient with a provider.
type Appointment struct {
	ID             uuid.UUID `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	ProviderID     uuid.UUID `db:"provider_id" json:"provider_id"`
	ScheduledStart time.Time `db:"scheduled_start" json:"scheduled_start"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
