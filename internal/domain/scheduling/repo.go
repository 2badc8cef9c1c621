package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the read-only view of the appointment book.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
}
