package consent

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, rec *ConsentRecord) error
	// Latest returns the most recent record for the patient and type, or nil
	// if none exists.
	Latest(ctx context.Context, patientID uuid.UUID, consentType string) (*ConsentRecord, error)
	// Revoke stamps revoked_at on the latest unrevoked record and reports
	// whether one was found.
	Revoke(ctx context.Context, patientID uuid.UUID, consentType string) (bool, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*ConsentRecord, error)
}
