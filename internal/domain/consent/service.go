package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger is the consent query surface other domains depend on.
type Ledger interface {
	CheckConsent(ctx context.Context, patientID uuid.UUID, consentType string) (bool, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordConsent appends a new consent record.
func (s *Service) RecordConsent(ctx context.Context, rec *ConsentRecord) error {
	if rec.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if !ValidType(rec.ConsentType) {
		return fmt.Errorf("invalid consent type: %s", rec.ConsentType)
	}
	switch rec.Method {
	case MethodVerbal, MethodWritten, MethodElectronic:
	case "":
		rec.Method = MethodElectronic
	default:
		return fmt.Errorf("invalid consent method: %s", rec.Method)
	}
	if rec.ExpiresAt != nil && !rec.ExpiresAt.After(time.Now().UTC()) {
		return fmt.Errorf("expires_at must be in the future")
	}
	return s.repo.Create(ctx, rec)
}

// CheckConsent reports whether the patient currently holds active consent of
// the given type.
func (s *Service) CheckConsent(ctx context.Context, patientID uuid.UUID, consentType string) (bool, error) {
	if !ValidType(consentType) {
		return false, fmt.Errorf("invalid consent type: %s", consentType)
	}
	rec, err := s.repo.Latest(ctx, patientID, consentType)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return rec.Active(time.Now().UTC()), nil
}

// RevokeConsent withdraws the current consent of the given type. Revoking
// when no active consent exists is not an error.
func (s *Service) RevokeConsent(ctx context.Context, patientID uuid.UUID, consentType string) (bool, error) {
	if !ValidType(consentType) {
		return false, fmt.Errorf("invalid consent type: %s", consentType)
	}
	return s.repo.Revoke(ctx, patientID, consentType)
}

func (s *Service) ListConsents(ctx context.Context, patientID uuid.UUID) ([]*ConsentRecord, error) {
	return s.repo.ListByPatient(ctx, patientID)
}
