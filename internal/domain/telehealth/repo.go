package telehealth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateSessionGraph persists the session, its initial participants and
	// its visit notes row in one transaction.
	CreateSessionGraph(ctx context.Context, sess *Session, participants []*Participant, notes *VisitNotes) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	Update(ctx context.Context, sess *Session) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Session, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Session, int, error)
	// IncrementTechnicalIssues bumps the counter in a single statement and
	// returns the new value.
	IncrementTechnicalIssues(ctx context.Context, id uuid.UUID) (int, error)

	InsertParticipant(ctx context.Context, p *Participant) error
	// FindParticipant looks up the unique (session, identity, type) row.
	// Returns nil when absent.
	FindParticipant(ctx context.Context, sessionID, participantID uuid.UUID, participantType string) (*Participant, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error)
	CountActiveParticipants(ctx context.Context, sessionID uuid.UUID) (int, error)
	StampJoined(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkParticipantLeft stamps left_at once; repeated calls keep the first
	// timestamp.
	MarkParticipantLeft(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkAllParticipantsLeft(ctx context.Context, sessionID uuid.UUID, at time.Time) error

	GetNotes(ctx context.Context, sessionID uuid.UUID) (*VisitNotes, error)
	UpdateNotes(ctx context.Context, notes *VisitNotes) error
	SetInterpreter(ctx context.Context, sessionID uuid.UUID, language string) error
	AddFamilyMember(ctx context.Context, sessionID uuid.UUID, name string) error
	AppendTechIssue(ctx context.Context, sessionID uuid.UUID, description string) error
}
