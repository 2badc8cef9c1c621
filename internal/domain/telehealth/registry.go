package telehealth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/carebridge/internal/domain/consent"
	"github.com/carebridge/carebridge/internal/platform/rooms"
)

// JoinRequest identifies the party entering a call. ParticipantID is set for
// patient/provider; ad-hoc roles carry name/email instead.
type JoinRequest struct {
	ParticipantType string     `json:"participant_type"`
	ParticipantID   *uuid.UUID `json:"participant_id,omitempty"`
	Name            *string    `json:"name,omitempty"`
	Email           *string    `json:"email,omitempty"`
}

// AddParticipantRequest describes an extra party added mid-visit. Language
// is recorded on the visit notes when an interpreter is added.
type AddParticipantRequest struct {
	ParticipantType string     `json:"participant_type"`
	ParticipantID   *uuid.UUID `json:"participant_id,omitempty"`
	Name            *string    `json:"name,omitempty"`
	Email           *string    `json:"email,omitempty"`
	Language        *string    `json:"language,omitempty"`
}

var validParticipantTypes = map[string]bool{
	string(rooms.ParticipantPatient):     true,
	string(rooms.ParticipantProvider):    true,
	string(rooms.ParticipantInterpreter): true,
	string(rooms.ParticipantFamily):      true,
	string(rooms.ParticipantCaregiver):   true,
	string(rooms.ParticipantSpecialist):  true,
}

// Registry issues and looks up join credentials for a session's
// participants and enforces the provider's participant cap.
type Registry struct {
	repo     Repository
	settings SettingsSource
	consents ConsentChecker
	rooms    rooms.Provider
}

func NewRegistry(repo Repository, settingsSource SettingsSource, consents ConsentChecker, roomProvider rooms.Provider) *Registry {
	return &Registry{repo: repo, settings: settingsSource, consents: consents, rooms: roomProvider}
}

// Join returns the join credential for a participant. Re-entry with the same
// (session, identity, type) returns the existing token; a fresh identity
// gets a newly minted one.
func (r *Registry) Join(ctx context.Context, sessionID uuid.UUID, req JoinRequest) (*JoinResult, error) {
	if !validParticipantTypes[req.ParticipantType] {
		return nil, fmt.Errorf("invalid participant type: %s", req.ParticipantType)
	}

	sess, err := r.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return nil, fmt.Errorf("cannot join a %s session: %w", sess.Status, ErrInvalidState)
	}

	now := time.Now().UTC()

	if req.ParticipantID != nil {
		existing, err := r.repo.FindParticipant(ctx, sessionID, *req.ParticipantID, req.ParticipantType)
		if err != nil {
			return nil, fmt.Errorf("lookup participant: %w", err)
		}
		if existing != nil {
			if err := r.repo.StampJoined(ctx, existing.ID, now); err != nil {
				return nil, fmt.Errorf("stamp joined: %w", err)
			}
			return &JoinResult{RoomURL: sess.RoomURL, Token: existing.JoinToken, Session: sess}, nil
		}
	}

	token, err := r.mintToken(ctx, sess, req.ParticipantType, req.ParticipantID)
	if err != nil {
		return nil, err
	}

	p := &Participant{
		SessionID:       sessionID,
		ParticipantType: req.ParticipantType,
		ParticipantID:   req.ParticipantID,
		Name:            req.Name,
		Email:           req.Email,
		JoinToken:       token,
		JoinedAt:        &now,
	}
	if err := r.repo.InsertParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}

	return &JoinResult{RoomURL: sess.RoomURL, Token: token, Session: sess}, nil
}

// AddParticipant registers an extra party on a running session, enforcing
// the provider's participant cap and the multi-participant consent gate.
func (r *Registry) AddParticipant(ctx context.Context, sessionID uuid.UUID, req AddParticipantRequest) (*Participant, error) {
	if !validParticipantTypes[req.ParticipantType] {
		return nil, fmt.Errorf("invalid participant type: %s", req.ParticipantType)
	}

	sess, err := r.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return nil, fmt.Errorf("cannot add a participant to a %s session: %w", sess.Status, ErrInvalidState)
	}

	if req.ParticipantType != string(rooms.ParticipantPatient) && req.ParticipantType != string(rooms.ParticipantProvider) {
		ok, err := r.consents.CheckConsent(ctx, sess.PatientID, consent.TypeMultiParticipant)
		if err != nil {
			return nil, fmt.Errorf("check multi-participant consent: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("multi-participant consent missing for patient %s: %w", sess.PatientID, ErrPreconditionFailed)
		}
	}

	cfg, err := r.settings.GetSettings(ctx, sess.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider settings: %w", err)
	}
	active, err := r.repo.CountActiveParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	if active+1 > cfg.MaxParticipants {
		return nil, &CapacityError{Max: cfg.MaxParticipants}
	}

	token, err := r.mintToken(ctx, sess, req.ParticipantType, req.ParticipantID)
	if err != nil {
		return nil, err
	}

	p := &Participant{
		SessionID:       sessionID,
		ParticipantType: req.ParticipantType,
		ParticipantID:   req.ParticipantID,
		Name:            req.Name,
		Email:           req.Email,
		JoinToken:       token,
	}
	if err := r.repo.InsertParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}

	switch req.ParticipantType {
	case string(rooms.ParticipantInterpreter):
		lang := "unspecified"
		if req.Language != nil {
			lang = *req.Language
		}
		if err := r.repo.SetInterpreter(ctx, sessionID, lang); err != nil {
			return nil, fmt.Errorf("record interpreter: %w", err)
		}
	case string(rooms.ParticipantFamily):
		name := "unnamed"
		if req.Name != nil {
			name = *req.Name
		}
		if err := r.repo.AddFamilyMember(ctx, sessionID, name); err != nil {
			return nil, fmt.Errorf("record family member: %w", err)
		}
	}

	return p, nil
}

// Leave stamps the participant's exit time. Leaving twice keeps the first
// timestamp.
func (r *Registry) Leave(ctx context.Context, sessionID, participantRowID uuid.UUID) error {
	if _, err := r.getSession(ctx, sessionID); err != nil {
		return err
	}
	return r.repo.MarkParticipantLeft(ctx, participantRowID, time.Now().UTC())
}

func (r *Registry) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error) {
	if _, err := r.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return r.repo.ListParticipants(ctx, sessionID)
}

func (r *Registry) getSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	return loadSession(ctx, r.repo, sessionID)
}

func (r *Registry) mintToken(ctx context.Context, sess *Session, participantType string, participantID *uuid.UUID) (string, error) {
	idStr := ""
	if participantID != nil {
		idStr = participantID.String()
	}
	token, err := r.rooms.GenerateParticipantToken(ctx, sess.RoomID, rooms.ParticipantType(participantType), idStr)
	if err != nil {
		return "", fmt.Errorf("issue join token: %w: %v", ErrDependencyFailure, err)
	}
	return token, nil
}
