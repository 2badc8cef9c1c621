package telehealth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/consent"
	"github.com/carebridge/carebridge/internal/domain/scheduling"
	"github.com/carebridge/carebridge/internal/domain/settings"
	"github.com/carebridge/carebridge/internal/platform/rooms"
	"github.com/carebridge/carebridge/internal/platform/websocket"
)

// SettingsSource resolves a provider's telehealth configuration.
type SettingsSource interface {
	GetSettings(ctx context.Context, providerID uuid.UUID) (*settings.ProviderSettings, error)
}

// ConsentChecker gates recording and extra-participant features.
type ConsentChecker interface {
	CheckConsent(ctx context.Context, patientID uuid.UUID, consentType string) (bool, error)
}

// QueueReconciler moves a session's waiting-room entries when the session
// starts or ends. Implemented by the waiting-room repository.
type QueueReconciler interface {
	MarkJoinedBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

// Service drives the session state machine. All state lives in the store;
// the service itself is stateless and safe for concurrent use.
type Service struct {
	repo         Repository
	appointments scheduling.Repository
	settings     SettingsSource
	consents     ConsentChecker
	rooms        rooms.Provider
	queue        QueueReconciler
	events       websocket.EventPublisher
	log          zerolog.Logger
}

func NewService(
	repo Repository,
	appointments scheduling.Repository,
	settingsSource SettingsSource,
	consents ConsentChecker,
	roomProvider rooms.Provider,
	queue QueueReconciler,
	events websocket.EventPublisher,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		settings:     settingsSource,
		consents:     consents,
		rooms:        roomProvider,
		queue:        queue,
		events:       events,
		log:          log,
	}
}

// CreateSession turns a booked appointment into a scheduled session: it
// provisions a room, persists the session and registers the provider (host
// token) and patient as participants. The operation is all-or-nothing; a
// room-provisioning failure persists nothing.
func (s *Service) CreateSession(ctx context.Context, tenantID string, appointmentID uuid.UUID, opts CreateOptions) (*Session, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	cfg, err := s.settings.GetSettings(ctx, appt.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider settings: %w", err)
	}

	recording := cfg.AutoRecord
	if opts.RecordingEnabled != nil {
		recording = *opts.RecordingEnabled
	}
	waitingRoom := cfg.WaitingRoomEnabled
	if opts.WaitingRoomEnabled != nil {
		waitingRoom = *opts.WaitingRoomEnabled
	}
	maxParticipants := cfg.MaxParticipants
	if opts.MaxParticipants != nil {
		maxParticipants = *opts.MaxParticipants
	}

	if recording {
		ok, err := s.consents.CheckConsent(ctx, appt.PatientID, consent.TypeRecording)
		if err != nil {
			return nil, fmt.Errorf("check recording consent: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("recording consent missing for patient %s: %w", appt.PatientID, ErrPreconditionFailed)
		}
	}

	expiry := appt.ScheduledStart.Add(24 * time.Hour)
	room, err := s.rooms.CreateRoom(ctx, rooms.RoomConfig{
		Name:            "visit-" + appointmentID.String(),
		MaxParticipants: maxParticipants,
		RecordingOn:     recording,
		WaitingRoomOn:   waitingRoom,
		ExpiresAt:       &expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w: %v", ErrDependencyFailure, err)
	}

	patientToken, err := s.rooms.GenerateParticipantToken(ctx, room.RoomID, rooms.ParticipantPatient, appt.PatientID.String())
	if err != nil {
		s.cleanupRoom(ctx, room.RoomID)
		return nil, fmt.Errorf("issue patient token: %w: %v", ErrDependencyFailure, err)
	}

	providerID := appt.ProviderID
	patientID := appt.PatientID
	sess := &Session{
		TenantID:           tenantID,
		AppointmentID:      appt.ID,
		PatientID:          patientID,
		ProviderID:         providerID,
		ScheduledStart:     appt.ScheduledStart,
		Status:             StatusScheduled,
		RoomID:             room.RoomID,
		RoomURL:            room.RoomURL,
		HostToken:          room.HostToken,
		RecordingEnabled:   recording,
		WaitingRoomEnabled: waitingRoom,
	}
	participants := []*Participant{
		{ParticipantType: string(rooms.ParticipantProvider), ParticipantID: &providerID, JoinToken: room.HostToken},
		{ParticipantType: string(rooms.ParticipantPatient), ParticipantID: &patientID, JoinToken: patientToken},
	}

	if err := s.repo.CreateSessionGraph(ctx, sess, participants, &VisitNotes{}); err != nil {
		s.cleanupRoom(ctx, sess.RoomID)
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

// StartSession moves the session to in_progress and admits any waiting-room
// entries. Starting an already-running session is a no-op.
func (s *Service) StartSession(ctx context.Context, sessionID, providerID uuid.UUID) (*Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ProviderID != providerID {
		return nil, fmt.Errorf("session %s is owned by another provider: %w", sessionID, ErrPreconditionFailed)
	}
	if sess.Status == StatusInProgress {
		return sess, nil
	}
	if sess.Terminal() {
		return nil, fmt.Errorf("cannot start a %s session: %w", sess.Status, ErrInvalidState)
	}

	now := time.Now().UTC()
	sess.Status = StatusInProgress
	sess.ActualStart = &now
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if _, err := s.queue.MarkJoinedBySession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("admit queue entries: %w", err)
	}

	s.publish(ctx, websocket.EventSessionStarted, sess)
	s.publish(ctx, websocket.EventQueueUpdated, sess)
	return sess, nil
}

// EndSession closes the visit: it ends the room, fetches the recording when
// enabled (best effort), computes the duration, marks all participants as
// left and reconciles the waiting room.
func (s *Service) EndSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return nil, fmt.Errorf("cannot end a %s session: %w", sess.Status, ErrInvalidState)
	}

	if _, err := s.rooms.EndRoom(ctx, sess.RoomID); err != nil {
		return nil, fmt.Errorf("end room: %w: %v", ErrDependencyFailure, err)
	}

	now := time.Now().UTC()
	if sess.RecordingEnabled {
		// Recording retrieval must not block visit closure.
		url, err := s.rooms.GetRecordingURL(ctx, sess.RoomID)
		if err != nil {
			s.log.Warn().Err(err).
				Str("session_id", sessionID.String()).
				Str("room_id", sess.RoomID).
				Msg("recording fetch failed, completing session without it")
		} else if url != "" {
			sess.RecordingURL = &url
		}
	}

	sess.Status = StatusCompleted
	sess.ActualEnd = &now
	if sess.ActualStart != nil {
		minutes := int(math.Round(now.Sub(*sess.ActualStart).Seconds() / 60))
		sess.DurationMinutes = &minutes
	}
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := s.repo.MarkAllParticipantsLeft(ctx, sessionID, now); err != nil {
		return nil, fmt.Errorf("mark participants left: %w", err)
	}
	if _, err := s.queue.MarkJoinedBySession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("reconcile queue entries: %w", err)
	}

	s.publish(ctx, websocket.EventSessionEnded, sess)
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	return s.getSession(ctx, sessionID)
}

func (s *Service) ListSessionsByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Session, int, error) {
	return s.repo.ListByProvider(ctx, providerID, limit, offset)
}

func (s *Service) ListSessionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Session, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ReportTechnicalIssue bumps the session's issue counter and records the
// description on the visit notes.
func (s *Service) ReportTechnicalIssue(ctx context.Context, sessionID uuid.UUID, description string) (int, error) {
	if description == "" {
		return 0, fmt.Errorf("description is required")
	}
	count, err := s.repo.IncrementTechnicalIssues(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return 0, fmt.Errorf("increment issue count: %w", err)
	}
	if err := s.repo.AppendTechIssue(ctx, sessionID, description); err != nil {
		return 0, fmt.Errorf("append tech issue: %w", err)
	}
	return count, nil
}

// GetNotes returns the session's visit notes.
func (s *Service) GetNotes(ctx context.Context, sessionID uuid.UUID) (*VisitNotes, error) {
	notes, err := s.repo.GetNotes(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, err
	}
	return notes, nil
}

// UpdateNotes applies a partial update to the session's visit notes.
func (s *Service) UpdateNotes(ctx context.Context, sessionID uuid.UUID, patch NotesPatch) (*VisitNotes, error) {
	notes, err := s.GetNotes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	patch.Apply(notes)
	if err := s.repo.UpdateNotes(ctx, notes); err != nil {
		return nil, fmt.Errorf("update notes: %w", err)
	}
	return notes, nil
}

func (s *Service) getSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	return loadSession(ctx, s.repo, sessionID)
}

func loadSession(ctx context.Context, repo Repository, sessionID uuid.UUID) (*Session, error) {
	sess, err := repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (s *Service) cleanupRoom(ctx context.Context, roomID string) {
	if _, err := s.rooms.EndRoom(ctx, roomID); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("orphaned room cleanup failed")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, sess *Session) {
	if s.events == nil {
		return
	}
	ev := websocket.Event{
		Type:      eventType,
		Topic:     websocket.ProviderTopic(sess.ProviderID),
		SessionID: sess.ID.String(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}
