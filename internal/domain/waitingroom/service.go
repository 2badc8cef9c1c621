package waitingroom

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/telehealth"
	"github.com/carebridge/carebridge/internal/platform/websocket"
)

// SessionSource is the slice of the session store the queue needs: loading
// a session and moving it to waiting when its patient enters the line.
// Implemented by the telehealth repository.
type SessionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*telehealth.Session, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

type Service struct {
	repo     Repository
	sessions SessionSource
	events   websocket.EventPublisher
	log      zerolog.Logger
}

func NewService(repo Repository, sessions SessionSource, events websocket.EventPublisher, log zerolog.Logger) *Service {
	return &Service{repo: repo, sessions: sessions, events: events, log: log}
}

// AddToWaitingRoom places a session's patient in the provider's line. The
// position is assigned atomically in the store; the session moves to
// waiting.
func (s *Service) AddToWaitingRoom(ctx context.Context, sessionID uuid.UUID) (*WaitingQueueEntry, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, telehealth.ErrNotFound)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Terminal() || sess.Status == telehealth.StatusInProgress {
		return nil, fmt.Errorf("cannot queue a %s session: %w", sess.Status, telehealth.ErrInvalidState)
	}
	if !sess.WaitingRoomEnabled {
		return nil, fmt.Errorf("waiting room disabled for session %s: %w", sessionID, telehealth.ErrPreconditionFailed)
	}

	entry := &WaitingQueueEntry{
		SessionID:  sessionID,
		ProviderID: sess.ProviderID,
		PatientID:  sess.PatientID,
	}
	if err := s.repo.InsertWithNextPosition(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	if err := s.sessions.SetStatus(ctx, sessionID, telehealth.StatusWaiting); err != nil {
		return nil, fmt.Errorf("move session to waiting: %w", err)
	}

	s.publishQueueUpdated(ctx, entry.ProviderID, sessionID)
	return entry, nil
}

// UpdateDeviceCheck applies the reported device flags. Completing all five
// checks advances a waiting entry to ready; ready and called entries never
// regress on a partial update.
func (s *Service) UpdateDeviceCheck(ctx context.Context, queueID uuid.UUID, patch DeviceCheckPatch) (*WaitingQueueEntry, error) {
	entry, err := s.getEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !entry.Active() {
		return nil, fmt.Errorf("queue entry %s is %s: %w", queueID, entry.Status, telehealth.ErrInvalidState)
	}

	patch.Apply(entry)
	if entry.DeviceCheckCompleted && entry.Status == StatusWaiting {
		entry.Status = StatusReady
	}

	if err := s.repo.UpdateDeviceCheck(ctx, entry); err != nil {
		return nil, fmt.Errorf("update device check: %w", err)
	}

	s.publishQueueUpdated(ctx, entry.ProviderID, entry.SessionID)
	return entry, nil
}

// CallNextPatient claims the next waiting or ready patient for the
// provider. Returns nil when nobody is in line.
func (s *Service) CallNextPatient(ctx context.Context, providerID uuid.UUID) (*WaitingQueueEntry, error) {
	entry, err := s.repo.CallNext(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("call next: %w", err)
	}
	if entry == nil {
		return nil, nil
	}

	s.publish(ctx, websocket.Event{
		Type:      websocket.EventPatientCalled,
		Topic:     websocket.QueueTopic(entry.ID),
		SessionID: entry.SessionID.String(),
	})
	s.publishQueueUpdated(ctx, providerID, entry.SessionID)
	return entry, nil
}

// GetWaitingRoom lists the provider's active entries in position order.
func (s *Service) GetWaitingRoom(ctx context.Context, providerID uuid.UUID) ([]*WaitingQueueEntry, error) {
	return s.repo.ListActiveByProvider(ctx, providerID)
}

// Position returns the patient's live place in line, recomputed against the
// entries still active rather than the frozen insert-time position.
func (s *Service) Position(ctx context.Context, queueID uuid.UUID) (*PositionInfo, error) {
	entry, err := s.getEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}

	info := &PositionInfo{QueueID: entry.ID, Status: entry.Status}
	if !entry.Active() {
		return info, nil
	}

	rank, err := s.repo.ActivePositionAhead(ctx, entry.ProviderID, entry.QueuePosition)
	if err != nil {
		return nil, fmt.Errorf("compute position: %w", err)
	}
	info.Position = rank
	info.EstimatedWaitMinutes = rank * EstimatedMinutesPerPatient
	return info, nil
}

// MarkLeft records that the patient abandoned the waiting room.
func (s *Service) MarkLeft(ctx context.Context, queueID uuid.UUID) error {
	return s.terminate(ctx, queueID, StatusLeft)
}

// MarkNoShow records a staff decision that the patient is not coming.
func (s *Service) MarkNoShow(ctx context.Context, queueID uuid.UUID) error {
	return s.terminate(ctx, queueID, StatusNoShow)
}

func (s *Service) terminate(ctx context.Context, queueID uuid.UUID, status string) error {
	entry, err := s.getEntry(ctx, queueID)
	if err != nil {
		return err
	}
	moved, err := s.repo.SetTerminalStatus(ctx, queueID, status)
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	if !moved {
		return fmt.Errorf("queue entry %s is %s: %w", queueID, entry.Status, telehealth.ErrInvalidState)
	}
	s.publishQueueUpdated(ctx, entry.ProviderID, entry.SessionID)
	return nil
}

func (s *Service) getEntry(ctx context.Context, queueID uuid.UUID) (*WaitingQueueEntry, error) {
	entry, err := s.repo.GetByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("queue entry %s: %w", queueID, telehealth.ErrNotFound)
		}
		return nil, fmt.Errorf("load queue entry: %w", err)
	}
	return entry, nil
}

func (s *Service) publishQueueUpdated(ctx context.Context, providerID, sessionID uuid.UUID) {
	s.publish(ctx, websocket.Event{
		Type:      websocket.EventQueueUpdated,
		Topic:     websocket.ProviderTopic(providerID),
		SessionID: sessionID.String(),
	})
}

func (s *Service) publish(ctx context.Context, ev websocket.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Msg("event publish failed")
	}
}
