package telehealth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/consent"
	"github.com/carebridge/carebridge/internal/domain/scheduling"
	"github.com/carebridge/carebridge/internal/domain/settings"
	"github.com/carebridge/carebridge/internal/platform/rooms"
)

type mockRepo struct {
	sessions     map[uuid.UUID]*Session
	participants map[uuid.UUID]*Participant
	notes        map[uuid.UUID]*VisitNotes
	failCreate   bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		sessions:     make(map[uuid.UUID]*Session),
		participants: make(map[uuid.UUID]*Participant),
		notes:        make(map[uuid.UUID]*VisitNotes),
	}
}

func (m *mockRepo) CreateSessionGraph(_ context.Context, sess *Session, parts []*Participant, notes *VisitNotes) error {
	if m.failCreate {
		return fmt.Errorf("simulated insert failure")
	}
	sess.ID = uuid.New()
	sess.CreatedAt = time.Now().UTC()
	m.sessions[sess.ID] = sess
	for _, p := range parts {
		p.ID = uuid.New()
		p.SessionID = sess.ID
		m.participants[p.ID] = p
	}
	notes.SessionID = sess.ID
	notes.FamilyMemberNames = []string{}
	notes.TechIssues = []string{}
	m.notes[sess.ID] = notes
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, sess *Session) error {
	if _, ok := m.sessions[sess.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *mockRepo) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	s, ok := m.sessions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.Status = status
	return nil
}

func (m *mockRepo) ListByProvider(_ context.Context, providerID uuid.UUID, limit, offset int) ([]*Session, int, error) {
	var out []*Session
	for _, s := range m.sessions {
		if s.ProviderID == providerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Session, int, error) {
	var out []*Session
	for _, s := range m.sessions {
		if s.PatientID == patientID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) IncrementTechnicalIssues(_ context.Context, id uuid.UUID) (int, error) {
	s, ok := m.sessions[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	s.TechnicalIssuesCount++
	return s.TechnicalIssuesCount, nil
}

func (m *mockRepo) InsertParticipant(_ context.Context, p *Participant) error {
	p.ID = uuid.New()
	cp := *p
	m.participants[p.ID] = &cp
	return nil
}

func (m *mockRepo) FindParticipant(_ context.Context, sessionID, participantID uuid.UUID, participantType string) (*Participant, error) {
	for _, p := range m.participants {
		if p.SessionID == sessionID && p.ParticipantID != nil && *p.ParticipantID == participantID && p.ParticipantType == participantType {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) ListParticipants(_ context.Context, sessionID uuid.UUID) ([]*Participant, error) {
	var out []*Participant
	for _, p := range m.participants {
		if p.SessionID == sessionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) CountActiveParticipants(_ context.Context, sessionID uuid.UUID) (int, error) {
	count := 0
	for _, p := range m.participants {
		if p.SessionID == sessionID && p.LeftAt == nil {
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) StampJoined(_ context.Context, id uuid.UUID, at time.Time) error {
	p, ok := m.participants[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.JoinedAt = &at
	return nil
}

func (m *mockRepo) MarkParticipantLeft(_ context.Context, id uuid.UUID, at time.Time) error {
	p, ok := m.participants[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if p.LeftAt == nil {
		p.LeftAt = &at
	}
	return nil
}

func (m *mockRepo) MarkAllParticipantsLeft(_ context.Context, sessionID uuid.UUID, at time.Time) error {
	for _, p := range m.participants {
		if p.SessionID == sessionID && p.LeftAt == nil {
			p.LeftAt = &at
		}
	}
	return nil
}

func (m *mockRepo) GetNotes(_ context.Context, sessionID uuid.UUID) (*VisitNotes, error) {
	n, ok := m.notes[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *n
	return &cp, nil
}

func (m *mockRepo) UpdateNotes(_ context.Context, notes *VisitNotes) error {
	n, ok := m.notes[notes.SessionID]
	if !ok {
		return pgx.ErrNoRows
	}
	notes.FamilyMemberNames = n.FamilyMemberNames
	notes.TechIssues = n.TechIssues
	cp := *notes
	m.notes[notes.SessionID] = &cp
	return nil
}

func (m *mockRepo) SetInterpreter(_ context.Context, sessionID uuid.UUID, language string) error {
	n, ok := m.notes[sessionID]
	if !ok {
		return pgx.ErrNoRows
	}
	n.InterpreterUsed = true
	n.InterpreterLanguage = &language
	return nil
}

func (m *mockRepo) AddFamilyMember(_ context.Context, sessionID uuid.UUID, name string) error {
	n, ok := m.notes[sessionID]
	if !ok {
		return pgx.ErrNoRows
	}
	n.FamilyMemberPresent = true
	n.FamilyMemberNames = append(n.FamilyMemberNames, name)
	return nil
}

func (m *mockRepo) AppendTechIssue(_ context.Context, sessionID uuid.UUID, description string) error {
	n, ok := m.notes[sessionID]
	if !ok {
		return pgx.ErrNoRows
	}
	n.TechIssues = append(n.TechIssues, description)
	return nil
}

type mockAppointments struct {
	appointments map[uuid.UUID]*scheduling.Appointment
}

func (m *mockAppointments) GetByID(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

type mockSettings struct {
	byProvider map[uuid.UUID]*settings.ProviderSettings
}

func (m *mockSettings) GetSettings(_ context.Context, providerID uuid.UUID) (*settings.ProviderSettings, error) {
	if s, ok := m.byProvider[providerID]; ok {
		cp := *s
		return &cp, nil
	}
	return settings.DefaultSettings(providerID), nil
}

type mockConsents struct {
	granted map[string]bool // patientID|type
}

func (m *mockConsents) CheckConsent(_ context.Context, patientID uuid.UUID, consentType string) (bool, error) {
	return m.granted[patientID.String()+"|"+consentType], nil
}

func (m *mockConsents) grant(patientID uuid.UUID, consentType string) {
	if m.granted == nil {
		m.granted = make(map[string]bool)
	}
	m.granted[patientID.String()+"|"+consentType] = true
}

type mockQueue struct {
	joinedSessions []uuid.UUID
}

func (m *mockQueue) MarkJoinedBySession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	m.joinedSessions = append(m.joinedSessions, sessionID)
	return 1, nil
}

type fixture struct {
	repo     *mockRepo
	appts    *mockAppointments
	settings *mockSettings
	consents *mockConsents
	rooms    *rooms.MockProvider
	queue    *mockQueue
	svc      *Service
	registry *Registry

	appointmentID uuid.UUID
	patientID     uuid.UUID
	providerID    uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:          newMockRepo(),
		settings:      &mockSettings{byProvider: make(map[uuid.UUID]*settings.ProviderSettings)},
		consents:      &mockConsents{},
		rooms:         rooms.NewMockProvider(),
		queue:         &mockQueue{},
		appointmentID: uuid.New(),
		patientID:     uuid.New(),
		providerID:    uuid.New(),
	}
	f.appts = &mockAppointments{appointments: map[uuid.UUID]*scheduling.Appointment{
		f.appointmentID: {
			ID:             f.appointmentID,
			TenantID:       "default",
			PatientID:      f.patientID,
			ProviderID:     f.providerID,
			ScheduledStart: time.Now().UTC().Add(time.Hour),
			Status:         scheduling.AppointmentBooked,
		},
	}}
	f.svc = NewService(f.repo, f.appts, f.settings, f.consents, f.rooms, f.queue, nil, zerolog.Nop())
	f.registry = NewRegistry(f.repo, f.settings, f.consents, f.rooms)
	return f
}

func (f *fixture) createSession(t *testing.T, opts CreateOptions) *Session {
	t.Helper()
	sess, err := f.svc.CreateSession(context.Background(), "default", f.appointmentID, opts)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func TestCreateSession(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})

	if sess.Status != StatusScheduled {
		t.Errorf("expected status scheduled, got %s", sess.Status)
	}
	if sess.PatientID != f.patientID || sess.ProviderID != f.providerID {
		t.Error("session must carry the appointment's patient and provider")
	}
	if sess.RoomID == "" || sess.RoomURL == "" || sess.HostToken == "" {
		t.Error("expected room reference and host token")
	}
	if sess.RecordingEnabled {
		t.Error("recording defaults off")
	}

	parts, err := f.repo.ListParticipants(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected exactly 2 initial participants, got %d", len(parts))
	}
	var providerToken, patientToken string
	for _, p := range parts {
		switch p.ParticipantType {
		case "provider":
			providerToken = p.JoinToken
		case "patient":
			patientToken = p.JoinToken
		}
	}
	if providerToken != sess.HostToken {
		t.Error("provider must hold the host token")
	}
	if patientToken == "" || patientToken == sess.HostToken {
		t.Error("patient must hold a freshly minted token")
	}

	if _, err := f.repo.GetNotes(context.Background(), sess.ID); err != nil {
		t.Errorf("expected visit notes row: %v", err)
	}
}

func TestCreateSessionUnknownAppointment(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateSession(context.Background(), "default", uuid.New(), CreateOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateSessionRoomFailureIsAllOrNothing(t *testing.T) {
	f := newFixture()
	f.rooms.FailCreate = true

	_, err := f.svc.CreateSession(context.Background(), "default", f.appointmentID, CreateOptions{})
	if !errors.Is(err, ErrDependencyFailure) {
		t.Fatalf("expected ErrDependencyFailure, got %v", err)
	}
	if len(f.repo.sessions) != 0 {
		t.Error("no session may be persisted when room provisioning fails")
	}
	if len(f.repo.participants) != 0 {
		t.Error("no participants may be persisted when room provisioning fails")
	}
}

func TestCreateSessionStoreFailureReleasesRoom(t *testing.T) {
	f := newFixture()
	f.repo.failCreate = true

	_, err := f.svc.CreateSession(context.Background(), "default", f.appointmentID, CreateOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := f.rooms.RoomCount(); got != 0 {
		t.Errorf("expected orphaned room to be ended, %d still open", got)
	}
}

func TestCreateSessionRecordingConsentGate(t *testing.T) {
	f := newFixture()
	on := true

	_, err := f.svc.CreateSession(context.Background(), "default", f.appointmentID, CreateOptions{RecordingEnabled: &on})
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed without consent, got %v", err)
	}

	f.consents.grant(f.patientID, consent.TypeRecording)
	sess, err := f.svc.CreateSession(context.Background(), "default", f.appointmentID, CreateOptions{RecordingEnabled: &on})
	if err != nil {
		t.Fatalf("create with consent: %v", err)
	}
	if !sess.RecordingEnabled {
		t.Error("expected recording enabled")
	}
}

func TestStartSession(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})

	started, err := f.svc.StartSession(context.Background(), sess.ID, f.providerID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", started.Status)
	}
	if started.ActualStart == nil {
		t.Error("expected actual_start set")
	}
	if len(f.queue.joinedSessions) != 1 || f.queue.joinedSessions[0] != sess.ID {
		t.Error("expected queue entries admitted on start")
	}
}

func TestStartSessionIdempotent(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})

	first, err := f.svc.StartSession(context.Background(), sess.ID, f.providerID)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := f.svc.StartSession(context.Background(), sess.ID, f.providerID)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !second.ActualStart.Equal(*first.ActualStart) {
		t.Error("restart must not move actual_start")
	}
}

func TestStartSessionWrongProvider(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})

	if _, err := f.svc.StartSession(context.Background(), sess.ID, uuid.New()); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("expected ErrPreconditionFailed for non-owning provider, got %v", err)
	}
}

func TestStartSessionTerminalState(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})
	f.repo.sessions[sess.ID].Status = StatusCancelled

	if _, err := f.svc.StartSession(context.Background(), sess.ID, f.providerID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestEndSession(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})
	if _, err := f.svc.StartSession(context.Background(), sess.ID, f.providerID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Backdate the start so the computed duration is deterministic.
	start := time.Now().UTC().Add(-12 * time.Minute)
	f.repo.sessions[sess.ID].ActualStart = &start

	ended, err := f.svc.EndSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", ended.Status)
	}
	if ended.ActualEnd == nil || ended.ActualEnd.Before(*ended.ActualStart) {
		t.Error("actual_end must be set and not precede actual_start")
	}
	if ended.DurationMinutes == nil || *ended.DurationMinutes != 12 {
		t.Errorf("expected duration 12, got %v", ended.DurationMinutes)
	}

	parts, _ := f.repo.ListParticipants(context.Background(), sess.ID)
	for _, p := range parts {
		if p.LeftAt == nil {
			t.Errorf("participant %s not marked left", p.ParticipantType)
		}
	}
	if len(f.queue.joinedSessions) != 2 {
		t.Error("expected queue reconciliation on end")
	}
}

func TestEndSessionTwice(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})

	if _, err := f.svc.EndSession(context.Background(), sess.ID); err != nil {
		t.Fatalf("first end: %v", err)
	}
	if _, err := f.svc.EndSession(context.Background(), sess.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestEndSessionRecordingBestEffort(t *testing.T) {
	f := newFixture()
	f.consents.grant(f.patientID, consent.TypeRecording)
	on := true
	sess := f.createSession(t, CreateOptions{RecordingEnabled: &on})
	if _, err := f.svc.StartSession(context.Background(), sess.ID, f.providerID); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.rooms.FailRecording = true
	ended, err := f.svc.EndSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("end must succeed despite recording failure: %v", err)
	}
	if ended.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", ended.Status)
	}
	if ended.RecordingURL != nil {
		t.Error("expected no recording url on fetch failure")
	}
}

func TestEndSessionWithoutStartLeavesDurationUnset(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})

	ended, err := f.svc.EndSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.DurationMinutes != nil {
		t.Error("duration must stay unset when the session never started")
	}
}

func TestReportTechnicalIssue(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})

	count, err := f.svc.ReportTechnicalIssue(context.Background(), sess.ID, "frozen video")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	count, err = f.svc.ReportTechnicalIssue(context.Background(), sess.ID, "echo on audio")
	if err != nil {
		t.Fatalf("second report: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}

	notes, _ := f.repo.GetNotes(context.Background(), sess.ID)
	if len(notes.TechIssues) != 2 {
		t.Errorf("expected 2 recorded issues, got %d", len(notes.TechIssues))
	}

	if _, err := f.svc.ReportTechnicalIssue(context.Background(), sess.ID, ""); err == nil {
		t.Error("expected error for empty description")
	}
	if _, err := f.svc.ReportTechnicalIssue(context.Background(), uuid.New(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateNotes(t *testing.T) {
	f := newFixture()
	sess := f.createSession(t, CreateOptions{})

	verified := true
	followUp := true
	followUpNotes := "review labs in two weeks"
	notes, err := f.svc.UpdateNotes(context.Background(), sess.ID, NotesPatch{
		ConsentVerified:  &verified,
		FollowUpRequired: &followUp,
		FollowUpNotes:    &followUpNotes,
	})
	if err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if !notes.ConsentVerified || !notes.FollowUpRequired {
		t.Error("expected patched fields set")
	}
	if notes.FollowUpNotes == nil || *notes.FollowUpNotes != followUpNotes {
		t.Error("expected follow-up notes recorded")
	}
	if notes.InterpreterUsed {
		t.Error("partial patch must not touch interpreter flag")
	}
}
