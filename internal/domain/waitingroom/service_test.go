package waitingroom

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/telehealth"
)

// mockRepo emulates the store's atomic queue operations under a mutex so the
// concurrency properties can be exercised in-process.
type mockRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*WaitingQueueEntry
}

func newMockRepo() *mockRepo {
	return &mockRepo{entries: make(map[uuid.UUID]*WaitingQueueEntry)}
}

func (m *mockRepo) InsertWithNextPosition(_ context.Context, e *WaitingQueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	max := 0
	for _, other := range m.entries {
		if other.ProviderID == e.ProviderID && other.Active() && other.QueuePosition > max {
			max = other.QueuePosition
		}
	}
	e.ID = uuid.New()
	e.Status = StatusWaiting
	e.QueuePosition = max + 1
	e.EstimatedWaitMinutes = e.QueuePosition * EstimatedMinutesPerPatient
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*WaitingQueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepo) UpdateDeviceCheck(_ context.Context, e *WaitingQueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *mockRepo) CallNext(_ context.Context, providerID uuid.UUID) (*WaitingQueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *WaitingQueueEntry
	for _, e := range m.entries {
		if e.ProviderID != providerID {
			continue
		}
		if e.Status != StatusWaiting && e.Status != StatusReady {
			continue
		}
		if next == nil || e.QueuePosition < next.QueuePosition {
			next = e
		}
	}
	if next == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	next.Status = StatusCalled
	next.CalledAt = &now
	cp := *next
	return &cp, nil
}

func (m *mockRepo) ListActiveByProvider(_ context.Context, providerID uuid.UUID) ([]*WaitingQueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*WaitingQueueEntry
	for _, e := range m.entries {
		if e.ProviderID == providerID && e.Active() {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuePosition < out[j].QueuePosition })
	return out, nil
}

func (m *mockRepo) MarkJoinedBySession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, e := range m.entries {
		if e.SessionID == sessionID && e.Active() {
			e.Status = StatusJoined
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) SetTerminalStatus(_ context.Context, id uuid.UUID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || !e.Active() {
		return false, nil
	}
	e.Status = status
	return true, nil
}

func (m *mockRepo) ActivePositionAhead(_ context.Context, providerID uuid.UUID, position int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rank := 0
	for _, e := range m.entries {
		if e.ProviderID == providerID && e.Active() && e.QueuePosition <= position {
			rank++
		}
	}
	return rank, nil
}

type mockSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*telehealth.Session
}

func (m *mockSessions) GetByID(_ context.Context, id uuid.UUID) (*telehealth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessions) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.Status = status
	return nil
}

type queueFixture struct {
	repo       *mockRepo
	sessions   *mockSessions
	svc        *Service
	providerID uuid.UUID
}

func newQueueFixture() *queueFixture {
	f := &queueFixture{
		repo:       newMockRepo(),
		sessions:   &mockSessions{sessions: make(map[uuid.UUID]*telehealth.Session)},
		providerID: uuid.New(),
	}
	f.svc = NewService(f.repo, f.sessions, nil, zerolog.Nop())
	return f
}

func (f *queueFixture) addSession(status string) *telehealth.Session {
	s := &telehealth.Session{
		ID:                 uuid.New(),
		PatientID:          uuid.New(),
		ProviderID:         f.providerID,
		Status:             status,
		WaitingRoomEnabled: true,
	}
	f.sessions.sessions[s.ID] = s
	return s
}

func TestAddToWaitingRoomFirstEntry(t *testing.T) {
	f := newQueueFixture()
	sess := f.addSession(telehealth.StatusScheduled)

	entry, err := f.svc.AddToWaitingRoom(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if entry.QueuePosition != 1 {
		t.Errorf("expected position 1, got %d", entry.QueuePosition)
	}
	if entry.EstimatedWaitMinutes != 15 {
		t.Errorf("expected estimate 15, got %d", entry.EstimatedWaitMinutes)
	}
	if entry.Status != StatusWaiting {
		t.Errorf("expected status waiting, got %s", entry.Status)
	}
	if f.sessions.sessions[sess.ID].Status != telehealth.StatusWaiting {
		t.Error("session must move to waiting")
	}
}

func TestAddToWaitingRoomSecondEntry(t *testing.T) {
	f := newQueueFixture()
	first := f.addSession(telehealth.StatusScheduled)
	second := f.addSession(telehealth.StatusScheduled)

	if _, err := f.svc.AddToWaitingRoom(context.Background(), first.ID); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	entry, err := f.svc.AddToWaitingRoom(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}

	if entry.QueuePosition != 2 {
		t.Errorf("expected position 2, got %d", entry.QueuePosition)
	}
	if entry.EstimatedWaitMinutes != 30 {
		t.Errorf("expected estimate 30, got %d", entry.EstimatedWaitMinutes)
	}
}

func TestAddToWaitingRoomErrors(t *testing.T) {
	f := newQueueFixture()

	if _, err := f.svc.AddToWaitingRoom(context.Background(), uuid.New()); !errors.Is(err, telehealth.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	running := f.addSession(telehealth.StatusInProgress)
	if _, err := f.svc.AddToWaitingRoom(context.Background(), running.ID); !errors.Is(err, telehealth.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	disabled := f.addSession(telehealth.StatusScheduled)
	disabled.WaitingRoomEnabled = false
	if _, err := f.svc.AddToWaitingRoom(context.Background(), disabled.ID); !errors.Is(err, telehealth.ErrPreconditionFailed) {
		t.Errorf("expected ErrPreconditionFailed, got %v", err)
	}
}

func TestConcurrentEnqueuesKeepPositionsContiguous(t *testing.T) {
	f := newQueueFixture()
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		sess := f.addSession(telehealth.StatusScheduled)
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := f.svc.AddToWaitingRoom(context.Background(), id); err != nil {
				t.Errorf("enqueue: %v", err)
			}
		}(sess.ID)
	}
	wg.Wait()

	entries, err := f.svc.GetWaitingRoom(context.Background(), f.providerID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}
	for i, e := range entries {
		if e.QueuePosition != i+1 {
			t.Fatalf("positions not contiguous: index %d has position %d", i, e.QueuePosition)
		}
	}
}

func TestUpdateDeviceCheck(t *testing.T) {
	f := newQueueFixture()
	sess := f.addSession(telehealth.StatusScheduled)
	entry, err := f.svc.AddToWaitingRoom(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	yes := true
	partial, err := f.svc.UpdateDeviceCheck(context.Background(), entry.ID, DeviceCheckPatch{
		CameraOK:     &yes,
		MicrophoneOK: &yes,
		SpeakerOK:    &yes,
		BandwidthOK:  &yes,
	})
	if err != nil {
		t.Fatalf("partial update: %v", err)
	}
	if partial.DeviceCheckCompleted {
		t.Error("four of five flags must not complete the check")
	}
	if partial.Status != StatusWaiting {
		t.Errorf("expected status waiting, got %s", partial.Status)
	}

	complete, err := f.svc.UpdateDeviceCheck(context.Background(), entry.ID, DeviceCheckPatch{BrowserOK: &yes})
	if err != nil {
		t.Fatalf("final update: %v", err)
	}
	if !complete.DeviceCheckCompleted {
		t.Error("all five flags must complete the check")
	}
	if complete.Status != StatusReady {
		t.Errorf("expected status ready, got %s", complete.Status)
	}
}

func TestUpdateDeviceCheckNeverRegressesStatus(t *testing.T) {
	f := newQueueFixture()
	sess := f.addSession(telehealth.StatusScheduled)
	entry, err := f.svc.AddToWaitingRoom(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	yes := true
	if _, err := f.svc.UpdateDeviceCheck(context.Background(), entry.ID, DeviceCheckPatch{
		CameraOK: &yes, MicrophoneOK: &yes, SpeakerOK: &yes, BandwidthOK: &yes, BrowserOK: &yes,
	}); err != nil {
		t.Fatalf("complete check: %v", err)
	}

	no := false
	after, err := f.svc.UpdateDeviceCheck(context.Background(), entry.ID, DeviceCheckPatch{BandwidthOK: &no})
	if err != nil {
		t.Fatalf("degrade update: %v", err)
	}
	if after.DeviceCheckCompleted {
		t.Error("completion must recompute to false")
	}
	if after.Status != StatusReady {
		t.Errorf("ready status must not regress, got %s", after.Status)
	}
}

func TestUpdateDeviceCheckInactiveEntry(t *testing.T) {
	f := newQueueFixture()
	sess := f.addSession(telehealth.StatusScheduled)
	entry, _ := f.svc.AddToWaitingRoom(context.Background(), sess.ID)
	if err := f.svc.MarkLeft(context.Background(), entry.ID); err != nil {
		t.Fatalf("mark left: %v", err)
	}

	yes := true
	if _, err := f.svc.UpdateDeviceCheck(context.Background(), entry.ID, DeviceCheckPatch{CameraOK: &yes}); !errors.Is(err, telehealth.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestCallNextPatient(t *testing.T) {
	f := newQueueFixture()
	first := f.addSession(telehealth.StatusScheduled)
	second := f.addSession(telehealth.StatusScheduled)
	e1, _ := f.svc.AddToWaitingRoom(context.Background(), first.ID)
	if _, err := f.svc.AddToWaitingRoom(context.Background(), second.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	called, err := f.svc.CallNextPatient(context.Background(), f.providerID)
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called == nil || called.ID != e1.ID {
		t.Fatal("expected the position-1 entry to be called first")
	}
	if called.Status != StatusCalled {
		t.Errorf("expected status called, got %s", called.Status)
	}
	if called.CalledAt == nil {
		t.Error("expected called_at stamped")
	}
}

func TestCallNextPatientEmptyQueue(t *testing.T) {
	f := newQueueFixture()
	entry, err := f.svc.CallNextPatient(context.Background(), f.providerID)
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if entry != nil {
		t.Error("expected nil on empty queue")
	}
}

func TestConcurrentCallNextClaimsDistinctEntriesInOrder(t *testing.T) {
	f := newQueueFixture()
	const n = 10
	for i := 0; i < n; i++ {
		sess := f.addSession(telehealth.StatusScheduled)
		if _, err := f.svc.AddToWaitingRoom(context.Background(), sess.ID); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	results := make(chan *WaitingQueueEntry, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := f.svc.CallNextPatient(context.Background(), f.providerID)
			if err != nil {
				t.Errorf("call next: %v", err)
				return
			}
			results <- entry
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uuid.UUID]bool)
	var positions []int
	for entry := range results {
		if entry == nil {
			t.Fatal("claimed nil from a non-empty queue")
		}
		if seen[entry.ID] {
			t.Fatalf("entry %s claimed twice", entry.ID)
		}
		seen[entry.ID] = true
		positions = append(positions, entry.QueuePosition)
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct claims, got %d", n, len(seen))
	}
	sort.Ints(positions)
	for i, pos := range positions {
		if pos != i+1 {
			t.Fatalf("claims skipped a position: got %v", positions)
		}
	}
}

func TestPositionRecomputesAgainstLiveQueue(t *testing.T) {
	f := newQueueFixture()
	var entries []*WaitingQueueEntry
	for i := 0; i < 3; i++ {
		sess := f.addSession(telehealth.StatusScheduled)
		e, err := f.svc.AddToWaitingRoom(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		entries = append(entries, e)
	}

	if err := f.svc.MarkLeft(context.Background(), entries[0].ID); err != nil {
		t.Fatalf("mark left: %v", err)
	}

	info, err := f.svc.Position(context.Background(), entries[2].ID)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if info.Position != 2 {
		t.Errorf("expected live position 2 after the head left, got %d", info.Position)
	}
	if info.EstimatedWaitMinutes != 30 {
		t.Errorf("expected estimate 30, got %d", info.EstimatedWaitMinutes)
	}
}

func TestMarkLeftAndNoShow(t *testing.T) {
	f := newQueueFixture()
	sess := f.addSession(telehealth.StatusScheduled)
	entry, _ := f.svc.AddToWaitingRoom(context.Background(), sess.ID)

	if err := f.svc.MarkLeft(context.Background(), entry.ID); err != nil {
		t.Fatalf("mark left: %v", err)
	}
	if err := f.svc.MarkLeft(context.Background(), entry.ID); !errors.Is(err, telehealth.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on double terminal, got %v", err)
	}

	sess2 := f.addSession(telehealth.StatusScheduled)
	entry2, _ := f.svc.AddToWaitingRoom(context.Background(), sess2.ID)
	if err := f.svc.MarkNoShow(context.Background(), entry2.ID); err != nil {
		t.Fatalf("mark no show: %v", err)
	}
	got, _ := f.repo.GetByID(context.Background(), entry2.ID)
	if got.Status != StatusNoShow {
		t.Errorf("expected no_show, got %s", got.Status)
	}
}

func TestMarkJoinedBySession(t *testing.T) {
	f := newQueueFixture()
	sess := f.addSession(telehealth.StatusScheduled)
	entry, _ := f.svc.AddToWaitingRoom(context.Background(), sess.ID)

	n, err := f.repo.MarkJoinedBySession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("mark joined: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 entry moved, got %d", n)
	}
	got, _ := f.repo.GetByID(context.Background(), entry.ID)
	if got.Status != StatusJoined {
		t.Errorf("expected joined, got %s", got.Status)
	}
}
