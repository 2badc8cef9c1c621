package rooms

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockProvider is an in-memory conferencing backend for tests and local
// development. Rooms live until EndRoom; recording URLs are synthesized for
// rooms created with recording enabled.
type MockProvider struct {
	mu     sync.Mutex
	rooms  map[string]*mockRoom
	tokens TokenSource

	// FailCreate forces CreateRoom to fail, for exercising the all-or-nothing
	// session creation path.
	FailCreate bool
	// FailRecording forces GetRecordingURL to fail, for exercising the
	// best-effort recording fetch during session end.
	FailRecording bool
}

type mockRoom struct {
	cfg   RoomConfig
	ended bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		rooms:  make(map[string]*mockRoom),
		tokens: CryptoTokenSource{},
	}
}

// NewMockProviderWithTokens uses the given token source, for deterministic tests.
func NewMockProviderWithTokens(ts TokenSource) *MockProvider {
	return &MockProvider{
		rooms:  make(map[string]*mockRoom),
		tokens: ts,
	}
}

func (m *MockProvider) CreateRoom(_ context.Context, cfg RoomConfig) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate {
		return nil, fmt.Errorf("mock provider: room creation unavailable")
	}

	roomID := uuid.New().String()
	hostToken, err := m.tokens.NewToken()
	if err != nil {
		return nil, err
	}

	m.rooms[roomID] = &mockRoom{cfg: cfg}
	return &Room{
		RoomID:    roomID,
		RoomURL:   fmt.Sprintf("https://rooms.local/%s", roomID),
		HostToken: hostToken,
	}, nil
}

func (m *MockProvider) GenerateParticipantToken(_ context.Context, roomID string, _ ParticipantType, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return "", fmt.Errorf("mock provider: unknown room %s", roomID)
	}
	if room.ended {
		return "", fmt.Errorf("mock provider: room %s has ended", roomID)
	}
	return m.tokens.NewToken()
}

func (m *MockProvider) EndRoom(_ context.Context, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return false, nil
	}
	room.ended = true
	return true, nil
}

func (m *MockProvider) GetRecordingURL(_ context.Context, roomID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRecording {
		return "", fmt.Errorf("mock provider: recording service unavailable")
	}

	room, ok := m.rooms[roomID]
	if !ok {
		return "", fmt.Errorf("mock provider: unknown room %s", roomID)
	}
	if !room.cfg.RecordingOn {
		return "", nil
	}
	return fmt.Sprintf("https://recordings.local/%s.mp4", roomID), nil
}

// RoomCount reports live (non-ended) rooms, for test assertions.
func (m *MockProvider) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.rooms {
		if !r.ended {
			n++
		}
	}
	return n
}
