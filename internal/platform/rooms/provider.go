// Package rooms abstracts the real-time conferencing backend that hosts
// telehealth visits. The orchestration core depends only on the Provider
// contract; a deterministic mock and an HTTP adapter for a hosted
// conferencing API are interchangeable implementations.
package rooms

import (
	"context"
	"time"
)

// RoomConfig describes the room requested for a telehealth session.
type RoomConfig struct {
	Name            string
	MaxParticipants int
	RecordingOn     bool
	WaitingRoomOn   bool
	ExpiresAt       *time.Time
}

// Room is the conferencing backend's handle for a created room.
type Room struct {
	RoomID    string `json:"room_id"`
	RoomURL   string `json:"room_url"`
	HostToken string `json:"host_token"`
}

// ParticipantType mirrors the session participant roles for token scoping.
type ParticipantType string

const (
	ParticipantPatient     ParticipantType = "patient"
	ParticipantProvider    ParticipantType = "provider"
	ParticipantInterpreter ParticipantType = "interpreter"
	ParticipantFamily      ParticipantType = "family"
	ParticipantCaregiver   ParticipantType = "caregiver"
	ParticipantSpecialist  ParticipantType = "specialist"
)

// Provider is the contract with the conferencing backend. Calls are blocking
// network I/O and may fail independently of the database; callers decide
// whether a failure is fatal or best-effort.
type Provider interface {
	CreateRoom(ctx context.Context, cfg RoomConfig) (*Room, error)
	GenerateParticipantToken(ctx context.Context, roomID string, pt ParticipantType, participantID string) (string, error)
	EndRoom(ctx context.Context, roomID string) (bool, error)
	GetRecordingURL(ctx context.Context, roomID string) (string, error)
}
