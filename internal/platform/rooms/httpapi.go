package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider adapts a hosted conferencing REST API (rooms + meeting tokens)
// to the Provider contract. It owns no state beyond the HTTP client.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type createRoomRequest struct {
	Name       string          `json:"name,omitempty"`
	Properties roomProperties  `json:"properties"`
}

type roomProperties struct {
	MaxParticipants int    `json:"max_participants,omitempty"`
	EnableRecording bool   `json:"enable_recording"`
	EnableKnocking  bool   `json:"enable_knocking"`
	Exp             *int64 `json:"exp,omitempty"`
}

type createRoomResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type meetingTokenRequest struct {
	Properties meetingTokenProperties `json:"properties"`
}

type meetingTokenProperties struct {
	RoomName string `json:"room_name"`
	IsOwner  bool   `json:"is_owner"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

type meetingTokenResponse struct {
	Token string `json:"token"`
}

type recordingListResponse struct {
	Data []struct {
		ID          string `json:"id"`
		DownloadURL string `json:"download_url"`
	} `json:"data"`
}

func (p *HTTPProvider) CreateRoom(ctx context.Context, cfg RoomConfig) (*Room, error) {
	reqBody := createRoomRequest{
		Name: cfg.Name,
		Properties: roomProperties{
			MaxParticipants: cfg.MaxParticipants,
			EnableRecording: cfg.RecordingOn,
			EnableKnocking:  cfg.WaitingRoomOn,
		},
	}
	if cfg.ExpiresAt != nil {
		exp := cfg.ExpiresAt.Unix()
		reqBody.Properties.Exp = &exp
	}

	var resp createRoomResponse
	if err := p.do(ctx, http.MethodPost, "/rooms", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	hostToken, err := p.meetingToken(ctx, resp.Name, true, "")
	if err != nil {
		// Roll back the orphaned room; the caller sees a single failure.
		_, _ = p.EndRoom(ctx, resp.Name)
		return nil, fmt.Errorf("issue host token: %w", err)
	}

	return &Room{
		RoomID:    resp.Name,
		RoomURL:   resp.URL,
		HostToken: hostToken,
	}, nil
}

func (p *HTTPProvider) GenerateParticipantToken(ctx context.Context, roomID string, pt ParticipantType, participantID string) (string, error) {
	token, err := p.meetingToken(ctx, roomID, pt == ParticipantProvider, participantID)
	if err != nil {
		return "", fmt.Errorf("issue %s token: %w", pt, err)
	}
	return token, nil
}

func (p *HTTPProvider) EndRoom(ctx context.Context, roomID string) (bool, error) {
	err := p.do(ctx, http.MethodDelete, "/rooms/"+roomID, nil, nil)
	if err != nil {
		return false, fmt.Errorf("end room %s: %w", roomID, err)
	}
	return true, nil
}

func (p *HTTPProvider) GetRecordingURL(ctx context.Context, roomID string) (string, error) {
	var resp recordingListResponse
	if err := p.do(ctx, http.MethodGet, "/recordings?room="+roomID, nil, &resp); err != nil {
		return "", fmt.Errorf("list recordings for %s: %w", roomID, err)
	}
	if len(resp.Data) == 0 {
		return "", nil
	}
	// Most recent recording first per API contract.
	return resp.Data[0].DownloadURL, nil
}

func (p *HTTPProvider) meetingToken(ctx context.Context, roomName string, isOwner bool, userID string) (string, error) {
	reqBody := meetingTokenRequest{
		Properties: meetingTokenProperties{
			RoomName: roomName,
			IsOwner:  isOwner,
			UserID:   userID,
		},
	}
	var resp meetingTokenResponse
	if err := p.do(ctx, http.MethodPost, "/meeting-tokens", reqBody, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
