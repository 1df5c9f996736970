// Package campuslink provides a Go client for the CampusLink messaging
// service: REST calls for provisioning and catch-up, and a websocket session
// for live messaging.
package campuslink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Message is a chat message as delivered by the service.
type Message struct {
	ID         string `json:"id"`
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Content    string `json:"content"`
	Seq        uint64 `json:"seq"`
	CreatedAt  int64  `json:"created_at"`
}

// Profile is a registered user profile.
type Profile struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// Room is a conversation scope.
type Room struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	DisplayName  string   `json:"display_name,omitempty"`
	Participants []string `json:"participants"`
}

// APIError is a non-2xx response from the REST surface.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("campuslink: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
}

// Client is a CampusLink API client. Token is a bearer credential from the
// identity provider (or mktoken in development).
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// UpsertProfile registers or refreshes the caller's profile.
func (c *Client) UpsertProfile(ctx context.Context, displayName, email string) (*Profile, error) {
	var profile Profile
	err := c.do(ctx, http.MethodPost, "/api/profiles", map[string]string{
		"display_name": displayName,
		"email":        email,
	}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// CreateRoom provisions a room. Kind is "dm" or "topic"; the caller's
// profile ID must be in participants.
func (c *Client) CreateRoom(ctx context.Context, kind, displayName string, participants []string) (*Room, error) {
	var room Room
	err := c.do(ctx, http.MethodPost, "/api/rooms", map[string]interface{}{
		"kind":         kind,
		"display_name": displayName,
		"participants": participants,
	}, &room)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms returns the rooms the caller participates in.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var resp struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// HistoryPage is one page of a catch-up read.
type HistoryPage struct {
	RoomID    string    `json:"room_id"`
	Messages  []Message `json:"messages"`
	NextAfter uint64    `json:"next_after"`
	HasMore   bool      `json:"has_more"`
}

// RoomMessages fetches up to limit messages with sequence numbers strictly
// greater than after. Page through by passing NextAfter back as after.
func (c *Client) RoomMessages(ctx context.Context, roomID string, after uint64, limit int) (*HistoryPage, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", strconv.FormatUint(after, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/rooms/" + url.PathEscape(roomID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page HistoryPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
