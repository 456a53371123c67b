// Package remote implements the HTTP client for the notes API that acts as
// the remote authority during sync.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotFound is returned when the remote reports the note does not exist.
// For deletes the caller treats it as agreement; for updates it signals the
// record was removed server-side.
var ErrNotFound = errors.New("remote note not found")

// StatusError is returned on unexpected HTTP status codes.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status %d: %s", e.StatusCode, e.Body)
}

// Note is the remote representation of a note. The server owns id and both
// timestamps.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreatePayload is the request body for creating a note.
type CreatePayload struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// UpdatePayload is the request body for updating a note. UpdatedAt carries
// the local timestamp at the time of the call and doubles as the
// optimistic-concurrency token the server checks for conflicts.
type UpdatePayload struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Client is a client for the remote notes API.
type Client struct {
	BaseURL string
	client  *http.Client
}

// NewClient creates a new notes API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchAll retrieves every note from the remote. The endpoint may answer
// with either a bare array or an {items: [...]} wrapper.
func (c *Client) FetchAll(ctx context.Context) ([]Note, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/notes", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var notes []Note
	if err := json.Unmarshal(raw, &notes); err == nil {
		return notes, nil
	}

	var wrapped struct {
		Items []Note `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode notes response: %w", err)
	}
	return wrapped.Items, nil
}

// Create posts a new note and returns the server's canonical version,
// including the server-assigned id.
func (c *Client) Create(ctx context.Context, payload CreatePayload) (*Note, error) {
	resp, err := c.send(ctx, http.MethodPost, c.BaseURL+"/notes", payload)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var note Note
	if err := json.NewDecoder(resp.Body).Decode(&note); err != nil {
		return nil, fmt.Errorf("failed to decode created note: %w", err)
	}
	return &note, nil
}

// Update patches a note. It returns (nil, nil) on an accepted update and the
// server's current note on a 409 conflict. A 404 yields ErrNotFound.
func (c *Client) Update(ctx context.Context, id string, payload UpdatePayload) (*Note, error) {
	resp, err := c.send(ctx, http.MethodPatch, c.BaseURL+"/notes/"+id, payload)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusConflict {
		var note Note
		if err := json.NewDecoder(resp.Body).Decode(&note); err != nil {
			return nil, fmt.Errorf("failed to decode conflicting note: %w", err)
		}
		return &note, nil
	}

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return nil, nil
}

// Delete removes a note. A 404 yields ErrNotFound; the sync engine decides
// whether that counts as agreement.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/notes/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return checkStatus(resp)
}

func (c *Client) send(ctx context.Context, method, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	raw, _ := io.ReadAll(resp.Body)
	return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
}
