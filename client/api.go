// Package client is the Go client for the chat service: a REST API wrapper,
// a websocket event pump, and a Session that keeps a device-local cache in
// step with the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chitchat-service/internal/assistant"
	"chitchat-service/internal/models"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// API is a thin REST wrapper around the service endpoints. All calls attach
// the session's bearer token.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI builds an API client for the given base URL and bearer token.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ReplyContext is the denormalized quote attached to a reply.
type ReplyContext struct {
	SenderName string `json:"sender_name"`
	Snippet    string `json:"snippet"`
}

// SendMessageRequest is the body for posting a message. ConnectionID lets
// the server skip pushing the message back to the connection that sent it.
type SendMessageRequest struct {
	Content      string        `json:"content"`
	ConnectionID string        `json:"connection_id,omitempty"`
	ReplyTo      *ReplyContext `json:"reply_to,omitempty"`
}

// SendMessage posts a message and returns the canonical stored row.
func (a *API) SendMessage(ctx context.Context, groupID int, req SendMessageRequest) (models.Message, error) {
	var msg models.Message
	err := a.do(ctx, http.MethodPost, fmt.Sprintf("/groups/%d/messages", groupID), req, &msg)
	return msg, err
}

// ListMessages returns the group's messages visible to the caller.
func (a *API) ListMessages(ctx context.Context, groupID int) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	err := a.do(ctx, http.MethodGet, fmt.Sprintf("/groups/%d/messages", groupID), nil, &resp)
	return resp.Messages, err
}

// ListGroups returns the caller's groups with their last visible message.
func (a *API) ListGroups(ctx context.Context) ([]models.GroupSummary, error) {
	var resp struct {
		Groups []models.GroupSummary `json:"groups"`
	}
	err := a.do(ctx, http.MethodGet, "/groups", nil, &resp)
	return resp.Groups, err
}

// CreateGroup creates a group and returns its id.
func (a *API) CreateGroup(ctx context.Context, name string, memberIDs []int) (int, error) {
	var resp struct {
		GroupID int `json:"group_id"`
	}
	body := map[string]any{"name": name, "member_ids": memberIDs}
	err := a.do(ctx, http.MethodPost, "/groups", body, &resp)
	return resp.GroupID, err
}

// ForwardOutcome is the per-target result of a forward.
type ForwardOutcome struct {
	GroupID   int    `json:"group_id"`
	OK        bool   `json:"ok"`
	MessageID int    `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Forward copies a message into each target group. Targets succeed or fail
// independently.
func (a *API) Forward(ctx context.Context, groupID, messageID int, targetGroupIDs []int) ([]ForwardOutcome, error) {
	var resp struct {
		Results []ForwardOutcome `json:"results"`
	}
	body := map[string]any{"target_group_ids": targetGroupIDs}
	err := a.do(ctx, http.MethodPost,
		fmt.Sprintf("/groups/%d/messages/%d/forward", groupID, messageID), body, &resp)
	return resp.Results, err
}

// DeleteForMe hides a message for the caller only.
func (a *API) DeleteForMe(ctx context.Context, groupID, messageID int) error {
	return a.do(ctx, http.MethodPost,
		fmt.Sprintf("/groups/%d/messages/%d/delete", groupID, messageID), nil, nil)
}

// MarkSeen flags a message as seen.
func (a *API) MarkSeen(ctx context.Context, groupID, messageID int) error {
	return a.do(ctx, http.MethodPost,
		fmt.Sprintf("/groups/%d/messages/%d/seen", groupID, messageID), nil, nil)
}

// TriggerAssistant hands the recent conversation window to the assistant.
// A nil message means the assistant stayed silent.
func (a *API) TriggerAssistant(ctx context.Context, groupID int, transcript []assistant.ChatMessage) (*models.Message, error) {
	req := map[string]any{"transcript": transcript}

	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := a.newRequest(ctx, http.MethodPost, fmt.Sprintf("/groups/%d/assistant", groupID), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusCreated:
		var msg models.Message
		if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, apiError(resp)
	}
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := a.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *API) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	return req, nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
