package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("token", c.opts.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Users fetches the sidebar: every other user and this viewer's
// unseen-count map, which replaces the local one.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var resp struct {
		Users          []User         `json:"users"`
		UnseenMessages map[string]int `json:"unseenMessages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/conversations/users", nil, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.unseen = make(map[string]int, len(resp.UnseenMessages))
	for k, v := range resp.UnseenMessages {
		c.unseen[k] = v
	}
	c.mu.Unlock()

	return resp.Users, nil
}

// SelectPeer makes peerID the active conversation, replacing the local
// message list with the fetched history. The server flips unseen
// messages from that peer as part of the fetch, so the local count for
// the peer resets.
func (c *Client) SelectPeer(ctx context.Context, peerID string) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/conversations/"+peerID, nil, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.selected = peerID
	c.messages = resp.Messages
	delete(c.unseen, peerID)
	c.mu.Unlock()

	return c.Messages(), nil
}

// ClearSelection drops the active conversation; later pushes from any
// sender only bump unseen counts.
func (c *Client) ClearSelection() {
	c.mu.Lock()
	c.selected = ""
	c.messages = nil
	c.mu.Unlock()
}

// SendMessage sends to the selected peer and appends the persisted
// message to the local list.
func (c *Client) SendMessage(ctx context.Context, text, image string) (Message, error) {
	peer := c.SelectedPeer()
	if peer == "" {
		return Message{}, fmt.Errorf("no conversation selected")
	}

	var resp struct {
		NewMessage Message `json:"newMessage"`
	}
	body := map[string]string{"text": text, "image": image}
	if err := c.doJSON(ctx, http.MethodPost, "/conversations/"+peer+"/messages", body, &resp); err != nil {
		return Message{}, err
	}

	c.mu.Lock()
	c.messages = append(c.messages, resp.NewMessage)
	c.mu.Unlock()

	return resp.NewMessage, nil
}

// ackSeen tells the server a live-pushed message was displayed. Errors
// are logged and dropped; the server re-flips on the next history fetch.
func (c *Client) ackSeen(messageID string) {
	if err := c.doJSON(context.Background(), http.MethodPut, "/messages/"+messageID+"/seen", nil, nil); err != nil {
		slog.Debug("Seen ack failed", "error", err, "message_id", messageID)
	}
}
