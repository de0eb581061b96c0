// Package rasa talks to a Rasa Open Source server over its REST channel.
package rasa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"rasachat/pkg/logger"
)

const (
	webhookPath = "/webhooks/rest/webhook"
	statusPath  = "/status"
)

// BotMessage is one element of the webhook's JSON reply array.
// Any of the fields may be absent; a single element may carry several.
type BotMessage struct {
	Text   string          `json:"text,omitempty"`
	Image  string          `json:"image,omitempty"`
	Custom json.RawMessage `json:"custom,omitempty"`
}

// HTTPError reports a completed request that came back with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server returned %s", e.Status)
}

// Client is a REST client for a single Rasa server. The base URL can be
// repointed at runtime; everything else is fixed at construction.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the currently configured server base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL repoints the client at a different server. Requests already in
// flight keep the URL they were built with.
func (c *Client) SetBaseURL(url string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(url, "/")
	c.mu.Unlock()
}

// Send posts one user message to the REST webhook and returns the bot's
// reply messages in server order. A non-2xx status yields an *HTTPError.
// An empty or non-array body decodes to zero messages without an error;
// the server legitimately replies [] when the bot has nothing to say.
func (c *Client) Send(ctx context.Context, sender, message string) ([]BotMessage, error) {
	payload, err := json.Marshal(map[string]string{
		"sender":  sender,
		"message": message,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+webhookPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var messages []BotMessage
	if err := json.Unmarshal(body, &messages); err != nil {
		// Not an array. The widget treats this the same as an empty reply.
		logger.DebugCF("rasa", "webhook reply was not a JSON array", map[string]interface{}{
			"bytes": len(body),
		})
		return nil, nil
	}
	return messages, nil
}

// Status fetches the server's /status document.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+statusPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return status, nil
}

// Restart posts a restart event to the sender's conversation tracker,
// resetting the bot's dialogue state for that sender.
func (c *Client) Restart(ctx context.Context, sender string) error {
	payload := []byte(`{"event":"restart"}`)
	url := fmt.Sprintf("%s/conversations/%s/events", c.BaseURL(), sender)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
