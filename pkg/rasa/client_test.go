package rasa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(url, 2*time.Second)
}

func TestSendPostsWebhookPayload(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`[{"text":"hello back"}]`))
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	messages, err := client.Send(context.Background(), "rasachat-abc", "hello")
	require.NoError(t, err)

	assert.Equal(t, "/webhooks/rest/webhook", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]string{"sender": "rasachat-abc", "message": "hello"}, gotBody)

	require.Len(t, messages, 1)
	assert.Equal(t, "hello back", messages[0].Text)
}

func TestSendDecodesAllFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"text":"hi","image":"http://x/y.png"},{"custom":{"k":1}}]`))
	}))
	defer ts.Close()

	messages, err := newTestClient(ts.URL).Send(context.Background(), "s", "m")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].Text)
	assert.Equal(t, "http://x/y.png", messages[0].Image)
	assert.JSONEq(t, `{"k":1}`, string(messages[1].Custom))
}

func TestSendHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Send(context.Background(), "s", "m")
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Contains(t, httpErr.Error(), "500")
}

func TestSendNonArrayBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"3.1.0"}`))
	}))
	defer ts.Close()

	messages, err := newTestClient(ts.URL).Send(context.Background(), "s", "m")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSendEmptyArray(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	messages, err := newTestClient(ts.URL).Send(context.Background(), "s", "m")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSendNetworkError(t *testing.T) {
	// Nothing listens here.
	_, err := newTestClient("http://127.0.0.1:1").Send(context.Background(), "s", "m")
	require.Error(t, err)

	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}

func TestStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		w.Write([]byte(`{"model_id":"abc","num_active_training_jobs":0}`))
	}))
	defer ts.Close()

	status, err := newTestClient(ts.URL).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", status["model_id"])
}

func TestStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Status(context.Background())
	require.Error(t, err)
}

func TestRestartPostsEvent(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	require.NoError(t, newTestClient(ts.URL).Restart(context.Background(), "rasachat-xyz"))
	assert.Equal(t, "/conversations/rasachat-xyz/events", gotPath)
	assert.Equal(t, map[string]string{"event": "restart"}, gotBody)
}

func TestSetBaseURLTrimsSlash(t *testing.T) {
	client := newTestClient("http://localhost:5005/")
	assert.Equal(t, "http://localhost:5005", client.BaseURL())

	client.SetBaseURL("http://example.com/rasa/")
	assert.Equal(t, "http://example.com/rasa", client.BaseURL())
}
