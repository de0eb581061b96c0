package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rasachat/pkg/config"
	"rasachat/pkg/rasa"
	"rasachat/pkg/widget"
)

// newSurface wires a Server to a widget backed by a canned Rasa server.
func newSurface(t *testing.T, rasaBody string, cfg config.WebConfig) (*Server, *httptest.Server) {
	t.Helper()

	rasaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/status") {
			w.Write([]byte(`{"model_id":"m1"}`))
			return
		}
		w.Write([]byte(rasaBody))
	}))
	t.Cleanup(rasaSrv.Close)

	srv := NewServer(cfg)
	w := widget.New(rasa.NewClient(rasaSrv.URL, 2*time.Second), srv)
	srv.Attach(w)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getHistory(t *testing.T, ts *httptest.Server) []widget.Entry {
	t.Helper()
	resp, err := http.Get(ts.URL + "/chat/history")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []widget.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	return entries
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHistoryStartsWithWelcome(t *testing.T) {
	_, ts := newSurface(t, `[]`, config.WebConfig{})

	entries := getHistory(t, ts)
	require.Len(t, entries, 1)
	assert.Equal(t, widget.RoleSystem, entries[0].Role)
}

func TestSendFlowsThroughWidget(t *testing.T) {
	_, ts := newSurface(t, `[{"text":"hi there"}]`, config.WebConfig{})

	resp := postJSON(t, ts.URL+"/chat/send", map[string]string{"message": "hello"})
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		entries := getHistory(t, ts)
		return len(entries) == 3 // welcome + user + bot
	}, 2*time.Second, 10*time.Millisecond)

	entries := getHistory(t, ts)
	assert.Equal(t, widget.RoleUser, entries[1].Role)
	assert.Equal(t, "hello", entries[1].Text)
	assert.Equal(t, widget.RoleBot, entries[2].Role)
	assert.Equal(t, "hi there", entries[2].Text)
}

func TestClearEndpoint(t *testing.T) {
	_, ts := newSurface(t, `[{"text":"hi"}]`, config.WebConfig{})

	resp := postJSON(t, ts.URL+"/chat/send", map[string]string{"message": "hello"})
	resp.Body.Close()
	require.Eventually(t, func() bool {
		return len(getHistory(t, ts)) == 3
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/chat/clear", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	entries := getHistory(t, ts)
	require.Len(t, entries, 1)
	assert.Equal(t, widget.RoleSystem, entries[0].Role)
	assert.Contains(t, entries[0].Text, "cleared")
}

func TestServerEndpointRoundTrip(t *testing.T) {
	_, ts := newSurface(t, `[]`, config.WebConfig{})

	resp := postJSON(t, ts.URL+"/chat/server", map[string]string{"base_url": "http://example.com:5005"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/chat/server")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&got))
	assert.Equal(t, "http://example.com:5005", got["base_url"])
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := newSurface(t, `[]`, config.WebConfig{})

	resp, err := http.Get(ts.URL + "/chat/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "m1", status["model_id"])
}

func TestAPIRequiresAuthWhenConfigured(t *testing.T) {
	_, ts := newSurface(t, `[]`, config.WebConfig{Username: "admin", Password: "secret"})

	resp, err := http.Get(ts.URL + "/chat/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginGrantsSessionCookie(t *testing.T) {
	_, ts := newSurface(t, `[]`, config.WebConfig{Username: "admin", Password: "secret"})

	// Wrong password first.
	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	resp, err := http.PostForm(ts.URL+"/login", form)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, cookieNamed(resp, sessionCookie))

	// Correct credentials.
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	form.Set("password", "secret")
	resp, err = client.PostForm(ts.URL+"/login", form)
	require.NoError(t, err)
	resp.Body.Close()

	token := cookieNamed(resp, sessionCookie)
	require.NotEmpty(t, token)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/chat/history", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func cookieNamed(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

func TestWebsocketPushesEntries(t *testing.T) {
	_, ts := newSurface(t, `[{"text":"pong"}]`, config.WebConfig{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// First frame is the transcript snapshot.
	first := readEvent(t, conn)
	assert.Equal(t, "reset", first.Type)
	require.NotEmpty(t, first.Entries)
	assert.Equal(t, widget.RoleSystem, first.Entries[0].Role)

	sendResp := postJSON(t, ts.URL+"/chat/send", map[string]string{"message": "ping"})
	sendResp.Body.Close()

	var sawUser, sawBot bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !(sawUser && sawBot) {
		ev := readEvent(t, conn)
		if ev.Type != "entry" || ev.Entry == nil {
			continue
		}
		switch ev.Entry.Role {
		case widget.RoleUser:
			assert.Equal(t, "ping", ev.Entry.Text)
			sawUser = true
		case widget.RoleBot:
			assert.Equal(t, "pong", ev.Entry.Text)
			sawBot = true
		}
	}
	assert.True(t, sawUser, "expected a user entry push")
	assert.True(t, sawBot, "expected a bot entry push")
}

func readEvent(t *testing.T, conn *websocket.Conn) event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestRestartEndpointRotatesSender(t *testing.T) {
	srv, ts := newSurface(t, `[]`, config.WebConfig{})
	before := srv.w.Sender()

	resp, err := http.Post(ts.URL+"/chat/restart", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NotEqual(t, before, got["sender"])
	assert.Equal(t, srv.w.Sender(), got["sender"])
}
