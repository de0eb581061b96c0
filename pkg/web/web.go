// Package web serves the browser surface: an embedded chat page backed by
// the widget core, with live transcript pushes over a websocket.
package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rasachat/pkg/config"
	"rasachat/pkg/logger"
	"rasachat/pkg/widget"
)

const sessionCookie = "rasachat_session"

// event is one websocket frame pushed to connected pages.
type event struct {
	Type    string         `json:"type"` // "entry", "reset", "input_cleared"
	Entry   *widget.Entry  `json:"entry,omitempty"`
	Entries []widget.Entry `json:"entries,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Server hosts the chat page and implements widget.Surface so transcript
// changes reach every connected browser as they happen.
type Server struct {
	cfg      config.WebConfig
	w        *widget.Widget
	server   *http.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*wsClient]bool
	sessions map[string]time.Time
}

func NewServer(cfg config.WebConfig) *Server {
	return &Server{
		cfg:      cfg,
		clients:  make(map[*wsClient]bool),
		sessions: make(map[string]time.Time),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Attach binds the widget this server renders. Must be called before Start.
func (s *Server) Attach(w *widget.Widget) {
	s.w = w
}

// EntryAppended implements widget.Surface.
func (s *Server) EntryAppended(e widget.Entry) {
	s.broadcast(event{Type: "entry", Entry: &e})
}

// TranscriptReset implements widget.Surface.
func (s *Server) TranscriptReset(entries []widget.Entry) {
	s.broadcast(event{Type: "reset", Entries: entries})
}

// InputCleared implements widget.Surface.
func (s *Server) InputCleared() {
	s.broadcast(event{Type: "input_cleared"})
}

func (s *Server) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Slow consumer; drop it rather than stall the widget.
			delete(s.clients, c)
			close(c.send)
		}
	}
	s.mu.Unlock()
}

func (s *Server) Start(ctx context.Context) error {
	if s.w == nil {
		return fmt.Errorf("web: no widget attached")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{Addr: addr, Handler: s.Handler()}

	logger.InfoCF("web", "chat page listening", map[string]interface{}{
		"addr": addr,
		"auth": s.authEnabled(),
	})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("web", "server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler builds the routed mux. Split out so tests can exercise the surface
// without a listening socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.requireAuth(s.handlePage))
	mux.HandleFunc("/chat/send", s.requireAuthAPI(s.handleSend))
	mux.HandleFunc("/chat/history", s.requireAuthAPI(s.handleHistory))
	mux.HandleFunc("/chat/clear", s.requireAuthAPI(s.handleClear))
	mux.HandleFunc("/chat/restart", s.requireAuthAPI(s.handleRestart))
	mux.HandleFunc("/chat/status", s.requireAuthAPI(s.handleStatus))
	mux.HandleFunc("/chat/server", s.requireAuthAPI(s.handleServer))
	mux.HandleFunc("/chat/ws", s.requireAuthAPI(s.handleWS))
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	return mux
}

// authEnabled returns true when both username and password are configured.
func (s *Server) authEnabled() bool {
	return s.cfg.Username != "" && s.cfg.Password != ""
}

func (s *Server) createSession() string {
	b := make([]byte, 32)
	rand.Read(b)
	token := hex.EncodeToString(b)
	s.mu.Lock()
	s.sessions[token] = time.Now().Add(24 * time.Hour)
	s.mu.Unlock()
	return token
}

func (s *Server) validSession(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	s.mu.Lock()
	expiry, ok := s.sessions[cookie.Value]
	s.mu.Unlock()
	return ok && time.Now().Before(expiry)
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled() || s.validSession(r) {
			next(w, r)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

func (s *Server) requireAuthAPI(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled() || s.validSession(r) {
			next(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, chatPageHTML)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	// Submit never blocks; replies arrive over the websocket.
	s.w.Submit(req.Message)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.w.Entries())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.w.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.w.Restart(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"sender": s.w.Sender()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.w.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleServer reads or repoints the Rasa base URL the page talks through.
func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"base_url": s.w.ServerBaseURL()})
	case http.MethodPost:
		var req struct {
			BaseURL string `json:"base_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BaseURL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
			return
		}
		s.w.SetServerBaseURL(req.BaseURL)
		logger.InfoCF("web", "server base url changed", map[string]interface{}{"base_url": req.BaseURL})
		writeJSON(w, http.StatusOK, map[string]string{"base_url": s.w.ServerBaseURL()})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, 64)}

	// Register before snapshotting so no append lands between the snapshot
	// and the first push.
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	snapshot, _ := json.Marshal(event{Type: "reset", Entries: s.w.Entries()})

	go s.writeLoop(c, snapshot)
	go s.readLoop(c)
}

func (s *Server) writeLoop(c *wsClient, first []byte) {
	defer c.conn.Close()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, first); err != nil {
		s.drop(c)
		return
	}

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.drop(c)
			return
		}
	}
}

// readLoop drains the connection so pings and close frames are processed.
func (s *Server) readLoop(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *Server) drop(c *wsClient) {
	s.mu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.authEnabled() || s.validSession(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, loginPage(""))
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.ParseForm()
	username := r.FormValue("username")
	password := r.FormValue("password")

	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) == 1

	if !usernameMatch || !passwordMatch {
		logger.WarnCF("web", "login failed", map[string]interface{}{"remote": r.RemoteAddr})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, loginPage("Invalid username or password"))
		return
	}

	token := s.createSession()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   86400,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
