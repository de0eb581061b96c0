// Package widget holds the chat widget core: an append-only transcript, a
// per-run sender identity, and the submit/send/clear cycle against a Rasa
// webhook. Rendering and input capture live behind the Surface interface so
// the core runs the same under the terminal UI, the web page, and tests.
package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rasachat/pkg/logger"
	"rasachat/pkg/rasa"
)

// Entry roles. Bubbles belong to the user or the bot; system entries are
// widget-level notices (status, errors) attributed to neither party.
const (
	RoleUser   = "user"
	RoleBot    = "bot"
	RoleSystem = "system"
)

// Entry is one rendered transcript element. Entries are append-only and
// never mutated; only the whole transcript can be cleared.
type Entry struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Surface is the user-interface events capability the widget renders
// through. Implementations must not call back into the Widget from these
// handlers; they receive everything they need as arguments.
type Surface interface {
	// EntryAppended fires once per appended entry, in transcript order.
	EntryAppended(e Entry)
	// TranscriptReset fires after Clear or Restart replaced the whole
	// transcript; entries is the new transcript (the confirmation notice).
	TranscriptReset(entries []Entry)
	// InputCleared fires when an accepted submission consumed the input.
	InputCleared()
}

const welcomeNotice = "Welcome to rasachat. Pick a server and start chatting."

// Widget owns the transcript and the request/response cycle. All state is
// instance fields; construct one per surface, there are no package-level
// singletons.
type Widget struct {
	mu      sync.RWMutex
	entries []Entry
	sender  string
	client  *rasa.Client
	surface Surface
}

// New builds a widget with a fresh sender identity and posts the single
// welcome notice. The sender id lives as long as the widget and is never
// persisted.
func New(client *rasa.Client, surface Surface) *Widget {
	w := &Widget{
		client:  client,
		surface: surface,
		sender:  newSenderID(),
	}
	w.append(Entry{Role: RoleSystem, Text: welcomeNotice, Time: time.Now()})
	return w
}

func newSenderID() string {
	return "rasachat-" + uuid.NewString()[:8]
}

// Sender returns the session identifier used on every outgoing request.
func (w *Widget) Sender() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sender
}

// Entries returns a snapshot of the transcript in append order.
func (w *Widget) Entries() []Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Submit takes raw input text. Whitespace-only input is a strict no-op: no
// request, no entry, no input clear. Otherwise the input is cleared, exactly
// one user bubble with the trimmed text is appended, and the send proceeds
// asynchronously. Submit never blocks; rapid submissions race independently
// and their responses may render out of order.
func (w *Widget) Submit(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	w.surface.InputCleared()
	w.append(Entry{Role: RoleUser, Text: trimmed, Time: time.Now()})

	go w.send(trimmed)
}

// send runs one request/response cycle. Errors surface as system notices and
// are terminal for this send only: no retry, no backoff, no escalation.
func (w *Widget) send(text string) {
	sender := w.Sender()
	messages, err := w.client.Send(context.Background(), sender, text)
	if err != nil {
		var httpErr *rasa.HTTPError
		if errors.As(err, &httpErr) {
			logger.WarnCF("widget", "webhook returned an error status", map[string]interface{}{
				"status": httpErr.StatusCode,
			})
			w.append(Entry{Role: RoleSystem, Text: "Request failed: " + httpErr.Status, Time: time.Now()})
			return
		}
		logger.WarnCF("widget", "webhook request failed", map[string]interface{}{
			"error": err.Error(),
		})
		w.append(Entry{Role: RoleSystem, Text: fmt.Sprintf("Could not reach server: %v", err), Time: time.Now()})
		return
	}

	if len(messages) == 0 {
		w.append(Entry{Role: RoleSystem, Text: "No response received from server.", Time: time.Now()})
		return
	}

	for _, m := range messages {
		if m.Text != "" {
			w.append(Entry{Role: RoleBot, Text: m.Text, Time: time.Now()})
		}
		if m.Image != "" {
			w.append(Entry{Role: RoleBot, Text: "[image] " + m.Image, Time: time.Now()})
		}
		if len(m.Custom) > 0 {
			w.append(Entry{Role: RoleBot, Text: "[custom] " + string(m.Custom), Time: time.Now()})
		}
	}
}

// Clear drops the whole transcript and leaves a single confirmation notice.
// Sender identity and server configuration are untouched; sends already in
// flight run to completion and append to the cleared transcript.
func (w *Widget) Clear() {
	w.reset("Chat cleared.")
}

// Restart resets the conversation on both ends: it posts a restart event for
// the current sender, rotates to a fresh sender id so stale tracker state
// cannot leak in, and clears the transcript. A failed restart event still
// rotates locally; the failure is reported as a notice.
func (w *Widget) Restart(ctx context.Context) {
	old := w.Sender()
	err := w.client.Restart(ctx, old)

	w.mu.Lock()
	w.sender = newSenderID()
	w.mu.Unlock()

	w.reset("Conversation restarted with a fresh session.")
	if err != nil {
		logger.WarnCF("widget", "restart event was not delivered", map[string]interface{}{
			"sender": old,
			"error":  err.Error(),
		})
		w.append(Entry{
			Role: RoleSystem,
			Text: fmt.Sprintf("Server-side restart failed: %v", err),
			Time: time.Now(),
		})
	}
}

// SetServerBaseURL repoints the widget at a different Rasa server. The
// transcript and sender identity are untouched.
func (w *Widget) SetServerBaseURL(url string) {
	w.client.SetBaseURL(url)
}

// ServerBaseURL returns the server the widget currently talks to.
func (w *Widget) ServerBaseURL() string {
	return w.client.BaseURL()
}

// Status probes the server's /status endpoint, for surface-level health
// checks. It does not touch the transcript.
func (w *Widget) Status(ctx context.Context) (map[string]interface{}, error) {
	return w.client.Status(ctx)
}

func (w *Widget) append(e Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
	w.surface.EntryAppended(e)
}

func (w *Widget) reset(notice string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = []Entry{{Role: RoleSystem, Text: notice, Time: time.Now()}}
	snapshot := make([]Entry, len(w.entries))
	copy(snapshot, w.entries)
	w.surface.TranscriptReset(snapshot)
}
