package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventType classifies a portal event.
type EventType string

const (
	EventToast     EventType = "toast"
	EventFilter    EventType = "filter"
	EventOptions   EventType = "options"
	EventDashboard EventType = "dashboard"
	EventDrillDown EventType = "drilldown"
)

// PortalEvent is pushed to live subscribers whenever visible state changes.
type PortalEvent struct {
	Type      EventType   `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Toast     *Toast      `json:"toast,omitempty"`
	Filter    *GeoFilter  `json:"filter,omitempty"`
	Level     OptionLevel `json:"level,omitempty"`
	Status    string      `json:"status,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// BroadcastHook fans portal events out to in-process subscribers.
type BroadcastHook struct {
	mu   sync.RWMutex
	subs map[string]subscriber
	now  func() time.Time
}

type subscriber struct {
	ch      chan PortalEvent
	session string
}

// wants reports whether the subscriber receives event. Events without a
// session id reach everyone.
func (s subscriber) wants(event PortalEvent) bool {
	return s.session == "" || event.SessionID == "" || event.SessionID == s.session
}

// NewBroadcastHook creates a broadcast hook.
func NewBroadcastHook() *BroadcastHook {
	return &BroadcastHook{
		subs: make(map[string]subscriber),
		now:  time.Now,
	}
}

// Publish delivers event to every subscriber without blocking.
func (h *BroadcastHook) Publish(_ context.Context, event PortalEvent) {
	if h == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// PublishPortalEvent implements NotificationsClient.
func (h *BroadcastHook) PublishPortalEvent(ctx context.Context, event PortalEvent) error {
	h.Publish(ctx, event)
	return nil
}

// Success implements Notifier.
func (h *BroadcastHook) Success(ctx context.Context, message string) {
	h.Publish(ctx, PortalEvent{Type: EventToast, Toast: &Toast{Level: "success", Message: message}})
}

// Error implements Notifier.
func (h *BroadcastHook) Error(ctx context.Context, message string) {
	h.Publish(ctx, PortalEvent{Type: EventToast, Toast: &Toast{Level: "error", Message: message}})
}

// Subscribe returns a channel of every event and a cancel func.
func (h *BroadcastHook) Subscribe() (<-chan PortalEvent, func()) {
	return h.SubscribeSession("")
}

// SubscribeSession returns the events of one session plus events that
// carry no session. An empty sessionID subscribes to everything.
func (h *BroadcastHook) SubscribeSession(sessionID string) (<-chan PortalEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan PortalEvent, 16)
	h.subs[id] = subscriber{ch: ch, session: sessionID}
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// Subscribers reports the number of live subscriptions.
func (h *BroadcastHook) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the request and streams events as JSON. A
// session query parameter limits the stream to that session.
func (h *BroadcastHook) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer conn.Close()

	events, cancel := h.SubscribeSession(streamSession(r))
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

// ServeSSE streams events as Server-Sent Events, filtered like
// ServeWebSocket.
func (h *BroadcastHook) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	events, cancel := h.SubscribeSession(streamSession(r))
	defer cancel()

	encoder := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			w.Write([]byte("data: "))
			if err := encoder.Encode(event); err != nil {
				return
			}
			w.Write([]byte("\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func streamSession(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("session"))
}
