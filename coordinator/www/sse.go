package www

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"simfleet/coordinator/engine"
)

type SSEEvent struct {
	Event string
	Data  string
}

type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	select {
	case h.stopChan <- struct{}{}:
	default:
	}
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.mu.RLock()
			for ch := range h.clients {
				select {
				case ch <- evt:
				default:
					// drop if full
				}
			}
			h.mu.RUnlock()
		case <-keepalive.C:
			h.mu.RLock()
			for ch := range h.clients {
				select {
				case ch <- SSEEvent{Event: "keepalive", Data: "ping"}:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
	}
}

func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupBusListeners bridges coordinator events to SSE broadcasts so the
// operator page tracks the fleet live.
func (h *EventHub) SetupBusListeners(bus *engine.EventBus) {
	bus.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.RigRegisteredEvent)
		h.Broadcast("rig-update", fmt.Sprintf(`{"type":"registered","node_id":%d,"name":"%s"}`, ev.NodeID, ev.Name))
	}, engine.EventRigRegistered)

	bus.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.RigStatusChangedEvent)
		h.Broadcast("rig-update", fmt.Sprintf(`{"type":"status_changed","node_id":%d,"new_status":"%s"}`, ev.NodeID, ev.NewStatus))
	}, engine.EventRigStatusChanged)

	bus.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.SessionEvent)
		var kind string
		switch evt.Type {
		case engine.EventSessionStarting:
			kind = "starting"
		case engine.EventSessionStarted:
			kind = "started"
		case engine.EventSessionDegraded:
			kind = "degraded"
		case engine.EventSessionFailed:
			kind = "failed"
		case engine.EventSessionStopped:
			kind = "stopped"
		}
		h.Broadcast("session-update", fmt.Sprintf(`{"type":"%s","session_id":"%s","activity":"%s"}`, kind, ev.SessionID, ev.Activity))
	}, engine.EventSessionStarting, engine.EventSessionStarted, engine.EventSessionDegraded, engine.EventSessionFailed, engine.EventSessionStopped)

	bus.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"messaging":"connected"}`)
	}, engine.EventMessagingConnected)

	bus.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"messaging":"disconnected"}`)
	}, engine.EventMessagingDisconnected)
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.AddClient()
	defer h.RemoveClient(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
