// Package monitor mirrors controller snapshots to websocket subscribers, so
// a browser or dashboard can follow a console session.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soypete/melscribe/pkg/controller"
	"github.com/soypete/melscribe/pkg/metrics"
)

// sendBuffer is how many messages a subscriber may lag before it is dropped
const sendBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // local monitoring only
	},
}

// Message is one frame on /events
type Message struct {
	Type     string               `json:"type"` // "snapshot" or "notice"
	Snapshot *controller.Snapshot `json:"snapshot,omitempty"`
	Notice   string               `json:"notice,omitempty"`
	Time     time.Time            `json:"time"`
}

type subscriber struct {
	id   string
	send chan Message
}

// Feed is a controller.View that broadcasts what it renders
type Feed struct {
	logger *slog.Logger

	mu      sync.Mutex
	latest  *controller.Snapshot
	clients map[string]*subscriber
}

// NewFeed creates an empty feed
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		logger:  logger.With("component", "monitor"),
		clients: make(map[string]*subscriber),
	}
}

// Render stores and broadcasts a snapshot
func (f *Feed) Render(s controller.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = &s
	f.broadcastLocked(Message{Type: "snapshot", Snapshot: &s, Time: time.Now()})
}

// Notice broadcasts a one-off notice
func (f *Feed) Notice(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcastLocked(Message{Type: "notice", Notice: msg, Time: time.Now()})
}

// Subscribers returns the number of connected subscribers
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) broadcastLocked(msg Message) {
	for id, c := range f.clients {
		select {
		case c.send <- msg:
		default:
			f.logger.Warn("dropping slow subscriber", "subscriber", id)
			delete(f.clients, id)
			close(c.send)
		}
	}
}

// Handler serves /events (websocket), /state (JSON) and /metrics
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", f.handleEvents)
	mux.HandleFunc("/state", f.handleState)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (f *Feed) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f.mu.Lock()
	latest := f.latest
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if latest == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "no state rendered yet"})
		return
	}
	json.NewEncoder(w).Encode(latest)
}

func (f *Feed) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := &subscriber{id: uuid.NewString(), send: make(chan Message, sendBuffer)}

	f.mu.Lock()
	if f.latest != nil {
		sub.send <- Message{Type: "snapshot", Snapshot: f.latest, Time: time.Now()}
	}
	f.clients[sub.id] = sub
	f.mu.Unlock()

	f.logger.Debug("subscriber connected", "subscriber", sub.id)

	// Reads only detect the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer f.unsubscribe(sub.id)

	for {
		select {
		case msg, ok := <-sub.send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				f.logger.Debug("subscriber write failed", "subscriber", sub.id, "error", err)
				return
			}
		case <-gone:
			return
		}
	}
}

func (f *Feed) unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[id]; ok {
		delete(f.clients, id)
		close(c.send)
	}
	f.logger.Debug("subscriber disconnected", "subscriber", id)
}

// Serve runs the feed on addr until ctx is done
func (f *Feed) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           f.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	f.logger.Info("monitor listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
