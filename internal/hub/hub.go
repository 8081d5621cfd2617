// Package hub fans the latest snapshot out to realtime subscribers.
//
// Every subscriber owns a one-slot outbound channel and a writer goroutine, so
// Publish never waits on a connection. A subscriber that falls behind only ever
// receives the newest payload; one whose transport fails is closed and pruned.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jusunglee/wmata-go/internal/models"
)

// TextMessage matches websocket.TextMessage
const TextMessage = 1

const defaultWriteTimeout = 10 * time.Second

// Conn is the transport a subscriber writes to. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscriber is one open realtime connection
type Subscriber struct {
	ID   uuid.UUID
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Deliver hands a payload to the subscriber without blocking.
// An undelivered older payload is replaced. Returns false if the subscriber is closed.
func (s *Subscriber) Deliver(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	for {
		select {
		case s.send <- payload:
			return true
		default:
		}
		select {
		case <-s.send:
		default:
		}
	}
}

// Done is closed once the subscriber stops writing
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Subscriber) writeLoop(timeout time.Duration, logger *slog.Logger) {
	defer s.close()
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := s.conn.WriteMessage(TextMessage, payload); err != nil {
				logger.Debug("subscriber write failed", "subscriber", s.ID, "error", err)
				return
			}
		}
	}
}

// Hub is the registry of subscribers
type Hub struct {
	mu           sync.Mutex
	subscribers  map[uuid.UUID]*Subscriber
	latest       []byte
	latestBuilt  time.Time
	writeTimeout time.Duration
	logger       *slog.Logger
}

// New creates an empty hub
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers:  make(map[uuid.UUID]*Subscriber),
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
}

// Subscribe registers a connection, seeds it and starts its writer.
// The seed is the newer of the last published payload and current, so a
// publish racing with the caller's read of current never leaves the
// subscriber on an older snapshot.
func (h *Hub) Subscribe(conn Conn, current *models.Snapshot) (*Subscriber, error) {
	s := &Subscriber{
		ID:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	seed := h.latest
	if current != nil && (seed == nil || current.BuiltAt.After(h.latestBuilt)) {
		payload, err := h.Encode(current)
		if err != nil {
			h.mu.Unlock()
			return nil, err
		}
		seed = payload
	}
	if seed != nil {
		s.Deliver(seed)
	}
	h.subscribers[s.ID] = s
	total := len(h.subscribers)
	h.mu.Unlock()

	go s.writeLoop(h.writeTimeout, h.logger)
	h.logger.Info("websocket client connected", "subscriber", s.ID, "clients", total)
	return s, nil
}

// Unsubscribe removes a subscriber and closes its transport
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[s.ID]
	delete(h.subscribers, s.ID)
	total := len(h.subscribers)
	h.mu.Unlock()

	s.close()
	if ok {
		h.logger.Info("websocket client disconnected", "subscriber", s.ID, "clients", total)
	}
}

// Encode serializes a snapshot into the payload sent to subscribers
func (h *Hub) Encode(snapshot *models.Snapshot) ([]byte, error) {
	return json.Marshal(models.NewStationsPayload(snapshot))
}

// Publish sends the same payload to every live subscriber and prunes closed ones.
// It returns how many subscribers the payload was handed to.
func (h *Hub) Publish(snapshot *models.Snapshot) (int, error) {
	payload, err := h.Encode(snapshot)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = payload
	h.latestBuilt = snapshot.BuiltAt

	delivered := 0
	for id, s := range h.subscribers {
		if s.closed() || !s.Deliver(payload) {
			delete(h.subscribers, id)
			h.logger.Debug("pruned closed subscriber", "subscriber", id)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Count returns the number of registered subscribers
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for id, s := range h.subscribers {
		subs = append(subs, s)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
