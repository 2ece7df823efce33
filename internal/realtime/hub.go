// Package realtime keeps websocket clients in sync with the task graph by
// pushing each of them a full snapshot after every mutation that concerns it.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/yukikurage/priority-matrix/internal/dto"
	"github.com/yukikurage/priority-matrix/internal/services"
	"go.uber.org/zap"
)

// Snapshotter computes the tasks visible to one identity
type Snapshotter interface {
	VisibleTasks(ctx context.Context, identity string) ([]dto.TaskDTO, error)
}

// Hub tracks connected clients and the identity bound to each. It holds no
// other state: every push is a freshly computed snapshot.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]struct{}
	snapshots Snapshotter
	timeout   time.Duration
	log       *zap.Logger
}

// NewHub creates a new Hub. timeout bounds each snapshot query.
func NewHub(snapshots Snapshotter, timeout time.Duration, log *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		snapshots: snapshots,
		timeout:   timeout,
		log:       log,
	}
}

// Register adds a client
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Debug("client connected",
		zap.String("client_id", c.ID.String()),
		zap.Bool("authenticated", c.identity != ""),
		zap.Int("clients", count),
	)
}

// Unregister removes a client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.closeSend()
	if ok {
		h.log.Debug("client disconnected", zap.String("client_id", c.ID.String()))
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish pushes an updateTasks snapshot to every client in scope. Clients
// sharing an identity share one snapshot query.
func (h *Hub) Publish(scope services.Scope) {
	recipients := h.recipients(scope)
	if len(recipients) == 0 {
		return
	}

	encoded := make(map[string][]byte)
	for _, c := range recipients {
		msg, ok := encoded[c.identity]
		if !ok {
			var err error
			msg, err = h.snapshotMessage(EventUpdateTasks, c.identity)
			if err != nil {
				h.log.Warn("snapshot failed", zap.Bool("authenticated", c.identity != ""), zap.Error(err))
				continue
			}
			encoded[c.identity] = msg
		}
		h.enqueue(c, msg)
	}
}

// SendSnapshot pushes a snapshot to one client under the given event name
func (h *Hub) SendSnapshot(c *Client, event string) error {
	msg, err := h.snapshotMessage(event, c.identity)
	if err != nil {
		return err
	}
	h.enqueue(c, msg)
	return nil
}

// Send pushes one event to one client
func (h *Hub) Send(c *Client, event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		h.log.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.enqueue(c, msg)
}

// recipients copies the affected clients so the lock is never held across a
// query or a socket write.
func (h *Hub) recipients(scope services.Scope) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if scope.Recipients(c.identity) {
			list = append(list, c)
		}
	}
	return list
}

func (h *Hub) snapshotMessage(event, identity string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	tasks, err := h.snapshots.VisibleTasks(ctx, identity)
	if err != nil {
		return nil, err
	}
	return encode(event, tasks)
}

// enqueue never blocks: a client that cannot keep up is dropped.
func (h *Hub) enqueue(c *Client, msg []byte) {
	if c.trySend(msg) != sendFull {
		return
	}
	h.log.Warn("dropping slow client", zap.String("client_id", c.ID.String()))
	h.Unregister(c)
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}
