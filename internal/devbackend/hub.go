package devbackend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"servisca-quickmatch/internal/log"
)

type (
	// Hub fans events out to every socket subscribed to a topic. Each
	// socket follows exactly one topic, taken from ?topic= at upgrade
	Hub struct {
		logger   *slog.Logger
		upgrader websocket.Upgrader

		mu     sync.RWMutex
		topics map[string]map[*client]struct{}
		relay  Relay
	}

	// Relay carries publishes between hub instances. Deliveries come back
	// through Hub.Deliver
	Relay interface {
		Publish(ctx context.Context, topic string, event []byte) error
	}

	client struct {
		conn  *websocket.Conn
		topic string
		send  chan []byte
	}
)

const (
	sendBuffer = 256
	readLimit  = 4 << 20
)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			// local development only
			CheckOrigin: func(*http.Request) bool { return true },
		},
		topics: make(map[string]map[*client]struct{}),
	}
}

// SetRelay routes Publish through r instead of delivering locally
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = r
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		http.Error(w, "missing topic", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", log.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{
		conn:  conn,
		topic: topic,
		send:  make(chan []byte, sendBuffer),
	}
	h.add(c)
	h.logger.Debug("socket subscribed", log.Topic(topic))

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)
}

// Publish sends event to every subscriber of topic, via the relay if set
func (h *Hub) Publish(ctx context.Context, topic string, event []byte) error {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()

	if relay != nil {
		return relay.Publish(ctx, topic, event)
	}
	h.Deliver(topic, event)
	return nil
}

// Deliver fans event out to local sockets only. Sends happen under the
// read lock so remove cannot close a send channel mid-delivery
func (h *Hub) Deliver(topic string, event []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.topics[topic] {
		select {
		case c.send <- event:
		default:
			// slow consumer
			h.logger.Warn("dropping slow socket", log.Topic(topic))
			_ = c.conn.Close()
		}
	}
}

// Subscribers counts local sockets on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
		close(c.send)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if string(data) == pingFrame {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "publish" {
			h.logger.Debug("ignoring client frame", log.Topic(c.topic))
			continue
		}
		if len(msg.Event) == 0 || !json.Valid(msg.Event) {
			continue
		}
		topic := msg.Topic
		if topic == "" {
			topic = c.topic
		}
		if err := h.Publish(ctx, topic, msg.Event); err != nil {
			h.logger.Warn("publish from socket failed", log.Topic(topic), log.Error(err))
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			_ = c.conn.Close()
			// drain until readLoop closes send
			for range c.send {
			}
			return
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[c.topic]; !ok {
		h.topics[c.topic] = make(map[*client]struct{})
	}
	h.topics[c.topic][c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[c.topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, c.topic)
		}
	}
}
