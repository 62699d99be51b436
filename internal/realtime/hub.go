package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// ErrConnectionClosed is returned for subscribe/unsubscribe on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Publisher publishes topic events to Redis for cross-instance fan-out.
type Publisher interface {
	PublishTopicEvent(topic, event string, payload []byte) error
}

// Subscriber subscribes to a topic's Redis channel and invokes handler
// for incoming events.
type Subscriber interface {
	SubscribeTopic(topic string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains topic -> subscriber connection sets and fans out events.
// Uses Redis pub/sub for horizontal scaling: Publish goes through Redis,
// and one Redis subscription per topic with local subscribers delivers
// events back to local connections.
//
// Publish snapshots the subscriber set under the read lock and delivers
// outside it: a connection that unsubscribes while a publish is in flight
// may still receive that event. A closed connection never does — close
// removes every subscription under the write lock before returning.
type Hub struct {
	// topic -> clientID -> client
	topics  map[string]map[string]*Client
	cancels map[string]func() // cancel Redis subscription per topic
	mu      sync.RWMutex
	logger  *zap.Logger
	pub     Publisher
	sub     Subscriber
}

// NewHub creates a new relay hub.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		topics:  make(map[string]map[string]*Client),
		cancels: make(map[string]func()),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

// Subscribe adds the client to a topic. Idempotent: subscribing twice has
// the same effect as once. Fails with ErrConnectionClosed on a closed
// connection. Starts the Redis bridge for the topic on first subscriber.
func (h *Hub) Subscribe(c *Client, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	if _, ok := c.topics[topic]; ok {
		return nil
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeTopic(topic, func(event string, payload []byte) {
				h.Broadcast(topic, event, json.RawMessage(payload))
			})
			if err == nil {
				h.cancels[topic] = cancel
			} else {
				h.logger.Warn("redis topic subscribe failed", zap.String("topic", topic), zap.Error(err))
			}
		}
	}
	h.topics[topic][c.ID] = c
	c.topics[topic] = struct{}{}
	h.logger.Debug("client subscribed", zap.String("client_id", c.ID), zap.String("topic", topic))
	return nil
}

// Unsubscribe removes the client from a topic. Unsubscribing from a topic
// the client is not on is a no-op. Fails with ErrConnectionClosed on a
// closed connection.
func (h *Hub) Unsubscribe(c *Client, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	if _, ok := c.topics[topic]; !ok {
		return nil
	}
	h.dropSubscription(c, topic)
	h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID), zap.String("topic", topic))
	return nil
}

// Unregister closes the client: all of its subscriptions are removed
// atomically, so no event published afterwards can reach it.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if !c.closed {
		c.closed = true
		for topic := range c.topics {
			h.dropSubscription(c, topic)
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client closed", zap.String("client_id", c.ID))
}

// dropSubscription removes one (topic, client) pair and tears down the
// topic's Redis bridge when the last local subscriber leaves. Caller
// holds the write lock.
func (h *Hub) dropSubscription(c *Client, topic string) {
	delete(c.topics, topic)
	m := h.topics[topic]
	if m == nil {
		return
	}
	delete(m, c.ID)
	if len(m) == 0 {
		delete(h.topics, topic)
		if cancel, ok := h.cancels[topic]; ok {
			cancel()
			delete(h.cancels, topic)
		}
	}
}

// Broadcast sends an event to every local connection subscribed to the
// topic at call time (local only). Delivery is at-most-once: a client
// whose send buffer is full misses the event. Publishing to a topic with
// zero subscribers is a no-op.
func (h *Hub) Broadcast(topic, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := Envelope{Event: event, Topic: topic, Payload: data}

	h.mu.RLock()
	subs := h.topics[topic]
	snapshot := make([]*Client, 0, len(subs))
	for _, c := range subs {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish fans an event out to the topic's subscribers on every
// instance. With a Redis bridge wired the event goes through Redis only;
// the per-topic bridge subscription broadcasts it back to local
// connections, so each subscriber receives it exactly once. Without a
// bridge, or when the Redis publish fails, it degrades to a local
// broadcast.
func (h *Hub) Publish(topic, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		err = h.pub.PublishTopicEvent(topic, event, data)
		if err == nil {
			return
		}
		h.logger.Warn("redis publish failed, delivering locally", zap.String("topic", topic), zap.Error(err))
	}
	h.Broadcast(topic, event, json.RawMessage(data))
}

// SubscriberCount returns the number of local connections on a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Subscribed reports whether the client is currently on the topic.
func (h *Hub) Subscribed(c *Client, topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}
