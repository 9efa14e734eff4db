package stream

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"backend-fleettrack/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TopicFleet receives every published payload regardless of bus. Viewers
// subscribed to a bus topic only see that bus.
const TopicFleet = "fleet"

func BusTopic(busNumber string) string {
	return "bus-" + busNumber
}

// PublishBus and PublishFleet are the structured entry points the domain
// services publish through; they keep topic naming inside this package.
func (h *Hub) PublishBus(busNumber string, payload []byte) {
	h.Publish(BusTopic(busNumber), payload)
}

func (h *Hub) PublishFleet(payload []byte) {
	h.Publish(TopicFleet, payload)
}

type Hub struct {
	id      string
	redis   *redis.Client
	metrics *metrics.Collector

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

type Client struct {
	Send   chan []byte
	topics map[string]struct{}
}

// relayEnvelope wraps payloads on the Redis wire so a hub can drop messages
// it published itself.
type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(redisClient *redis.Client, collector *metrics.Collector) *Hub {
	h := &Hub{
		id:      uuid.NewString(),
		redis:   redisClient,
		metrics: collector,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register() *Client {
	client := &Client{
		Send:   make(chan []byte, 64),
		topics: map[string]struct{}{},
	}
	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
	}
	return client
}

func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	client.topics[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client, topic)
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic := range client.topics {
		h.dropLocked(client, topic)
	}
	close(client.Send)
	if h.metrics != nil {
		h.metrics.StreamClients.Dec()
	}
}

func (h *Hub) dropLocked(client *Client, topic string) {
	if topicClients, ok := h.clients[topic]; ok {
		delete(topicClients, client)
		if len(topicClients) == 0 {
			delete(h.clients, topic)
		}
	}
	delete(client.topics, topic)
}

// Publish fans payload out to subscribers of topic and of TopicFleet, then
// mirrors it over Redis for other nodes. Publish never returns an error:
// a slow client is skipped and a Redis failure is only logged.
func (h *Hub) Publish(topic string, payload []byte) {
	h.deliver(topic, payload)
	if h.metrics != nil {
		h.metrics.Broadcasts.Inc()
	}

	if h.redis != nil {
		wire, _ := json.Marshal(relayEnvelope{Origin: h.id, Payload: payload})
		if err := h.redis.Publish(context.Background(), redisChannel(topic), wire).Err(); err != nil {
			log.Printf("redis publish error: %v", err)
			if h.metrics != nil {
				h.metrics.PublishErrs.Inc()
			}
		}
	}
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	targets := make(map[*Client]struct{}, len(h.clients[topic])+len(h.clients[TopicFleet]))
	for client := range h.clients[topic] {
		targets[client] = struct{}{}
	}
	if topic != TopicFleet {
		for client := range h.clients[TopicFleet] {
			targets[client] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for client := range targets {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "fleet:*:broadcast")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var env relayEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			continue
		}
		if env.Origin == h.id {
			continue
		}
		h.deliver(topicFromChannel(msg.Channel), env.Payload)
	}
}

func redisChannel(topic string) string {
	return "fleet:" + topic + ":broadcast"
}

func topicFromChannel(ch string) string {
	const prefix = "fleet:"
	const suffix = ":broadcast"
	if !strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) || len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
