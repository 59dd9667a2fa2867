package stream

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "feed:"
	channelSuffix = ":broadcast"
)

// Hub fans topic messages out to websocket clients. With redis, every
// message goes through pubsub so that all instances deliver it once;
// without redis delivery is local.
type Hub struct {
	redis     *redis.Client
	logger    *slog.Logger
	clients   map[string]map[*Client]struct{}
	mu        sync.RWMutex
	ready     chan struct{}
	readyOnce sync.Once
	cancel    context.CancelFunc
}

type Client struct {
	Topic string
	Send  chan []byte
}

func NewHub(redisClient *redis.Client, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		redis:   redisClient,
		logger:  logger,
		clients: map[string]map[*Client]struct{}{},
		ready:   make(chan struct{}),
	}

	if redisClient == nil {
		close(h.ready)
		return h
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.subscribeRedis(ctx)
	return h
}

// Ready is closed once the hub receives messages from other instances.
// With redis down at startup it stays open until a subscription succeeds.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := topicClients[client]; !ok {
		return
	}
	delete(topicClients, client)
	if len(topicClients) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

// Broadcast never blocks on slow clients; a full buffer drops the message.
func (h *Hub) Broadcast(topic string, payload []byte) {
	if h.redis == nil {
		h.deliver(topic, payload)
		return
	}
	if err := h.redis.Publish(context.Background(), redisChannel(topic), payload).Err(); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", slog.String("topic", topic), slog.Any("error", err))
		h.deliver(topic, payload)
	}
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

var (
	subscribeBackoff    = 100 * time.Millisecond
	maxSubscribeBackoff = 5 * time.Second
)

// subscribeRedis retries the pattern subscription until it succeeds or
// ctx is done, then forwards messages until ctx is done.
func (h *Hub) subscribeRedis(ctx context.Context) {
	backoff := subscribeBackoff
	for {
		pubsub := h.redis.PSubscribe(ctx, channelPrefix+"*"+channelSuffix)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			h.logger.Warn("redis subscribe failed, retrying", slog.Duration("backoff", backoff), slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxSubscribeBackoff)
			continue
		}
		h.readyOnce.Do(func() { close(h.ready) })
		h.forward(ctx, pubsub)
		_ = pubsub.Close()
		return
	}
}

func (h *Hub) forward(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if topic := topicFromChannel(msg.Channel); topic != "" {
				h.deliver(topic, []byte(msg.Payload))
			}
		}
	}
}

func redisChannel(topic string) string {
	return channelPrefix + topic + channelSuffix
}

// topicFromChannel parses feed:{topic}:broadcast.
func topicFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
