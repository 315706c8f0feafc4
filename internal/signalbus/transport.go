package signalbus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// ErrNoMessage is returned by Receive when nothing arrived within the poll
// interval. The receive loop treats it as a normal would-block result.
var ErrNoMessage = errors.New("no message available")

// Transport is a byte-message source the bus polls. Implementations must
// make Receive return ErrNoMessage on a poll timeout rather than blocking
// indefinitely.
type Transport interface {
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// RedisTransport subscribes to Redis pub/sub channels and exposes them as a
// polled byte-message source.
type RedisTransport struct {
	client *goredis.Client
	pubsub *goredis.PubSub
}

// RedisConfig configures the signal transport.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channels []string
}

// NewRedisTransport connects, pings, and subscribes to the given channels.
func NewRedisTransport(cfg RedisConfig) (*RedisTransport, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	pubsub := client.Subscribe(context.Background(), cfg.Channels...)
	log.Printf("[signalbus] subscribed to %d channels on %s", len(cfg.Channels), cfg.Addr)

	return &RedisTransport{client: client, pubsub: pubsub}, nil
}

// Client returns the underlying Redis client for health checks.
func (t *RedisTransport) Client() *goredis.Client { return t.client }

// Receive waits up to timeout for the next payload.
func (t *RedisTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	raw, err := t.pubsub.ReceiveTimeout(ctx, timeout)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrNoMessage
		}
		return nil, err
	}

	switch msg := raw.(type) {
	case *goredis.Message:
		return []byte(msg.Payload), nil
	case *goredis.Subscription:
		log.Printf("[signalbus] subscription event: %s %s", msg.Kind, msg.Channel)
		return nil, ErrNoMessage
	default:
		// Pongs and other control frames carry no payload.
		return nil, ErrNoMessage
	}
}

// Close tears down the subscription and the client.
func (t *RedisTransport) Close() error {
	if err := t.pubsub.Close(); err != nil {
		t.client.Close()
		return err
	}
	return t.client.Close()
}
