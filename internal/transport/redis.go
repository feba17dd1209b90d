package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"plot-go/internal/plot"
)

// ChannelPrefix is prepended, after the key prefix, to the room name to
// form the pub/sub channel.
const ChannelPrefix = "sync:"

type redisEnvelope struct {
	Sender string `cbor:"1,keyasint"`
	Delta  []byte `cbor:"2,keyasint"`
}

// RedisTransport broadcasts deltas over a redis pub/sub channel. Every
// subscriber, including the sender, receives each publish, so messages
// carry the sender id and a transport drops its own.
type RedisTransport struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	channel string
	sender  string
	inbox   *Inbox
	logger  plot.Logger
	timeout time.Duration
	owned   bool

	closeOnce sync.Once
	done      chan struct{}
}

// DialRedisTransport connects to redisURL and subscribes to the room.
func DialRedisTransport(ctx context.Context, redisURL, prefix, room, sender string, logger plot.Logger) (*RedisTransport, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	t, err := NewRedisTransport(ctx, client, prefix, room, sender, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	t.owned = true
	return t, nil
}

// NewRedisTransport subscribes an existing client to the room. The
// subscription is confirmed before it returns, so nothing published after
// that is missed.
func NewRedisTransport(ctx context.Context, client *redis.Client, prefix, room, sender string, logger plot.Logger) (*RedisTransport, error) {
	if logger == nil {
		logger = plot.NewNopLogger()
	}
	channel := prefix + ChannelPrefix + room
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	t := &RedisTransport{
		client:  client,
		pubsub:  pubsub,
		channel: channel,
		sender:  sender,
		inbox:   NewInbox(),
		logger:  logger,
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *RedisTransport) readLoop() {
	defer close(t.done)
	for msg := range t.pubsub.Channel() {
		var env redisEnvelope
		if err := cbor.Unmarshal([]byte(msg.Payload), &env); err != nil {
			t.logger.Warn("dropping undecodable message", "channel", t.channel, "error", err)
			continue
		}
		if env.Sender == t.sender {
			continue
		}
		t.inbox.Deliver(env.Delta)
	}
}

func (t *RedisTransport) Send(delta []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	data, err := cbor.Marshal(redisEnvelope{Sender: t.sender, Delta: delta})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", t.channel, err)
	}
	return nil
}

func (t *RedisTransport) OnReceive(handler func([]byte)) {
	t.inbox.OnReceive(handler)
}

// Close unsubscribes. A client passed to NewRedisTransport is left open
// for its owner to close.
func (t *RedisTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.inbox.Close()
		err = t.pubsub.Close()
		<-t.done
		if t.owned {
			if cerr := t.client.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

var _ plot.Transport = (*RedisTransport)(nil)
