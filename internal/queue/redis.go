// Package queue is a reliable Redis list queue for optimization requests.
// A received message stays in a processing list until it is acknowledged,
// so a crashed worker's message can be requeued.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Receive when no message arrived in time.
var ErrEmpty = errors.New("queue: empty")

// ErrLeaseLost is returned by Ack and Extend when the message is no longer
// in the processing list, usually because it was requeued.
var ErrLeaseLost = errors.New("queue: lease lost")

// DefaultMaxDeliveries bounds how often a message is handed out before it is
// moved to the dead list.
const DefaultMaxDeliveries = 3

type Message struct {
	ID         string    `json:"id"`
	Body       []byte    `json:"body"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	// Deliveries counts the previous leases that expired without an ack.
	Deliveries int `json:"deliveries,omitempty"`

	raw string
}

type Redis struct {
	client *redis.Client
	name   string
	owned  bool
	now    func() time.Time

	// MaxDeliveries is the number of leases a message gets. Requeue moves it
	// to the dead list once they are used up; 0 means DefaultMaxDeliveries.
	MaxDeliveries int
}

// NewRedis dials redisURL and uses name as the key prefix.
func NewRedis(redisURL, name string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	q := NewRedisFromClient(redis.NewClient(opts), name)
	q.owned = true
	return q, nil
}

// NewRedisFromClient shares an existing client; Close leaves it open.
func NewRedisFromClient(c *redis.Client, name string) *Redis {
	return &Redis{client: c, name: name, now: time.Now}
}

func (q *Redis) pending() string    { return q.name + ":pending" }
func (q *Redis) processing() string { return q.name + ":processing" }
func (q *Redis) leases() string     { return q.name + ":leases" }
func (q *Redis) dead() string       { return q.name + ":dead" }

func (q *Redis) maxDeliveries() int {
	if q.MaxDeliveries > 0 {
		return q.MaxDeliveries
	}
	return DefaultMaxDeliveries
}

// Send enqueues body and returns the message id.
func (q *Redis) Send(ctx context.Context, body []byte) (string, error) {
	msg := Message{ID: uuid.NewString(), Body: body, EnqueuedAt: q.now().UTC()}
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, q.pending(), raw).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue: %w", err)
	}
	return msg.ID, nil
}

// Receive moves the oldest pending message to the processing list. A wait
// of zero polls once; otherwise it blocks up to wait.
func (q *Redis) Receive(ctx context.Context, wait time.Duration) (Message, error) {
	var raw string
	var err error
	if wait > 0 {
		raw, err = q.client.BLMove(ctx, q.pending(), q.processing(), "RIGHT", "LEFT", wait).Result()
	} else {
		raw, err = q.client.LMove(ctx, q.pending(), q.processing(), "RIGHT", "LEFT").Result()
	}
	if errors.Is(err, redis.Nil) {
		return Message{}, ErrEmpty
	}
	if err != nil {
		return Message{}, fmt.Errorf("failed to receive: %w", err)
	}
	if err := q.client.HSet(ctx, q.leases(), raw, q.now().UnixMilli()).Err(); err != nil {
		return Message{}, fmt.Errorf("failed to lease: %w", err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Keep undecodable payloads visible to the caller as the body.
		msg = Message{Body: []byte(raw)}
	}
	msg.raw = raw
	return msg, nil
}

// Ack drops a received message for good. It returns ErrLeaseLost when the
// message had already left the processing list.
func (q *Redis) Ack(ctx context.Context, msg Message) error {
	pipe := q.client.TxPipeline()
	removed := pipe.LRem(ctx, q.processing(), 1, msg.raw)
	pipe.HDel(ctx, q.leases(), msg.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack %s: %w", msg.ID, err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("ack %s: %w", msg.ID, ErrLeaseLost)
	}
	return nil
}

// Extend restamps the lease of a message still being processed so Requeue
// leaves it alone.
func (q *Redis) Extend(ctx context.Context, msg Message) error {
	ok, err := q.client.HExists(ctx, q.leases(), msg.raw).Result()
	if err != nil {
		return fmt.Errorf("failed to extend %s: %w", msg.ID, err)
	}
	if !ok {
		return fmt.Errorf("extend %s: %w", msg.ID, ErrLeaseLost)
	}
	if err := q.client.HSet(ctx, q.leases(), msg.raw, q.now().UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to extend %s: %w", msg.ID, err)
	}
	return nil
}

// Requeue moves messages received more than olderThan ago back to pending
// with their delivery count raised, or to the dead list once MaxDeliveries
// leases have expired. It returns how many went back to pending.
func (q *Redis) Requeue(ctx context.Context, olderThan time.Duration) (int, error) {
	items, err := q.client.LRange(ctx, q.processing(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list processing: %w", err)
	}
	cutoff := q.now().Add(-olderThan).UnixMilli()
	moved := 0
	for _, raw := range items {
		since, err := q.client.HGet(ctx, q.leases(), raw).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return moved, err
		}
		if ms, perr := strconv.ParseInt(since, 10, 64); perr == nil && ms > cutoff {
			continue
		}
		target, next := q.dead(), raw
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err == nil {
			msg.Deliveries++
			if msg.Deliveries < q.maxDeliveries() {
				b, err := json.Marshal(msg)
				if err != nil {
					return moved, err
				}
				target, next = q.pending(), string(b)
			}
		}
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processing(), 1, raw)
		pipe.HDel(ctx, q.leases(), raw)
		pipe.RPush(ctx, target, next)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, fmt.Errorf("failed to requeue: %w", err)
		}
		if target == q.pending() {
			moved++
		}
	}
	return moved, nil
}

// Dead returns the number of messages that used up their deliveries.
func (q *Redis) Dead(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dead()).Result()
}

// Len reports pending and processing counts.
func (q *Redis) Len(ctx context.Context) (pending, processing int64, err error) {
	if pending, err = q.client.LLen(ctx, q.pending()).Result(); err != nil {
		return 0, 0, err
	}
	processing, err = q.client.LLen(ctx, q.processing()).Result()
	return pending, processing, err
}

func (q *Redis) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Redis) Close() error {
	if !q.owned {
		return nil
	}
	return q.client.Close()
}
