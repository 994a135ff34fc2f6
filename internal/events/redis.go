package events

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"routeopt/internal/metrics"
)

const channelPrefix = "optimization:"

// RedisPublisher publishes events over Redis pub/sub on the problem's
// channel and on the shared "all" channel.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	timeout time.Duration
	log     *zap.Logger
}

func NewRedisPublisher(url string, log *zap.Logger) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisPublisherFromClient(redis.NewClient(opt), log), nil
}

func NewRedisPublisherFromClient(rdb redis.UniversalClient, log *zap.Logger) *RedisPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, timeout: 2 * time.Second, log: log.Named("events.redis")}
}

// Channel is the pub/sub channel of a problem; All maps to the shared one.
func Channel(problemID string) string {
	if problemID == All {
		return channelPrefix + "all"
	}
	return channelPrefix + problemID
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	channels := []string{Channel(All)}
	if evt.ProblemID != "" {
		channels = append([]string{Channel(evt.ProblemID)}, channels...)
	}
	for _, c := range channels {
		if err := p.rdb.Publish(ctx, c, data).Err(); err != nil {
			metrics.EventsPublished.WithLabelValues(string(evt.Type), "redis", "error").Inc()
			return err
		}
	}
	metrics.EventsPublished.WithLabelValues(string(evt.Type), "redis", "ok").Inc()
	return nil
}

// Follow subscribes to a problem's channel until ctx ends. The returned
// channel is closed when the subscription stops.
func (p *RedisPublisher) Follow(ctx context.Context, problemID string) (<-chan Event, error) {
	ps := p.rdb.Subscribe(ctx, Channel(problemID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					p.log.Warn("dropping undecodable event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch, nil
}
