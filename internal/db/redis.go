package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/models"
)

// DefaultUpdateChannel is where lifecycle updates are published when no channel is
// configured.
const DefaultUpdateChannel = "flag_updates"

// inboxLimit bounds each student's notification inbox.
const inboxLimit = 50

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// FlagUpdate is the message published whenever a flag changes state.
type FlagUpdate struct {
	FlagID  int       `json:"flagId"`
	Action  string    `json:"action"`
	Status  string    `json:"status"`
	Version int       `json:"version"`
	ActorID int       `json:"actorId,omitempty"`
	At      time.Time `json:"at"`
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// PublishFlagUpdate broadcasts u on channel.
func (r *RedisStore) PublishFlagUpdate(ctx context.Context, channel string, u FlagUpdate) error {
	if channel == "" {
		channel = DefaultUpdateChannel
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal flag update: %w", err)
	}
	return r.Client.Publish(ctx, channel, payload).Err()
}

// SubscribeFlagUpdates delivers updates published on channel until ctx is done.
// Malformed messages are logged and skipped. The returned channel is closed when
// the subscription ends.
func (r *RedisStore) SubscribeFlagUpdates(ctx context.Context, channel string, logger *zap.Logger) (<-chan FlagUpdate, error) {
	if channel == "" {
		channel = DefaultUpdateChannel
	}
	sub := r.Client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	out := make(chan FlagUpdate)
	go func() {
		defer close(out)
		defer func() {
			_ = sub.Close()
		}()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var u FlagUpdate
				if err := json.Unmarshal([]byte(m.Payload), &u); err != nil {
					logger.Warn("skipping malformed flag update", zap.Error(err))
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func inboxKey(userID int) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

// PushNotification prepends n to the student's inbox and trims it to the most
// recent entries.
func (r *RedisStore) PushNotification(ctx context.Context, n models.StudentNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	key := inboxKey(n.UserID)
	_, err = r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, payload)
		p.LTrim(ctx, key, 0, inboxLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

// RecentNotifications returns up to limit inbox entries, newest first.
func (r *RedisStore) RecentNotifications(ctx context.Context, userID, limit int) ([]models.StudentNotification, error) {
	if limit <= 0 || limit > inboxLimit {
		limit = inboxLimit
	}
	vals, err := r.Client.LRange(ctx, inboxKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}
	out := make([]models.StudentNotification, 0, len(vals))
	for _, v := range vals {
		var n models.StudentNotification
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			zap.L().Warn("skipping malformed notification", zap.Int("user_id", userID), zap.Error(err))
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
