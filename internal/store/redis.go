package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the client shared by the event queue and the rate limiter. Every
// key it hands out lives under Namespace.
type Redis struct {
	Client    *redis.Client
	Namespace string
}

const defaultNamespace = "geoattend"

// NewRedis accepts host:port or a redis:// URL.
func NewRedis(addr string) (*Redis, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return &Redis{Client: redis.NewClient(opts), Namespace: defaultNamespace}, nil
}

// Key joins parts under the namespace, e.g. Key("events") is "geoattend:events".
func (r *Redis) Key(parts ...string) string {
	return strings.Join(append([]string{r.Namespace}, parts...), ":")
}

// Healthy pings with the caller's deadline.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
