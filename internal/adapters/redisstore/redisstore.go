// Package redisstore keeps drafts in Redis, one JSON value per identity.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/model"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "pulse:"

// Option applies a configuration option to Drafts.
type Option func(*Drafts)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(d *Drafts) {
		d.prefix = prefix
	}
}

// Drafts implements draft.Persistence on Redis strings. Keys never expire.
type Drafts struct {
	client *redis.Client
	prefix string
}

var _ draft.Persistence = (*Drafts)(nil)

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// New creates a draft backend over client.
func New(client *redis.Client, opts ...Option) *Drafts {
	d := &Drafts{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Key returns the Redis key for id.
func (d *Drafts) Key(id model.Identity) string {
	return d.prefix + "draft:" + id.SubjectKey + ":" + id.Period.String()
}

// Upsert implements draft.Persistence.
func (d *Drafts) Upsert(ctx context.Context, p draft.Payload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := d.client.Set(ctx, d.Key(p.Identity), b, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Fetch implements draft.Persistence.
func (d *Drafts) Fetch(ctx context.Context, id model.Identity) (draft.Payload, bool, error) {
	b, err := d.client.Get(ctx, d.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return draft.Payload{}, false, nil
	}
	if err != nil {
		return draft.Payload{}, false, fmt.Errorf("redis get: %w", err)
	}
	var p draft.Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return draft.Payload{}, false, fmt.Errorf("decode draft: %w", err)
	}
	p.Identity = id
	return p, true, nil
}

// Delete implements draft.Persistence.
func (d *Drafts) Delete(ctx context.Context, id model.Identity) error {
	if err := d.client.Del(ctx, d.Key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
