package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type cachedRecord struct {
	Version   int64           `json:"v"`
	UpdatedAt time.Time       `json:"t"`
	Data      json.RawMessage `json:"d"`
}

// CachedStore is a Redis read-through cache in front of another store. Single
// reads are cached; lists and anything inside a transaction go to the inner
// store. Keys touched by a write are evicted after it succeeds.
type CachedStore struct {
	inner  Store
	client redis.UniversalClient
	ttl    time.Duration
	logger *logrus.Logger
}

func NewCachedStore(inner Store, client redis.UniversalClient, ttl time.Duration, logger *logrus.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = utils.GetCacheLifespan()
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *CachedStore) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{"field": "CachedStore"}).Warn(msg + ": " + err.Error())
	}
}

func (c *CachedStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	key := utils.CacheKey(string(kind), id)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached cachedRecord
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			return &Record{Kind: kind, ID: id, Version: cached.Version, Data: []byte(cached.Data), UpdatedAt: cached.UpdatedAt}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.warn("cache read failed", err)
	}

	rec, err := c.inner.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(cachedRecord{Version: rec.Version, UpdatedAt: rec.UpdatedAt, Data: json.RawMessage(rec.Data)})
	if err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.warn("cache write failed", err)
		}
	}
	return rec, nil
}

func (c *CachedStore) List(ctx context.Context, kind Kind) ([]*Record, error) {
	return c.inner.List(ctx, kind)
}

func (c *CachedStore) evict(ctx context.Context, keys ...recordKey) {
	if len(keys) == 0 {
		return
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, utils.CacheKey(string(k.kind), k.id))
	}
	if err := c.client.Del(ctx, names...).Err(); err != nil {
		c.warn("cache evict failed", err)
	}
}

func (c *CachedStore) Put(ctx context.Context, rec *Record) error {
	if err := c.inner.Put(ctx, rec); err != nil {
		return err
	}
	c.evict(ctx, recordKey{rec.Kind, rec.ID})
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, kind Kind, id string) error {
	if err := c.inner.Delete(ctx, kind, id); err != nil {
		return err
	}
	c.evict(ctx, recordKey{kind, id})
	return nil
}

func (c *CachedStore) Tx(ctx context.Context, fn func(Store) error) error {
	var touched []recordKey
	err := c.inner.Tx(ctx, func(s Store) error {
		rec := &touchRecorder{Store: s}
		err := fn(rec)
		touched = rec.touched
		return err
	})
	if err != nil {
		return err
	}
	c.evict(ctx, touched...)
	return nil
}

// touchRecorder remembers which keys a transaction wrote.
type touchRecorder struct {
	Store
	touched []recordKey
}

func (t *touchRecorder) Put(ctx context.Context, rec *Record) error {
	if err := t.Store.Put(ctx, rec); err != nil {
		return err
	}
	t.touched = append(t.touched, recordKey{rec.Kind, rec.ID})
	return nil
}

func (t *touchRecorder) Delete(ctx context.Context, kind Kind, id string) error {
	if err := t.Store.Delete(ctx, kind, id); err != nil {
		return err
	}
	t.touched = append(t.touched, recordKey{kind, id})
	return nil
}

func (t *touchRecorder) Tx(ctx context.Context, fn func(Store) error) error {
	return t.Store.Tx(ctx, func(s Store) error {
		nested := &touchRecorder{Store: s}
		err := fn(nested)
		t.touched = append(t.touched, nested.touched...)
		return err
	})
}
