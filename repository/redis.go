package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// commitScript applies a batch of CAS writes atomically. For write i,
// KEYS[2i-1] is the data hash and KEYS[2i] the version hash; ARGV carries
// (id, expected, newVersion, payload) per write, an empty payload deletes.
var commitScript = redis.NewScript(`
local n = #ARGV / 4
for i = 1, n do
  local vk = KEYS[i * 2]
  local id = ARGV[(i - 1) * 4 + 1]
  local expected = tonumber(ARGV[(i - 1) * 4 + 2])
  local current = tonumber(redis.call('HGET', vk, id) or '0')
  if current ~= expected then
    return 0
  end
end
for i = 1, n do
  local dk = KEYS[i * 2 - 1]
  local vk = KEYS[i * 2]
  local base = (i - 1) * 4
  local id = ARGV[base + 1]
  local payload = ARGV[base + 4]
  if payload == '' then
    redis.call('HDEL', dk, id)
    redis.call('HDEL', vk, id)
  else
    redis.call('HSET', dk, id, payload)
    redis.call('HSET', vk, id, ARGV[base + 3])
  end
end
return 1
`)

// redisEnvelope is the stored hash value.
type redisEnvelope struct {
	UpdatedAt time.Time       `json:"t"`
	Data      json.RawMessage `json:"d"`
}

// RedisStore keeps one data hash and one version hash per kind. Keys share a
// hash tag so a multi-kind commit stays in one slot.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ledger"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) dataKey(kind Kind) string {
	return "{" + r.prefix + "}:" + string(kind)
}

func (r *RedisStore) versionKey(kind Kind) string {
	return "{" + r.prefix + "}:" + string(kind) + ":version"
}

func (r *RedisStore) decode(kind Kind, id string, raw string, version string) (*Record, error) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, persistenceError("decode", kind, err)
	}
	v, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return nil, persistenceError("decode", kind, err)
	}
	return &Record{
		Kind:      kind,
		ID:        id,
		Version:   v,
		Data:      []byte(env.Data),
		UpdatedAt: env.UpdatedAt.UTC(),
	}, nil
}

func (r *RedisStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	pipe := r.client.Pipeline()
	dataCmd := pipe.HGet(ctx, r.dataKey(kind), id)
	versionCmd := pipe.HGet(ctx, r.versionKey(kind), id)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, persistenceError("get", kind, err)
	}
	raw, err := dataCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(kind, id)
	}
	if err != nil {
		return nil, persistenceError("get", kind, err)
	}
	version, err := versionCmd.Result()
	if err != nil {
		return nil, persistenceError("get", kind, err)
	}
	return r.decode(kind, id, raw, version)
}

func (r *RedisStore) List(ctx context.Context, kind Kind) ([]*Record, error) {
	pipe := r.client.Pipeline()
	dataCmd := pipe.HGetAll(ctx, r.dataKey(kind))
	versionCmd := pipe.HGetAll(ctx, r.versionKey(kind))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, persistenceError("list", kind, err)
	}
	versions := versionCmd.Val()
	out := make([]*Record, 0, len(dataCmd.Val()))
	for id, raw := range dataCmd.Val() {
		rec, err := r.decode(kind, id, raw, versions[id])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (r *RedisStore) Put(ctx context.Context, rec *Record) error {
	w := &stagedWrite{key: recordKey{rec.Kind, rec.ID}, rec: rec.clone(), expected: rec.Version}
	w.rec.Version = rec.Version + 1
	if err := r.commit(ctx, []*stagedWrite{w}); err != nil {
		return err
	}
	rec.Version = w.rec.Version
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, kind Kind, id string) error {
	rec, err := r.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	return r.commit(ctx, []*stagedWrite{{key: recordKey{kind, id}, expected: rec.Version}})
}

func (r *RedisStore) Tx(ctx context.Context, fn func(Store) error) error {
	staged := newStagedStore(r)
	if err := fn(staged); err != nil {
		return err
	}
	writes := staged.pending()
	if len(writes) == 0 {
		return nil
	}
	return r.commit(ctx, writes)
}

func (r *RedisStore) commit(ctx context.Context, writes []*stagedWrite) error {
	keys := make([]string, 0, len(writes)*2)
	args := make([]interface{}, 0, len(writes)*4)
	for _, w := range writes {
		keys = append(keys, r.dataKey(w.key.kind), r.versionKey(w.key.kind))
		payload := ""
		newVersion := int64(0)
		if w.rec != nil {
			data, err := json.Marshal(redisEnvelope{UpdatedAt: w.rec.UpdatedAt, Data: json.RawMessage(w.rec.Data)})
			if err != nil {
				return persistenceError("encode", w.key.kind, err)
			}
			payload = string(data)
			newVersion = w.rec.Version
		}
		args = append(args, w.key.id, w.expected, newVersion, payload)
	}
	ok, err := commitScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return persistenceError("commit", writes[0].key.kind, err)
	}
	if ok != 1 {
		return conflict(writes[0].key.kind, writes[0].key.id)
	}
	return nil
}
