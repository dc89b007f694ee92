package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/redis/go-redis/v9"
)

const defaultMailboxPrefix = "billing:mailbox"

// RedisSender stores messages in Redis instead of delivering them. It backs
// the development mailbox and end-to-end checks.
type RedisSender struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  utils.Clock
}

func NewRedisSender(client redis.UniversalClient, ttl time.Duration) *RedisSender {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSender{client: client, prefix: defaultMailboxPrefix, ttl: ttl, clock: utils.SystemClock{}}
}

func (s *RedisSender) key(recipient string) string {
	return fmt.Sprintf("%s:%s", s.prefix, recipient)
}

// Send appends the message to each recipient's list and refreshes its TTL.
func (s *RedisSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(struct {
		Message
		StoredAt time.Time `json:"stored_at"`
	}{msg, s.clock.Now()})
	if err != nil {
		return &utils.DispatchError{To: msg.To, Err: err}
	}
	pipe := s.client.TxPipeline()
	for _, to := range msg.To {
		pipe.RPush(ctx, s.key(to), payload)
		pipe.Expire(ctx, s.key(to), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &utils.DispatchError{To: msg.To, Err: err}
	}
	return nil
}

// Mailbox returns what was stored for one recipient, oldest first.
func (s *RedisSender) Mailbox(ctx context.Context, recipient string) ([]Message, error) {
	raw, err := s.client.LRange(ctx, s.key(recipient), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
