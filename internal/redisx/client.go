package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pantypost/order-sync/internal/poll"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// SignalStore keeps the "poll aggressively" flag; it expires on its own if nobody
// concludes a poll for it.
type SignalStore struct {
	RDB redis.Cmdable
	TTL time.Duration
}

var _ poll.SignalStore = (*SignalStore)(nil)

func (s *SignalStore) Arm(ctx context.Context, sig poll.Signal) error {
	b, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = TTLPollSignal
	}
	return s.RDB.Set(ctx, fmt.Sprintf(KeyPollSignal, sig.UserID), b, ttl).Err()
}

func (s *SignalStore) Peek(ctx context.Context, userID string) (poll.Signal, bool, error) {
	v, err := s.RDB.Get(ctx, fmt.Sprintf(KeyPollSignal, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return poll.Signal{}, false, nil
	}
	if err != nil {
		return poll.Signal{}, false, err
	}
	var sig poll.Signal
	if err := json.Unmarshal(v, &sig); err != nil {
		// a garbled flag would re-trigger forever; drop it
		_ = s.RDB.Del(ctx, fmt.Sprintf(KeyPollSignal, userID)).Err()
		return poll.Signal{}, false, fmt.Errorf("decode poll signal: %w", err)
	}
	return sig, true, nil
}

func (s *SignalStore) Clear(ctx context.Context, userID string) error {
	return s.RDB.Del(ctx, fmt.Sprintf(KeyPollSignal, userID)).Err()
}

// Deduper marks event ids with SETNX so a redelivered push event is processed once.
type Deduper struct {
	RDB     redis.Cmdable
	Service string
	TTL     time.Duration
}

func (d *Deduper) Seen(ctx context.Context, id string) (bool, error) {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = TTLDedup
	}
	set, err := d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}
