package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

// TypingRepository keeps short-lived "is typing" markers. Entries vanish on
// their own once ttl passes without a refresh.
type TypingRepository interface {
	Set(ctx context.Context, st model.TypingStatus, ttl time.Duration) error
	Clear(ctx context.Context, uid string) error
	List(ctx context.Context) ([]model.TypingStatus, error)
}

const typingKeyPrefix = "typing:"

type redisTypingRepository struct {
	client *redis.Client
}

func NewRedisTypingRepository(client *redis.Client) TypingRepository {
	return &redisTypingRepository{client: client}
}

func (r *redisTypingRepository) Set(ctx context.Context, st model.TypingStatus, ttl time.Duration) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, typingKeyPrefix+st.UID, payload, ttl).Err()
}

func (r *redisTypingRepository) Clear(ctx context.Context, uid string) error {
	return r.client.Del(ctx, typingKeyPrefix+uid).Err()
}

func (r *redisTypingRepository) List(ctx context.Context) ([]model.TypingStatus, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, typingKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.TypingStatus, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var st model.TypingStatus
		if err := json.Unmarshal([]byte(s), &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

type memoryTypingRepository struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]typingEntry
}

type typingEntry struct {
	status  model.TypingStatus
	expires time.Time
}

// NewMemoryTypingRepository is used when no Redis is configured.
func NewMemoryTypingRepository(now func() time.Time) TypingRepository {
	if now == nil {
		now = time.Now
	}
	return &memoryTypingRepository{now: now, entries: make(map[string]typingEntry)}
}

func (r *memoryTypingRepository) Set(_ context.Context, st model.TypingStatus, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[st.UID] = typingEntry{status: st, expires: r.now().Add(ttl)}
	return nil
}

func (r *memoryTypingRepository) Clear(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, uid)
	return nil
}

func (r *memoryTypingRepository) List(_ context.Context) ([]model.TypingStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]model.TypingStatus, 0, len(r.entries))
	for uid, e := range r.entries {
		if !now.Before(e.expires) {
			delete(r.entries, uid)
			continue
		}
		out = append(out, e.status)
	}
	return out, nil
}
