package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/install-dispatch/internal/scheduling"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// DraftStore keeps in-progress scheduling drafts between requests.
type DraftStore interface {
	Save(ctx context.Context, draft scheduling.OrderDraft, ttl time.Duration) error
	Get(ctx context.Context, id string) (scheduling.OrderDraft, error)
	Delete(ctx context.Context, id string) error
}

type redisDraftStore struct {
	client *redis.Client
}

// NewDraftStore stores drafts as JSON under draft:<id>.
func NewDraftStore(client *redis.Client) DraftStore {
	return &redisDraftStore{client: client}
}

func draftKey(id string) string {
	return "draft:" + id
}

func (s *redisDraftStore) Save(ctx context.Context, draft scheduling.OrderDraft, ttl time.Duration) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", draft.ID, err)
	}
	if err := s.client.Set(ctx, draftKey(draft.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set draft %s: %w", draft.ID, err)
	}
	return nil
}

func (s *redisDraftStore) Get(ctx context.Context, id string) (scheduling.OrderDraft, error) {
	raw, err := s.client.Get(ctx, draftKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return scheduling.OrderDraft{}, ErrCacheMiss
		}
		return scheduling.OrderDraft{}, fmt.Errorf("redis get draft %s: %w", id, err)
	}
	var draft scheduling.OrderDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return scheduling.OrderDraft{}, fmt.Errorf("unmarshal draft %s: %w", id, err)
	}
	return draft, nil
}

func (s *redisDraftStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, draftKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete draft %s: %w", id, err)
	}
	return nil
}
