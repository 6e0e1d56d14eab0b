package rendezvous

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/rohankatakam/graphrag/internal/errors"
)

// RedisStore implements Store as a Redis hash per query: HSET provides the
// per-sub_key atomicity the merge contract requires without a separate
// locking scheme, grounded on the teacher's internal/cache/redis_client.go
// connection and error-wrapping style.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, addr, password string, logger *slog.Logger) (*RedisStore, error) {
	if addr == "" {
		return nil, apperrors.ConfigErrorf("rendezvous store address missing")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperrors.TransientUpstreamErrf(err, "failed to connect to rendezvous store at %s", addr)
	}

	logger.Info("rendezvous store connected", "addr", addr)
	return &RedisStore{client: client, logger: logger}, nil
}

func documentKey(queryKey string) string {
	return fmt.Sprintf("graphrag:rendezvous:%s", queryKey)
}

func (s *RedisStore) Put(ctx context.Context, queryKey, subKey string, value PartialAnswer) error {
	data, err := json.Marshal(value)
	if err != nil {
		return apperrors.MalformedRecordf(err, "failed to marshal partial answer for %s/%s", queryKey, subKey)
	}

	if err := s.client.HSet(ctx, documentKey(queryKey), subKey, data).Err(); err != nil {
		return apperrors.TransientUpstreamErrf(err, "rendezvous put failed for %s/%s", queryKey, subKey)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, queryKey string) (map[string]PartialAnswer, error) {
	raw, err := s.client.HGetAll(ctx, documentKey(queryKey)).Result()
	if err != nil {
		return nil, apperrors.TransientUpstreamErrf(err, "rendezvous get failed for %s", queryKey)
	}

	out := make(map[string]PartialAnswer, len(raw))
	for subKey, data := range raw {
		var pa PartialAnswer
		if err := json.Unmarshal([]byte(data), &pa); err != nil {
			s.logger.Warn("rendezvous document entry failed to parse, skipping", "query_key", queryKey, "sub_key", subKey, "error", err)
			continue
		}
		out[subKey] = pa
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, queryKey string) error {
	if err := s.client.Del(ctx, documentKey(queryKey)).Err(); err != nil {
		return apperrors.TransientUpstreamErrf(err, "rendezvous delete failed for %s", queryKey)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
