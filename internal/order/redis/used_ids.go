package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"ms-service-orders/internal/config"
	"ms-service-orders/internal/logger"
)

// UsedIDs keeps the issued order ids in one Redis set shared by every process.
type UsedIDs struct {
	Client *redis.Client
	Key    string
	Logger *logger.Logger
}

func NewUsedIDs(client *redis.Client, key string, log *logger.Logger) *UsedIDs {
	return &UsedIDs{Client: client, Key: key, Logger: log}
}

// Connect opens a client and checks it answers.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func (r *UsedIDs) LoadUsedIDs(ctx context.Context) ([]string, error) {
	ids, err := r.Client.SMembers(ctx, r.Key).Result()
	if err != nil {
		return nil, fmt.Errorf("read used order ids: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveUsedIDs replaces the set in one MULTI/EXEC.
func (r *UsedIDs) SaveUsedIDs(ctx context.Context, ids []string) error {
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.Key)
		if len(ids) > 0 {
			members := make([]interface{}, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, r.Key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace used order ids: %w", err)
	}
	r.Logger.Debug("REDIS", fmt.Sprintf("Used order id set %s replaced with %d ids", r.Key, len(ids)))
	return nil
}

// Claim adds id with SADD, which reports 1 only to the caller that actually inserted it.
func (r *UsedIDs) Claim(ctx context.Context, id string) (bool, error) {
	added, err := r.Client.SAdd(ctx, r.Key, id).Result()
	if err != nil {
		return false, fmt.Errorf("claim order id %s: %w", id, err)
	}
	return added == 1, nil
}
