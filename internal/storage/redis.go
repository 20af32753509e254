package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/squire-bot/squire/internal/guild"
)

const defaultRedisNamespace = "squire"

// RedisRepository stores guild settings as JSON documents in Redis.
// Keys are namespaced: {namespace}:guild_settings:{guild_id}, with the
// set {namespace}:guild_settings indexing every known guild.
type RedisRepository struct {
	rdb       *redis.Client
	namespace string
}

var _ SettingsRepository = (*RedisRepository)(nil)

// NewRedisRepository connects to Redis and verifies the connection
func NewRedisRepository(ctx context.Context, opts *redis.Options, namespace string) (*RedisRepository, error) {
	if namespace == "" {
		namespace = defaultRedisNamespace
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRepository{rdb: rdb, namespace: namespace}, nil
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.rdb.Close()
}

func (r *RedisRepository) indexKey() string {
	return r.namespace + ":guild_settings"
}

func (r *RedisRepository) settingsKey(guildID string) string {
	return r.indexKey() + ":" + guildID
}

// SaveGuildSettings creates or updates the settings of a guild
func (r *RedisRepository) SaveGuildSettings(ctx context.Context, guildID string, s guild.Settings) error {
	now := time.Now().UTC()
	record := GuildSettings{
		GuildID:   guildID,
		Settings:  s,
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := r.GetGuildSettings(ctx, guildID)
	switch {
	case err == nil:
		record.CreatedAt = existing.CreatedAt
	case !errors.Is(err, ErrNotFound):
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode guild settings: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.settingsKey(guildID), data, 0)
	pipe.SAdd(ctx, r.indexKey(), guildID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save guild settings to redis: %w", err)
	}
	return nil
}

// GetGuildSettings retrieves the settings of a guild
func (r *RedisRepository) GetGuildSettings(ctx context.Context, guildID string) (*GuildSettings, error) {
	data, err := r.rdb.Get(ctx, r.settingsKey(guildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guild settings from redis: %w", err)
	}

	gs := &GuildSettings{}
	if err := json.Unmarshal(data, gs); err != nil {
		return nil, fmt.Errorf("failed to decode guild settings for guild %s: %w", guildID, err)
	}
	if gs.Settings.TournSettings == nil {
		gs.Settings.TournSettings = make(map[string]string)
	}
	return gs, nil
}

// ListGuildSettings returns the settings of every indexed guild
func (r *RedisRepository) ListGuildSettings(ctx context.Context) ([]*GuildSettings, error) {
	ids, err := r.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds from redis: %w", err)
	}
	sort.Strings(ids)

	all := make([]*GuildSettings, 0, len(ids))
	for _, id := range ids {
		gs, err := r.GetGuildSettings(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		all = append(all, gs)
	}
	return all, nil
}
