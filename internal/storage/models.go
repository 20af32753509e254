package storage

import (
	"context"
	"errors"
	"time"

	"github.com/squire-bot/squire/internal/guild"
)

// ErrNotFound is returned when a guild has no persisted settings
var ErrNotFound = errors.New("guild settings not found")

// GuildSettings is the persisted settings record of one guild
type GuildSettings struct {
	GuildID   string         `json:"guild_id"`
	Settings  guild.Settings `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SettingsRepository persists guild settings between restarts
type SettingsRepository interface {
	SaveGuildSettings(ctx context.Context, guildID string, settings guild.Settings) error
	GetGuildSettings(ctx context.Context, guildID string) (*GuildSettings, error)
	ListGuildSettings(ctx context.Context) ([]*GuildSettings, error)
	Close() error
}
