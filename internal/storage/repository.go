package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/squire-bot/squire/internal/guild"
	_ "modernc.org/sqlite"
)

// Repository stores guild settings in SQLite
type Repository struct {
	db *sql.DB
}

var _ SettingsRepository = (*Repository)(nil)

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(20) PRIMARY KEY,
			pairings_channel_id VARCHAR(20) NOT NULL DEFAULT '',
			judge_role_id VARCHAR(20) NOT NULL DEFAULT '',
			tourn_admin_role_id VARCHAR(20) NOT NULL DEFAULT '',
			matches_category_id VARCHAR(20) NOT NULL DEFAULT '',
			make_vc BOOLEAN NOT NULL DEFAULT 1,
			make_tc BOOLEAN NOT NULL DEFAULT 0,
			tourn_settings TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveGuildSettings creates or updates the settings of a guild
func (r *Repository) SaveGuildSettings(ctx context.Context, guildID string, s guild.Settings) error {
	tournSettings, err := json.Marshal(s.TournSettings)
	if err != nil {
		return fmt.Errorf("failed to encode tournament settings: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, pairings_channel_id, judge_role_id, tourn_admin_role_id,
			matches_category_id, make_vc, make_tc, tourn_settings, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			pairings_channel_id = excluded.pairings_channel_id,
			judge_role_id = excluded.judge_role_id,
			tourn_admin_role_id = excluded.tourn_admin_role_id,
			matches_category_id = excluded.matches_category_id,
			make_vc = excluded.make_vc,
			make_tc = excluded.make_tc,
			tourn_settings = excluded.tourn_settings,
			updated_at = excluded.updated_at`,
		guildID, s.PairingsChannel, s.JudgeRole, s.TournAdminRole, s.MatchesCategory,
		s.MakeVC, s.MakeTC, string(tournSettings), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save guild settings: %w", err)
	}
	return nil
}

const selectGuildSettings = `SELECT guild_id, pairings_channel_id, judge_role_id, tourn_admin_role_id,
	matches_category_id, make_vc, make_tc, tourn_settings, created_at, updated_at FROM guild_settings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuildSettings(row rowScanner) (*GuildSettings, error) {
	gs := &GuildSettings{}
	var tournSettings string
	err := row.Scan(
		&gs.GuildID,
		&gs.Settings.PairingsChannel,
		&gs.Settings.JudgeRole,
		&gs.Settings.TournAdminRole,
		&gs.Settings.MatchesCategory,
		&gs.Settings.MakeVC,
		&gs.Settings.MakeTC,
		&tournSettings,
		&gs.CreatedAt,
		&gs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	gs.Settings.TournSettings = make(map[string]string)
	if err := json.Unmarshal([]byte(tournSettings), &gs.Settings.TournSettings); err != nil {
		return nil, fmt.Errorf("failed to decode tournament settings for guild %s: %w", gs.GuildID, err)
	}
	return gs, nil
}

// GetGuildSettings retrieves the settings of a guild
func (r *Repository) GetGuildSettings(ctx context.Context, guildID string) (*GuildSettings, error) {
	row := r.db.QueryRowContext(ctx, selectGuildSettings+` WHERE guild_id = ?`, guildID)
	gs, err := scanGuildSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return gs, nil
}

// ListGuildSettings returns the settings of every guild
func (r *Repository) ListGuildSettings(ctx context.Context) ([]*GuildSettings, error) {
	rows, err := r.db.QueryContext(ctx, selectGuildSettings+` ORDER BY guild_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*GuildSettings
	for rows.Next() {
		gs, err := scanGuildSettings(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, gs)
	}

	return all, rows.Err()
}
