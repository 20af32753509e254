// Package tasks holds the confirmable actions the bot defers behind a
// yes/no prompt.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/squire-bot/squire/internal/confirm"
	"github.com/squire-bot/squire/internal/guild"
)

// Provisioner creates guild structures. *discordgo.Session satisfies it.
type Provisioner interface {
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildChannelCreate(guildID, name string, ctype discordgo.ChannelType, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// SnapshotSource returns the current structure of a guild
type SnapshotSource interface {
	Snapshot(guildID string) (guild.Snapshot, error)
}

// SettingsSaver persists guild settings
type SettingsSaver interface {
	SaveGuildSettings(ctx context.Context, guildID string, settings guild.Settings) error
}

var (
	_ confirm.Task = (*SetupGuild)(nil)
	_ confirm.Task = (*ResetSettings)(nil)
	_ confirm.Task = (*ClearTournSettings)(nil)
)

// saveWith returns a commit that writes the settings of guildID through
// saver while the store holds the guild, or nil without a saver.
func saveWith(ctx context.Context, saver SettingsSaver, guildID string) guild.Commit {
	if saver == nil {
		return nil
	}
	return func(settings guild.Settings) error {
		if err := saver.SaveGuildSettings(ctx, guildID, settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		return nil
	}
}

// PlanSetup lists the structures SetupGuild would create for settings
func PlanSetup(settings guild.Settings, names guild.Names) []string {
	var plan []string
	if settings.JudgeRole == "" {
		plan = append(plan, fmt.Sprintf("role `%s`", names.JudgeRole))
	}
	if settings.TournAdminRole == "" {
		plan = append(plan, fmt.Sprintf("role `%s`", names.TournAdminRole))
	}
	if settings.MatchesCategory == "" {
		plan = append(plan, fmt.Sprintf("category `%s`", names.MatchesCategory))
	}
	if settings.PairingsChannel == "" {
		plan = append(plan, fmt.Sprintf("text channel `#%s`", names.PairingsChannel))
	}
	return plan
}

// SetupGuild creates whatever default roles and channels a guild is
// missing and points its settings at them
type SetupGuild struct {
	GuildID     string
	Store       *guild.Store
	Snapshots   SnapshotSource
	Provisioner Provisioner
	Saver       SettingsSaver
}

// Execute implements confirm.Task
func (t *SetupGuild) Execute(ctx context.Context, inv confirm.Invocation) error {
	snap, err := t.Snapshots.Snapshot(t.GuildID)
	if err != nil {
		return fmt.Errorf("failed to read guild structure: %w", err)
	}

	current, _, err := t.Store.HealWith(t.GuildID, snap, saveWith(ctx, t.Saver, t.GuildID))
	if err != nil {
		return err
	}
	names := t.Store.Names()
	created := guild.Settings{}
	var summary []string

	createRole := func(field *string, name string) error {
		role, err := t.Provisioner.GuildRoleCreate(t.GuildID, &discordgo.RoleParams{Name: name})
		if err != nil {
			return fmt.Errorf("failed to create role %s: %w", name, err)
		}
		*field = role.ID
		summary = append(summary, fmt.Sprintf("role `%s`", name))
		return nil
	}
	createChannel := func(field *string, name string, kind discordgo.ChannelType, label string) error {
		ch, err := t.Provisioner.GuildChannelCreate(t.GuildID, name, kind)
		if err != nil {
			return fmt.Errorf("failed to create %s %s: %w", label, name, err)
		}
		*field = ch.ID
		summary = append(summary, fmt.Sprintf("%s `%s`", label, name))
		return nil
	}

	if current.JudgeRole == "" {
		if err := createRole(&created.JudgeRole, names.JudgeRole); err != nil {
			return err
		}
	}
	if current.TournAdminRole == "" {
		if err := createRole(&created.TournAdminRole, names.TournAdminRole); err != nil {
			return err
		}
	}
	if current.MatchesCategory == "" {
		if err := createChannel(&created.MatchesCategory, names.MatchesCategory, discordgo.ChannelTypeGuildCategory, "category"); err != nil {
			return err
		}
	}
	if current.PairingsChannel == "" {
		if err := createChannel(&created.PairingsChannel, names.PairingsChannel, discordgo.ChannelTypeGuildText, "text channel"); err != nil {
			return err
		}
	}

	settings, err := t.Store.UpdateWith(t.GuildID, snap, func(s *guild.Settings) {
		fill := func(field *string, id string) {
			if *field == "" && id != "" {
				*field = id
			}
		}
		fill(&s.JudgeRole, created.JudgeRole)
		fill(&s.TournAdminRole, created.TournAdminRole)
		fill(&s.MatchesCategory, created.MatchesCategory)
		fill(&s.PairingsChannel, created.PairingsChannel)
	}, saveWith(ctx, t.Saver, t.GuildID))
	if err != nil {
		return err
	}

	slog.Info("Guild set up", "guildID", t.GuildID, "created", len(summary), "configured", settings.IsConfigured())

	if len(summary) == 0 {
		return inv.Reply(ctx, "This server already has everything it needs to run tournaments.")
	}
	return inv.Reply(ctx, "Setup complete. Created: "+strings.Join(summary, ", ")+".")
}

// ResetSettings rebuilds a guild's settings from its current structure
type ResetSettings struct {
	GuildID   string
	Store     *guild.Store
	Snapshots SnapshotSource
	Saver     SettingsSaver
}

// Execute implements confirm.Task
func (t *ResetSettings) Execute(ctx context.Context, inv confirm.Invocation) error {
	snap, err := t.Snapshots.Snapshot(t.GuildID)
	if err != nil {
		return fmt.Errorf("failed to read guild structure: %w", err)
	}

	settings, err := t.Store.ResetWith(t.GuildID, snap, saveWith(ctx, t.Saver, t.GuildID))
	if err != nil {
		return err
	}

	slog.Info("Guild settings reset", "guildID", t.GuildID, "configured", settings.IsConfigured())
	return inv.Reply(ctx, "Server settings have been reset to their defaults.")
}

// ClearTournSettings drops every free-form tournament setting of a guild
type ClearTournSettings struct {
	GuildID   string
	Store     *guild.Store
	Snapshots SnapshotSource
	Saver     SettingsSaver
}

// Execute implements confirm.Task
func (t *ClearTournSettings) Execute(ctx context.Context, inv confirm.Invocation) error {
	snap, err := t.Snapshots.Snapshot(t.GuildID)
	if err != nil {
		return fmt.Errorf("failed to read guild structure: %w", err)
	}

	removed := 0
	if _, err := t.Store.UpdateWith(t.GuildID, snap, func(s *guild.Settings) {
		removed = len(s.TournSettings)
		s.TournSettings = make(map[string]string)
	}, saveWith(ctx, t.Saver, t.GuildID)); err != nil {
		return err
	}

	return inv.Reply(ctx, fmt.Sprintf("Cleared %d tournament setting(s).", removed))
}
