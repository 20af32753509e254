package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/squire-bot/squire/internal/confirm"
	"github.com/squire-bot/squire/internal/guild"
	"github.com/squire-bot/squire/internal/sweeper"
)

// messageReplier answers a Discord message in its channel
type messageReplier struct {
	session   *discordgo.Session
	channelID string
	reference *discordgo.MessageReference
}

func (r *messageReplier) Reply(_ context.Context, content string) error {
	_, err := r.session.ChannelMessageSendReply(r.channelID, content, r.reference)
	if err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

var errGuildUnavailable = errors.New("guild is unavailable")

// stateSnapshots reads guild structure from the session state cache,
// falling back to the REST API for guilds not cached yet
type stateSnapshots struct {
	session *discordgo.Session
}

func (s *stateSnapshots) Snapshot(guildID string) (guild.Snapshot, error) {
	g, err := s.session.State.Guild(guildID)
	if err == nil {
		// Ready caches guilds as stubs without roles or channels until
		// their GuildCreate arrives.
		if g.Unavailable {
			return guild.Snapshot{}, fmt.Errorf("guild %s: %w", guildID, errGuildUnavailable)
		}
		return guild.SnapshotFromDiscord(g), nil
	}
	if !errors.Is(err, discordgo.ErrStateNotFound) {
		return guild.Snapshot{}, err
	}

	g, err = s.session.Guild(guildID)
	if err != nil {
		return guild.Snapshot{}, fmt.Errorf("failed to fetch guild: %w", err)
	}
	channels, err := s.session.GuildChannels(guildID)
	if err != nil {
		return guild.Snapshot{}, fmt.Errorf("failed to fetch guild channels: %w", err)
	}
	g.Channels = channels
	return guild.SnapshotFromDiscord(g), nil
}

// expiryNotifier tells users in the origin channel that their request timed out
type expiryNotifier struct {
	session *discordgo.Session
}

var _ sweeper.Notifier = (*expiryNotifier)(nil)

func (n *expiryNotifier) NotifyExpired(_ context.Context, entry confirm.Entry) error {
	if entry.ChannelID == "" {
		return nil
	}
	_, err := n.session.ChannelMessageSend(entry.ChannelID, fmt.Sprintf("<@%s>, %s", entry.UserID, sweeper.MsgExpired))
	return err
}

const configurePermissions = discordgo.PermissionManageRoles | discordgo.PermissionManageChannels

// canManageGuild reports whether the author of m may manage the roles and
// channels of its guild. Roles come from the member attached to the
// message, since the state does not cache message authors.
func canManageGuild(state *discordgo.State, m *discordgo.Message) bool {
	if state == nil || m.Member == nil {
		return false
	}
	perms, err := state.MessagePermissions(m)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0 || perms&configurePermissions == configurePermissions
}
