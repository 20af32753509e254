package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/squire-bot/squire/internal/confirm"
	"github.com/squire-bot/squire/internal/guild"
	"github.com/squire-bot/squire/internal/storage"
	"github.com/squire-bot/squire/internal/tasks"
)

// Replies owned by the command layer
const (
	msgOverwritten   = "You already had a command waiting for your confirmation. That request is being overwritten by this one."
	msgNotAllowed    = "You are not allowed to change this server's tournament settings."
	msgGuildOnly     = "That command only works inside a server."
	msgTaskFailed    = "Something went wrong while doing that: %v"
	msgAlreadySetup  = "This server is already set up to run tournaments. Use the settings commands to change what it uses."
	msgConfirmPrompt = "Are you sure? (%syes/%sno)"
)

// Message is an inbound chat command, independent of the platform
type Message struct {
	UserID      string
	GuildID     string
	ChannelID   string
	Content     string
	MemberRoles []string
	// Privileged is set when the platform grants the author the right to
	// manage the guild's roles and channels.
	Privileged bool
	Replier    confirm.Replier
}

func (m Message) invocation() confirm.Invocation {
	return confirm.Invocation{
		UserID:    m.UserID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Replier:   m.Replier,
	}
}

func (m Message) reply(ctx context.Context, content string) error {
	return m.invocation().Reply(ctx, content)
}

// Handler routes prefix commands to the confirmation registry and the
// guild settings store
type Handler struct {
	Prefix      string
	Registry    *confirm.Registry
	Store       *guild.Store
	Repo        storage.SettingsRepository
	Snapshots   tasks.SnapshotSource
	Provisioner tasks.Provisioner
}

type commandFunc func(h *Handler, ctx context.Context, msg Message, args []string) error

type command struct {
	run       commandFunc
	guildOnly bool
	admin     bool
}

var commands = map[string]command{
	"yes":                  {run: (*Handler).handleYes},
	"y":                    {run: (*Handler).handleYes},
	"no":                   {run: (*Handler).handleNo},
	"n":                    {run: (*Handler).handleNo},
	"settings":             {run: (*Handler).handleSettings, guildOnly: true},
	"setup":                {run: (*Handler).handleSetup, guildOnly: true, admin: true},
	"reset-settings":       {run: (*Handler).handleResetSettings, guildOnly: true, admin: true},
	"clear-tourn-settings": {run: (*Handler).handleClearTournSettings, guildOnly: true, admin: true},
	"set-pairings-channel": {run: (*Handler).handleSetPairingsChannel, guildOnly: true, admin: true},
	"set-matches-category": {run: (*Handler).handleSetMatchesCategory, guildOnly: true, admin: true},
	"set-judge-role":       {run: (*Handler).handleSetJudgeRole, guildOnly: true, admin: true},
	"set-admin-role":       {run: (*Handler).handleSetAdminRole, guildOnly: true, admin: true},
	"toggle-vc":            {run: (*Handler).handleToggleVC, guildOnly: true, admin: true},
	"toggle-tc":            {run: (*Handler).handleToggleTC, guildOnly: true, admin: true},
	"tourn-setting":        {run: (*Handler).handleTournSetting, guildOnly: true, admin: true},
}

// HandleMessage runs the command in msg, if any. Messages without the
// prefix or with an unknown command are ignored.
func (h *Handler) HandleMessage(ctx context.Context, msg Message) error {
	if !strings.HasPrefix(msg.Content, h.Prefix) {
		return nil
	}
	fields := strings.Fields(strings.TrimPrefix(msg.Content, h.Prefix))
	if len(fields) == 0 {
		return nil
	}

	name := strings.ToLower(fields[0])
	cmd, ok := commands[name]
	if !ok {
		return nil
	}

	slog.Debug("Received command", "command", name, "user", msg.UserID, "guild", msg.GuildID)

	if cmd.guildOnly && msg.GuildID == "" {
		return msg.reply(ctx, msgGuildOnly)
	}
	if cmd.admin && !h.canConfigure(msg) {
		return msg.reply(ctx, msgNotAllowed)
	}
	return cmd.run(h, ctx, msg, fields[1:])
}

// canConfigure allows platform admins and holders of the guild's
// tournament admin role
func (h *Handler) canConfigure(msg Message) bool {
	if msg.Privileged {
		return true
	}
	settings, ok := h.Store.Get(msg.GuildID)
	if !ok || settings.TournAdminRole == "" {
		return false
	}
	for _, role := range msg.MemberRoles {
		if role == settings.TournAdminRole {
			return true
		}
	}
	return false
}

func (h *Handler) handleYes(ctx context.Context, msg Message, _ []string) error {
	_, err := h.Registry.Confirm(ctx, msg.invocation())
	var taskErr *confirm.TaskError
	if errors.As(err, &taskErr) {
		slog.Error("Confirmed task failed", "user", msg.UserID, "description", taskErr.Description, "error", taskErr.Err)
		return msg.reply(ctx, fmt.Sprintf(msgTaskFailed, taskErr.Err))
	}
	return err
}

func (h *Handler) handleNo(ctx context.Context, msg Message, _ []string) error {
	_, err := h.Registry.Deny(ctx, msg.invocation())
	return err
}

// requestConfirmation registers task for the user and asks them to confirm
func (h *Handler) requestConfirmation(ctx context.Context, msg Message, task confirm.Task, description, prompt string) error {
	replaced := h.Registry.Register(msg.UserID, task,
		confirm.WithChannel(msg.ChannelID),
		confirm.WithDescription(description),
	)
	if replaced {
		if err := msg.reply(ctx, msgOverwritten); err != nil {
			return err
		}
	}
	return msg.reply(ctx, prompt+" "+fmt.Sprintf(msgConfirmPrompt, h.Prefix, h.Prefix))
}

// snapshot reads the guild structure and heals the stored settings
// against it, persisting any change
func (h *Handler) snapshot(ctx context.Context, guildID string) (guild.Snapshot, guild.Settings, error) {
	snap, err := h.Snapshots.Snapshot(guildID)
	if err != nil {
		return guild.Snapshot{}, guild.Settings{}, fmt.Errorf("failed to read guild %s: %w", guildID, err)
	}
	settings, _, err := h.Store.HealWith(guildID, snap, h.commit(ctx, guildID))
	return snap, settings, err
}

// commit persists settings of guildID while the store still holds the guild
func (h *Handler) commit(ctx context.Context, guildID string) guild.Commit {
	return func(settings guild.Settings) error {
		return h.persist(ctx, guildID, settings)
	}
}

func (h *Handler) persist(ctx context.Context, guildID string, settings guild.Settings) error {
	if h.Repo == nil {
		return nil
	}
	if err := h.Repo.SaveGuildSettings(ctx, guildID, settings); err != nil {
		return fmt.Errorf("failed to persist settings for guild %s: %w", guildID, err)
	}
	return nil
}

// HealGuild revalidates a guild's settings after its structure changed
func (h *Handler) HealGuild(ctx context.Context, guildID string) error {
	_, _, err := h.snapshot(ctx, guildID)
	return err
}

func (h *Handler) handleSettings(ctx context.Context, msg Message, _ []string) error {
	_, settings, err := h.snapshot(ctx, msg.GuildID)
	if err != nil {
		return err
	}
	return msg.reply(ctx, formatSettings(settings))
}

func (h *Handler) handleSetup(ctx context.Context, msg Message, _ []string) error {
	_, settings, err := h.snapshot(ctx, msg.GuildID)
	if err != nil {
		return err
	}
	if settings.IsConfigured() {
		return msg.reply(ctx, msgAlreadySetup)
	}

	task := &tasks.SetupGuild{
		GuildID:     msg.GuildID,
		Store:       h.Store,
		Snapshots:   h.Snapshots,
		Provisioner: h.Provisioner,
		Saver:       h.Repo,
	}
	plan := tasks.PlanSetup(settings, h.Store.Names())
	prompt := "I will create: " + strings.Join(plan, ", ") + ". They can be moved around as desired."
	return h.requestConfirmation(ctx, msg, task, "setup", prompt)
}

func (h *Handler) handleResetSettings(ctx context.Context, msg Message, _ []string) error {
	task := &tasks.ResetSettings{GuildID: msg.GuildID, Store: h.Store, Snapshots: h.Snapshots, Saver: h.Repo}
	return h.requestConfirmation(ctx, msg, task, "reset settings",
		"This will drop every setting of this server and rediscover the defaults.")
}

func (h *Handler) handleClearTournSettings(ctx context.Context, msg Message, _ []string) error {
	task := &tasks.ClearTournSettings{GuildID: msg.GuildID, Store: h.Store, Snapshots: h.Snapshots, Saver: h.Repo}
	return h.requestConfirmation(ctx, msg, task, "clear tournament settings",
		"This will remove every tournament setting of this server.")
}

// reference kinds accepted by the set-* commands
type refKind int

const (
	refTextChannel refKind = iota
	refCategory
	refRole
)

func (h *Handler) setReference(ctx context.Context, msg Message, args []string, kind refKind, label string, field func(*guild.Settings) *string) error {
	if len(args) != 1 {
		return msg.reply(ctx, fmt.Sprintf("Usage: %s <%s>", label, kindName(kind)))
	}
	id := parseID(args[0])

	snap, err := h.Snapshots.Snapshot(msg.GuildID)
	if err != nil {
		return fmt.Errorf("failed to read guild %s: %w", msg.GuildID, err)
	}
	if !validReference(snap, id, kind) {
		return msg.reply(ctx, fmt.Sprintf("`%s` is not a %s in this server.", args[0], kindName(kind)))
	}

	if _, err := h.Store.UpdateWith(msg.GuildID, snap, func(s *guild.Settings) {
		*field(s) = id
	}, h.commit(ctx, msg.GuildID)); err != nil {
		return err
	}
	return msg.reply(ctx, fmt.Sprintf("The %s is now %s.", label, mention(id, kind)))
}

func (h *Handler) handleSetPairingsChannel(ctx context.Context, msg Message, args []string) error {
	return h.setReference(ctx, msg, args, refTextChannel, "pairings channel", func(s *guild.Settings) *string { return &s.PairingsChannel })
}

func (h *Handler) handleSetMatchesCategory(ctx context.Context, msg Message, args []string) error {
	return h.setReference(ctx, msg, args, refCategory, "matches category", func(s *guild.Settings) *string { return &s.MatchesCategory })
}

func (h *Handler) handleSetJudgeRole(ctx context.Context, msg Message, args []string) error {
	return h.setReference(ctx, msg, args, refRole, "judge role", func(s *guild.Settings) *string { return &s.JudgeRole })
}

func (h *Handler) handleSetAdminRole(ctx context.Context, msg Message, args []string) error {
	return h.setReference(ctx, msg, args, refRole, "tournament admin role", func(s *guild.Settings) *string { return &s.TournAdminRole })
}

func (h *Handler) toggle(ctx context.Context, msg Message, label string, field func(*guild.Settings) *bool) error {
	snap, err := h.Snapshots.Snapshot(msg.GuildID)
	if err != nil {
		return fmt.Errorf("failed to read guild %s: %w", msg.GuildID, err)
	}
	settings, err := h.Store.UpdateWith(msg.GuildID, snap, func(s *guild.Settings) {
		f := field(s)
		*f = !*f
	}, h.commit(ctx, msg.GuildID))
	if err != nil {
		return err
	}
	return msg.reply(ctx, fmt.Sprintf("Creating %s for matches is now %s.", label, onOff(*field(&settings))))
}

func (h *Handler) handleToggleVC(ctx context.Context, msg Message, _ []string) error {
	return h.toggle(ctx, msg, "voice channels", func(s *guild.Settings) *bool { return &s.MakeVC })
}

func (h *Handler) handleToggleTC(ctx context.Context, msg Message, _ []string) error {
	return h.toggle(ctx, msg, "text channels", func(s *guild.Settings) *bool { return &s.MakeTC })
}

// handleTournSetting sets a tournament setting, or removes it when no
// value is given
func (h *Handler) handleTournSetting(ctx context.Context, msg Message, args []string) error {
	if len(args) == 0 {
		return msg.reply(ctx, "Usage: tourn-setting <name> [value]")
	}
	key := strings.ToLower(args[0])
	value := strings.Join(args[1:], " ")

	snap, err := h.Snapshots.Snapshot(msg.GuildID)
	if err != nil {
		return fmt.Errorf("failed to read guild %s: %w", msg.GuildID, err)
	}
	if _, err := h.Store.UpdateWith(msg.GuildID, snap, func(s *guild.Settings) {
		if value == "" {
			delete(s.TournSettings, key)
			return
		}
		s.TournSettings[key] = value
	}, h.commit(ctx, msg.GuildID)); err != nil {
		return err
	}

	if value == "" {
		return msg.reply(ctx, fmt.Sprintf("Removed tournament setting `%s`.", key))
	}
	return msg.reply(ctx, fmt.Sprintf("Tournament setting `%s` is now `%s`.", key, value))
}

// Helper functions

func parseID(arg string) string {
	id := strings.TrimSuffix(arg, ">")
	for _, prefix := range []string{"<@&", "<#"} {
		id = strings.TrimPrefix(id, prefix)
	}
	return id
}

func validReference(snap guild.Snapshot, id string, kind refKind) bool {
	if kind == refRole {
		return snap.HasRole(id)
	}
	ch, ok := snap.Channel(id)
	if !ok {
		return false
	}
	if kind == refCategory {
		return ch.Type == guild.ChannelTypeCategory
	}
	return ch.Type == guild.ChannelTypeText
}

func kindName(kind refKind) string {
	switch kind {
	case refRole:
		return "role"
	case refCategory:
		return "category"
	default:
		return "text channel"
	}
}

func mention(id string, kind refKind) string {
	if id == "" {
		return "not set"
	}
	if kind == refRole {
		return "<@&" + id + ">"
	}
	return "<#" + id + ">"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatSettings(s guild.Settings) string {
	var sb strings.Builder
	sb.WriteString("**Server Settings:**\n")
	sb.WriteString(fmt.Sprintf("Pairings channel: %s\n", mention(s.PairingsChannel, refTextChannel)))
	sb.WriteString(fmt.Sprintf("Matches category: %s\n", mention(s.MatchesCategory, refCategory)))
	sb.WriteString(fmt.Sprintf("Judge role: %s\n", mention(s.JudgeRole, refRole)))
	sb.WriteString(fmt.Sprintf("Tournament admin role: %s\n", mention(s.TournAdminRole, refRole)))
	sb.WriteString(fmt.Sprintf("Voice channels for matches: %s\n", onOff(s.MakeVC)))
	sb.WriteString(fmt.Sprintf("Text channels for matches: %s\n", onOff(s.MakeTC)))

	if len(s.TournSettings) > 0 {
		keys := make([]string, 0, len(s.TournSettings))
		for k := range s.TournSettings {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\n**Tournament Settings:**\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  `%s` = `%s`\n", k, s.TournSettings[k]))
		}
	}

	if missing := s.Missing(); len(missing) > 0 {
		sb.WriteString("\nNot configured yet, missing: " + strings.Join(missing, ", "))
	}
	return sb.String()
}
