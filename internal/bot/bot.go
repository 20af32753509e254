package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/squire-bot/squire/internal/config"
	"github.com/squire-bot/squire/internal/confirm"
	"github.com/squire-bot/squire/internal/guild"
	"github.com/squire-bot/squire/internal/storage"
	"github.com/squire-bot/squire/internal/sweeper"
)

const handlerTimeout = 10 * time.Second

// Bot represents the Discord bot instance
type Bot struct {
	config   *config.Config
	session  *discordgo.Session
	repo     storage.SettingsRepository
	registry *confirm.Registry
	store    *guild.Store
	handler  *Handler
	sweeper  *sweeper.Sweeper
}

// New creates a new Bot instance
func New(ctx context.Context, cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	// Initialize storage
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := confirm.NewRegistry()
	store := guild.NewStore(cfg.DefaultNames)

	b := &Bot{
		config:   cfg,
		session:  session,
		repo:     repo,
		registry: registry,
		store:    store,
		handler: &Handler{
			Prefix:      cfg.CommandPrefix,
			Registry:    registry,
			Store:       store,
			Repo:        repo,
			Snapshots:   &stateSnapshots{session: session},
			Provisioner: session,
		},
		sweeper: sweeper.New(registry, &expiryNotifier{session: session}, cfg.ConfirmationTTL, cfg.SweepInterval),
	}

	// Register event handlers
	b.registerHandlers()

	return b, nil
}

func openRepository(ctx context.Context, cfg *config.Config) (storage.SettingsRepository, error) {
	switch cfg.SettingsBackend {
	case config.BackendRedis:
		return storage.NewRedisRepository(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, "")
	default:
		return storage.NewRepository(cfg.DatabasePath)
	}
}

// Start restores persisted settings, opens the Discord connection and
// starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	if err := b.restoreSettings(ctx); err != nil {
		return fmt.Errorf("failed to restore guild settings: %w", err)
	}

	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Start the confirmation sweeper
	b.sweeper.Start(ctx)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop the sweeper
	if b.sweeper != nil {
		b.sweeper.Stop()
	}

	// Close storage
	if b.repo != nil {
		if err := b.repo.Close(); err != nil {
			slog.Error("Failed to close storage", "error", err)
		}
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// restoreSettings loads every persisted guild's settings into the store
func (b *Bot) restoreSettings(ctx context.Context) error {
	all, err := b.repo.ListGuildSettings(ctx)
	if err != nil {
		return err
	}
	for _, gs := range all {
		b.store.Load(gs.GuildID, gs.Settings)
	}
	slog.Info("Restored guild settings", "guilds", len(all))
	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleMessage)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		// Ready only lists unavailable guild stubs; each guild is healed
		// once its GuildCreate arrives with roles and channels.
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})

	// Guild structure changes
	b.session.AddHandler(func(s *discordgo.Session, e *discordgo.GuildCreate) {
		b.healGuild(e.ID)
	})
	b.session.AddHandler(func(s *discordgo.Session, e *discordgo.ChannelCreate) {
		b.healGuild(e.GuildID)
	})
	b.session.AddHandler(func(s *discordgo.Session, e *discordgo.ChannelUpdate) {
		b.healGuild(e.GuildID)
	})
	b.session.AddHandler(func(s *discordgo.Session, e *discordgo.ChannelDelete) {
		b.healGuild(e.GuildID)
	})
	b.session.AddHandler(func(s *discordgo.Session, e *discordgo.GuildRoleCreate) {
		b.healGuild(e.GuildID)
	})
	b.session.AddHandler(func(s *discordgo.Session, e *discordgo.GuildRoleUpdate) {
		b.healGuild(e.GuildID)
	})
	b.session.AddHandler(func(s *discordgo.Session, e *discordgo.GuildRoleDelete) {
		b.healGuild(e.GuildID)
	})
}

func (b *Bot) healGuild(guildID string) {
	if guildID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := b.handler.HealGuild(ctx, guildID); err != nil {
		slog.Error("Failed to heal guild settings", "guildID", guildID, "error", err)
	}
}

// handleMessage processes prefix commands
func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	msg := Message{
		UserID:    m.Author.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Replier: &messageReplier{
			session:   s,
			channelID: m.ChannelID,
			reference: m.Reference(),
		},
	}
	if m.Member != nil {
		msg.MemberRoles = m.Member.Roles
	}
	if m.GuildID != "" {
		msg.Privileged = canManageGuild(s.State, m.Message)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := b.handler.HandleMessage(ctx, msg); err != nil {
		slog.Error("Failed to handle command", "user", msg.UserID, "guild", msg.GuildID, "error", err)
	}
}
