package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/BassRhombus/PoTRconBot/internal/config"
	"github.com/BassRhombus/PoTRconBot/internal/dispatch"
	"github.com/BassRhombus/PoTRconBot/internal/health"
	"github.com/BassRhombus/PoTRconBot/internal/rcon"
	"github.com/BassRhombus/PoTRconBot/internal/storage"
	"github.com/BassRhombus/PoTRconBot/internal/trigger"
)

// Bot represents the Discord bot instance
type Bot struct {
	config     *config.Config
	session    *discordgo.Session
	repo       *storage.Repository
	registry   *rcon.Registry
	triggers   *trigger.Table
	dispatcher *dispatch.Dispatcher
	monitor    *health.Monitor
	commands   []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents; MessageContent is needed to read relayed embeds
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Seed the trigger table from storage
	triggers := trigger.NewTable(repo)
	if err := triggers.Load(); err != nil {
		return nil, fmt.Errorf("failed to load triggers: %w", err)
	}

	// Connection registry resolves descriptors out of storage
	registry := rcon.NewRegistry(func(key rcon.Key) (rcon.Descriptor, error) {
		srv, err := repo.GetServer(key.GuildID, key.Server)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return rcon.Descriptor{}, fmt.Errorf("%w: %s", rcon.ErrConfigMissing, key.Server)
			}
			return rcon.Descriptor{}, err
		}
		return rcon.Descriptor{Host: srv.Host, Port: srv.Port, Password: srv.Password}, nil
	})

	b := &Bot{
		config:     cfg,
		session:    session,
		repo:       repo,
		registry:   registry,
		triggers:   triggers,
		dispatcher: dispatch.New(registry, triggers, repo),
	}

	// Register event handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Connect to every stored server in the background
	go b.seedConnections()

	// Start the health monitor
	interval := time.Duration(b.config.HealthIntervalSeconds) * time.Second
	b.monitor = health.New(b.registry, interval)
	go b.monitor.Start(ctx)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop the health monitor
	if b.monitor != nil {
		b.monitor.Stop()
	}

	// Close all RCON sessions
	b.registry.Close()

	// Close storage
	if b.repo != nil {
		b.repo.Close()
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// seedConnections dials every configured server and runs a smoke command
func (b *Bot) seedConnections() {
	servers, err := b.repo.ListAllServers()
	if err != nil {
		slog.Error("Failed to list servers for startup connect", "error", err)
		return
	}

	slog.Info("Attempting RCON connections", "count", len(servers))

	for _, srv := range servers {
		go func(key rcon.Key) {
			if err := b.registry.Connect(key); err != nil {
				slog.Error("Failed to connect", "server", key, "error", err)
				return
			}
			resp, err := b.registry.Execute(key, "listplayers")
			if err != nil {
				slog.Error("Test command failed", "server", key, "error", err)
				return
			}
			slog.Info("Test command succeeded", "server", key, "response_len", len(resp))
		}(rcon.Key{GuildID: srv.GuildID, Server: srv.Name})
	}
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(b.handleMessageCreate)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction processes slash command and autocomplete interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommandAutocomplete:
		b.handleAutocomplete(s, i)
		return
	case discordgo.InteractionApplicationCommand:
	default:
		return
	}

	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "restart":
		b.handleRestart(s, i)
	case "healall":
		b.handleHealAll(s, i)
	case "rcon":
		b.handleRcon(s, i)
	case "addcommand":
		b.handleAddCommand(s, i)
	case "removecommand":
		b.handleRemoveCommand(s, i)
	case "listcommands":
		b.handleListCommands(s, i)
	case "setchatchannel":
		b.handleSetChatChannel(s, i)
	case "setspawnchannel":
		b.handleSetSpawnChannel(s, i)
	case "spawn":
		b.handleSpawn(s, i)
	case "addserver":
		b.handleAddServer(s, i)
	case "removeserver":
		b.handleRemoveServer(s, i)
	case "listservers":
		b.handleListServers(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}
