package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/BassRhombus/PoTRconBot/internal/rcon"
	"github.com/BassRhombus/PoTRconBot/internal/storage"
	"github.com/BassRhombus/PoTRconBot/internal/trigger"
)

// Discord caps a message at 2000 characters
const maxMessageLength = 2000

var adminPermission = int64(discordgo.PermissionAdministrator)

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "restart",
			Description: "Restart the server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "server",
					Description:  "Server to restart",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "healall",
			Description: "Heal all players on the server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "server",
					Description:  "Server to execute healall on",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:                     "rcon",
			Description:              "Execute a raw RCON command",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "server",
					Description:  "Target server",
					Required:     true,
					Autocomplete: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "command",
					Description: "Command to execute",
					Required:    true,
				},
			},
		},
		{
			Name:        "addcommand",
			Description: "Add a custom in-game command (executes on all servers if no server specified)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "trigger",
					Description: "The command trigger (without $)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "command",
					Description: "Command to execute (use {player} for player name, {ID} for AlderonID)",
					Required:    true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "server",
					Description:  "Specific server to execute on (leave empty for all servers)",
					Required:     false,
					Autocomplete: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "whispermessage",
					Description: "Optional message to whisper to the player",
					Required:    false,
				},
			},
		},
		{
			Name:        "removecommand",
			Description: "Remove a custom in-game command",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "trigger",
					Description:  "The command to remove",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "listcommands",
			Description: "List all custom in-game commands",
		},
		{
			Name:                     "setchatchannel",
			Description:              "Set the channel for monitoring game chat",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "The channel to monitor",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:                     "setspawnchannel",
			Description:              "Set the channel for monitoring spawn messages",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "The channel to monitor for spawn messages",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:        "spawn",
			Description: "Set spawn point for teleporting players",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "location",
					Description: "Coordinates for spawn (x,y,z)",
					Required:    true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "server",
					Description:  "Server to set spawn on",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:                     "addserver",
			Description:              "Add a new server to the configuration",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Server name",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "host",
					Description: "Server IP address",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "port",
					Description: "Server RCON port",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "password",
					Description: "Server RCON password",
					Required:    true,
				},
			},
		},
		{
			Name:                     "removeserver",
			Description:              "Remove a server from the configuration",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "name",
					Description:  "Server to remove",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:                     "listservers",
			Description:              "List all configured servers",
			DefaultMemberPermissions: &adminPermission,
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// handleAutocomplete answers autocomplete queries for trigger words and
// server names
func (b *Bot) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	var focused string
	for _, opt := range data.Options {
		if opt.Focused {
			focused = strings.ToLower(opt.StringValue())
			break
		}
	}

	var choices []*discordgo.ApplicationCommandOptionChoice
	switch data.Name {
	case "removecommand":
		for _, word := range b.triggers.Words(i.GuildID) {
			if focused == "" || strings.Contains(word, focused) {
				choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
					Name:  "$" + word,
					Value: word,
				})
			}
		}
	default:
		names, err := b.repo.ServerNames(i.GuildID)
		if err != nil {
			slog.Error("Failed to list servers for autocomplete", "error", err)
			return
		}
		for _, name := range names {
			if focused == "" || strings.Contains(strings.ToLower(name), focused) {
				choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
					Name:  name,
					Value: name,
				})
			}
		}
	}

	// Discord accepts at most 25 choices
	if len(choices) > 25 {
		choices = choices[:25]
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Error("Failed to respond to autocomplete", "error", err)
	}
}

// handleRestart handles the /restart command
func (b *Bot) handleRestart(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	server := opts["server"].StringValue()

	deferEphemeral(s, i)

	if _, err := b.registry.Execute(rcon.Key{GuildID: i.GuildID, Server: server}, "quit"); err != nil {
		slog.Error("Restart failed", "server", server, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Error: %s", userMessage(err)))
		return
	}
	b.editResponse(s, i, "Server restart initiated")
}

// handleHealAll handles the /healall command
func (b *Bot) handleHealAll(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	server := opts["server"].StringValue()

	deferEphemeral(s, i)

	if _, err := b.registry.Execute(rcon.Key{GuildID: i.GuildID, Server: server}, "HealAllPlayers"); err != nil {
		slog.Error("HealAll failed", "server", server, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Error: %s", userMessage(err)))
		return
	}
	b.editResponse(s, i, "Healed all players")
}

// handleRcon handles the /rcon command
func (b *Bot) handleRcon(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	server := opts["server"].StringValue()
	command := opts["command"].StringValue()

	deferEphemeral(s, i)

	resp, err := b.registry.Execute(rcon.Key{GuildID: i.GuildID, Server: server}, command)
	if err != nil {
		slog.Error("RCON command failed", "server", server, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Error: %s", userMessage(err)))
		return
	}
	if resp == "" {
		resp = "(no response)"
	}
	b.editResponse(s, i, truncate(resp, maxMessageLength))
}

// handleAddCommand handles the /addcommand command
func (b *Bot) handleAddCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	word := opts["trigger"].StringValue()
	command := opts["command"].StringValue()

	scope := trigger.ScopeAll
	if opt, ok := opts["server"]; ok {
		scope = opt.StringValue()
	}
	whisper := ""
	if opt, ok := opts["whispermessage"]; ok {
		whisper = opt.StringValue()
	}

	tr := trigger.Trigger{
		GuildID: i.GuildID,
		Word:    word,
		Command: command,
		Server:  scope,
		Whisper: whisper,
	}
	if err := b.triggers.Set(tr); err != nil {
		slog.Error("Failed to save trigger", "word", word, "error", err)
		respondEphemeral(s, i, fmt.Sprintf("Error adding command: %s", userMessage(err)))
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("Added custom command: $%s -> %s (%s)%s",
		strings.ToLower(word), command, scopeLabel(scope), whisperLabel(whisper)))
}

// handleRemoveCommand handles the /removecommand command
func (b *Bot) handleRemoveCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	word := opts["trigger"].StringValue()

	tr, err := b.triggers.Remove(i.GuildID, word)
	if err != nil {
		if errors.Is(err, trigger.ErrNotFound) {
			respondEphemeral(s, i, fmt.Sprintf("Command $%s not found", strings.ToLower(word)))
			return
		}
		slog.Error("Failed to remove trigger", "word", word, "error", err)
		respondEphemeral(s, i, fmt.Sprintf("Error removing command: %s", userMessage(err)))
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("Removed command: $%s -> %s (%s)%s",
		tr.Word, tr.Command, scopeLabel(tr.Server), whisperLabel(tr.Whisper)))
}

// handleListCommands handles the /listcommands command
func (b *Bot) handleListCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	triggers := b.triggers.List(i.GuildID)
	if len(triggers) == 0 {
		respondEphemeral(s, i, "No custom commands configured")
		return
	}

	lines := make([]string, 0, len(triggers))
	for _, tr := range triggers {
		lines = append(lines, fmt.Sprintf("$%s -> %s (%s)%s",
			tr.Word, tr.Command, scopeLabel(tr.Server), whisperLabel(tr.Whisper)))
	}
	respondEphemeral(s, i, strings.Join(lines, "\n\n"))
}

// handleSetChatChannel handles the /setchatchannel command
func (b *Bot) handleSetChatChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		respondEphemeral(s, i, "You need administrator permissions to use this command.")
		return
	}

	channel := i.ApplicationCommandData().Options[0].ChannelValue(s)

	if err := b.repo.SetChatChannel(i.GuildID, channel.ID); err != nil {
		slog.Error("Failed to set chat channel", "error", err)
		respondEphemeral(s, i, fmt.Sprintf("Error setting chat channel: %s", userMessage(err)))
		return
	}
	respondEphemeral(s, i, fmt.Sprintf("Successfully set chat monitoring channel to <#%s>", channel.ID))
}

// handleSetSpawnChannel handles the /setspawnchannel command
func (b *Bot) handleSetSpawnChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		respondEphemeral(s, i, "You need administrator permissions to use this command.")
		return
	}

	channel := i.ApplicationCommandData().Options[0].ChannelValue(s)

	if err := b.repo.SetSpawnChannel(i.GuildID, channel.ID); err != nil {
		slog.Error("Failed to set spawn channel", "error", err)
		respondEphemeral(s, i, fmt.Sprintf("Error setting spawn channel: %s", userMessage(err)))
		return
	}
	respondEphemeral(s, i, fmt.Sprintf("Successfully set spawn monitoring channel to <#%s>", channel.ID))
}

// handleSpawn handles the /spawn command
func (b *Bot) handleSpawn(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	location := opts["location"].StringValue()
	server := opts["server"].StringValue()

	if err := b.repo.SetSpawnLocation(i.GuildID, server, location); err != nil {
		slog.Error("Failed to save spawn location", "error", err)
		respondEphemeral(s, i, fmt.Sprintf("Error saving spawn location: %s", userMessage(err)))
		return
	}
	respondEphemeral(s, i, fmt.Sprintf("Spawn location set to %s for server %s", location, server))
}

// handleAddServer handles the /addserver command
func (b *Bot) handleAddServer(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		respondEphemeral(s, i, "You need administrator permissions to use this command.")
		return
	}

	opts := optionMap(i)
	srv := &storage.Server{
		GuildID:  i.GuildID,
		Name:     opts["name"].StringValue(),
		Host:     opts["host"].StringValue(),
		Port:     int(opts["port"].IntValue()),
		Password: opts["password"].StringValue(),
	}

	deferEphemeral(s, i)

	if err := b.repo.CreateServer(srv); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			b.editResponse(s, i, "A server with that name already exists.")
			return
		}
		slog.Error("Failed to save server", "name", srv.Name, "error", err)
		b.editResponse(s, i, fmt.Sprintf("Error adding server: %s", userMessage(err)))
		return
	}

	// Prove the descriptor works before acknowledging; roll it back if not
	key := rcon.Key{GuildID: i.GuildID, Server: srv.Name}
	if err := b.registry.Connect(key); err != nil {
		if derr := b.repo.DeleteServer(i.GuildID, srv.Name); derr != nil {
			slog.Error("Failed to roll back server", "name", srv.Name, "error", derr)
		}
		b.editResponse(s, i, fmt.Sprintf("Error adding server: %s", userMessage(err)))
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Successfully added server: %s", srv.Name))
}

// handleRemoveServer handles the /removeserver command
func (b *Bot) handleRemoveServer(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		respondEphemeral(s, i, "You need administrator permissions to use this command.")
		return
	}

	opts := optionMap(i)
	name := opts["name"].StringValue()

	// Tear down the live session before dropping the descriptor
	b.registry.Remove(rcon.Key{GuildID: i.GuildID, Server: name})

	if err := b.repo.DeleteServer(i.GuildID, name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondEphemeral(s, i, "Server not found in configuration.")
			return
		}
		slog.Error("Failed to remove server", "name", name, "error", err)
		respondEphemeral(s, i, fmt.Sprintf("Error removing server: %s", userMessage(err)))
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("Successfully removed server: %s", name))
}

// handleListServers handles the /listservers command
func (b *Bot) handleListServers(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		respondEphemeral(s, i, "You need administrator permissions to use this command.")
		return
	}

	servers, err := b.repo.ListServers(i.GuildID)
	if err != nil {
		slog.Error("Failed to list servers", "error", err)
		respondEphemeral(s, i, "Failed to retrieve server list.")
		return
	}
	if len(servers) == 0 {
		respondEphemeral(s, i, "No servers configured")
		return
	}

	// Passwords never appear in listings
	lines := make([]string, 0, len(servers))
	for _, srv := range servers {
		lines = append(lines, fmt.Sprintf("%s\n  Host: %s\n  Port: %d", srv.Name, srv.Host, srv.Port))
	}
	respondEphemeral(s, i, strings.Join(lines, "\n\n"))
}

// Helper functions

func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// truncate shortens s to at most max characters, ending with an
// ellipsis. Discord's message limit counts characters, not bytes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func scopeLabel(scope string) string {
	if scope == trigger.ScopeAll {
		return "All Servers"
	}
	return "Server: " + scope
}

func whisperLabel(whisper string) string {
	if whisper == "" {
		return ""
	}
	return "\nWhisper: " + whisper
}

// userMessage flattens an error into a one-line reply for the admin.
func userMessage(err error) string {
	switch {
	case errors.Is(err, rcon.ErrConfigMissing):
		return "no server with that name is configured"
	case errors.Is(err, rcon.ErrAuthFailed):
		return "the server rejected the RCON password"
	case errors.Is(err, rcon.ErrConnectFailed):
		return "could not connect to the server"
	case errors.Is(err, rcon.ErrExecutionFailed):
		return "the command failed on the server"
	default:
		return err.Error()
	}
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}

func deferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Error("Failed to defer interaction", "error", err)
	}
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}
