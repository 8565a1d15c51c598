package bot

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/BassRhombus/PoTRconBot/internal/parser"
)

// handleMessageCreate watches the monitored channels for relayed game
// events. Game servers post them as embeds via webhooks, so bot-authored
// messages are not filtered out here.
func (b *Bot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID == "" {
		return
	}
	if len(m.Embeds) == 0 || m.Embeds[0].Description == "" {
		return
	}

	settings, err := b.repo.GetGuildSettings(m.GuildID)
	if err != nil {
		slog.Error("Failed to load guild settings", "guild", m.GuildID, "error", err)
		return
	}

	bindings := parser.Bindings{
		ChatChannelID:  settings.ChatChannelID,
		SpawnChannelID: settings.SpawnChannelID,
	}

	ev := parser.Classify(bindings, m.ChannelID, m.Embeds[0].Description)
	switch ev.Kind {
	case parser.Chat:
		slog.Debug("Chat trigger received", "guild", m.GuildID, "word", ev.TriggerWord, "player", ev.PlayerID)
		go b.dispatcher.HandleChat(m.GuildID, ev)
	case parser.Spawn:
		slog.Debug("Spawn event received", "guild", m.GuildID, "player", ev.PlayerID)
		go b.dispatcher.HandleSpawn(m.GuildID, ev)
	case parser.Ignored:
		// Most traffic in monitored channels is not a command
	}
}
