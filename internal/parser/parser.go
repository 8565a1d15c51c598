// Package parser classifies relayed game events out of Discord embed text.
//
// Game servers relay chat and spawn events into bound channels as embeds
// with bold field markers. The parser is advisory: anything it cannot
// extract is Ignored, never an error.
package parser

import (
	"regexp"
	"strings"
)

// Kind classifies an inbound event.
type Kind int

const (
	Ignored Kind = iota
	Chat
	Spawn
)

func (k Kind) String() string {
	switch k {
	case Chat:
		return "chat"
	case Spawn:
		return "spawn"
	default:
		return "ignored"
	}
}

// Sigil prefixes an in-game chat message that invokes a custom command.
const Sigil = "$"

// DefaultSpawnName is used when a spawn relay carries no player name.
const DefaultSpawnName = "Unknown Player"

// Bindings holds a guild's monitored channel IDs. An empty ID means the
// concern is unbound.
type Bindings struct {
	ChatChannelID  string
	SpawnChannelID string
}

// Event is the structured result of classifying one relayed message.
type Event struct {
	Kind        Kind
	PlayerID    string // Alderon ID, DDD-DDD-DDD
	PlayerName  string
	TriggerWord string // Chat only; lowercased, without the sigil
}

var (
	messageRe     = regexp.MustCompile(`\*\*Message:\*\* ([^*]+)`)
	alderonIDRe   = regexp.MustCompile(`\*\*AlderonId:\*\* ([0-9]{3}-[0-9]{3}-[0-9]{3})`)
	playerNameRe  = regexp.MustCompile(`\*\*PlayerName:\*\* ([^*]+)`)
	spawnPlayerRe = regexp.MustCompile(`\*\*PlayerAlderonId:\*\* ([0-9]{3}-[0-9]{3}-[0-9]{3})`)
)

// Classify extracts a structured event from the payload of a message
// seen in channelID. Messages in unbound channels, and payloads missing
// a mandatory field, classify as Ignored.
func Classify(b Bindings, channelID, payload string) Event {
	switch {
	case b.ChatChannelID != "" && channelID == b.ChatChannelID:
		return classifyChat(payload)
	case b.SpawnChannelID != "" && channelID == b.SpawnChannelID:
		return classifySpawn(payload)
	default:
		return Event{Kind: Ignored}
	}
}

func classifyChat(payload string) Event {
	messageMatch := messageRe.FindStringSubmatch(payload)
	idMatch := alderonIDRe.FindStringSubmatch(payload)
	if messageMatch == nil || idMatch == nil {
		return Event{Kind: Ignored}
	}

	message := strings.TrimSpace(messageMatch[1])
	if !strings.HasPrefix(message, Sigil) {
		return Event{Kind: Ignored}
	}

	word := strings.ToLower(strings.TrimPrefix(firstToken(message), Sigil))
	if word == "" {
		return Event{Kind: Ignored}
	}

	name := ""
	if nameMatch := playerNameRe.FindStringSubmatch(payload); nameMatch != nil {
		name = strings.TrimSpace(nameMatch[1])
	}

	return Event{
		Kind:        Chat,
		PlayerID:    idMatch[1],
		PlayerName:  name,
		TriggerWord: word,
	}
}

func classifySpawn(payload string) Event {
	idMatch := spawnPlayerRe.FindStringSubmatch(payload)
	if idMatch == nil {
		return Event{Kind: Ignored}
	}

	name := DefaultSpawnName
	if nameMatch := playerNameRe.FindStringSubmatch(payload); nameMatch != nil {
		name = strings.TrimSpace(nameMatch[1])
	}

	return Event{
		Kind:       Spawn,
		PlayerID:   idMatch[1],
		PlayerName: name,
	}
}

func firstToken(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
