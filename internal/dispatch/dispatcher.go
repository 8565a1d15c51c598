// Package dispatch routes parsed game events to the servers they target.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BassRhombus/PoTRconBot/internal/parser"
	"github.com/BassRhombus/PoTRconBot/internal/rcon"
	"github.com/BassRhombus/PoTRconBot/internal/trigger"
)

// Executor runs one command against one server session.
type Executor interface {
	Execute(key rcon.Key, command string) (string, error)
}

// ServerSource resolves a guild's configured servers and spawn points.
type ServerSource interface {
	ServerNames(guildID string) ([]string, error)
	SpawnLocations(guildID string) (map[string]string, error)
}

// Result is the outcome of one command on one target server.
type Result struct {
	Server   string
	Response string
	Err      error
}

// Dispatcher fans parsed events out to their target servers. Each
// target runs independently; one server failing never stops the rest.
type Dispatcher struct {
	exec     Executor
	triggers *trigger.Table
	servers  ServerSource
}

// New creates a dispatcher.
func New(exec Executor, triggers *trigger.Table, servers ServerSource) *Dispatcher {
	return &Dispatcher{
		exec:     exec,
		triggers: triggers,
		servers:  servers,
	}
}

// Expand substitutes {ID} and {player} in a command template. A single
// literal pass: placeholders inside substituted values stay as-is.
func Expand(template, playerID, playerName string) string {
	out := strings.ReplaceAll(template, "{ID}", playerID)
	return strings.ReplaceAll(out, "{player}", playerName)
}

// HandleChat dispatches a chat event's trigger, if the guild has one.
// Unknown trigger words are silently dropped; most chat is not a command.
func (d *Dispatcher) HandleChat(guildID string, ev parser.Event) []Result {
	if ev.Kind != parser.Chat || ev.TriggerWord == "" {
		return nil
	}

	tr, err := d.triggers.Find(guildID, ev.TriggerWord)
	if err != nil {
		if !errors.Is(err, trigger.ErrNotFound) {
			slog.Error("Trigger lookup failed", "guild", guildID, "word", ev.TriggerWord, "error", err)
		}
		return nil
	}

	targets, err := d.resolveTargets(guildID, tr.Server)
	if err != nil {
		slog.Error("Failed to resolve target servers", "guild", guildID, "trigger", tr.Word, "error", err)
		return nil
	}

	command := Expand(tr.Command, ev.PlayerID, ev.PlayerName)

	return d.fanOut(targets, func(server string) (string, error) {
		key := rcon.Key{GuildID: guildID, Server: server}
		resp, err := d.exec.Execute(key, command)
		if err != nil {
			return "", err
		}
		if tr.Whisper != "" {
			whisper := Expand(fmt.Sprintf("whisper %s %s", ev.PlayerID, tr.Whisper), ev.PlayerID, ev.PlayerName)
			if _, werr := d.exec.Execute(key, whisper); werr != nil {
				slog.Error("Whisper failed", "server", key, "error", werr)
			}
		}
		return resp, nil
	})
}

// HandleSpawn teleports a newly spawned player to every configured
// spawn point, one command per server.
func (d *Dispatcher) HandleSpawn(guildID string, ev parser.Event) []Result {
	if ev.Kind != parser.Spawn {
		return nil
	}

	locations, err := d.servers.SpawnLocations(guildID)
	if err != nil {
		slog.Error("Failed to load spawn locations", "guild", guildID, "error", err)
		return nil
	}

	targets := make([]string, 0, len(locations))
	for server, location := range locations {
		if location != "" {
			targets = append(targets, server)
		}
	}

	return d.fanOut(targets, func(server string) (string, error) {
		command := fmt.Sprintf("teleport %s %s", ev.PlayerID, locations[server])
		return d.exec.Execute(rcon.Key{GuildID: guildID, Server: server}, command)
	})
}

// resolveTargets expands the trigger scope into concrete server names.
func (d *Dispatcher) resolveTargets(guildID, scope string) ([]string, error) {
	if scope != trigger.ScopeAll {
		return []string{scope}, nil
	}
	return d.servers.ServerNames(guildID)
}

// fanOut runs fn once per target concurrently and collects outcomes.
func (d *Dispatcher) fanOut(targets []string, fn func(server string) (string, error)) []Result {
	results := make([]Result, len(targets))

	var wg sync.WaitGroup
	for i, server := range targets {
		wg.Add(1)
		go func(i int, server string) {
			defer wg.Done()
			resp, err := fn(server)
			if err != nil {
				slog.Error("Dispatch failed", "server", server, "error", err)
			}
			results[i] = Result{Server: server, Response: resp, Err: err}
		}(i, server)
	}
	wg.Wait()

	return results
}
