// Package trigger holds the per-guild table of chat-triggered commands.
package trigger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ScopeAll targets every server configured for the guild.
const ScopeAll = "all"

// ErrNotFound is returned when a guild has no trigger with that word.
var ErrNotFound = errors.New("trigger not found")

// Trigger maps a chat keyword to a templated server command.
// Templates may use {ID} for the player's Alderon ID and {player} for
// the player's display name.
type Trigger struct {
	GuildID string
	Word    string
	Command string
	Server  string // server name, or ScopeAll
	Whisper string // optional follow-up whisper template
}

// Store persists triggers. Every Table mutation writes through
// synchronously before it is acknowledged.
type Store interface {
	UpsertTrigger(t Trigger) error
	DeleteTrigger(guildID, word string) error
	ListTriggers() ([]Trigger, error)
}

// Table is the in-memory trigger table, seeded from the Store at
// startup. Mutations on different guilds do not block each other.
type Table struct {
	store Store

	mu     sync.RWMutex
	guilds map[string]*guildTriggers
}

type guildTriggers struct {
	mu     sync.Mutex
	order  []string
	byWord map[string]Trigger
}

// NewTable creates an empty table backed by store.
func NewTable(store Store) *Table {
	return &Table{
		store:  store,
		guilds: make(map[string]*guildTriggers),
	}
}

// Load seeds the table from the store. Called once at startup; the
// store returns triggers in insertion order.
func (t *Table) Load() error {
	triggers, err := t.store.ListTriggers()
	if err != nil {
		return fmt.Errorf("loading triggers: %w", err)
	}
	for _, tr := range triggers {
		g := t.guild(tr.GuildID)
		g.mu.Lock()
		g.put(tr)
		g.mu.Unlock()
	}
	return nil
}

// Set adds or overwrites a trigger. The word is lowercased. The change
// is persisted before success is reported; on a store failure the
// in-memory table is rolled back.
func (t *Table) Set(tr Trigger) error {
	tr.Word = strings.ToLower(strings.TrimSpace(tr.Word))
	if tr.Word == "" {
		return fmt.Errorf("trigger word is empty")
	}
	if tr.Server == "" {
		tr.Server = ScopeAll
	}

	g := t.guild(tr.GuildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, existed := g.byWord[tr.Word]
	g.put(tr)
	if err := t.store.UpsertTrigger(tr); err != nil {
		if existed {
			g.byWord[tr.Word] = prev
		} else {
			g.remove(tr.Word)
		}
		return fmt.Errorf("persisting trigger: %w", err)
	}
	return nil
}

// Remove deletes a trigger and returns it. Returns ErrNotFound if the
// guild has no trigger with that word; the table and store are left
// untouched in that case.
func (t *Table) Remove(guildID, word string) (Trigger, error) {
	word = strings.ToLower(strings.TrimSpace(word))

	g := t.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	tr, ok := g.byWord[word]
	if !ok {
		return Trigger{}, fmt.Errorf("%w: %s", ErrNotFound, word)
	}

	pos := g.remove(word)
	if err := t.store.DeleteTrigger(guildID, word); err != nil {
		g.insertAt(tr, pos)
		return Trigger{}, fmt.Errorf("persisting removal: %w", err)
	}
	return tr, nil
}

// Find returns the trigger for word, or ErrNotFound.
func (t *Table) Find(guildID, word string) (Trigger, error) {
	word = strings.ToLower(word)

	g := t.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	tr, ok := g.byWord[word]
	if !ok {
		return Trigger{}, fmt.Errorf("%w: %s", ErrNotFound, word)
	}
	return tr, nil
}

// List returns a guild's triggers in insertion order.
func (t *Table) List(guildID string) []Trigger {
	g := t.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	triggers := make([]Trigger, 0, len(g.order))
	for _, word := range g.order {
		triggers = append(triggers, g.byWord[word])
	}
	return triggers
}

// Words returns a guild's trigger words in insertion order. Used for
// slash command autocomplete.
func (t *Table) Words(guildID string) []string {
	g := t.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	words := make([]string, len(g.order))
	copy(words, g.order)
	return words
}

func (t *Table) guild(guildID string) *guildTriggers {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.guilds[guildID]
	if !ok {
		g = &guildTriggers{byWord: make(map[string]Trigger)}
		t.guilds[guildID] = g
	}
	return g
}

// put stores a trigger, appending to the order only if the word is new.
// Callers hold g.mu.
func (g *guildTriggers) put(tr Trigger) {
	if _, ok := g.byWord[tr.Word]; !ok {
		g.order = append(g.order, tr.Word)
	}
	g.byWord[tr.Word] = tr
}

// remove deletes a word and returns the order position it held.
func (g *guildTriggers) remove(word string) int {
	delete(g.byWord, word)
	for i, w := range g.order {
		if w == word {
			g.order = append(g.order[:i], g.order[i+1:]...)
			return i
		}
	}
	return len(g.order)
}

// insertAt restores a trigger at its previous order position.
func (g *guildTriggers) insertAt(tr Trigger, pos int) {
	if pos > len(g.order) {
		pos = len(g.order)
	}
	g.order = append(g.order[:pos], append([]string{tr.Word}, g.order[pos:]...)...)
	g.byWord[tr.Word] = tr
}
