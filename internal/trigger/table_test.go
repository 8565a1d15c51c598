package trigger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps triggers in a slice, preserving insertion order, and
// can be told to fail the next write.
type memStore struct {
	triggers []Trigger
	failNext error
}

func (m *memStore) UpsertTrigger(t Trigger) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	for i, existing := range m.triggers {
		if existing.GuildID == t.GuildID && existing.Word == t.Word {
			m.triggers[i] = t
			return nil
		}
	}
	m.triggers = append(m.triggers, t)
	return nil
}

func (m *memStore) DeleteTrigger(guildID, word string) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	for i, existing := range m.triggers {
		if existing.GuildID == guildID && existing.Word == word {
			m.triggers = append(m.triggers[:i], m.triggers[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) ListTriggers() ([]Trigger, error) {
	out := make([]Trigger, len(m.triggers))
	copy(out, m.triggers)
	return out, nil
}

func TestSetLowercasesWord(t *testing.T) {
	table := NewTable(&memStore{})

	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "HEAL", Command: "heal {ID}"}))

	tr, err := table.Find("g1", "heal")
	require.NoError(t, err)
	assert.Equal(t, "heal", tr.Word)
	assert.Equal(t, ScopeAll, tr.Server, "scope defaults to all")

	// Find is case-insensitive the same way
	_, err = table.Find("g1", "HeAl")
	require.NoError(t, err)
}

func TestSetOverwrites(t *testing.T) {
	table := NewTable(&memStore{})

	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "heal", Command: "heal {ID}"}))
	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "grow", Command: "grow {ID}"}))
	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "heal", Command: "HealPlayer {ID}", Server: "main"}))

	tr, err := table.Find("g1", "heal")
	require.NoError(t, err)
	assert.Equal(t, "HealPlayer {ID}", tr.Command)
	assert.Equal(t, "main", tr.Server)

	// Overwriting keeps the original insertion position
	list := table.List("g1")
	require.Len(t, list, 2)
	assert.Equal(t, "heal", list[0].Word)
	assert.Equal(t, "grow", list[1].Word)
}

func TestRemoveNotFound(t *testing.T) {
	store := &memStore{}
	table := NewTable(store)
	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "heal", Command: "heal {ID}"}))

	before, err := store.ListTriggers()
	require.NoError(t, err)

	_, err = table.Remove("g1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := store.ListTriggers()
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed remove must not touch the store")
	assert.Len(t, table.List("g1"), 1)
}

func TestRemoveReturnsTrigger(t *testing.T) {
	table := NewTable(&memStore{})
	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "heal", Command: "heal {ID}", Whisper: "healed!"}))

	tr, err := table.Remove("g1", "HEAL")
	require.NoError(t, err)
	assert.Equal(t, "heal {ID}", tr.Command)
	assert.Equal(t, "healed!", tr.Whisper)

	_, err = table.Find("g1", "heal")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetRollsBackOnStoreFailure(t *testing.T) {
	store := &memStore{}
	table := NewTable(store)

	store.failNext = errors.New("disk full")
	err := table.Set(Trigger{GuildID: "g1", Word: "heal", Command: "heal {ID}"})
	require.Error(t, err)

	_, err = table.Find("g1", "heal")
	assert.ErrorIs(t, err, ErrNotFound, "failed persistence must roll the mutation back")
	assert.Empty(t, table.List("g1"))
}

func TestOverwriteRollsBackToPrevious(t *testing.T) {
	store := &memStore{}
	table := NewTable(store)
	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "heal", Command: "old"}))

	store.failNext = errors.New("disk full")
	require.Error(t, table.Set(Trigger{GuildID: "g1", Word: "heal", Command: "new"}))

	tr, err := table.Find("g1", "heal")
	require.NoError(t, err)
	assert.Equal(t, "old", tr.Command)
}

func TestRemoveRollsBackOnStoreFailure(t *testing.T) {
	store := &memStore{}
	table := NewTable(store)
	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "a", Command: "1"}))
	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "b", Command: "2"}))
	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "c", Command: "3"}))

	store.failNext = errors.New("disk full")
	_, err := table.Remove("g1", "b")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	list := table.List("g1")
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[1].Word, "rolled-back trigger keeps its position")
}

func TestListInsertionOrder(t *testing.T) {
	table := NewTable(&memStore{})
	words := []string{"zebra", "apple", "mango", "banana"}
	for _, w := range words {
		require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: w, Command: "x"}))
	}

	list := table.List("g1")
	require.Len(t, list, len(words))
	for i, w := range words {
		assert.Equal(t, w, list[i].Word)
	}
}

func TestGuildsAreIsolated(t *testing.T) {
	table := NewTable(&memStore{})
	require.NoError(t, table.Set(Trigger{GuildID: "g1", Word: "heal", Command: "1"}))
	require.NoError(t, table.Set(Trigger{GuildID: "g2", Word: "heal", Command: "2"}))

	tr1, err := table.Find("g1", "heal")
	require.NoError(t, err)
	tr2, err := table.Find("g2", "heal")
	require.NoError(t, err)
	assert.Equal(t, "1", tr1.Command)
	assert.Equal(t, "2", tr2.Command)

	_, err = table.Remove("g1", "heal")
	require.NoError(t, err)
	_, err = table.Find("g2", "heal")
	assert.NoError(t, err)
}

func TestLoadSeedsFromStore(t *testing.T) {
	store := &memStore{triggers: []Trigger{
		{GuildID: "g1", Word: "heal", Command: "heal {ID}", Server: "all"},
		{GuildID: "g1", Word: "grow", Command: "grow {ID}", Server: "main"},
		{GuildID: "g2", Word: "food", Command: "give {ID} food", Server: "all"},
	}}

	table := NewTable(store)
	require.NoError(t, table.Load())

	assert.Len(t, table.List("g1"), 2)
	assert.Len(t, table.List("g2"), 1)

	list := table.List("g1")
	assert.Equal(t, "heal", list[0].Word)
	assert.Equal(t, "grow", list[1].Word)
}
