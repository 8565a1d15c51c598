package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chatChannel  = "111111111111111111"
	spawnChannel = "222222222222222222"
	otherChannel = "333333333333333333"
)

var bindings = Bindings{
	ChatChannelID:  chatChannel,
	SpawnChannelID: spawnChannel,
}

func TestClassifyChat(t *testing.T) {
	payload := "**Message:** $heal\n**AlderonId:** 123-456-789\n**PlayerName:** Rex"

	ev := Classify(bindings, chatChannel, payload)
	assert.Equal(t, Chat, ev.Kind)
	assert.Equal(t, "heal", ev.TriggerWord)
	assert.Equal(t, "123-456-789", ev.PlayerID)
	assert.Equal(t, "Rex", ev.PlayerName)
}

func TestClassifyChatWithArguments(t *testing.T) {
	payload := "**Message:** $Grow please now\n**AlderonId:** 987-654-321\n**PlayerName:** Littlefoot"

	ev := Classify(bindings, chatChannel, payload)
	assert.Equal(t, Chat, ev.Kind)
	assert.Equal(t, "grow", ev.TriggerWord, "trigger word is the first token, case-folded")
	assert.Equal(t, "987-654-321", ev.PlayerID)
}

func TestClassifyChatMissingName(t *testing.T) {
	payload := "**Message:** $heal\n**AlderonId:** 123-456-789"

	ev := Classify(bindings, chatChannel, payload)
	assert.Equal(t, Chat, ev.Kind)
	assert.Equal(t, "", ev.PlayerName)
}

func TestClassifyChatIgnored(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"no sigil", "**Message:** heal\n**AlderonId:** 123-456-789\n**PlayerName:** Rex"},
		{"bare sigil", "**Message:** $\n**AlderonId:** 123-456-789"},
		{"missing message", "**AlderonId:** 123-456-789\n**PlayerName:** Rex"},
		{"missing player id", "**Message:** $heal\n**PlayerName:** Rex"},
		{"malformed player id", "**Message:** $heal\n**AlderonId:** 12-456-789"},
		{"plain text", "someone said something"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Classify(bindings, chatChannel, tt.payload)
			assert.Equal(t, Ignored, ev.Kind)
		})
	}
}

func TestClassifyUnboundChannel(t *testing.T) {
	payload := "**Message:** $heal\n**AlderonId:** 123-456-789\n**PlayerName:** Rex"

	ev := Classify(bindings, otherChannel, payload)
	assert.Equal(t, Ignored, ev.Kind, "messages on unbound channels are ignored regardless of content")

	ev = Classify(Bindings{}, chatChannel, payload)
	assert.Equal(t, Ignored, ev.Kind, "empty bindings never match")
}

func TestClassifySpawn(t *testing.T) {
	payload := "**PlayerAlderonId:** 123-456-789\n**PlayerName:** Rex"

	ev := Classify(bindings, spawnChannel, payload)
	assert.Equal(t, Spawn, ev.Kind)
	assert.Equal(t, "123-456-789", ev.PlayerID)
	assert.Equal(t, "Rex", ev.PlayerName)
}

func TestClassifySpawnDefaultName(t *testing.T) {
	payload := "**PlayerAlderonId:** 123-456-789"

	ev := Classify(bindings, spawnChannel, payload)
	assert.Equal(t, Spawn, ev.Kind)
	assert.Equal(t, DefaultSpawnName, ev.PlayerName)
}

func TestClassifySpawnMissingID(t *testing.T) {
	ev := Classify(bindings, spawnChannel, "**PlayerName:** Rex")
	assert.Equal(t, Ignored, ev.Kind)

	// Chat-style id marker does not satisfy the spawn form
	ev = Classify(bindings, spawnChannel, "**AlderonId:** 123-456-789")
	assert.Equal(t, Ignored, ev.Kind)
}
