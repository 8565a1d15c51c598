package storage

import "time"

// Server is an RCON endpoint configured for a guild
type Server struct {
	ID        int64
	GuildID   string
	Name      string
	Host      string
	Port      int
	Password  string
	CreatedAt time.Time
}

// GuildSettings stores per-guild channel bindings
type GuildSettings struct {
	GuildID        string
	ChatChannelID  string
	SpawnChannelID string
	CreatedAt      time.Time
}

// SpawnLocation maps a server to its teleport destination for new spawns
type SpawnLocation struct {
	GuildID  string
	Server   string
	Location string // coordinate string, e.g. "-12000,4500,900"
}
