package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/BassRhombus/PoTRconBot/internal/trigger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialize writers; sqlite allows one at a time
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS servers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id VARCHAR(20) NOT NULL,
			name VARCHAR(100) NOT NULL,
			host VARCHAR(255) NOT NULL,
			port INTEGER NOT NULL,
			password VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(guild_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS triggers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id VARCHAR(20) NOT NULL,
			word VARCHAR(100) NOT NULL,
			command TEXT NOT NULL,
			server VARCHAR(100) NOT NULL DEFAULT 'all',
			whisper TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(guild_id, word)
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(20) PRIMARY KEY,
			chat_channel_id VARCHAR(20) NOT NULL DEFAULT '',
			spawn_channel_id VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS spawn_locations (
			guild_id VARCHAR(20) NOT NULL,
			server VARCHAR(100) NOT NULL,
			location VARCHAR(255) NOT NULL,
			PRIMARY KEY (guild_id, server)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_servers_guild ON servers(guild_id)`,
		`CREATE INDEX IF NOT EXISTS idx_triggers_guild ON triggers(guild_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Server operations

// CreateServer inserts a new server descriptor
func (r *Repository) CreateServer(s *Server) error {
	result, err := r.db.Exec(
		`INSERT INTO servers (guild_id, name, host, port, password) VALUES (?, ?, ?, ?, ?)`,
		s.GuildID, s.Name, s.Host, s.Port, s.Password,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

// GetServer finds a server by guild and name
func (r *Repository) GetServer(guildID, name string) (*Server, error) {
	s := &Server{}
	err := r.db.QueryRow(
		`SELECT id, guild_id, name, host, port, password, created_at FROM servers WHERE guild_id = ? AND name = ?`,
		guildID, name,
	).Scan(&s.ID, &s.GuildID, &s.Name, &s.Host, &s.Port, &s.Password, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: server %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteServer removes a server descriptor
func (r *Repository) DeleteServer(guildID, name string) error {
	result, err := r.db.Exec(
		`DELETE FROM servers WHERE guild_id = ? AND name = ?`,
		guildID, name,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: server %s", ErrNotFound, name)
	}
	return nil
}

// ListServers returns all servers configured for a guild
func (r *Repository) ListServers(guildID string) ([]*Server, error) {
	rows, err := r.db.Query(
		`SELECT id, guild_id, name, host, port, password, created_at FROM servers WHERE guild_id = ? ORDER BY id`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanServers(rows)
}

// ListAllServers returns every configured server across all guilds
func (r *Repository) ListAllServers() ([]*Server, error) {
	rows, err := r.db.Query(
		`SELECT id, guild_id, name, host, port, password, created_at FROM servers ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanServers(rows)
}

// ServerNames returns the server names configured for a guild
func (r *Repository) ServerNames(guildID string) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT name FROM servers WHERE guild_id = ? ORDER BY id`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func scanServers(rows *sql.Rows) ([]*Server, error) {
	var servers []*Server
	for rows.Next() {
		s := &Server{}
		if err := rows.Scan(&s.ID, &s.GuildID, &s.Name, &s.Host, &s.Port, &s.Password, &s.CreatedAt); err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// Trigger operations (trigger.Store)

// UpsertTrigger creates or replaces a custom command trigger
func (r *Repository) UpsertTrigger(t trigger.Trigger) error {
	_, err := r.db.Exec(
		`INSERT INTO triggers (guild_id, word, command, server, whisper) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id, word) DO UPDATE SET command = excluded.command, server = excluded.server, whisper = excluded.whisper`,
		t.GuildID, t.Word, t.Command, t.Server, t.Whisper,
	)
	return err
}

// DeleteTrigger removes a custom command trigger
func (r *Repository) DeleteTrigger(guildID, word string) error {
	_, err := r.db.Exec(
		`DELETE FROM triggers WHERE guild_id = ? AND word = ?`,
		guildID, word,
	)
	return err
}

// ListTriggers returns every trigger across all guilds in insertion order
func (r *Repository) ListTriggers() ([]trigger.Trigger, error) {
	rows, err := r.db.Query(
		`SELECT guild_id, word, command, server, whisper FROM triggers ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []trigger.Trigger
	for rows.Next() {
		var t trigger.Trigger
		if err := rows.Scan(&t.GuildID, &t.Word, &t.Command, &t.Server, &t.Whisper); err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// Guild settings operations

// SetChatChannel sets the channel monitored for in-game chat relays
func (r *Repository) SetChatChannel(guildID, channelID string) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_settings (guild_id, chat_channel_id) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET chat_channel_id = excluded.chat_channel_id`,
		guildID, channelID,
	)
	return err
}

// SetSpawnChannel sets the channel monitored for spawn relays
func (r *Repository) SetSpawnChannel(guildID, channelID string) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_settings (guild_id, spawn_channel_id) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET spawn_channel_id = excluded.spawn_channel_id`,
		guildID, channelID,
	)
	return err
}

// GetGuildSettings retrieves a guild's channel bindings. Returns empty
// bindings for a guild that never configured any.
func (r *Repository) GetGuildSettings(guildID string) (*GuildSettings, error) {
	settings := &GuildSettings{GuildID: guildID}
	err := r.db.QueryRow(
		`SELECT chat_channel_id, spawn_channel_id, created_at FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&settings.ChatChannelID, &settings.SpawnChannelID, &settings.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Spawn location operations

// SetSpawnLocation stores the teleport destination for a server
func (r *Repository) SetSpawnLocation(guildID, server, location string) error {
	_, err := r.db.Exec(
		`INSERT INTO spawn_locations (guild_id, server, location) VALUES (?, ?, ?)
		 ON CONFLICT(guild_id, server) DO UPDATE SET location = excluded.location`,
		guildID, server, location,
	)
	return err
}

// SpawnLocations returns server name -> location for a guild
func (r *Repository) SpawnLocations(guildID string) (map[string]string, error) {
	rows, err := r.db.Query(
		`SELECT server, location FROM spawn_locations WHERE guild_id = ?`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make(map[string]string)
	for rows.Next() {
		var server, location string
		if err := rows.Scan(&server, &location); err != nil {
			return nil, err
		}
		locations[server] = location
	}
	return locations, rows.Err()
}
