package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath = "config.toml"
	DefaultHTTPAddr   = ":8080"
	DefaultPGHost     = "127.0.0.1"
	DefaultPGPort     = 5432
	DefaultPGUser     = "postgres"
	DefaultPGDatabase = "taskbridge"
	DefaultPGSSLMode  = "disable"
	DefaultStorageDir = "data/files"
	DefaultScratchDir = "data/scratch"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Telegram TelegramConfig `toml:"telegram"`
	Storage  StorageConfig  `toml:"storage"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// TelegramConfig holds the bot credentials and chat routing.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	// GroupChatID is the primary chat every task is announced in.
	// Zero disables group delivery entirely.
	GroupChatID int64 `toml:"group_chat_id"`
	// GroupTopicID optionally pins the main message to a forum topic.
	GroupTopicID int `toml:"group_topic_id"`
	// PhotosRouting maps a task kind to a chat that receives the task's
	// attachments instead of the group chat.
	PhotosRouting map[string]PhotosRoute `toml:"photos_routing"`
}

type PhotosRoute struct {
	ChatID  int64 `toml:"chat_id"`
	TopicID int   `toml:"topic_id"`
}

type StorageConfig struct {
	// Root is the directory stored files live under, keyed by file id.
	Root string `toml:"root"`
	// Scratch receives recompressed images; safe to wipe between runs.
	Scratch string `toml:"scratch"`
	// PublicBaseURL prefixes inline-view links, e.g. https://files.example.com.
	PublicBaseURL string `toml:"public_base_url"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Storage: StorageConfig{
			Root:    DefaultStorageDir,
			Scratch: DefaultScratchDir,
		},
	}
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
