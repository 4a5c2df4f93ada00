// Package config defines the application configuration structures.
//
// Settings are stored in ~/.paiconsole/config.json. The session tokens
// live next to it in session.json so that config.json can be shared or
// checked in without leaking credentials.
//
// Separated from cmd to allow other packages (api, archive, ssh, tui) to
// depend on config without importing Cobra.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// AppConfig is the top-level config file structure (~/.paiconsole/config.json).
type AppConfig struct {
	API     APIConfig     `json:"api"`
	Chat    ChatConfig    `json:"chat"`
	Tunnel  TunnelConfig  `json:"tunnel"`
	Archive ArchiveConfig `json:"archive"`
}

// APIConfig locates the backend. Paths are joined onto BaseURL; those
// containing {id} have the conversation id substituted.
type APIConfig struct {
	BaseURL           string `json:"base_url"`
	LoginPath         string `json:"login_path"`
	RefreshPath       string `json:"refresh_path"`
	ChatPath          string `json:"chat_path"`
	ConversationsPath string `json:"conversations_path"`
	MessagesPath      string `json:"messages_path"`
	ConfirmPath       string `json:"confirm_path"`
	CancelPath        string `json:"cancel_path"`
	TimeoutSeconds    int    `json:"timeout_seconds"`

	// OriginHost is set when BaseURL was rewritten to a local tunnel
	// end. Requests carry it as the Host header and, over https, as the
	// TLS server name.
	OriginHost string `json:"-"`
}

// ChatConfig holds assistant behavior and the context sent with each
// message.
type ChatConfig struct {
	GapThresholdMS int      `json:"gap_threshold_ms"`
	TodoTools      []string `json:"todo_tools,omitempty"`
	QuestionTools  []string `json:"question_tools,omitempty"`
	ConfirmTools   []string `json:"confirm_tools,omitempty"`

	ConnectionID int64  `json:"connection_id,omitempty"`
	DatabaseName string `json:"database_name,omitempty"`
	SchemaName   string `json:"schema_name,omitempty"`
}

// GapThreshold returns the waiting-indicator delay.
func (c ChatConfig) GapThreshold() time.Duration {
	return time.Duration(c.GapThresholdMS) * time.Millisecond
}

// ArchiveConfig selects the local turn archive. An empty driver
// disables it.
type ArchiveConfig struct {
	Driver string `json:"driver,omitempty"` // "", "postgres", "sqlite"
	DSN    string `json:"dsn,omitempty"`
}

// Enabled reports whether an archive is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Driver != ""
}

// DefaultAppConfig returns sensible defaults.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:           "http://localhost:8787",
			LoginPath:         "/api/auth/login",
			RefreshPath:       "/api/auth/refresh",
			ChatPath:          "/api/ai/chat",
			ConversationsPath: "/api/ai/conversations",
			MessagesPath:      "/api/ai/conversations/{id}/messages",
			ConfirmPath:       "/api/ai/write/confirm",
			CancelPath:        "/api/ai/write/cancel",
			TimeoutSeconds:    30,
		},
		Chat: ChatConfig{
			GapThresholdMS: 800,
		},
		Tunnel: TunnelConfig{
			Port: 22,
		},
	}
}

// Dir returns ~/.paiconsole, creating it if needed.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(homeDir, ".paiconsole")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// LoadAppConfig reads ~/.paiconsole/config.json; returns defaults if not found.
func LoadAppConfig() (*AppConfig, error) {
	dir, err := Dir()
	if err != nil {
		cfg := DefaultAppConfig()
		applyEnv(cfg)
		return cfg, nil
	}
	return LoadAppConfigFile(filepath.Join(dir, "config.json"))
}

// LoadAppConfigFile reads the config at path. A missing file yields the
// defaults. Environment variables override the file either way.
func LoadAppConfigFile(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv lets env vars override file config.
func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("PAICONSOLE_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("PAICONSOLE_ARCHIVE_DRIVER"); v != "" {
		cfg.Archive.Driver = v
	}
	if v := os.Getenv("PAICONSOLE_ARCHIVE_DSN"); v != "" {
		cfg.Archive.DSN = v
	}
	if v := os.Getenv("PAICONSOLE_CONNECTION_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chat.ConnectionID = id
		}
	}
}

// SaveAppConfig writes the config to ~/.paiconsole/config.json.
func SaveAppConfig(cfg *AppConfig) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return SaveAppConfigFile(filepath.Join(dir, "config.json"), cfg)
}

// SaveAppConfigFile writes the config to path with owner-only permissions.
func SaveAppConfigFile(path string, cfg *AppConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
