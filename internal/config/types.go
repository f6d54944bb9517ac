package config

import (
	"voicefront/internal/overlay"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Server  ServerConfig  `json:"server"`
	Session SessionConfig `json:"session"`

	// Skins overrides built-in skins or defines new ones, keyed by skin id.
	Skins map[string]SkinConfig `json:"skins,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ServerConfig controls the HTTP API.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8787").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type ServerConfig struct {
	Enabled       bool     `json:"enabled"`
	Addr          string   `json:"addr,omitempty"`  // default: "127.0.0.1:8787"
	Token         string   `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool     `json:"allow_insecure,omitempty"`
	AllowOrigins  []string `json:"allow_origins,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 so
	// event streams stay open.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Snapshot ingest limits.
	RatePerSec   float64 `json:"rate_per_sec,omitempty"`
	Burst        int     `json:"burst,omitempty"`
	MaxBodyBytes int64   `json:"max_body_bytes,omitempty"`

	// Heartbeat is the SSE keep-alive interval (Go duration string, default "15s").
	Heartbeat string `json:"heartbeat,omitempty"`

	Pprof bool `json:"pprof,omitempty"`
}

type SessionConfig struct {
	// Skin selects the active skin id (default "zepto").
	Skin string `json:"skin,omitempty"`
	// LocalIdentity is the identity string of the local user (default "user").
	LocalIdentity string `json:"local_identity,omitempty"`
}

// SkinConfig overrides a skin. Omitted fields keep the built-in value; a
// present triggers list replaces the whole vocabulary.
type SkinConfig struct {
	CompanyName     *string `json:"company_name,omitempty"`
	PageTitle       *string `json:"page_title,omitempty"`
	PageDescription *string `json:"page_description,omitempty"`

	SupportsChatInput         *bool `json:"supports_chat_input,omitempty"`
	SupportsVideoInput        *bool `json:"supports_video_input,omitempty"`
	SupportsScreenShare       *bool `json:"supports_screen_share,omitempty"`
	IsPreConnectBufferEnabled *bool `json:"is_pre_connect_buffer_enabled,omitempty"`

	Logo            *string `json:"logo,omitempty"`
	LogoDark        *string `json:"logo_dark,omitempty"`
	Accent          *string `json:"accent,omitempty"`
	AccentDark      *string `json:"accent_dark,omitempty"`
	StartButtonText *string `json:"start_button_text,omitempty"`
	SandboxID       *string `json:"sandbox_id,omitempty"`
	AgentName       *string `json:"agent_name,omitempty"`

	Triggers []overlay.Spec `json:"triggers,omitempty"`
	// Dwell is a Go duration string (e.g. "4s").
	Dwell string `json:"dwell,omitempty"`
}
