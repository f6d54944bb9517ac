package config

import (
	"fmt"
	"strings"
	"time"

	"voicefront/internal/overlay"
	"voicefront/internal/server"
	"voicefront/internal/session"
	"voicefront/internal/skin"
	logx "voicefront/pkg/logx"
)

// LogxConfig maps the logging section.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		JSON:    c.Logging.JSON,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// ServerConfig maps the server section, parsing durations.
func (c *Config) ServerConfig() (server.Config, error) {
	sc := c.Server
	read, err := duration("server.read_timeout", sc.ReadTimeout, 10*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	write, err := duration("server.write_timeout", sc.WriteTimeout, 0)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := duration("server.idle_timeout", sc.IdleTimeout, 60*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	hb, err := duration("server.heartbeat", sc.Heartbeat, 0)
	if err != nil {
		return server.Config{}, err
	}
	if sc.RatePerSec < 0 {
		return server.Config{}, fmt.Errorf("server.rate_per_sec must be >= 0")
	}
	if sc.Burst < 0 {
		return server.Config{}, fmt.Errorf("server.burst must be >= 0")
	}
	if sc.MaxBodyBytes < 0 {
		return server.Config{}, fmt.Errorf("server.max_body_bytes must be >= 0")
	}
	return server.Config{
		Enabled:       sc.Enabled,
		Addr:          strings.TrimSpace(sc.Addr),
		Token:         strings.TrimSpace(sc.Token),
		AllowInsecure: sc.AllowInsecure,
		AllowOrigins:  sc.AllowOrigins,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
		RatePerSec:    sc.RatePerSec,
		Burst:         sc.Burst,
		MaxBodyBytes:  sc.MaxBodyBytes,
		Heartbeat:     hb,
		Pprof:         sc.Pprof,
	}, nil
}

// SkinPatch maps a skins.<id> entry.
func (sc SkinConfig) SkinPatch(id string) (*skin.Patch, error) {
	dwell, err := duration("skins."+id+".dwell", sc.Dwell, 0)
	if err != nil {
		return nil, err
	}
	return &skin.Patch{
		CompanyName:               sc.CompanyName,
		PageTitle:                 sc.PageTitle,
		PageDescription:           sc.PageDescription,
		SupportsChatInput:         sc.SupportsChatInput,
		SupportsVideoInput:        sc.SupportsVideoInput,
		SupportsScreenShare:       sc.SupportsScreenShare,
		IsPreConnectBufferEnabled: sc.IsPreConnectBufferEnabled,
		Logo:                      sc.Logo,
		LogoDark:                  sc.LogoDark,
		Accent:                    sc.Accent,
		AccentDark:                sc.AccentDark,
		StartButtonText:           sc.StartButtonText,
		SandboxID:                 sc.SandboxID,
		AgentName:                 sc.AgentName,
		Triggers:                  sc.Triggers,
		Dwell:                     dwell,
	}, nil
}

// SessionConfig resolves the active skin (with its override, if any) and
// checks that its trigger vocabulary compiles.
func (c *Config) SessionConfig() (session.Config, error) {
	id := skin.NormalizeID(c.Session.Skin)
	if id == "" {
		id = skin.Default
	}
	var patch *skin.Patch
	if key, sc, ok := c.skinOverride(id); ok {
		p, err := sc.SkinPatch(key)
		if err != nil {
			return session.Config{}, err
		}
		patch = p
	}
	sk, err := skin.Resolve(id, patch)
	if err != nil {
		return session.Config{}, fmt.Errorf("session.skin: %w", err)
	}
	local := strings.TrimSpace(c.Session.LocalIdentity)
	if _, err := sk.OverlayConfig(local); err != nil {
		return session.Config{}, err
	}
	return session.Config{Skin: sk, LocalIdentity: local}, nil
}

// skinOverride finds the skins entry for a normalized id. Keys match
// case-insensitively, like session.skin.
func (c *Config) skinOverride(id string) (string, SkinConfig, bool) {
	if sc, ok := c.Skins[id]; ok {
		return id, sc, true
	}
	for key, sc := range c.Skins {
		if skin.NormalizeID(key) == id {
			return key, sc, true
		}
	}
	return "", SkinConfig{}, false
}

// Validate checks every section, including skins that are not active, so a
// bad hot reload is rejected before anything is applied.
func (c *Config) Validate() error {
	if !logx.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: invalid %q", c.Logging.Level)
	}
	if _, err := c.ServerConfig(); err != nil {
		return err
	}
	seen := make(map[string]string, len(c.Skins))
	for id, sc := range c.Skins {
		norm := skin.NormalizeID(id)
		if norm == "" {
			return fmt.Errorf("skins: empty skin id")
		}
		if other, dup := seen[norm]; dup {
			return fmt.Errorf("skins.%s: duplicates skins.%s (ids are case-insensitive)", id, other)
		}
		seen[norm] = id
		if _, err := sc.SkinPatch(id); err != nil {
			return err
		}
		if sc.Triggers != nil {
			if _, err := overlay.ParseTriggers("skins."+id+".triggers", sc.Triggers); err != nil {
				return err
			}
		}
	}
	_, err := c.SessionConfig()
	return err
}
