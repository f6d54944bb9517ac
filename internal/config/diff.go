package config

import (
	"reflect"
	"sort"
	"strings"

	logx "voicefront/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the ids of skins whose overrides changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.json", newCfg.Logging.JSON),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Server (never log token)
	oldSrv, newSrv := oldCfg.Server, newCfg.Server
	tokenChanged := strings.TrimSpace(oldSrv.Token) != strings.TrimSpace(newSrv.Token)
	oldSrv.Token, newSrv.Token = "", ""
	if tokenChanged || !reflect.DeepEqual(oldSrv, newSrv) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Bool("server.enabled", newSrv.Enabled),
			logx.String("server.addr", strings.TrimSpace(newSrv.Addr)),
			logx.Bool("server.token_set", strings.TrimSpace(newCfg.Server.Token) != ""),
			logx.Bool("server.token_changed", tokenChanged),
			logx.Bool("server.allow_insecure", newSrv.AllowInsecure),
			logx.Float64("server.rate_per_sec", newSrv.RatePerSec),
			logx.Bool("server.pprof", newSrv.Pprof),
		)
	}

	if oldCfg.Session != newCfg.Session {
		changed = append(changed, "session")
		attrs = append(attrs,
			logx.String("session.skin", newCfg.Session.Skin),
			logx.String("session.local_identity", newCfg.Session.LocalIdentity),
		)
	}

	var skins []string
	seen := map[string]struct{}{}
	for id := range oldCfg.Skins {
		seen[id] = struct{}{}
	}
	for id := range newCfg.Skins {
		seen[id] = struct{}{}
	}
	for id := range seen {
		o, oOK := oldCfg.Skins[id]
		n, nOK := newCfg.Skins[id]
		if oOK != nOK || !reflect.DeepEqual(o, n) {
			skins = append(skins, id)
		}
	}
	if len(skins) > 0 {
		sort.Strings(skins)
		changed = append(changed, "skins")
		attrs = append(attrs, logx.String("skins.changed", strings.Join(skins, ",")))
	}

	return changed, attrs, skins
}
