// Package skin holds the branded front-end skins served by voicefront.
//
// A skin is branding data for the rendering layer plus the overlay
// vocabulary that decides which agent lines count as notable events. Config
// can override any field of a built-in skin or define new ones.
package skin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"voicefront/internal/overlay"
)

var ErrUnknownSkin = errors.New("unknown skin")

// Skin is what a front end needs to brand itself.
type Skin struct {
	ID              string `json:"id"`
	CompanyName     string `json:"company_name"`
	PageTitle       string `json:"page_title"`
	PageDescription string `json:"page_description"`

	SupportsChatInput         bool `json:"supports_chat_input"`
	SupportsVideoInput        bool `json:"supports_video_input"`
	SupportsScreenShare       bool `json:"supports_screen_share"`
	IsPreConnectBufferEnabled bool `json:"is_pre_connect_buffer_enabled"`

	Logo            string `json:"logo"`
	LogoDark        string `json:"logo_dark,omitempty"`
	Accent          string `json:"accent,omitempty"`
	AccentDark      string `json:"accent_dark,omitempty"`
	StartButtonText string `json:"start_button_text"`

	SandboxID string `json:"sandbox_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`

	Overlay Overlay `json:"overlay"`
}

// Overlay is the skin's notification vocabulary.
type Overlay struct {
	Triggers []overlay.Spec `json:"triggers"`
	Dwell    time.Duration  `json:"-"`
}

// Default is the skin used when none is configured.
const Default = "zepto"

// DungeonTriggers is the reference vocabulary: a status window opener, a
// vitals marker and an explicit system-message marker.
func DungeonTriggers() []overlay.Spec {
	return []overlay.Spec{
		{Kind: overlay.KindPrefix, Value: "Status Window", Name: "status_window"},
		{Kind: overlay.KindContains, Value: "HP:", Name: "vitals"},
		{Kind: overlay.KindPrefix, Value: "[SYSTEM]", Name: "system"},
	}
}

var builtins = map[string]Skin{
	"zepto": {
		ID:                        "zepto",
		CompanyName:               "Zepto",
		PageTitle:                 "Zepto — Voice Commerce Agent",
		PageDescription:           "Browse products, compare options, and place orders using only your voice.",
		SupportsChatInput:         true,
		SupportsVideoInput:        true,
		SupportsScreenShare:       true,
		IsPreConnectBufferEnabled: true,
		Logo:                      "/Zepto-logo.svg",
		LogoDark:                  "/Zepto-logo-dark.svg",
		Accent:                    "#22c55e",
		AccentDark:                "#22c55e",
		StartButtonText:           "Start shopping",
		Overlay: Overlay{
			Triggers: []overlay.Spec{
				{Kind: overlay.KindPrefix, Value: "Order placed", Name: "order"},
				{Kind: overlay.KindContains, Value: "added to your cart", Name: "cart"},
				{Kind: overlay.KindPrefix, Value: "[SYSTEM]", Name: "system"},
			},
			Dwell: overlay.DefaultDwell,
		},
	},
	"solo-leveling": {
		ID:                        "solo-leveling",
		CompanyName:               "Solo Leveling",
		PageTitle:                 "Solo Leveling – Dungeon Run",
		PageDescription:           "Enter the Gate as a low-rank Hunter. The System narrates your fate and tracks your HP.",
		SupportsChatInput:         true,
		IsPreConnectBufferEnabled: true,
		Logo:                      "/solo-leveling-logo.svg",
		Accent:                    "#60a5fa",
		StartButtonText:           "Enter the Gate",
		Overlay: Overlay{
			Triggers: DungeonTriggers(),
			Dwell:    overlay.DefaultDwell,
		},
	},
	"physics-wallah": {
		ID:                        "physics-wallah",
		CompanyName:               "Physics Wallah",
		PageTitle:                 "Physics Wallah — Coding Tutor",
		PageDescription:           "Learn, get quizzed, and teach back programming concepts by voice.",
		SupportsChatInput:         true,
		IsPreConnectBufferEnabled: true,
		Logo:                      "/pw-logo.svg",
		Accent:                    "#f59e0b",
		StartButtonText:           "Start learning",
		Overlay: Overlay{
			Triggers: []overlay.Spec{
				{Kind: overlay.KindPrefix, Value: "Switching to", Name: "mode"},
				{Kind: overlay.KindContains, Value: "Score:", Name: "score"},
				{Kind: overlay.KindPrefix, Value: "[SYSTEM]", Name: "system"},
			},
			Dwell: 5 * time.Second,
		},
	},
}

// IDs lists the built-in skin ids, sorted.
func IDs() []string {
	out := make([]string, 0, len(builtins))
	for id := range builtins {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Builtin returns a copy of a built-in skin.
func Builtin(id string) (Skin, bool) {
	s, ok := builtins[NormalizeID(id)]
	if !ok {
		return Skin{}, false
	}
	s.Overlay.Triggers = append([]overlay.Spec(nil), s.Overlay.Triggers...)
	return s, true
}

// Patch overrides a skin. Nil fields keep the base value; a non-nil Triggers
// slice replaces the whole vocabulary.
type Patch struct {
	CompanyName     *string
	PageTitle       *string
	PageDescription *string

	SupportsChatInput         *bool
	SupportsVideoInput        *bool
	SupportsScreenShare       *bool
	IsPreConnectBufferEnabled *bool

	Logo            *string
	LogoDark        *string
	Accent          *string
	AccentDark      *string
	StartButtonText *string
	SandboxID       *string
	AgentName       *string

	Triggers []overlay.Spec
	Dwell    time.Duration
}

// Resolve returns skin id with patch applied. Unknown ids start from the
// default skin's branding when a patch is given, so config can add skins.
func Resolve(id string, patch *Patch) (Skin, error) {
	id = NormalizeID(id)
	if id == "" {
		id = Default
	}
	base, ok := Builtin(id)
	if !ok {
		if patch == nil {
			return Skin{}, fmt.Errorf("%w: %q", ErrUnknownSkin, id)
		}
		base, _ = Builtin(Default)
		base.ID = id
	}
	if patch != nil {
		patch.apply(&base)
	}
	if base.Overlay.Dwell <= 0 {
		base.Overlay.Dwell = overlay.DefaultDwell
	}
	return base, nil
}

func (p *Patch) apply(s *Skin) {
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setStr(&s.CompanyName, p.CompanyName)
	setStr(&s.PageTitle, p.PageTitle)
	setStr(&s.PageDescription, p.PageDescription)
	setBool(&s.SupportsChatInput, p.SupportsChatInput)
	setBool(&s.SupportsVideoInput, p.SupportsVideoInput)
	setBool(&s.SupportsScreenShare, p.SupportsScreenShare)
	setBool(&s.IsPreConnectBufferEnabled, p.IsPreConnectBufferEnabled)
	setStr(&s.Logo, p.Logo)
	setStr(&s.LogoDark, p.LogoDark)
	setStr(&s.Accent, p.Accent)
	setStr(&s.AccentDark, p.AccentDark)
	setStr(&s.StartButtonText, p.StartButtonText)
	setStr(&s.SandboxID, p.SandboxID)
	setStr(&s.AgentName, p.AgentName)
	if p.Triggers != nil {
		s.Overlay.Triggers = append([]overlay.Spec(nil), p.Triggers...)
	}
	if p.Dwell > 0 {
		s.Overlay.Dwell = p.Dwell
	}
}

// OverlayConfig builds the engine configuration for this skin.
func (s Skin) OverlayConfig(localIdentity string) (overlay.Config, error) {
	ts, err := overlay.ParseTriggers("skins."+s.ID+".triggers", s.Overlay.Triggers)
	if err != nil {
		return overlay.Config{}, err
	}
	return overlay.Config{Triggers: ts, Dwell: s.Overlay.Dwell, LocalIdentity: localIdentity}, nil
}

// NormalizeID is the canonical form of a skin id: trimmed and lower-case.
func NormalizeID(id string) string { return strings.ToLower(strings.TrimSpace(id)) }
