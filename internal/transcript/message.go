package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Message is one raw transcript record as delivered by the transport.
type Message map[string]any

// Author is the display side of a line.
type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
)

// DefaultLocalIdentity is the identity the transport assigns to the local human user.
const DefaultLocalIdentity = "user"

var ErrInvalidSnapshot = errors.New("invalid transcript snapshot")

// identityFields are checked in order. The later two are what the transport's
// transcription segments carry.
var identityFields = []string{"identity", "senderIdentity", "participantIdentity"}

// Identity returns the author identity, or "" when the record carries none.
func (m Message) Identity() string {
	for _, k := range identityFields {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// IsFrom reports whether the record was authored by localIdentity.
//
// Records without any identity fall back to the transport's isLocal flag.
// A record with neither is never the local user.
func (m Message) IsFrom(localIdentity string) bool {
	if localIdentity == "" {
		localIdentity = DefaultLocalIdentity
	}
	if id := m.Identity(); id != "" {
		return id == localIdentity
	}
	local, _ := m["isLocal"].(bool)
	return local
}

// AuthorFor classifies the record for display.
func (m Message) AuthorFor(localIdentity string) Author {
	if m.IsFrom(localIdentity) {
		return AuthorUser
	}
	return AuthorAgent
}

// Key returns the stable rendering key of the record at position index.
//
// Without an id the positional index is used. Such keys are only stable while
// the list is append-only; a reordered or spliced list will churn them.
func (m Message) Key(index int) string {
	switch v := m["id"].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return strconv.Itoa(index)
}

// Decode parses a snapshot body. Both a bare JSON array and an object of the
// form {"messages": [...]} are accepted. Entries that are not JSON objects
// decode to empty records so they render as nothing instead of failing the
// whole snapshot.
func Decode(b []byte) ([]Message, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidSnapshot)
	}

	var raw []json.RawMessage
	switch b[0] {
	case '[':
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	case '{':
		var env struct {
			Messages []json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(b, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		raw = env.Messages
	default:
		return nil, fmt.Errorf("%w: expected array or object", ErrInvalidSnapshot)
	}

	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal(r, &m); err != nil || m == nil {
			m = Message{}
		}
		out = append(out, m)
	}
	return out, nil
}

// String is used in debug logs only; it never includes the text payload.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString("message{")
	if id, ok := m["id"]; ok {
		fmt.Fprintf(&b, "id=%v ", id)
	}
	fmt.Fprintf(&b, "identity=%q fields=%d}", m.Identity(), len(m))
	return b.String()
}
