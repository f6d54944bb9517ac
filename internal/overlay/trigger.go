package overlay

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var ErrUnknownKind = errors.New("unknown trigger kind")

// Kind selects how a trigger phrase is matched.
type Kind string

const (
	KindPrefix   Kind = "prefix"
	KindContains Kind = "contains"
	KindRegex    Kind = "regex"
)

// Spec is the configuration form of a trigger.
type Spec struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
	// Name is reported as State.Trigger. Defaults to "<kind>:<value>".
	Name string `json:"name,omitempty"`
}

// Trigger is one "notification-worthy" predicate over extracted message text.
type Trigger struct {
	Name  string
	Match func(text string) bool
}

// fold is Unicode case folding. A Caser keeps state between calls, so a fresh
// one is used per call.
func fold(s string) string { return cases.Fold().String(s) }

// Prefix matches text starting with phrase, ignoring case and leading spaces.
func Prefix(phrase string) Trigger {
	want := fold(strings.TrimSpace(phrase))
	return Trigger{
		Name: string(KindPrefix) + ":" + phrase,
		Match: func(text string) bool {
			return want != "" && strings.HasPrefix(fold(strings.TrimLeftFunc(text, unicode.IsSpace)), want)
		},
	}
}

// Contains matches text containing phrase anywhere, ignoring case.
func Contains(phrase string) Trigger {
	want := fold(phrase)
	return Trigger{
		Name: string(KindContains) + ":" + phrase,
		Match: func(text string) bool {
			return want != "" && strings.Contains(fold(text), want)
		},
	}
}

// Regex matches text against expr. Matching is case-insensitive unless expr
// sets its own flags.
func Regex(expr string) (Trigger, error) {
	src := expr
	if !strings.HasPrefix(src, "(?") {
		src = "(?i)" + src
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return Trigger{}, err
	}
	return Trigger{Name: string(KindRegex) + ":" + expr, Match: re.MatchString}, nil
}

// ParseTrigger builds a Trigger from its configuration form.
func ParseTrigger(s Spec) (Trigger, error) {
	if strings.TrimSpace(s.Value) == "" {
		return Trigger{}, errors.New("value is required")
	}
	var (
		t   Trigger
		err error
	)
	switch Kind(strings.ToLower(strings.TrimSpace(string(s.Kind)))) {
	case KindPrefix:
		t = Prefix(s.Value)
	case KindContains, "":
		t = Contains(s.Value)
	case KindRegex:
		t, err = Regex(s.Value)
		if err != nil {
			return Trigger{}, fmt.Errorf("regex: %w", err)
		}
	default:
		return Trigger{}, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if n := strings.TrimSpace(s.Name); n != "" {
		t.Name = n
	}
	return t, nil
}

// ParseTriggers builds every spec, naming the failing index in errors.
func ParseTriggers(path string, specs []Spec) ([]Trigger, error) {
	out := make([]Trigger, 0, len(specs))
	for i, s := range specs {
		t, err := ParseTrigger(s)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", path, i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Classifier decides whether text is notification-worthy.
// The zero value matches nothing.
type Classifier struct {
	triggers []Trigger
}

func NewClassifier(triggers ...Trigger) Classifier {
	ts := make([]Trigger, 0, len(triggers))
	for _, t := range triggers {
		if t.Match != nil {
			ts = append(ts, t)
		}
	}
	return Classifier{triggers: ts}
}

// Classify returns the name of the first matching trigger.
func (c Classifier) Classify(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, t := range c.triggers {
		if t.Match(text) {
			return t.Name, true
		}
	}
	return "", false
}

func (c Classifier) Len() int { return len(c.triggers) }
