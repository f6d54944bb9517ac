package overlay

import (
	"errors"
	"testing"
)

func TestTriggerMatching(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		trig Trigger
		text string
		want bool
	}{
		{name: "prefix exact", trig: Prefix("Status Window"), text: "Status Window — HP: 80/100", want: true},
		{name: "prefix case", trig: Prefix("status window"), text: "STATUS WINDOW", want: true},
		{name: "prefix leading space", trig: Prefix("Status Window"), text: "  \tstatus window open", want: true},
		{name: "prefix mid-text", trig: Prefix("Status Window"), text: "Open the status window", want: false},
		{name: "contains", trig: Contains("HP:"), text: "Your hp: 3/10", want: true},
		{name: "contains miss", trig: Contains("HP:"), text: "hp 3/10", want: false},
		{name: "contains unicode fold", trig: Contains("ÉCLAIR"), text: "an éclair appears", want: true},
		{name: "empty phrase never matches", trig: Contains(""), text: "anything", want: false},
		{name: "empty prefix never matches", trig: Prefix("  "), text: "anything", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trig.Match(tt.text); got != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseTrigger(t *testing.T) {
	t.Parallel()

	tr, err := ParseTrigger(Spec{Kind: "PREFIX", Value: "[system]"})
	if err != nil {
		t.Fatalf("ParseTrigger error: %v", err)
	}
	if tr.Name != "prefix:[system]" || !tr.Match("[SYSTEM] level up") {
		t.Fatalf("unexpected trigger %q", tr.Name)
	}

	tr, err = ParseTrigger(Spec{Value: "vitals", Name: "vitals"})
	if err != nil {
		t.Fatalf("ParseTrigger error: %v", err)
	}
	if tr.Name != "vitals" || !tr.Match("VITALS ok") {
		t.Fatalf("default kind should be contains, got %q", tr.Name)
	}

	tr, err = ParseTrigger(Spec{Kind: KindRegex, Value: `hp:\s*\d+/\d+`})
	if err != nil {
		t.Fatalf("ParseTrigger error: %v", err)
	}
	if !tr.Match("HP: 80/100") || tr.Match("HP: full") {
		t.Fatal("regex trigger should be case-insensitive and anchored on digits")
	}

	if _, err := ParseTrigger(Spec{Kind: "fuzzy", Value: "x"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := ParseTrigger(Spec{Kind: KindPrefix, Value: " "}); err == nil {
		t.Fatal("expected error for empty value")
	}
	if _, err := ParseTrigger(Spec{Kind: KindRegex, Value: "("}); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestParseTriggersNamesIndex(t *testing.T) {
	t.Parallel()
	_, err := ParseTriggers("overlay.triggers", []Spec{{Kind: KindPrefix, Value: "a"}, {Kind: "nope", Value: "b"}})
	if err == nil || err.Error() != `overlay.triggers[1]: unknown trigger kind: "nope"` {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClassifierFirstMatchWins(t *testing.T) {
	t.Parallel()
	c := NewClassifier(Contains("hp:"), Prefix("status"), Trigger{Name: "nil"})
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (nil matchers dropped)", c.Len())
	}
	name, ok := c.Classify("Status — HP: 1")
	if !ok || name != "contains:hp:" {
		t.Fatalf("Classify = %q, %v", name, ok)
	}
	if _, ok := c.Classify(""); ok {
		t.Fatal("empty text must not classify")
	}
	if _, ok := (Classifier{}).Classify("HP: 1"); ok {
		t.Fatal("zero classifier must match nothing")
	}
}
