package transcript

// ExtractText returns the best-effort text payload of a record.
//
// Resolution order (first match wins):
//  1. string "text"
//  2. string "message"
//  3. object "message" with a string "text"
//  4. string "payload"
//
// Anything else yields "". Callers treat "" as nothing to display.
func ExtractText(m Message) string {
	if m == nil {
		return ""
	}
	if s, ok := m["text"].(string); ok {
		return s
	}
	switch v := m["message"].(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["text"].(string); ok {
			return s
		}
	case Message:
		if s, ok := v["text"].(string); ok {
			return s
		}
	}
	if s, ok := m["payload"].(string); ok {
		return s
	}
	return ""
}

// DisplayLine is one derived row of the scroll-back view.
type DisplayLine struct {
	Key    string `json:"key"`
	Author Author `json:"author"`
	Text   string `json:"text"`
}

// Empty reports whether the line has nothing to display.
func (l DisplayLine) Empty() bool { return l.Text == "" }

// Render derives a display line for every record of the snapshot.
// Lines keep the snapshot's order and length.
func Render(msgs []Message, localIdentity string) []DisplayLine {
	out := make([]DisplayLine, len(msgs))
	for i, m := range msgs {
		out[i] = DisplayLine{
			Key:    m.Key(i),
			Author: m.AuthorFor(localIdentity),
			Text:   ExtractText(m),
		}
	}
	return out
}

// Visible returns the lines that have text, preserving order.
func Visible(lines []DisplayLine) []DisplayLine {
	out := make([]DisplayLine, 0, len(lines))
	for _, l := range lines {
		if !l.Empty() {
			out = append(out, l)
		}
	}
	return out
}
