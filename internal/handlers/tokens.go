package handlers

import "strings"

// Confirmation token classes. Anything outside both classes makes the
// handler re-ask the yes/no question verbatim.
var (
	yesTokens = map[string]bool{
		"yes": true, "y": true, "confirm": true, "ok": true, "proceed": true,
	}
	noTokens = map[string]bool{
		"no": true, "n": true, "cancel": true, "modify": true, "change": true,
	}
)

type answer int

const (
	answerOther answer = iota
	answerYes
	answerNo
)

func classifyAnswer(text string) answer {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case yesTokens[t]:
		return answerYes
	case noTokens[t]:
		return answerNo
	default:
		return answerOther
	}
}

// splitIDs splits free text into candidate alert identifiers: comma
// separated, trimmed, empties dropped.
func splitIDs(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
