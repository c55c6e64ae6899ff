package quiz

import (
	"strconv"
	"strings"
)

const (
	DefaultAmount = 10
	MinAmount     = 1
	MaxAmount     = 50
)

// Identifier is the parsed form of "category|difficulty|amount". Raw keeps the
// original text because it is the cache key and the id echoed to clients.
type Identifier struct {
	Raw        string
	Category   string
	Difficulty string
	Amount     int
}

// ParseIdentifier never fails: missing segments become empty strings and a
// missing or unparsable amount becomes DefaultAmount. Segments are not
// trimmed or case-folded.
func ParseIdentifier(raw string) Identifier {
	parts := strings.Split(raw, "|")
	id := Identifier{Raw: raw, Amount: DefaultAmount}
	if len(parts) > 0 {
		id.Category = parts[0]
	}
	if len(parts) > 1 {
		id.Difficulty = parts[1]
	}
	if len(parts) > 2 {
		if n, ok := leadingInt(parts[2]); ok {
			id.Amount = clampAmount(n)
		}
	}
	return id
}

// Title is the display title for the quiz. It is derived on every request
// and never stored alongside the cached questions.
func (id Identifier) Title() string {
	return id.Category + " (" + id.Difficulty + ")"
}

func clampAmount(n int) int {
	return min(max(n, MinAmount), MaxAmount)
}

// leadingInt reads an optionally signed run of digits at the start of s,
// ignoring surrounding whitespace and any trailing garbage ("12abc" is 12).
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Overflow: the sign decides which bound it clamps to.
		if s[0] == '-' {
			return MinAmount, true
		}
		return MaxAmount, true
	}
	return n, true
}
