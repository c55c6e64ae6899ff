package quiz

import (
	"math/rand/v2"

	"github.com/momentumhq/momentum/internal/triviaapi"
)

// Question is the client-facing question shape. Options[CorrectIndex] is the
// correct answer.
type Question struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// Shuffler supplies uniform integers in [0, n). *rand.Rand satisfies it.
type Shuffler interface {
	IntN(n int) int
}

type globalShuffler struct{}

func (globalShuffler) IntN(n int) int { return rand.IntN(n) }

// Normalize builds a Question with the options in uniformly random order.
func Normalize(raw triviaapi.RawQuestion, rng Shuffler) Question {
	if rng == nil {
		rng = globalShuffler{}
	}
	options := make([]string, 0, len(raw.IncorrectAnswers)+1)
	options = append(options, raw.CorrectAnswer)
	options = append(options, raw.IncorrectAnswers...)

	// Fisher-Yates, walking down from the last index.
	for i := len(options) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		options[i], options[j] = options[j], options[i]
	}

	correct := 0
	for i, opt := range options {
		if opt == raw.CorrectAnswer {
			correct = i
			break
		}
	}
	return Question{
		Prompt:       string(raw.Prompt),
		Options:      options,
		CorrectIndex: correct,
	}
}

// NormalizeAll normalizes every record in provider order.
func NormalizeAll(raws []triviaapi.RawQuestion, rng Shuffler) []Question {
	out := make([]Question, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw, rng))
	}
	return out
}
