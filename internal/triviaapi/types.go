package triviaapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// RawQuestion is the provider's question record. Only the fields the
// normalizer reads are decoded; everything else is ignored.
type RawQuestion struct {
	Prompt           Prompt   `json:"question"`
	CorrectAnswer    string   `json:"correctAnswer"`
	IncorrectAnswers []string `json:"incorrectAnswers"`
}

// Prompt accepts both the v2 shape ({"text": "..."}) and a bare string.
type Prompt string

func (p *Prompt) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*p = Prompt(text)
		return nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("triviaapi: question prompt: %w", err)
	}
	*p = Prompt(obj.Text)
	return nil
}

// Category is one taxonomy entry: a display name plus its subcategory tags.
type Category struct {
	Name          string
	Subcategories []string
}

// Taxonomy lists categories in provider order.
type Taxonomy []Category

// Names returns the category names in order.
func (t Taxonomy) Names() []string {
	out := make([]string, len(t))
	for i, c := range t {
		out[i] = c.Name
	}
	return out
}

// decodeTaxonomy walks the JSON object token by token because decoding into
// a map would lose the key order the catalog depends on.
func decodeTaxonomy(r io.Reader) (Taxonomy, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected a JSON object")
	}

	var out Taxonomy
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", keyTok)
		}
		var tags []string
		if err := dec.Decode(&tags); err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		out = append(out, Category{Name: name, Subcategories: tags})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
