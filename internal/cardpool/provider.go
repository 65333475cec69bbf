package cardpool

import (
	"encoding/json"
	"fmt"
	"os"
)

// StaticProvider serves a fixed, in-memory pool. Detection runs once at
// construction; the provider is safe for concurrent readers.
type StaticProvider struct {
	cards  []Card
	fields []NumericField
}

// NewStaticProvider builds a provider over the given cards.
func NewStaticProvider(cards []Card, opts DetectOptions) *StaticProvider {
	owned := make([]Card, len(cards))
	copy(owned, cards)
	return &StaticProvider{
		cards:  owned,
		fields: DetectNumericFields(owned, opts),
	}
}

// Cards returns the ordered pool snapshot.
func (p *StaticProvider) Cards() []Card {
	out := make([]Card, len(p.cards))
	copy(out, p.cards)
	return out
}

// NumericFields reports the detected comparison axes.
func (p *StaticProvider) NumericFields() []NumericField {
	out := make([]NumericField, len(p.fields))
	copy(out, p.fields)
	return out
}

// Size returns the number of cards in the pool.
func (p *StaticProvider) Size() int {
	return len(p.cards)
}

// collectionFile is the on-disk collection format: a plain array of cards
// with an optional options block when wrapped in an object.
type collectionFile struct {
	Cards         []Card            `json:"cards"`
	LowerIsBetter []string          `json:"lowerIsBetter,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
}

// LoadFile reads a JSON collection from disk. Two layouts are accepted: a
// bare array of cards, or an object {cards, lowerIsBetter, labels}. The
// loader does not validate field schemas; it only requires unique, non-empty
// card IDs.
func LoadFile(path string) (*StaticProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cardpool: read collection: %w", err)
	}

	var file collectionFile
	if err := json.Unmarshal(raw, &file.Cards); err != nil {
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("cardpool: parse collection %s: %w", path, err)
		}
	}

	if err := checkIDs(file.Cards); err != nil {
		return nil, fmt.Errorf("cardpool: collection %s: %w", path, err)
	}

	return NewStaticProvider(file.Cards, DetectOptions{
		LowerIsBetter: file.LowerIsBetter,
		Labels:        file.Labels,
	}), nil
}

func checkIDs(cards []Card) error {
	seen := make(map[string]struct{}, len(cards))
	for i, c := range cards {
		if c.ID == "" {
			return fmt.Errorf("card %d has no id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("duplicate card id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}
