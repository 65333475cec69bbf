package cardpool

import (
	"sort"
	"strconv"
	"strings"
)

// NumericField describes one field whose values are numeric across the whole
// pool, with the observed value range. Comparison mechanics treat this report
// as authoritative and fixed for a game's duration.
type NumericField struct {
	Key            string  `json:"key"`
	Label          string  `json:"label"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	HigherIsBetter bool    `json:"higherIsBetter"`
}

// DetectOptions tunes numeric-field detection. The zero value is usable.
type DetectOptions struct {
	// LowerIsBetter lists field keys where the smaller value wins a
	// comparison (e.g. weight, rank). Every other numeric field defaults to
	// higher-is-better.
	LowerIsBetter []string

	// Labels overrides the display label per field key. Keys without an
	// override get a title-cased form of the key.
	Labels map[string]string
}

// DetectNumericFields scans all cards for fields that are consistently
// numeric: the field must be present on every card and every value must parse
// as a number. Fields are reported in sorted key order so the axes are stable
// across runs; downstream tie-breaks rely on this order.
func DetectNumericFields(cards []Card, opts DetectOptions) []NumericField {
	if len(cards) == 0 {
		return nil
	}

	lowerWins := make(map[string]bool, len(opts.LowerIsBetter))
	for _, key := range opts.LowerIsBetter {
		lowerWins[key] = true
	}

	fields := make([]NumericField, 0, len(cards[0].Fields))
	for _, key := range fieldOrder(cards[0]) {
		min, max, ok := scanField(cards, key)
		if !ok {
			continue
		}

		label := opts.Labels[key]
		if label == "" {
			label = titleCaseKey(key)
		}

		fields = append(fields, NumericField{
			Key:            key,
			Label:          label,
			Min:            min,
			Max:            max,
			HigherIsBetter: !lowerWins[key],
		})
	}

	return fields
}

// scanField parses key on every card, returning the observed range. ok is
// false when any card lacks the field or carries a non-numeric value.
func scanField(cards []Card, key string) (min, max float64, ok bool) {
	for i, card := range cards {
		raw, present := card.Fields[key]
		if !present {
			return 0, 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return 0, 0, false
		}
		if i == 0 {
			min, max = v, v
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, true
}

// Normalise maps v into [0,1] within the field's observed range. A degenerate
// range (min == max) yields 0.5 so every card stands equal on that axis.
func (f NumericField) Normalise(v float64) float64 {
	if f.Max == f.Min {
		return 0.5
	}
	n := (v - f.Min) / (f.Max - f.Min)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// Value parses the card's raw value for this field.
func (f NumericField) Value(c Card) (float64, bool) {
	raw, ok := c.Fields[f.Key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// fieldOrder returns the card's field keys sorted for deterministic output.
func fieldOrder(c Card) []string {
	keys := make([]string, 0, len(c.Fields))
	for key := range c.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// titleCaseKey turns a snake_case or kebab-case key into a display label,
// e.g. "memory_kb" -> "Memory Kb".
func titleCaseKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
