// Package cardpool defines the card data model shared by all mechanics and
// the provider boundary through which a mechanic obtains its working pool.
package cardpool

// Card is one card-like item from the active collection. Fields carries
// arbitrary per-card data as raw strings; numeric fields are discovered by
// scanning the whole pool (see DetectNumericFields).
type Card struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Field returns the raw value for key and whether the card carries it.
func (c Card) Field(key string) (string, bool) {
	v, ok := c.Fields[key]
	return v, ok
}

// Provider supplies the ordered card pool a mechanic plays with. The pool is
// treated as fixed for the lifetime of a game; mechanics re-pull it on every
// InitGame. Implementations must return cards in a stable order, and callers
// must treat the returned values as read-only.
type Provider interface {
	// Cards returns the ordered pool snapshot.
	Cards() []Card

	// NumericFields reports the comparison axes discovered across the pool.
	NumericFields() []NumericField
}
