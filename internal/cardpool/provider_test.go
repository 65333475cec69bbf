package cardpool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProviderCopies(t *testing.T) {
	p := NewStaticProvider(testCards(), DetectOptions{})

	cards := p.Cards()
	require.Len(t, cards, 3)

	// Mutating the returned slice must not affect later reads.
	cards[0] = Card{ID: "mutated"}
	assert.Equal(t, "a", p.Cards()[0].ID)

	fields := p.NumericFields()
	require.NotEmpty(t, fields)
	fields[0].Key = "mutated"
	assert.NotEqual(t, "mutated", p.NumericFields()[0].Key)
}

func TestLoadFileBareArray(t *testing.T) {
	path := writeCollection(t, `[
		{"id": "one", "title": "One", "fields": {"power": "1"}},
		{"id": "two", "title": "Two", "fields": {"power": "2"}}
	]`)

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Size())
	require.Len(t, p.NumericFields(), 1)
	assert.Equal(t, "power", p.NumericFields()[0].Key)
}

func TestLoadFileWrappedObject(t *testing.T) {
	path := writeCollection(t, `{
		"cards": [
			{"id": "one", "fields": {"weight": "10"}},
			{"id": "two", "fields": {"weight": "20"}}
		],
		"lowerIsBetter": ["weight"],
		"labels": {"weight": "Weight (kg)"}
	}`)

	p, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, p.NumericFields(), 1)
	f := p.NumericFields()[0]
	assert.False(t, f.HigherIsBetter)
	assert.Equal(t, "Weight (kg)", f.Label)
}

func TestLoadFileRejectsDuplicateIDs(t *testing.T) {
	path := writeCollection(t, `[{"id": "dup"}, {"id": "dup"}]`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate card id")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestSampleCollection(t *testing.T) {
	p := Sample()
	require.GreaterOrEqual(t, p.Size(), 8, "sample must be big enough for every mechanic")

	fields := p.NumericFields()
	require.NotEmpty(t, fields)

	var sawLowerWins bool
	for _, f := range fields {
		if !f.HigherIsBetter {
			sawLowerWins = true
		}
		assert.NotEmpty(t, f.Label)
		assert.LessOrEqual(t, f.Min, f.Max)
	}
	assert.True(t, sawLowerWins, "sample should exercise a lower-is-better field")
}

func writeCollection(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collection.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
