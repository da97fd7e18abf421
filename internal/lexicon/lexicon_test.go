package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTablesDecode(t *testing.T) {
	lex, err := Default()
	require.NoError(t, err)

	assert.Len(t, lex.PainPoints, 10)
	assert.Len(t, lex.CodeMix.Categories, 5)
	assert.Len(t, lex.Personality.Traits, 8)
	assert.Contains(t, lex.Parser.ChromePhrases, "suggested for you")
	assert.Contains(t, lex.General.BuyingIntent, "looking for")
	assert.NotEmpty(t, lex.CodeMix.Categories[BusinessCategory])
}

func TestLoadOverrideFile(t *testing.T) {
	data, err := os.ReadFile("default.toml")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "lexicon.toml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	lex, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, MustDefault().Signals, lex.Signals)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseRejectsInvalidTables(t *testing.T) {
	_, err := Parse([]byte(`[language]
function_words = []
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`[unknown]
x = 1
`))
	assert.Error(t, err, "unknown tables are rejected")
}

func TestValidateSeverity(t *testing.T) {
	lex := MustDefault()
	lex.PainPoints[0].Severity = "critical"
	assert.Error(t, lex.Validate())
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"we", "can't", "afford", "the", "co-founder", "plan"},
		Tokenize("We can’t afford the Co-Founder plan!"))
	assert.Equal(t, []string{"photo", "video"}, Tokenize("Photo/Video"))
	assert.Equal(t, []string{"ok"}, Tokenize("  -ok-  "))
	assert.Empty(t, Tokenize("... !!!"))
}

func TestTextCountsPhrasesOnWordBoundaries(t *testing.T) {
	text := NewText("Looking for a CRM. Still looking for one; the catalog is great")

	assert.Equal(t, 2, text.Count("looking for"))
	assert.Equal(t, 0, text.Count("cat"), "substrings inside words do not match")
	assert.True(t, text.Has("GREAT"))
	assert.Equal(t, 12, text.WordCount())
}

func TestMatchesAndOccurrences(t *testing.T) {
	text := NewText("busy busy week, deadline tomorrow and overtime again")
	list := []string{"busy", "deadline", "Busy", "no time", "overtime"}

	assert.Equal(t, []string{"busy", "deadline", "overtime"}, text.Matches(list))
	assert.Equal(t, 4, text.Occurrences(list), "duplicate list entries are counted once")
}

func TestCategoryHitsAndSortedKeys(t *testing.T) {
	cats := map[string][]string{
		"b": {"sales", "leads"},
		"a": {"gym"},
	}
	hits := NewText("more sales and more leads").CategoryHits(cats)

	assert.Equal(t, map[string]int{"a": 0, "b": 2}, hits)
	assert.Equal(t, []string{"a", "b"}, SortedKeys(cats))
}
