/**
 * Keyword tables for the scan heuristics
 *
 * Every list the parser, recognizer and analyzers consult lives here as data.
 * The built-in tables are embedded; LEXICON_PATH can point at a replacement file
 * with the same layout.
 */

package lexicon

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

//go:embed default.toml
var defaultTables []byte

// Lexicon is the full set of keyword tables
type Lexicon struct {
	Language    LanguageTables    `toml:"language"`
	Parser      ParserTables      `toml:"parser"`
	General     GeneralTables     `toml:"general"`
	CodeMix     CodeMixTables     `toml:"codemix"`
	Personality PersonalityTables `toml:"personality"`
	PainPoints  []PainCategory    `toml:"pain_points"`
	Signals     SignalTables      `toml:"signals"`
}

// LanguageTables drive the per-result language guess
type LanguageTables struct {
	FunctionWords []string `toml:"function_words"`
	MixingMarkers []string `toml:"mixing_markers"`
}

type ParserTables struct {
	ChromePhrases  []string `toml:"chrome_phrases"`
	NameConnectors []string `toml:"name_connectors"`
}

type GeneralTables struct {
	Positive     []string            `toml:"positive"`
	Negative     []string            `toml:"negative"`
	BuyingIntent []string            `toml:"buying_intent"`
	OrgSuffixes  []string            `toml:"org_suffixes"`
	Locations    []string            `toml:"locations"`
	Topics       map[string][]string `toml:"topics"`
	Interests    map[string][]string `toml:"interests"`
	Industries   map[string][]string `toml:"industries"`
}

// CodeMixTables hold the secondary-language vocabulary
type CodeMixTables struct {
	CulturalMarkers []string            `toml:"cultural_markers"`
	BuyingIntent    []string            `toml:"buying_intent"`
	Categories      map[string][]string `toml:"categories"`
}

type PersonalityTables struct {
	Formal        []string            `toml:"formal"`
	Casual        []string            `toml:"casual"`
	DecisionMaker []string            `toml:"decision_maker"`
	Influencer    []string            `toml:"influencer"`
	Traits        map[string][]string `toml:"traits"`
}

// PainCategory is one pain-point category with its default severity
type PainCategory struct {
	Category string   `toml:"category"`
	Severity string   `toml:"severity"`
	Keywords []string `toml:"keywords"`
}

type SignalTables struct {
	Urgency     []string `toml:"urgency"`
	Frustration []string `toml:"frustration"`
}

// BusinessCategory is the secondary-language category the scorer rewards
const BusinessCategory = "business"

// Default decodes the embedded tables
func Default() (*Lexicon, error) {
	return Parse(defaultTables)
}

// MustDefault is Default for callers that cannot recover, such as tests and init paths
func MustDefault() *Lexicon {
	lex, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon is invalid: %v", err))
	}
	return lex
}

// Load reads tables from path, or returns the embedded tables when path is empty
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}

	lex, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lex, nil
}

// Parse decodes TOML tables and validates them
func Parse(data []byte) (*Lexicon, error) {
	var lex Lexicon
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&lex); err != nil {
		return nil, fmt.Errorf("failed to decode lexicon: %w", err)
	}

	if err := lex.Validate(); err != nil {
		return nil, err
	}
	return &lex, nil
}

// Validate checks that the tables the pipeline depends on are present
func (l *Lexicon) Validate() error {
	required := map[string][]string{
		"language.function_words":    l.Language.FunctionWords,
		"language.mixing_markers":    l.Language.MixingMarkers,
		"parser.chrome_phrases":      l.Parser.ChromePhrases,
		"general.positive":           l.General.Positive,
		"general.negative":           l.General.Negative,
		"general.buying_intent":      l.General.BuyingIntent,
		"codemix.cultural_markers":   l.CodeMix.CulturalMarkers,
		"personality.formal":         l.Personality.Formal,
		"personality.casual":         l.Personality.Casual,
		"personality.decision_maker": l.Personality.DecisionMaker,
		"signals.urgency":            l.Signals.Urgency,
	}
	for name, list := range required {
		if len(list) == 0 {
			return fmt.Errorf("lexicon table %s is empty", name)
		}
	}

	if len(l.CodeMix.Categories[BusinessCategory]) == 0 {
		return fmt.Errorf("lexicon table codemix.categories.%s is empty", BusinessCategory)
	}

	for i, pc := range l.PainPoints {
		if pc.Category == "" {
			return fmt.Errorf("pain_points[%d] has no category", i)
		}
		switch pc.Severity {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("pain_points[%d] (%s) has invalid severity %q", i, pc.Category, pc.Severity)
		}
		if len(pc.Keywords) == 0 {
			return fmt.Errorf("pain_points[%d] (%s) has no keywords", i, pc.Category)
		}
	}

	return nil
}
