package recognition

import (
	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const (
	markerRatioCodeMixed   = 0.02
	functionRatioPrimary   = 0.15
	functionRatioMixedLow  = 0.02
	functionRatioSecondary = 0.01
)

// LanguageDetector guesses the language mix of recognized text from two closed
// word sets: primary-language function words and code-mixing markers.
type LanguageDetector struct {
	functionWords map[string]bool
	markers       map[string]bool
}

// NewLanguageDetector builds a detector from the lexicon's language tables
func NewLanguageDetector(lex *lexicon.Lexicon) *LanguageDetector {
	return &LanguageDetector{
		functionWords: lexicon.Set(lex.Language.FunctionWords),
		markers:       lexicon.Set(lex.Language.MixingMarkers),
	}
}

// Ratios returns the function-word and marker ratios over all words
func (d *LanguageDetector) Ratios(text string) (functionRatio, markerRatio float64, words int) {
	tokens := lexicon.Tokenize(text)
	if len(tokens) == 0 {
		return 0, 0, 0
	}

	var fn, mk int
	for _, tok := range tokens {
		if d.functionWords[tok] {
			fn++
		}
		if d.markers[tok] {
			mk++
		}
	}
	total := float64(len(tokens))
	return float64(fn) / total, float64(mk) / total, len(tokens)
}

// Detect classifies text. Rules apply in order:
// marker ratio > 0.02 is code-mixed; function ratio > 0.15 is primary;
// function ratio in [0.02, 0.15] is code-mixed; below 0.01 is secondary;
// anything else (including empty text) is other.
func (d *LanguageDetector) Detect(text string) model.LanguageMix {
	fr, mr, words := d.Ratios(text)
	switch {
	case words == 0:
		return model.LanguageOther
	case mr > markerRatioCodeMixed:
		return model.LanguageCodeMixed
	case fr > functionRatioPrimary:
		return model.LanguagePrimary
	case fr >= functionRatioMixedLow:
		return model.LanguageCodeMixed
	case fr < functionRatioSecondary:
		return model.LanguageSecondary
	default:
		return model.LanguageOther
	}
}
