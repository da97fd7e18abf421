package enrichment

import (
	"math"

	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const (
	percentMultiplier = 3
	percentCap        = 100

	mixedBandLow  = 20
	mixedBandHigh = 80

	codeMixedScoreThreshold = 50
	pureThreshold           = 70
)

// CodeMixAnalyzer measures how much of the text is in the secondary language
type CodeMixAnalyzer struct {
	lex *lexicon.Lexicon
}

func NewCodeMixAnalyzer(lex *lexicon.Lexicon) *CodeMixAnalyzer {
	return &CodeMixAnalyzer{lex: lex}
}

// Analyze computes language percentages and the code-mixing style.
//
// secondary% = (category keyword hits + cultural marker hits) / words * 100 * 3, capped at 100
// primary%   = function word hits / words * 100 * 3, capped at 100
// mixed      = average of both, only while 20 < secondary% < 80
//
// Percentages saturate at the cap, so dense texts can share a score.
func (a *CodeMixAnalyzer) Analyze(text string) model.LanguageMixSignals {
	doc := lexicon.NewText(text)
	words := doc.WordCount()

	hits := make(map[string]int, len(a.lex.CodeMix.Categories))
	secondaryHits := 0
	for _, name := range lexicon.SortedKeys(a.lex.CodeMix.Categories) {
		n := doc.Occurrences(a.lex.CodeMix.Categories[name])
		hits[name] = n
		secondaryHits += n
	}
	secondaryHits += doc.Occurrences(a.lex.CodeMix.CulturalMarkers)

	secondary := scaledPercent(secondaryHits, words)
	primary := scaledPercent(doc.Occurrences(a.lex.Language.FunctionWords), words)

	mixed := 0.0
	if secondary > mixedBandLow && secondary < mixedBandHigh {
		mixed = round1((primary + secondary) / 2)
	}

	return model.LanguageMixSignals{
		PrimaryPercent:      primary,
		SecondaryPercent:    secondary,
		MixedScore:          mixed,
		Style:               mixStyle(primary, secondary, mixed),
		CategoryHits:        hits,
		CulturalMarkers:     nonNil(doc.Matches(a.lex.CodeMix.CulturalMarkers)),
		BuyingIntent:        nonNil(doc.Matches(a.lex.CodeMix.BuyingIntent)),
		BusinessKeywordHits: hits[lexicon.BusinessCategory],
	}
}

func scaledPercent(hits, words int) float64 {
	if words == 0 {
		return 0
	}
	p := float64(hits) / float64(words) * 100 * percentMultiplier
	if p > percentCap {
		p = percentCap
	}
	return round1(p)
}

func mixStyle(primary, secondary, mixed float64) model.CommunicationMix {
	switch {
	case mixed > codeMixedScoreThreshold:
		return model.MixCodeMixed
	case secondary > pureThreshold:
		return model.MixPureSecondary
	case primary > pureThreshold:
		return model.MixPurePrimary
	default:
		return model.MixMixed
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
