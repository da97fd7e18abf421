package enrichment

import (
	"sort"

	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const (
	styleRatio        = 1.5
	engagementHighMin = 10
	engagementMedMin  = 5
	traitMinHits      = 2
	maxTraits         = 5
)

// PersonalityAnalyzer profiles communication style and role signals
type PersonalityAnalyzer struct {
	lex *lexicon.Lexicon
}

func NewPersonalityAnalyzer(lex *lexicon.Lexicon) *PersonalityAnalyzer {
	return &PersonalityAnalyzer{lex: lex}
}

// Analyze profiles text; posts is how many posts the text was drawn from
func (a *PersonalityAnalyzer) Analyze(text string, posts int) model.PersonalitySignals {
	doc := lexicon.NewText(text)
	p := a.lex.Personality

	formal := doc.Occurrences(p.Formal)
	casual := doc.Occurrences(p.Casual)

	return model.PersonalitySignals{
		Style:         communicationStyle(formal, casual),
		Engagement:    engagementLevel(posts),
		DecisionMaker: doc.Occurrences(p.DecisionMaker),
		Influencer:    doc.Occurrences(p.Influencer),
		Traits:        traits(doc, p.Traits),
		FormalHits:    formal,
		CasualHits:    casual,
		ObservedPosts: posts,
	}
}

func communicationStyle(formal, casual int) model.CommunicationStyle {
	switch {
	case float64(formal) > styleRatio*float64(casual):
		return model.StyleFormal
	case float64(casual) > styleRatio*float64(formal):
		return model.StyleCasual
	case formal > 0 && casual > 0:
		return model.StyleFriendly
	default:
		return model.StyleProfessional
	}
}

func engagementLevel(posts int) model.EngagementLevel {
	switch {
	case posts >= engagementHighMin:
		return model.EngagementHigh
	case posts >= engagementMedMin:
		return model.EngagementMedium
	default:
		return model.EngagementLow
	}
}

// traits keeps categories with enough distinct keyword hits, strongest first
func traits(doc *lexicon.Text, categories map[string][]string) []string {
	type scored struct {
		name string
		hits int
	}
	var active []scored
	for _, name := range lexicon.SortedKeys(categories) {
		if n := len(doc.Matches(categories[name])); n >= traitMinHits {
			active = append(active, scored{name, n})
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].hits > active[j].hits })

	out := []string{}
	for _, s := range active {
		if len(out) == maxTraits {
			break
		}
		out = append(out, s.name)
	}
	return out
}
