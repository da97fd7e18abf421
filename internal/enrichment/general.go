package enrichment

import (
	"sort"
	"strings"
	"unicode"

	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const (
	topicMinHits    = 2
	interestMinHits = 1
	industryMinHits = 1
	keywordTopN     = 10
	keywordMinLen   = 3
)

// GeneralAnalyzer extracts topics, interests, sentiment, keywords, named
// entities, industry signals and buying intent
type GeneralAnalyzer struct {
	lex       *lexicon.Lexicon
	stopwords map[string]bool
	suffixes  map[string]bool
}

func NewGeneralAnalyzer(lex *lexicon.Lexicon) *GeneralAnalyzer {
	stop := lexicon.Set(lex.Language.FunctionWords)
	for w := range lexicon.Set(lex.Language.MixingMarkers) {
		stop[w] = true
	}

	suffixes := make(map[string]bool, len(lex.General.OrgSuffixes))
	for _, s := range lex.General.OrgSuffixes {
		suffixes[strings.TrimSuffix(strings.ToLower(s), ".")] = true
	}

	return &GeneralAnalyzer{lex: lex, stopwords: stop, suffixes: suffixes}
}

// Analyze runs the general analyzer over combined text
func (a *GeneralAnalyzer) Analyze(text string) model.GeneralSignals {
	doc := lexicon.NewText(text)

	people, orgs := a.capitalizedEntities(text)

	return model.GeneralSignals{
		Topics:          activeCategories(doc, a.lex.General.Topics, topicMinHits),
		Interests:       activeCategories(doc, a.lex.General.Interests, interestMinHits),
		Sentiment:       sentiment(doc.Occurrences(a.lex.General.Positive), doc.Occurrences(a.lex.General.Negative)),
		Keywords:        a.topKeywords(doc),
		IndustrySignals: activeCategories(doc, a.lex.General.Industries, industryMinHits),
		BuyingIntent:    nonNil(doc.Matches(a.lex.General.BuyingIntent)),
		Entities: model.NamedEntities{
			People:        people,
			Organizations: orgs,
			Locations:     nonNil(doc.Matches(a.lex.General.Locations)),
		},
	}
}

// activeCategories returns, in name order, the categories with at least min distinct keyword hits
func activeCategories(doc *lexicon.Text, categories map[string][]string, min int) []string {
	out := []string{}
	for _, name := range lexicon.SortedKeys(categories) {
		if len(doc.Matches(categories[name])) >= min {
			out = append(out, name)
		}
	}
	return out
}

func sentiment(pos, neg int) model.Sentiment {
	switch {
	case pos > neg:
		return model.SentimentPositive
	case neg > pos:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}

func (a *GeneralAnalyzer) topKeywords(doc *lexicon.Text) []model.KeywordCount {
	counts := make(map[string]int)
	for _, tok := range doc.Words() {
		if len([]rune(tok)) < keywordMinLen || a.stopwords[tok] || isNumeric(tok) {
			continue
		}
		counts[tok]++
	}

	out := make([]model.KeywordCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, model.KeywordCount{Keyword: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if len(out) > keywordTopN {
		out = out[:keywordTopN]
	}
	return out
}

func isNumeric(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// capitalizedEntities finds runs of two or more capitalized words per line.
// A run ending in an organization suffix is an organization, other runs are
// people unless they name a known location.
func (a *GeneralAnalyzer) capitalizedEntities(text string) (people, orgs []string) {
	people, orgs = []string{}, []string{}
	locations := make(map[string]bool, len(a.lex.General.Locations))
	for _, l := range a.lex.General.Locations {
		locations[strings.ToLower(l)] = true
	}
	seen := make(map[string]bool)

	add := func(run []string) {
		if len(run) < 2 {
			return
		}
		phrase := strings.Join(run, " ")
		key := strings.ToLower(phrase)
		if seen[key] || locations[key] {
			return
		}
		seen[key] = true

		last := strings.ToLower(strings.TrimSuffix(run[len(run)-1], "."))
		if a.suffixes[last] {
			orgs = append(orgs, phrase)
		} else {
			people = append(people, phrase)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		var run []string
		for _, raw := range strings.Fields(line) {
			word := strings.TrimRight(raw, ",;:!?")
			closes := word != raw
			if isCapitalized(word) && !a.stopwords[strings.ToLower(word)] {
				run = append(run, strings.TrimSuffix(word, "'s"))
				if closes {
					add(run)
					run = nil
				}
				continue
			}
			add(run)
			run = nil
		}
		add(run)
	}
	return people, orgs
}

func isCapitalized(word string) bool {
	runes := []rune(strings.TrimSuffix(word, "."))
	if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLetter(r) && r != '\'' && r != '-' {
			return false
		}
	}
	return true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
