package enrichment

import (
	"fmt"
	"math"
	"strings"

	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const (
	urgencyWeight     = 10
	frustrationWeight = 5
	scoreCap          = 100

	highSeverityWeight   = 20
	mediumSeverityWeight = 10
	urgencyFactor        = 0.3
	categoryWeight       = 5

	highHitThreshold   = 3
	mediumHitThreshold = 2

	hotOpportunity  = 70
	hotUrgency      = 60
	warmOpportunity = 40
	warmUrgency     = 30
)

// PainPointAnalyzer detects pain categories, urgency and buying readiness
type PainPointAnalyzer struct {
	lex *lexicon.Lexicon
}

func NewPainPointAnalyzer(lex *lexicon.Lexicon) *PainPointAnalyzer {
	return &PainPointAnalyzer{lex: lex}
}

// Analyze scores text. Urgency and opportunity are always within [0,100].
func (a *PainPointAnalyzer) Analyze(text string) model.PainPointSignals {
	doc := lexicon.NewText(text)

	points := []model.PainPoint{}
	var high, medium int
	for _, cat := range a.lex.PainPoints {
		matched := doc.Matches(cat.Keywords)
		hits := len(matched)
		if hits == 0 {
			continue
		}
		sev := severity(model.Severity(cat.Severity), hits)
		switch sev {
		case model.SeverityHigh:
			high++
		case model.SeverityMedium:
			medium++
		}
		points = append(points, model.PainPoint{
			Category: cat.Category,
			Severity: sev,
			Hits:     hits,
			Matched:  matched,
		})
	}

	urgency := UrgencyScore(doc.Occurrences(a.lex.Signals.Urgency), doc.Occurrences(a.lex.Signals.Frustration))
	opportunity := OpportunityScore(high, medium, urgency, len(points))
	readiness, reasons := buyingReadiness(opportunity, urgency, points)

	return model.PainPointSignals{
		PainPoints:       points,
		UrgencyScore:     urgency,
		OpportunityScore: opportunity,
		Readiness:        readiness,
		ReadinessReasons: reasons,
	}
}

// severity escalates the category default by distinct keyword hits, never
// lowering it
func severity(def model.Severity, hits int) model.Severity {
	byHits := model.SeverityLow
	switch {
	case hits >= highHitThreshold:
		byHits = model.SeverityHigh
	case hits >= mediumHitThreshold:
		byHits = model.SeverityMedium
	}
	if byHits.Rank() > def.Rank() {
		return byHits
	}
	return def
}

// UrgencyScore is urgency hits x10 plus frustration hits x5, capped at 100
func UrgencyScore(urgencyHits, frustrationHits int) int {
	if urgencyHits < 0 {
		urgencyHits = 0
	}
	if frustrationHits < 0 {
		frustrationHits = 0
	}
	// cap the inputs first so huge counts cannot overflow
	if urgencyHits > scoreCap {
		urgencyHits = scoreCap
	}
	if frustrationHits > scoreCap {
		frustrationHits = scoreCap
	}
	score := urgencyHits*urgencyWeight + frustrationHits*frustrationWeight
	if score > scoreCap {
		score = scoreCap
	}
	return score
}

// OpportunityScore is high x20 + medium x10 + urgency x0.3 + categories x5,
// rounded and capped at 100
func OpportunityScore(high, medium, urgency, categories int) int {
	raw := float64(max(high, 0))*highSeverityWeight +
		float64(max(medium, 0))*mediumSeverityWeight +
		float64(max(urgency, 0))*urgencyFactor +
		float64(max(categories, 0))*categoryWeight
	return int(math.Min(math.Round(raw), scoreCap))
}

func buyingReadiness(opportunity, urgency int, points []model.PainPoint) (model.Readiness, []string) {
	reasons := []string{}

	var highCats []string
	for _, p := range points {
		if p.Severity == model.SeverityHigh {
			highCats = append(highCats, p.Category)
		}
	}
	if len(highCats) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d high-severity pain point(s): %s", len(highCats), strings.Join(highCats, ", ")))
	}
	if opportunity >= warmOpportunity {
		reasons = append(reasons, fmt.Sprintf("opportunity score %d", opportunity))
	}
	if urgency >= warmUrgency {
		reasons = append(reasons, fmt.Sprintf("urgent language detected (urgency %d)", urgency))
	}

	switch {
	case opportunity >= hotOpportunity || urgency >= hotUrgency:
		return model.ReadinessHot, reasons
	case opportunity >= warmOpportunity || urgency >= warmUrgency:
		return model.ReadinessWarm, reasons
	default:
		if len(reasons) == 0 {
			reasons = append(reasons, "no strong pain or urgency signals")
		}
		return model.ReadinessCold, reasons
	}
}
