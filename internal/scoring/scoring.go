/**
 * Prospect scoring
 *
 * Fuses parsed entities with the scan's enrichment bundle into a ranked list,
 * one prospect per normalized name.
 */

package scoring

import (
	"sort"

	"github.com/google/uuid"

	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const (
	baseFriend = 40
	baseAuthor = 50

	mutualTier1      = 10
	mutualTier2      = 50
	mutualTier1Bonus = 10
	mutualTier2Bonus = 20

	intentOneBonus  = 10
	intentManyBonus = 20

	decisionMakerMin   = 2
	decisionMakerBonus = 15

	opportunityMin   = 60
	opportunityBonus = 15

	engagementTier1      = 10
	engagementTier2      = 50
	engagementTier1Bonus = 5
	engagementTier2Bonus = 10

	businessEntityBonus = 10
	businessScanBonus   = 5

	minScore = 0
	maxScore = 100
)

// Scorer ranks entities against one scan's enrichment
type Scorer struct {
	buyingIntent []string
	business     []string
}

func NewScorer(lex *lexicon.Lexicon) *Scorer {
	if lex == nil {
		lex = lexicon.MustDefault()
	}
	intent := append([]string{}, lex.General.BuyingIntent...)
	intent = append(intent, lex.CodeMix.BuyingIntent...)
	return &Scorer{
		buyingIntent: intent,
		business:     lex.CodeMix.Categories[lexicon.BusinessCategory],
	}
}

// Score returns one prospect per distinct named entity, sorted by score
// descending then name ascending. Anonymous posts produce no prospect.
func (s *Scorer) Score(entities []model.ParsedEntity, bundle *model.EnrichmentBundle) []model.ScoredProspect {
	if bundle == nil {
		bundle = &model.EnrichmentBundle{}
	}

	byName := make(map[string]int)
	out := []model.ScoredProspect{}

	for _, e := range entities {
		name := e.Name()
		key := model.NormalizeName(name)
		if key == "" {
			continue
		}
		p := s.scoreEntity(e, bundle)
		for _, d := range e.Merged {
			p = merge(p, s.scoreEntity(d, bundle))
		}

		i, ok := byName[key]
		if !ok {
			byName[key] = len(out)
			out = append(out, p)
			continue
		}
		out[i] = merge(out[i], p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Scorer) scoreEntity(e model.ParsedEntity, bundle *model.EnrichmentBundle) model.ScoredProspect {
	var reasons []string
	score := baseAuthor
	if e.Kind == model.KindFriendRow {
		score = baseFriend
	}

	meta := map[string]interface{}{
		"topics":     bundle.General.Topics,
		"sentiment":  bundle.General.Sentiment,
		"readiness":  bundle.PainPoints.Readiness,
		"style":      bundle.Personality.Style,
		"painPoints": painCategories(bundle.PainPoints.PainPoints),
	}

	if e.Kind == model.KindFriendRow && e.Friend != nil && e.Friend.MutualCount != nil {
		mutual := *e.Friend.MutualCount
		meta["mutualCount"] = mutual
		switch {
		case mutual > mutualTier2:
			score += mutualTier2Bonus
			reasons = append(reasons, "many mutual connections")
		case mutual > mutualTier1:
			score += mutualTier1Bonus
			reasons = append(reasons, "several mutual connections")
		}
	}

	doc := lexicon.NewText(e.Text())

	if intent := doc.Matches(s.buyingIntent); len(intent) > 0 {
		meta["buyingIntent"] = intent
		if len(intent) >= 2 {
			score += intentManyBonus
		} else {
			score += intentOneBonus
		}
		reasons = append(reasons, "buying intent expressed")
	}

	if bundle.Personality.DecisionMaker > decisionMakerMin {
		score += decisionMakerBonus
		reasons = append(reasons, "decision-maker signals")
	}

	if bundle.PainPoints.OpportunityScore > opportunityMin {
		score += opportunityBonus
		reasons = append(reasons, "high opportunity score")
	}

	if engagement := postEngagement(e); engagement > 0 {
		meta["engagement"] = engagement
		switch {
		case engagement >= engagementTier2:
			score += engagementTier2Bonus
			reasons = append(reasons, "high post engagement")
		case engagement >= engagementTier1:
			score += engagementTier1Bonus
			reasons = append(reasons, "post engagement")
		}
	}

	switch {
	case doc.Occurrences(s.business) > 0:
		score += businessEntityBonus
		reasons = append(reasons, "business terms in own text")
	case bundle.LanguageMix.BusinessKeywordHits > 0:
		score += businessScanBonus
		reasons = append(reasons, "business terms in scan")
	}

	if reasons == nil {
		reasons = []string{}
	}
	meta["reasons"] = reasons
	meta["detectedVia"] = []model.EntityKind{e.Kind}

	return model.ScoredProspect{
		ID:       uuid.NewString(),
		Name:     e.Name(),
		Kind:     e.Kind,
		Score:    Clamp(score),
		Source:   e,
		Metadata: meta,
	}
}

// Clamp bounds a raw score to [0,100]
func Clamp(score int) int {
	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// merge keeps the higher-scoring derivation and folds in the other's metadata.
// On a tie the existing prospect wins.
func merge(existing, candidate model.ScoredProspect) model.ScoredProspect {
	winner, loser := existing, candidate
	if candidate.Score > existing.Score {
		winner, loser = candidate, existing
	}

	meta := make(map[string]interface{}, len(winner.Metadata)+len(loser.Metadata))
	for k, v := range loser.Metadata {
		meta[k] = v
	}
	for k, v := range winner.Metadata {
		meta[k] = v
	}
	meta["detectedVia"] = mergeKinds(existing.Metadata["detectedVia"], candidate.Metadata["detectedVia"])

	winner.Metadata = meta
	winner.ID = existing.ID
	return winner
}

func mergeKinds(a, b interface{}) []model.EntityKind {
	seen := make(map[model.EntityKind]bool)
	var out []model.EntityKind
	for _, v := range []interface{}{a, b} {
		kinds, _ := v.([]model.EntityKind)
		for _, k := range kinds {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func postEngagement(e model.ParsedEntity) int {
	if e.Kind != model.KindPost || e.Post == nil {
		return 0
	}
	total := 0
	for _, n := range []*int{e.Post.ReactionCount, e.Post.CommentCount, e.Post.ShareCount} {
		if n != nil {
			total += *n
		}
	}
	return total
}

func painCategories(points []model.PainPoint) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, p.Category)
	}
	return out
}
