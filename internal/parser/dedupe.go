package parser

import "github.com/adverant/nexus/prospect-worker/internal/model"

// Dedupe merges entities that name the same person (case-folded,
// whitespace-collapsed). The higher-confidence instance takes the slot of the
// first occurrence and carries the others in Merged. Anonymous posts are kept
// as they are.
func Dedupe(entities []model.ParsedEntity) []model.ParsedEntity {
	out := make([]model.ParsedEntity, 0, len(entities))
	slot := make(map[string]int, len(entities))

	for _, e := range entities {
		key := model.NormalizeName(e.Name())
		if key == "" {
			out = append(out, e)
			continue
		}
		if i, ok := slot[key]; ok {
			out[i] = absorb(out[i], e)
			continue
		}
		slot[key] = len(out)
		out = append(out, e)
	}

	return out
}

// absorb keeps the higher-confidence entity (kept wins ties) and moves the
// other one, with anything it had already absorbed, into its Merged list.
func absorb(kept, other model.ParsedEntity) model.ParsedEntity {
	winner, loser := kept, other
	if other.Confidence > kept.Confidence {
		winner, loser = other, kept
	}

	merged := make([]model.ParsedEntity, 0, len(winner.Merged)+len(loser.Merged)+1)
	merged = append(merged, winner.Merged...)
	merged = append(merged, loser.Merged...)
	loser.Merged = nil
	merged = append(merged, loser)

	winner.Merged = merged
	return winner
}
