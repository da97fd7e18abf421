package storage

import (
	"hash/fnv"
	"math"

	"github.com/adverant/nexus/prospect-worker/internal/lexicon"
)

// FeatureDimensions is the size of prospect vectors
const FeatureDimensions = 256

// FeatureVector hashes the words of text into a signed, L2-normalized
// bag-of-words vector. Empty text yields the zero vector.
func FeatureVector(text string) []float32 {
	vec := make([]float32, FeatureDimensions)
	for _, tok := range lexicon.Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[sum%FeatureDimensions] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
