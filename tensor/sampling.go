package tensor

import (
	"math/rand"
	"sort"
)

// SampleConfig holds parameters for token sampling.
type SampleConfig struct {
	Temperature float32
	TopK        int     // 0 means disabled
	TopP        float32 // 1.0 means disabled
}

// DefaultSampleConfig returns sampling parameters that draw from the
// full unmodified distribution.
func DefaultSampleConfig() SampleConfig {
	return SampleConfig{
		Temperature: 1.0,
		TopK:        0,
		TopP:        1.0,
	}
}

// Sample draws a token index from logits. Temperature is applied first,
// then top-k filtering, then top-p within the surviving top-k subset,
// then the result is renormalized and sampled through rng. The logits
// slice is not modified.
func Sample(logits []float32, cfg SampleConfig, rng *rand.Rand) int {
	scaled := make([]float32, len(logits))
	copy(scaled, logits)
	if cfg.Temperature > 0 && cfg.Temperature != 1.0 {
		for i := range scaled {
			scaled[i] /= cfg.Temperature
		}
	}

	probs := SoftmaxVec(scaled)

	if cfg.TopK > 0 && cfg.TopK < len(probs) {
		probs = topKFiltering(probs, cfg.TopK)
	}
	if cfg.TopP > 0 && cfg.TopP < 1.0 {
		probs = topPFiltering(probs, cfg.TopP)
	}

	sum := float32(0)
	for _, p := range probs {
		sum += p
	}
	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}

	return sampleMultinomial(probs, rng)
}

type indexedProb struct {
	idx  int
	prob float32
}

func sortByProb(probs []float32) []indexedProb {
	indexed := make([]indexedProb, len(probs))
	for i, p := range probs {
		indexed[i] = indexedProb{i, p}
	}
	sort.Slice(indexed, func(i, j int) bool {
		return indexed[i].prob > indexed[j].prob
	})
	return indexed
}

// topKFiltering keeps only the top-k probabilities, zeros out the rest.
func topKFiltering(probs []float32, k int) []float32 {
	indexed := sortByProb(probs)
	result := make([]float32, len(probs))
	for i := 0; i < k && i < len(indexed); i++ {
		result[indexed[i].idx] = indexed[i].prob
	}
	return result
}

// topPFiltering keeps the smallest nucleus whose cumulative probability
// reaches p, zeros out the rest.
func topPFiltering(probs []float32, p float32) []float32 {
	indexed := sortByProb(probs)

	cumProb := float32(0)
	cutoff := len(indexed)
	for i, item := range indexed {
		cumProb += item.prob
		if cumProb >= p {
			cutoff = i + 1
			break
		}
	}

	result := make([]float32, len(probs))
	for i := 0; i < cutoff; i++ {
		result[indexed[i].idx] = indexed[i].prob
	}
	return result
}

// sampleMultinomial samples from a probability distribution.
func sampleMultinomial(probs []float32, rng *rand.Rand) int {
	cumProbs := make([]float32, len(probs))
	cumProbs[0] = probs[0]
	for i := 1; i < len(probs); i++ {
		cumProbs[i] = cumProbs[i-1] + probs[i]
	}

	r := rng.Float32() * cumProbs[len(cumProbs)-1]

	idx := sort.Search(len(cumProbs), func(i int) bool {
		return cumProbs[i] >= r
	})
	if idx >= len(probs) {
		idx = len(probs) - 1
	}
	return idx
}
