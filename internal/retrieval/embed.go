package retrieval

import (
	"context"
	"hash/fnv"
)

const hashEmbedDims = 64

// HashEmbed is the default EmbedFunc used when memory.postgresml is
// configured without a dedicated embedding model: a deterministic
// feature-hashing embedding over character trigrams. It needs no network
// call or external model, so nearest-neighbor retrieval works out of the
// box; a real embedding backend can be substituted by supplying a different
// EmbedFunc wherever a Store is built.
func HashEmbed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashEmbedDims)
	runes := []rune(text)
	if len(runes) == 0 {
		return vec, nil
	}
	const gramSize = 3
	for i := 0; i < len(runes); i++ {
		end := i + gramSize
		if end > len(runes) {
			end = len(runes)
		}
		h := fnv.New32a()
		h.Write([]byte(string(runes[i:end])))
		vec[int(h.Sum32()%hashEmbedDims)]++
	}
	return vec, nil
}
