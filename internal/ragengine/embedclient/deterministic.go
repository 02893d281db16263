package embedclient

import (
	"context"
	"hash/fnv"
	"math"
)

// Deterministic is a hash-based Client used in tests so that retrieval and
// fusion behavior can be verified without calling a live embedding
// endpoint. Equal inputs always produce equal vectors.
type Deterministic struct {
	dim       int
	normalize bool
	seed      uint64
}

// NewDeterministic builds a Deterministic embedder of the given dimension.
func NewDeterministic(dim int, normalize bool, seed uint64) *Deterministic {
	if dim <= 0 {
		dim = 64
	}
	return &Deterministic{dim: dim, normalize: normalize, seed: seed}
}

func (d *Deterministic) Dimension() int { return d.dim }

func (d *Deterministic) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *Deterministic) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) == 0 {
		return v
	}
	if len(b) < 3 {
		d.add(b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			d.add(b[i:i+3], v)
		}
	}
	if d.normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func (d *Deterministic) add(gram []byte, v []float32) {
	h := fnv.New64a()
	var seedBytes [8]byte
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(d.seed >> (8 * i))
	}
	h.Write(seedBytes[:])
	h.Write(gram)
	sum := h.Sum64()
	idx := int(sum % uint64(len(v)))
	sign := float32(1)
	if (sum>>1)%2 == 0 {
		sign = -1
	}
	v[idx] += sign
}
