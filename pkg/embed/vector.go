package embed

import "math"

// Norm returns the euclidean length of v.
func Norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length in place. It reports false for a zero
// or non-finite vector, which cannot be normalized.
func Normalize(v []float32) bool {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MeanPool averages the token vectors whose attention mask is set.
func MeanPool(tokens [][]float32, mask []int64) []float32 {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]float32, len(tokens[0]))
	count := 0
	for i, tok := range tokens {
		if i < len(mask) && mask[i] == 0 {
			continue
		}
		for j := range out {
			if j < len(tok) {
				out[j] += tok[j]
			}
		}
		count++
	}
	if count == 0 {
		return out
	}
	for j := range out {
		out[j] /= float32(count)
	}
	return out
}
