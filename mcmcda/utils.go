package mcmcda

import (
	"math"
)

// Impossible is the log-probability reported by a move that cannot be applied.
// It is the most negative finite double, so that sums stay comparable.
const Impossible = -math.MaxFloat64

// IsImpossible reports whether log-probability p means "this move cannot happen".
// Both the sentinel and -Inf (log of zero) qualify, as does NaN.
func IsImpossible(p float64) bool {
	return p <= Impossible || math.IsNaN(p)
}

// normalizeLogProb maps every flavour of "zero probability" onto Impossible
func normalizeLogProb(p float64) float64 {
	if IsImpossible(p) {
		return Impossible
	}
	return p
}

// log1mexp computes log(1 - exp(lp)) for lp <= 0 without losing precision near zero
func log1mexp(lp float64) float64 {
	if lp >= 0 {
		return math.Inf(-1)
	}
	if lp > -math.Ln2 {
		return math.Log(-math.Expm1(lp))
	}
	return math.Log1p(-math.Exp(lp))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
