package merit

import "math"

// The allocators below return raw, un-normalized allocation weights. Callers
// renormalize so the distributed points always sum to the pool.

// allocateSingle hands the whole pool to the sole participant.
func allocateSingle() []float64 {
	return []float64{1}
}

// allocateDuo splits proportionally with an imbalance bonus
// A = 1 + 0.1*|S1-S2|/max(S1,S2). A is identical for both participants, so
// renormalization cancels it and the duo split stays exactly proportional;
// the factor is kept because the raw (pre-normalization) merit values are
// part of the audit trail semantics.
func allocateDuo(totals []float64) []float64 {
	s1, s2 := totals[0], totals[1]
	adjustment := 1.0
	if max := math.Max(s1, s2); max > 0 {
		adjustment = 1 + duoAdjustmentRate*math.Abs(s1-s2)/max
	}
	sum := s1 + s2
	return []float64{s1 / sum * adjustment, s2 / sum * adjustment}
}

// allocateSmallGroup weighs the proportional share s_i by the participant's
// role weight W_i and the outlier dampener A_i = 1 + k*(s_i - 1/n): shares
// above the group mean gain a small bonus, shares below it a small malus.
// Strictly increasing in s_i for k in [0,1).
func allocateSmallGroup(totals []float64, sum float64, roleWeights []float64, k float64) []float64 {
	n := float64(len(totals))
	weights := make([]float64, len(totals))
	for i, t := range totals {
		share := t / sum
		adjustment := 1 + k*(share-1/n)
		weights[i] = share * roleWeights[i] * adjustment
	}
	return weights
}

// allocateLargeGroup compresses the top-heavy tail: the proportional share is
// blended with a log share T_i = alpha*s_i + (1-alpha)*log1p(S_i)/sum(log1p),
// then smoothed by B_i = 1 - gamma*(T_i - 1/n). Both factors preserve
// monotonicity in S_i while pulling the distribution toward the mean.
func allocateLargeGroup(totals []float64, sum float64, alpha, gamma float64) []float64 {
	n := float64(len(totals))

	logSum := 0.0
	for _, t := range totals {
		logSum += math.Log1p(t)
	}

	weights := make([]float64, len(totals))
	for i, t := range totals {
		share := t / sum
		logShare := math.Log1p(t) / logSum
		blended := alpha*share + (1-alpha)*logShare
		smoothing := 1 - gamma*(blended-1/n)
		weights[i] = blended * smoothing
	}
	return weights
}
