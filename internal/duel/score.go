package duel

import (
	"math"
	"sort"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// Score weights.
const (
	verdictApprove     = 50.0
	verdictNeedsInput  = 25.0
	confidenceWeight   = 25.0
	defaultConfidence  = 12.5
	maxConfidenceInput = 100.0
)

// Score rates one leg from its verdict code, optional confidence (0-100) and latency.
func Score(code string, confidence *float64, latencyMs int64) float64 {
	var verdict float64
	switch domain.ClassifyCode(code) {
	case domain.KindApproved, domain.KindOK:
		verdict = verdictApprove
	case domain.KindPause:
		verdict = verdictNeedsInput
	}

	conf := defaultConfidence
	if confidence != nil {
		c := math.Max(0, math.Min(*confidence, maxConfidenceInput))
		conf = c / maxConfidenceInput * confidenceWeight
	}

	return verdict + conf + LatencyScore(latencyMs)
}

// LatencyScore maps latency onto its band score.
func LatencyScore(latencyMs int64) float64 {
	switch {
	case latencyMs < 1000:
		return 25
	case latencyMs < 2000:
		return 20
	case latencyMs < 3000:
		return 15
	case latencyMs < 5000:
		return 10
	default:
		return 5
	}
}

// Rank orders leg labels by descending score. Equal scores keep config order.
func Rank(results []domain.DuelLegResult) []string {
	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return results[idx[a]].Score > results[idx[b]].Score
	})
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = results[j].Label
	}
	return out
}

// Tally accumulates one side of a background duel.
type Tally struct {
	Approvals int
	latencies []int64
}

// Observe records one round. Only successful rounds contribute latency.
func (t *Tally) Observe(approved, succeeded bool, latencyMs int64) {
	if approved {
		t.Approvals++
	}
	if succeeded {
		t.latencies = append(t.latencies, latencyMs)
	}
}

// MeanLatency returns the mean latency of successful rounds, or +Inf when there were none.
func (t *Tally) MeanLatency() float64 {
	if len(t.latencies) == 0 {
		return math.Inf(1)
	}
	var sum int64
	for _, l := range t.latencies {
		sum += l
	}
	return float64(sum) / float64(len(t.latencies))
}

// DetermineWinner prefers more approvals, then lower mean latency.
func DetermineWinner(a, b *Tally) string {
	switch {
	case a.Approvals > b.Approvals:
		return domain.WinnerModelA
	case b.Approvals > a.Approvals:
		return domain.WinnerModelB
	}
	la, lb := a.MeanLatency(), b.MeanLatency()
	switch {
	case la < lb:
		return domain.WinnerModelA
	case lb < la:
		return domain.WinnerModelB
	default:
		return domain.WinnerTie
	}
}

func summarize(a, b *Tally, rounds int) *domain.DuelSummary {
	return &domain.DuelSummary{
		ApprovalsA:   a.Approvals,
		ApprovalsB:   b.Approvals,
		AvgLatencyA:  finite(a.MeanLatency()),
		AvgLatencyB:  finite(b.MeanLatency()),
		Winner:       DetermineWinner(a, b),
		RoundsPlayed: rounds,
	}
}

func finite(v float64) float64 {
	if math.IsInf(v, 0) {
		return 0
	}
	return v
}
