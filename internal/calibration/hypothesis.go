package calibration

import "errors"

// ErrNoHypotheses is returned when there is nothing to rank.
var ErrNoHypotheses = errors.New("calibration: no hypotheses to rank")

// Hypothesis is a candidate result with the evidence used to rank it.
type Hypothesis[T any] struct {
	Value         T
	ParitySuccess bool
	Score         float64
}

// RankHypotheses returns the index of the best hypothesis. Candidates that
// passed the parity check beat those that did not; among equals the higher
// score wins, and exact ties keep the earlier candidate.
func RankHypotheses[T any](hs []Hypothesis[T]) (int, error) {
	if len(hs) == 0 {
		return -1, ErrNoHypotheses
	}
	best := 0
	for i := 1; i < len(hs); i++ {
		if better(hs[i], hs[best]) {
			best = i
		}
	}
	return best, nil
}

func better[T any](a, b Hypothesis[T]) bool {
	if a.ParitySuccess != b.ParitySuccess {
		return a.ParitySuccess
	}
	return a.Score > b.Score
}
