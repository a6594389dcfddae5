package breaker

import (
	"math"
	"sync"
)

// rollingStats keeps a fixed-size window of observations and answers
// z-score queries against it. Scores are only meaningful once the window
// has enough samples to estimate a spread.
type rollingStats struct {
	mu     sync.Mutex
	buf    []float64
	next   int
	filled int
}

const minSamples = 10

func newRollingStats(window int) *rollingStats {
	if window < minSamples {
		window = minSamples
	}
	return &rollingStats{buf: make([]float64, window)}
}

func (s *rollingStats) add(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = v
	s.next = (s.next + 1) % len(s.buf)
	if s.filled < len(s.buf) {
		s.filled++
	}
}

// zscore returns the standard score of v against the current window, or
// 0 while the window is too small to judge.
func (s *rollingStats) zscore(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled < minSamples {
		return 0
	}
	var sum float64
	for i := 0; i < s.filled; i++ {
		sum += s.buf[i]
	}
	mean := sum / float64(s.filled)
	var sq float64
	for i := 0; i < s.filled; i++ {
		d := s.buf[i] - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(s.filled))
	if std == 0 {
		return 0
	}
	return (v - mean) / std
}
