package utils

// RollingAverage keeps the mean of the last numSamples values added.
type RollingAverage struct {
	data   []float64
	pos    int
	filled int
}

// NewRollingAverage returns a RollingAverage over numSamples values. numSamples must be positive.
func NewRollingAverage(numSamples int) *RollingAverage {
	return &RollingAverage{data: make([]float64, numSamples)}
}

// NumSamples returns the window size.
func (ra *RollingAverage) NumSamples() int {
	return len(ra.data)
}

// Add records a value, evicting the oldest once the window is full.
func (ra *RollingAverage) Add(x float64) {
	ra.data[ra.pos] = x
	ra.pos++
	if ra.pos >= len(ra.data) {
		ra.pos = 0
	}
	if ra.filled < len(ra.data) {
		ra.filled++
	}
}

// Average returns the mean of the values seen so far, 0 when empty.
func (ra *RollingAverage) Average() float64 {
	if ra.filled == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < ra.filled; i++ {
		sum += ra.data[i]
	}
	return sum / float64(ra.filled)
}
