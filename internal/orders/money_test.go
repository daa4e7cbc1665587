package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandsToCents(t *testing.T) {
	assert.Equal(t, int64(11800), RandsToCents(118.00))
	assert.Equal(t, int64(4250), RandsToCents(42.50))
	assert.Equal(t, int64(1), RandsToCents(0.01))
	assert.Equal(t, int64(9999), RandsToCents(99.99))
	assert.Equal(t, int64(0), RandsToCents(0))
	// half up at the cent boundary
	assert.Equal(t, int64(1056), RandsToCents(10.555))
}

func TestCentsToRandsRoundTrip(t *testing.T) {
	for _, r := range []float64{42.50, 0.01, 99.99, 118.00, 1050.75} {
		assert.Equal(t, r, CentsToRands(RandsToCents(r)), "round trip of %v", r)
	}
}
