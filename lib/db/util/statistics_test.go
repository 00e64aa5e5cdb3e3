package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	assert.Equal(t, 0, h.MedianEstimate())
	assert.Equal(t, 0, h.AverageSize())

	for i := 0; i < 9; i++ {
		h.AddSample(100) // 64 < 100 <= 256
	}
	h.AddSample(1 << 30) // overflow bucket

	assert.Equal(t, int64(10), h.Count())
	assert.Equal(t, (64+256)/2, h.MedianEstimate())
	assert.Equal(t, 16777216*2, h.PercentileEstimate(100))
	assert.Equal(t, 0, h.PercentileEstimate(101))
	assert.Equal(t, (9*100+(1<<30))/10, h.AverageSize())
}

func TestDistributionStats(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10})
	assert.InDelta(t, 1.0, even.DistributionQuality, 1e-9)
	assert.InDelta(t, 10.0, even.Mean, 1e-9)

	skewed := NewDistributionStats([]float64{0, 30})
	assert.Less(t, skewed.DistributionQuality, even.DistributionQuality)
	assert.Equal(t, 0.0, skewed.Min)
	assert.Equal(t, 30.0, skewed.Max)

	assert.Equal(t, Stats{}, NewDistributionStats(nil).Stats)
}
