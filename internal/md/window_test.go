package md

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowMean(t *testing.T) {
	window := NewWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		window.Add(v)
	}

	mean, ok := window.Mean()
	assert.True(t, ok)
	assert.Equal(t, (3.0+4.0+5.0)/3.0, mean)
}

func TestWindowMeanInsufficientData(t *testing.T) {
	window := NewWindow(3)
	window.Add(1)
	window.Add(2)

	_, ok := window.Mean()
	assert.False(t, ok)

	window.Add(3)
	mean, ok := window.Mean()
	assert.True(t, ok)
	assert.Equal(t, 2.0, mean)
}

func TestWindowFlatSeriesIsExact(t *testing.T) {
	window := NewWindow(200)
	for i := 0; i < 450; i++ {
		window.Add(100.0)
	}
	short := NewWindow(50)
	for i := 0; i < 450; i++ {
		short.Add(100.0)
	}

	longMean, _ := window.Mean()
	shortMean, _ := short.Mean()
	assert.Equal(t, 100.0, longMean)
	assert.Equal(t, 100.0, shortMean)
}
