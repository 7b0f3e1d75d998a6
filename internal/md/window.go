package md

// Window keeps the last size closes in a ring and reports their mean once it
// has seen at least size values.
type Window struct {
	values []float64
	size   int
	index  int
	filled bool
}

func NewWindow(size int) *Window {
	return &Window{
		values: make([]float64, size),
		size:   size,
	}
}

func (w *Window) Add(value float64) {
	w.values[w.index] = value
	w.index = (w.index + 1) % w.size
	if w.index == 0 {
		w.filled = true
	}
}

// Mean is the arithmetic mean of the window. ok is false until the window is
// full. The sum is recomputed on every call so no rounding drift carries
// over between bars.
func (w *Window) Mean() (mean float64, ok bool) {
	if !w.filled {
		return 0, false
	}
	sum := 0.0
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(w.size), true
}
