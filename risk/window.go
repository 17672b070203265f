package risk

// Window is a bounded return history; the oldest sample is evicted on
// overflow.
type Window struct {
	Max    int       `json:"max"`
	Values []float64 `json:"values"`
}

// NewWindow returns a window holding at most max samples.
func NewWindow(max int) *Window {
	if max < 1 {
		max = 1
	}
	return &Window{Max: max}
}

// Push appends a return, evicting the oldest sample when full.
func (w *Window) Push(v float64) {
	w.Values = append(w.Values, v)
	if len(w.Values) > w.Max {
		w.Values = w.Values[len(w.Values)-w.Max:]
	}
}

// Len reports the number of retained samples.
func (w *Window) Len() int { return len(w.Values) }

// Returns exposes the retained samples, oldest first. The slice is shared;
// callers must not mutate it.
func (w *Window) Returns() []float64 { return w.Values }
