package matcher

// HistorySize is the number of accepted citations a Matcher remembers.
const HistorySize = 20

// history is a fixed-capacity ring of accepted reference ids.
// Once full, each push overwrites the oldest entry.
type history struct {
	buf  [HistorySize]string
	head int // next write position
	n    int
}

func (h *history) push(referenceID string) {
	h.buf[h.head] = referenceID
	h.head = (h.head + 1) % HistorySize
	if h.n < HistorySize {
		h.n++
	}
}

// at returns the i-th newest entry, 0 being the most recent.
func (h *history) at(i int) string {
	return h.buf[(h.head-1-i+2*HistorySize)%HistorySize]
}

// distance returns how many citations were accepted after the most recent
// occurrence of referenceID, and false if it is not remembered.
func (h *history) distance(referenceID string) (int, bool) {
	for i := 0; i < h.n; i++ {
		if h.at(i) == referenceID {
			return i, true
		}
	}
	return 0, false
}

// entries returns the remembered ids, oldest first.
func (h *history) entries() []string {
	out := make([]string, h.n)
	for i := 0; i < h.n; i++ {
		out[h.n-1-i] = h.at(i)
	}
	return out
}

func (h *history) reset() {
	*h = history{}
}
