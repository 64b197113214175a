package stretch

const defaultQueueChunk = 32768

// inputQueue decouples fixed-size window reads from the source's linear
// layout. The source is split into chunks at load; chunks that fall
// fully behind the advancing read pointer are released so long sources
// do not pin their whole prefix while streaming.
type inputQueue struct {
	chunks   [][]float64
	starts   []int
	chunkLen int
	total    int
	first    int
}

func newInputQueue(chunkLen int) *inputQueue {
	if chunkLen < 1 {
		chunkLen = defaultQueueChunk
	}

	return &inputQueue{chunkLen: chunkLen}
}

// load splits src into chunks. The queue aliases src's backing array;
// ownership of src has already transferred to the processor.
func (q *inputQueue) load(src []float64) {
	q.chunks = q.chunks[:0]
	q.starts = q.starts[:0]
	q.total = len(src)
	q.first = 0

	for off := 0; off < len(src); off += q.chunkLen {
		end := off + q.chunkLen
		if end > len(src) {
			end = len(src)
		}

		q.chunks = append(q.chunks, src[off:end])
		q.starts = append(q.starts, off)
	}
}

// total length of the loaded source in samples.
func (q *inputQueue) length() int { return q.total }

// read fills dst with samples starting at pos, zero-padding past the
// end of the source. It reports false when pos is at or past the end.
func (q *inputQueue) read(dst []float64, pos int) bool {
	if pos >= q.total {
		for i := range dst {
			dst[i] = 0
		}

		return false
	}

	filled := 0

	for ci := q.first; ci < len(q.chunks) && filled < len(dst); ci++ {
		c := q.chunks[ci]
		if c == nil {
			continue
		}

		start := q.starts[ci]
		end := start + len(c)

		want := pos + filled
		if want >= end {
			continue
		}

		if want < start {
			// Reading behind a released chunk yields silence.
			for want < start && filled < len(dst) {
				dst[filled] = 0
				filled++
				want++
			}

			if filled == len(dst) {
				break
			}
		}

		n := copy(dst[filled:], c[want-start:])
		filled += n
	}

	for ; filled < len(dst); filled++ {
		dst[filled] = 0
	}

	return true
}

// discardBefore releases chunks that end at or before pos.
func (q *inputQueue) discardBefore(pos int) {
	for q.first < len(q.chunks) {
		end := q.starts[q.first] + len(q.chunks[q.first])
		if end > pos {
			return
		}

		q.chunks[q.first] = nil
		q.first++
	}
}
