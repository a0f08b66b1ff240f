package engine

import (
	"github.com/proctorlens/proctorlens/internal/detect"
	"github.com/proctorlens/proctorlens/internal/media"
)

// frameResult pairs a frame with its raw detector results. seq is the read
// order assigned by the producer, which workers may complete out of order;
// fusion happens only after reordering, so sticky cadence replay always
// sees frames in order.
type frameResult struct {
	seq   int
	frame *media.Frame
	work  *detect.FrameWork
}

// reorderBuffer releases worker results back into read order so the
// aggregator sees a strictly sequential frame stream.
type reorderBuffer struct {
	next    int
	pending map[int]frameResult
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{pending: make(map[int]frameResult)}
}

// add stores one result and returns the run of results now ready in order.
func (b *reorderBuffer) add(r frameResult) []frameResult {
	b.pending[r.seq] = r

	var ready []frameResult
	for {
		res, ok := b.pending[b.next]
		if !ok {
			break
		}
		delete(b.pending, b.next)
		b.next++
		ready = append(ready, res)
	}
	return ready
}

// drained reports whether every buffered result has been released.
func (b *reorderBuffer) drained() bool {
	return len(b.pending) == 0
}
