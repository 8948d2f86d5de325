package engine

import "github.com/andresmejia3/reframe/internal/types"

// Transition is a FIFO of interpolated crop positions consumed one per frame.
type Transition struct {
	queue [][]types.BBox
}

// Start queues steps linear steps from 'from' to 'to'. The last step equals
// 'to' exactly. Mismatched subject counts produce no transition.
func (t *Transition) Start(from, to []types.BBox, steps int) {
	t.queue = t.queue[:0]
	if len(from) != len(to) || len(to) == 0 {
		return
	}
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		step := make([]types.BBox, len(to))
		for j := range to {
			if i == steps {
				step[j] = to[j]
			} else {
				step[j] = from[j].Lerp(to[j], frac)
			}
		}
		t.queue = append(t.queue, step)
	}
}

// Active reports whether steps remain.
func (t *Transition) Active() bool { return len(t.queue) > 0 }

// Remaining returns the number of queued steps.
func (t *Transition) Remaining() int { return len(t.queue) }

// Next pops the next step. It returns nil when idle.
func (t *Transition) Next() []types.BBox {
	if len(t.queue) == 0 {
		return nil
	}
	step := t.queue[0]
	t.queue = t.queue[1:]
	return step
}

// Cancel drops any in-flight steps.
func (t *Transition) Cancel() {
	t.queue = nil
}
