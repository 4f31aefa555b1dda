package loop

import (
	"container/heap"
	"sync"
	"time"
)

// Virtual is a deterministic loop whose clock only moves when told to.
//
// Callbacks due at the same instant run in scheduling order.
// Virtual is safe to schedule on from any goroutine, but callbacks only run
// inside RunUntilIdle/Advance/AdvanceTo on the calling goroutine.
type Virtual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	queue taskHeap
}

func NewVirtual(start time.Time) *Virtual {
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	return &Virtual{now: start}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) Post(fn func()) { v.AfterFunc(0, fn) }

func (v *Virtual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	t := &virtualTask{owner: v, due: v.now.Add(d), seq: v.seq, fn: fn}
	heap.Push(&v.queue, t)
	return t
}

// Pending reports the number of scheduled, unstopped callbacks.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, t := range v.queue {
		if !t.stopped {
			n++
		}
	}
	return n
}

// RunUntilIdle runs every callback due at the current instant, including the
// ones those callbacks post. It returns the number of callbacks run.
func (v *Virtual) RunUntilIdle() int {
	n := 0
	for {
		t := v.popDue()
		if t == nil {
			return n
		}
		t.fn()
		n++
	}
}

// Advance moves the clock forward by d, running callbacks in due order.
func (v *Virtual) Advance(d time.Duration) int {
	return v.AdvanceTo(v.Now().Add(d))
}

// AdvanceTo moves the clock to target, running every callback due on the way.
// Callbacks observe Now() equal to their due time.
func (v *Virtual) AdvanceTo(target time.Time) int {
	n := v.RunUntilIdle()
	for {
		v.mu.Lock()
		next := v.peekLocked()
		if next == nil || next.due.After(target) {
			if target.After(v.now) {
				v.now = target
			}
			v.mu.Unlock()
			return n + v.RunUntilIdle()
		}
		if next.due.After(v.now) {
			v.now = next.due
		}
		v.mu.Unlock()
		n += v.RunUntilIdle()
	}
}

func (v *Virtual) popDue() *virtualTask {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := v.peekLocked()
	if t == nil || t.due.After(v.now) {
		return nil
	}
	heap.Pop(&v.queue)
	t.ran = true
	return t
}

// peekLocked drops stopped tasks from the head and returns the next live one.
func (v *Virtual) peekLocked() *virtualTask {
	for len(v.queue) > 0 {
		t := v.queue[0]
		if !t.stopped {
			return t
		}
		heap.Pop(&v.queue)
	}
	return nil
}

type virtualTask struct {
	owner   *Virtual
	due     time.Time
	seq     uint64
	fn      func()
	stopped bool
	ran     bool
	index   int
}

func (t *virtualTask) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped || t.ran {
		return false
	}
	t.stopped = true
	return true
}

type taskHeap []*virtualTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*virtualTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
