package watcher

import (
	"sync"
	"time"
)

// Op is a coalesced file operation.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one debounced change to a memory file.
type Event struct {
	URI string
	Op  Op
}

// debouncer coalesces rapid events per path so editors that write in bursts
// trigger a single re-index. Each path flushes once it has been quiet for a
// full window; a busy path never holds back the others. Merge rules within
// the window:
//
//	CREATE + MODIFY = CREATE
//	CREATE + DELETE = nothing
//	MODIFY + DELETE = DELETE
//	DELETE + CREATE = MODIFY
type debouncer struct {
	window time.Duration
	output chan []Event

	mu      sync.Mutex
	pending map[string]*pendingEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	op       Op
	firstOp  Op
	deadline time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []Event, 16),
	}
}

func (d *debouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	deadline := time.Now().Add(d.window)
	if existing, ok := d.pending[ev.URI]; ok {
		op, keep := coalesce(existing.firstOp, ev.Op)
		if !keep {
			delete(d.pending, ev.URI)
		} else {
			existing.op = op
			existing.deadline = deadline
		}
	} else {
		d.pending[ev.URI] = &pendingEvent{op: ev.Op, firstOp: ev.Op, deadline: deadline}
	}

	// The running timer always fires no later than any pending deadline;
	// flush reschedules for whatever is still cooling down.
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

// coalesce merges a new operation into the first one seen for a path.
// keep=false means the pair cancels out.
func coalesce(first, next Op) (op Op, keep bool) {
	switch {
	case first == OpCreate && next == OpModify:
		return OpCreate, true
	case first == OpCreate && next == OpDelete:
		return 0, false
	case first == OpDelete && next == OpCreate:
		return OpModify, true
	default:
		return next, true
	}
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timer = nil
	if d.stopped || len(d.pending) == 0 {
		return
	}

	now := time.Now()
	var batch []Event
	var next time.Duration
	for uri, pe := range d.pending {
		if pe.deadline.After(now) {
			if remain := pe.deadline.Sub(now); next == 0 || remain < next {
				next = remain
			}
			continue
		}
		batch = append(batch, Event{URI: uri, Op: pe.op})
		delete(d.pending, uri)
	}
	if next > 0 {
		d.timer = time.AfterFunc(next, d.flush)
	}
	if len(batch) == 0 {
		return
	}

	select {
	case d.output <- batch:
	default:
		// Consumer stalled; drop rather than block the event loop. The
		// next full reindex reconciles anything missed.
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
