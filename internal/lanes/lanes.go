// Package lanes serializes jobs that share a queue key.
//
// Each non-empty key owns a lane ordered by submission sequence; only the
// head of an idle lane may be acquired and at most one job per lane runs at
// a time. A job with an empty key gets a private lane and is therefore
// unordered relative to others.
//
// Lanes is not safe for concurrent use; the caller serializes access.
package lanes

import (
	"slices"
	"sort"
)

// Head identifies the first job of an idle lane.
type Head struct {
	Key string
	ID  string
}

type slot struct {
	id  string
	seq int64
}

type lane struct {
	slots []slot
	busy  bool
}

// Lanes holds the per-key FIFOs.
type Lanes struct {
	lanes map[string]*lane
	size  int
}

// New creates an empty set of lanes.
func New() *Lanes {
	return &Lanes{lanes: make(map[string]*lane)}
}

func laneKey(key, id string) string {
	if key == "" {
		return "\x00" + id
	}
	return key
}

// Push inserts id into the lane of key, behind every job with a lower or
// equal seq. A running head is never displaced.
func (l *Lanes) Push(key, id string, seq int64) {
	k := laneKey(key, id)
	ln := l.lanes[k]
	if ln == nil {
		ln = &lane{}
		l.lanes[k] = ln
	}
	lo := 0
	if ln.busy {
		lo = 1
	}
	i := lo + sort.Search(len(ln.slots)-lo, func(i int) bool { return ln.slots[lo+i].seq > seq })
	ln.slots = slices.Insert(ln.slots, i, slot{id: id, seq: seq})
	l.size++
}

// Heads returns the head of every idle lane, in no particular order.
func (l *Lanes) Heads() []Head {
	out := make([]Head, 0, len(l.lanes))
	for k, ln := range l.lanes {
		if ln.busy || len(ln.slots) == 0 {
			continue
		}
		key := k
		if len(k) > 0 && k[0] == 0 {
			key = ""
		}
		out = append(out, Head{Key: key, ID: ln.slots[0].id})
	}
	return out
}

// Acquire marks the lane of key busy if id is its head and the lane is idle.
func (l *Lanes) Acquire(key, id string) bool {
	ln := l.lanes[laneKey(key, id)]
	if ln == nil || ln.busy || len(ln.slots) == 0 || ln.slots[0].id != id {
		return false
	}
	ln.busy = true
	return true
}

// Release marks the lane idle again while keeping id at its head, as when
// the job is rescheduled.
func (l *Lanes) Release(key, id string) {
	if ln := l.lanes[laneKey(key, id)]; ln != nil && len(ln.slots) > 0 && ln.slots[0].id == id {
		ln.busy = false
	}
}

// Done removes id from its lane and, if it was the running head, frees the lane.
func (l *Lanes) Done(key, id string) {
	k := laneKey(key, id)
	ln := l.lanes[k]
	if ln == nil {
		return
	}
	for i, v := range ln.slots {
		if v.id != id {
			continue
		}
		if i == 0 {
			ln.busy = false
		}
		ln.slots = slices.Delete(ln.slots, i, i+1)
		l.size--
		break
	}
	if len(ln.slots) == 0 {
		delete(l.lanes, k)
	}
}

func (l *Lanes) running(key, id string) bool {
	ln := l.lanes[laneKey(key, id)]
	return ln != nil && ln.busy && len(ln.slots) > 0 && ln.slots[0].id == id
}

// Len returns the number of queued jobs, running ones included.
func (l *Lanes) Len() int { return l.size }
