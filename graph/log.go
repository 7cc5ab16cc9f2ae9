package graph

import (
	"container/heap"

	"github.com/lucab/strata/cas"
)

// LogEntry pairs a commit with its hash.
type LogEntry struct {
	Hash   cas.Hash
	Commit Commit
}

// logHeap orders ready commits newest-first; ties break on hash so the
// order is fully deterministic.
type logHeap []LogEntry

func (h logHeap) Len() int { return len(h) }

func (h logHeap) Less(i, j int) bool {
	if !h[i].Commit.When.Equal(h[j].Commit.When) {
		return h[i].Commit.When.After(h[j].Commit.When)
	}
	return h[j].Hash.Less(h[i].Hash)
}

func (h logHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *logHeap) Push(x any)   { *h = append(*h, x.(LogEntry)) }
func (h *logHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// LogIter emits the commits reachable from a tip, newest first, such that
// a commit always precedes every one of its parents, even when timestamps
// are skewed. Reconverging merge graphs are handled with a visited set
// keyed by commit hash.
type LogIter struct {
	commits map[cas.Hash]Commit
	blocked map[cas.Hash]int // children not yet emitted
	ready   logHeap
}

// Log starts a history walk at tip. The reachable set is gathered up
// front so ordering can honor parent links regardless of clock skew.
func Log(store cas.Store, tip cas.Hash) (*LogIter, error) {
	it := &LogIter{
		commits: make(map[cas.Hash]Commit),
		blocked: make(map[cas.Hash]int),
	}

	// Visited-set BFS over the reachable graph.
	queue := []cas.Hash{tip}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, seen := it.commits[h]; seen {
			continue
		}
		c, err := ReadCommit(store, h)
		if err != nil {
			return nil, err
		}
		it.commits[h] = c
		for _, p := range c.Parents {
			it.blocked[p]++
			queue = append(queue, p)
		}
	}

	heap.Push(&it.ready, LogEntry{Hash: tip, Commit: it.commits[tip]})
	return it, nil
}

// Next returns the next entry; ok is false once history is exhausted.
func (it *LogIter) Next() (entry LogEntry, ok bool, err error) {
	if it.ready.Len() == 0 {
		return LogEntry{}, false, nil
	}
	entry = heap.Pop(&it.ready).(LogEntry)

	// A parent becomes ready only after all of its children were emitted.
	for _, p := range entry.Commit.Parents {
		it.blocked[p]--
		if it.blocked[p] == 0 {
			heap.Push(&it.ready, LogEntry{Hash: p, Commit: it.commits[p]})
		}
	}
	return entry, true, nil
}

// Collect drains up to limit entries; limit <= 0 means all.
func (it *LogIter) Collect(limit int) ([]LogEntry, error) {
	var entries []LogEntry
	for {
		if limit > 0 && len(entries) == limit {
			return entries, nil
		}
		e, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return entries, nil
		}
		entries = append(entries, e)
	}
}
