package graph

import (
	"errors"

	"github.com/lucab/strata/cas"
)

// ErrNoCommonAncestor is returned when two commits share no history.
var ErrNoCommonAncestor = errors.New("no common ancestor")

// ancestorDistances returns every ancestor of tip (including tip itself)
// with its minimum edge distance from tip.
func ancestorDistances(store cas.Store, tip cas.Hash) (map[cas.Hash]int, error) {
	dist := map[cas.Hash]int{tip: 0}
	queue := []cas.Hash{tip}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		c, err := ReadCommit(store, h)
		if err != nil {
			return nil, err
		}
		for _, p := range c.Parents {
			if _, seen := dist[p]; seen {
				continue
			}
			dist[p] = dist[h] + 1
			queue = append(queue, p)
		}
	}
	return dist, nil
}

// MergeBase returns the lowest common ancestor of a and b: the common
// ancestor with the smallest combined distance to both tips. Ties break
// on earliest commit timestamp, then on hash, so the result is
// deterministic. MergeBase(a, a) == a, and the operation is symmetric.
func MergeBase(store cas.Store, a, b cas.Hash) (cas.Hash, error) {
	fromA, err := ancestorDistances(store, a)
	if err != nil {
		return cas.Hash{}, err
	}
	fromB, err := ancestorDistances(store, b)
	if err != nil {
		return cas.Hash{}, err
	}

	best := cas.Hash{}
	bestDist := -1
	var bestCommit Commit
	for h, da := range fromA {
		db, ok := fromB[h]
		if !ok {
			continue
		}
		d := da + db
		if bestDist != -1 && d > bestDist {
			continue
		}
		c, err := ReadCommit(store, h)
		if err != nil {
			return cas.Hash{}, err
		}
		replace := bestDist == -1 || d < bestDist
		if !replace && d == bestDist {
			if c.When.Before(bestCommit.When) {
				replace = true
			} else if c.When.Equal(bestCommit.When) && h.Less(best) {
				replace = true
			}
		}
		if replace {
			best = h
			bestDist = d
			bestCommit = c
		}
	}
	if bestDist == -1 {
		return cas.Hash{}, ErrNoCommonAncestor
	}
	return best, nil
}

// IsAncestor reports whether ancestor is reachable from descendant
// (a commit counts as its own ancestor).
func IsAncestor(store cas.Store, ancestor, descendant cas.Hash) (bool, error) {
	dist, err := ancestorDistances(store, descendant)
	if err != nil {
		return false, err
	}
	_, ok := dist[ancestor]
	return ok, nil
}
