// Package pool cuts work item lists into fixed-capacity groups and hands them out front first.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/addressbot/internal/models"
)

// ErrInvalidCapacity is returned when a pool is partitioned with a capacity below one
var ErrInvalidCapacity = errors.New("pool capacity must be a positive integer")

// Group is the slice of items processed by a single worker
type Group []models.WorkItem

// Pool is an ordered queue of groups. It is safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	groups []Group
}

// New creates a pool from prebuilt groups
func New(groups ...Group) *Pool {
	p := &Pool{}
	for _, g := range groups {
		if len(g) > 0 {
			p.groups = append(p.groups, g)
		}
	}
	return p
}

// Partition slices items from the front into groups of at most capacity items.
// Only the last group may be shorter. An empty list yields an empty pool.
// The input slice is not modified; each group owns its own backing array.
func Partition(items []models.WorkItem, capacity int) (*Pool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	p := &Pool{}
	for rest := items; len(rest) > 0; {
		n := min(capacity, len(rest))
		group := make(Group, n)
		copy(group, rest[:n])
		p.groups = append(p.groups, group)
		rest = rest[n:]
	}
	return p, nil
}

// Pop removes and returns the front group. ok is false when the pool is exhausted.
func (p *Pool) Pop() (group Group, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.groups) == 0 {
		return nil, false
	}
	group = p.groups[0]
	p.groups[0] = nil
	p.groups = p.groups[1:]
	return group, true
}

// Len returns the number of groups still queued
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.groups)
}

// Total returns the number of items still queued across all groups
func (p *Pool) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, g := range p.groups {
		total += len(g)
	}
	return total
}

// Groups returns a copy of the queued groups in order
func (p *Pool) Groups() []Group {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Group, len(p.groups))
	copy(out, p.groups)
	return out
}

// Items returns the queued items flattened in order
func (p *Pool) Items() []models.WorkItem {
	p.mu.Lock()
	defer p.mu.Unlock()

	var items []models.WorkItem
	for _, g := range p.groups {
		items = append(items, g...)
	}
	return items
}

// Clear drops every queued group. A consumer draining the pool sees it as exhausted on its next pop.
func (p *Pool) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.groups)
	p.groups = nil
	return n
}
