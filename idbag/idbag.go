// Package idbag hands out transaction ids and queues ids that need a fresh
// attempt.
package idbag

import (
	"sync"

	"dag-consensus-sim/models"
)

// Shepherd is told when another attempt at one of its ids has been issued,
// so it stops tracking the old one.
type Shepherd interface {
	RemoveSheep(id int)
}

// Counter issues fresh ids. One counter is owned by each simulation run and
// shared by all of its bags.
type Counter struct {
	mu   sync.Mutex
	next int
}

// NewCounter starts after the genesis id.
func NewCounter() *Counter {
	return &Counter{next: models.GenesisID + 1}
}

// Take returns the next fresh id and advances the counter.
func (c *Counter) Take() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return id
}

// Peek returns the id Take would return.
func (c *Counter) Peek() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Issued is the number of distinct non-genesis ids handed out so far.
func (c *Counter) Issued() int {
	return c.Peek() - models.GenesisID - 1
}

type entry struct {
	id       int
	shepherd Shepherd
}

// Bag is a FIFO of ids awaiting reissue in front of a Counter.
type Bag struct {
	mu      sync.Mutex
	pending []entry
	counter *Counter
}

func New(counter *Counter) *Bag {
	return &Bag{counter: counter}
}

// Next pops the oldest pending reissue and releases its shepherd, or takes a
// fresh id when nothing is pending.
func (b *Bag) Next() int {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return b.counter.Take()
	}
	e := b.pending[0]
	b.pending = b.pending[1:]
	b.mu.Unlock()

	// outside the lock: the shepherd may be a miner sharing this bag
	e.shepherd.RemoveSheep(e.id)
	return e.id
}

// Add queues id for reissue on behalf of shepherd.
func (b *Bag) Add(id int, shepherd Shepherd) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, entry{id: id, shepherd: shepherd})
}

// Clear drops every pending reissue. Called at the start of each tick so a
// request never outlives the check that produced it.
func (b *Bag) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = b.pending[:0]
}

// PeekNext returns the id Next would return without changing anything.
func (b *Bag) PeekNext() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) > 0 {
		return b.pending[0].id
	}
	return b.counter.Peek()
}

// Len is the number of pending reissues.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
