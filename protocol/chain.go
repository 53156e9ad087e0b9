package protocol

import (
	"dag-consensus-sim/dag"
	"dag-consensus-sim/models"
)

// chain is the longest-branch protocol: every transaction has one parent and
// a transaction is final once it sits on a deepest branch with at least
// acceptDepth descendants below the tip.
type chain struct {
	base
	acceptDepth int
}

func newChain(p Params) *chain {
	return &chain{
		base:        newBase(Chain, p),
		acceptDepth: p.AcceptDepth,
	}
}

// MakeTx extends one of the deepest tips, picked uniformly on ties.
func (c *chain) MakeTx() *models.Transaction {
	tips := c.view.Deepest()
	parent := tips[c.rng.Intn(len(tips))]
	return c.issue([]models.Hash{parent.Tx.Hash})
}

// CheckAll runs one pass to learn the tree's maximum depth and, once that is
// at least acceptDepth, a second pass that applies it.
func (c *chain) CheckAll() {
	c.reissue.reset()
	maxDepth := c.walk(c.view.Root(), -1)
	if maxDepth < c.acceptDepth {
		return
	}
	c.walk(c.view.Root(), maxDepth)
}

// walk returns the deepest depth reachable below n. With maxDepth < 0 it only
// measures.
func (c *chain) walk(n *dag.Node, maxDepth int) int {
	localMax := n.Depth
	for _, i := range n.Children {
		if d := c.walk(c.view.At(i), maxDepth); d > localMax {
			localMax = d
		}
	}
	if maxDepth < 0 {
		return localMax
	}

	switch {
	case localMax == maxDepth && localMax-n.Depth >= c.acceptDepth:
		c.accept(n)
		// an older attempt of this id can still sit on a dead fork
		c.reissue.remove(n.Tx.ID)
	case localMax != maxDepth:
		c.disconsense(n)
		if c.isSheep(n) && localMax < maxDepth-c.acceptDepth {
			c.reissue.add(n.Tx.ID)
		}
	}
	return localMax
}
