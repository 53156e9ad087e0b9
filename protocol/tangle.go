package protocol

import (
	"dag-consensus-sim/dag"
	"dag-consensus-sim/models"
)

// tangle is the approval DAG protocol: a transaction approves up to two tips
// and is accepted once every current tip approves it, directly or not.
type tangle struct {
	base
}

func newTangle(p Params) *tangle {
	return &tangle{base: newBase(Tangle, p, dag.WithReachability())}
}

func (t *tangle) MakeTx() *models.Transaction {
	parents := t.selectParents()
	hashes := make([]models.Hash, len(parents))
	for i, n := range parents {
		hashes[i] = n.Tx.Hash
	}
	return t.issue(hashes)
}

func (t *tangle) selectParents() []*dag.Node {
	root := t.view.Root()
	choices := t.view.Frontier()
	if t.view.IsTip(root) && len(choices) >= 3 {
		// root has the lowest arena index, so it is always first
		choices = choices[1:]
	}

	switch {
	case len(choices) == 2, len(choices) == 1 && choices[0] == root:
		return choices
	case len(choices) == 1:
		others := make([]*dag.Node, 0, t.view.Len()-1)
		for _, n := range t.view.Nodes() {
			if n != choices[0] {
				others = append(others, n)
			}
		}
		return []*dag.Node{choices[0], others[t.rng.Intn(len(others))]}
	}

	i, j := 0, 0
	for i == j {
		i = t.rng.Intn(len(choices))
		j = t.rng.Intn(len(choices))
	}
	return []*dag.Node{choices[i], choices[j]}
}

func (t *tangle) approvedByAll(n *dag.Node, tips []*dag.Node) bool {
	for _, tip := range tips {
		if !t.view.Approves(tip, n) {
			return false
		}
	}
	return true
}

// needsReissue holds when every parent of n is already approved by all tips
// while n is not: n is stuck behind confirmed history.
func (t *tangle) needsReissue(n *dag.Node, tips []*dag.Node) bool {
	for _, p := range n.Tx.Parents {
		parent, ok := t.view.Lookup(p)
		if !ok || !t.approvedByAll(parent, tips) {
			return false
		}
	}
	return true
}

func (t *tangle) CheckAll() {
	t.reissue.reset()
	tips := t.view.Frontier()
	// genesis is final by construction
	for _, n := range t.view.Nodes()[1:] {
		if t.approvedByAll(n, tips) {
			t.accept(n)
			t.reissue.remove(n.Tx.ID)
			continue
		}
		t.disconsense(n)
		if t.isSheep(n) && t.needsReissue(n, tips) {
			t.reissue.add(n.Tx.ID)
		}
	}
}
