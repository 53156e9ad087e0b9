package dag

import (
	"sort"

	"dag-consensus-sim/models"
)

// Node joins a transaction to one miner's view. Children and Reachable hold
// arena indices, never pointers, so the forward edges and the ancestor
// closures cannot form ownership cycles.
type Node struct {
	Index     int
	Tx        *models.Transaction
	Children  []int
	Depth     int              // distance from genesis along the longest parent path
	Reachable map[int]struct{} // ancestor closure, only kept WithReachability
}

// Option configures a View.
type Option func(*View)

// WithReachability makes the view keep every node's ancestor closure.
func WithReachability() Option {
	return func(v *View) {
		v.reachability = true
	}
}

// View is one miner's local ledger: an arena of nodes rooted at genesis, the
// set of tips and the transactions still waiting for a parent.
type View struct {
	nodes        []*Node
	byHash       map[models.Hash]int
	frontier     map[int]struct{}
	orphans      []*models.Transaction
	reachability bool
}

// New creates a view holding only the genesis transaction.
func New(genesis *models.Transaction, opts ...Option) *View {
	v := &View{
		byHash:   make(map[models.Hash]int),
		frontier: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}

	root := v.newNode(genesis)
	v.nodes = append(v.nodes, root)
	v.byHash[genesis.Hash] = root.Index
	v.frontier[root.Index] = struct{}{}
	return v
}

func (v *View) newNode(tx *models.Transaction) *Node {
	n := &Node{Index: len(v.nodes), Tx: tx}
	if v.reachability {
		n.Reachable = make(map[int]struct{})
	}
	return n
}

// Root returns the genesis node.
func (v *View) Root() *Node {
	return v.nodes[0]
}

// Len is the number of linked nodes, genesis included.
func (v *View) Len() int {
	return len(v.nodes)
}

// At returns the node stored at arena index i.
func (v *View) At(i int) *Node {
	return v.nodes[i]
}

// Nodes returns every linked node in arena (link) order.
func (v *View) Nodes() []*Node {
	return v.nodes
}

// Lookup finds the node holding the transaction with hash h.
func (v *View) Lookup(h models.Hash) (*Node, bool) {
	i, ok := v.byHash[h]
	if !ok {
		return nil, false
	}
	return v.nodes[i], true
}

// Contains reports whether h is linked into the view.
func (v *View) Contains(h models.Hash) bool {
	_, ok := v.byHash[h]
	return ok
}

// Frontier returns the tips in arena order.
func (v *View) Frontier() []*Node {
	idx := make([]int, 0, len(v.frontier))
	for i := range v.frontier {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	tips := make([]*Node, len(idx))
	for k, i := range idx {
		tips[k] = v.nodes[i]
	}
	return tips
}

// IsTip reports whether n currently has no known children.
func (v *View) IsTip(n *Node) bool {
	_, ok := v.frontier[n.Index]
	return ok
}

// Deepest returns the tips at maximum depth, in arena order.
func (v *View) Deepest() []*Node {
	var deepest []*Node
	for _, n := range v.Frontier() {
		switch {
		case len(deepest) == 0 || n.Depth > deepest[0].Depth:
			deepest = append(deepest[:0], n)
		case n.Depth == deepest[0].Depth:
			deepest = append(deepest, n)
		}
	}
	return deepest
}

// Orphans returns the buffered transactions whose parents are not all known.
func (v *View) Orphans() []*models.Transaction {
	return v.orphans
}

// Approves reports whether ancestor is in n's ancestor closure.
func (v *View) Approves(n, ancestor *Node) bool {
	_, ok := n.Reachable[ancestor.Index]
	return ok
}

// Ingest links tx and then keeps retrying the orphan buffer until a pass
// links nothing new. A transaction is linked only once every parent is in the
// view. Linked nodes are returned in link order; onAttach, when set, sees each
// one as it is linked. missing lists the parents of tx itself that are still
// unknown once the buffer has settled.
//
// The caller must not ingest a hash that is already linked or buffered.
func (v *View) Ingest(tx *models.Transaction, onAttach func(*Node)) (attached []*Node, missing []models.Hash) {
	work := make([]*models.Transaction, 0, 1+len(v.orphans))
	work = append(work, tx)
	work = append(work, v.orphans...)
	v.orphans = nil

	for len(work) > 0 {
		linked := false
		rest := work[:0]
		for _, item := range work {
			if !v.resolvable(item) {
				rest = append(rest, item)
				continue
			}
			n := v.attach(item)
			attached = append(attached, n)
			if onAttach != nil {
				onAttach(n)
			}
			linked = true
		}
		work = rest
		if !linked {
			break
		}
	}
	v.orphans = work

	if !v.Contains(tx.Hash) {
		for _, p := range tx.Parents {
			if !v.Contains(p) {
				missing = append(missing, p)
			}
		}
	}
	return attached, missing
}

func (v *View) resolvable(tx *models.Transaction) bool {
	for _, p := range tx.Parents {
		if !v.Contains(p) {
			return false
		}
	}
	return true
}

func (v *View) attach(tx *models.Transaction) *Node {
	n := v.newNode(tx)
	for _, p := range tx.Parents {
		parent := v.nodes[v.byHash[p]]
		parent.Children = append(parent.Children, n.Index)
		if parent.Depth+1 > n.Depth {
			n.Depth = parent.Depth + 1
		}
		if v.reachability {
			n.Reachable[parent.Index] = struct{}{}
			for a := range parent.Reachable {
				n.Reachable[a] = struct{}{}
			}
		}
		delete(v.frontier, parent.Index)
	}

	v.nodes = append(v.nodes, n)
	v.byHash[tx.Hash] = n.Index
	v.frontier[n.Index] = struct{}{}
	return n
}
