package protocol

import (
	"math/rand"

	"dag-consensus-sim/dag"
	"dag-consensus-sim/idbag"
	"dag-consensus-sim/metrics"
	"dag-consensus-sim/models"
)

// idSet is an insertion-ordered set of ids. Order matters: candidates reach
// the bag's FIFO in the order they were found.
type idSet struct {
	order []int
	in    map[int]struct{}
}

func newIDSet() *idSet {
	return &idSet{in: make(map[int]struct{})}
}

func (s *idSet) add(id int) {
	if _, ok := s.in[id]; ok {
		return
	}
	s.in[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *idSet) remove(id int) {
	if _, ok := s.in[id]; !ok {
		return
	}
	delete(s.in, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *idSet) reset() {
	s.order = s.order[:0]
	clear(s.in)
}

func (s *idSet) list() []int {
	out := make([]int, len(s.order))
	copy(out, s.order)
	return out
}

// base is the ingestion skeleton and bookkeeping both variants share.
type base struct {
	label    string
	host     Host
	view     *dag.View
	bag      *idbag.Bag
	log      *models.TxLog
	rng      *rand.Rand
	accepted map[models.Hash]struct{}
	sheep    map[models.Hash]*models.Transaction
	reissue  *idSet
}

func newBase(t Type, p Params, opts ...dag.Option) base {
	b := base{
		label:    t.String(),
		host:     p.Host,
		view:     dag.New(p.Genesis, opts...),
		bag:      p.Bag,
		log:      p.Log,
		rng:      p.Rand,
		accepted: make(map[models.Hash]struct{}),
		sheep:    make(map[models.Hash]*models.Transaction),
		reissue:  newIDSet(),
	}
	p.Genesis.AddEvent(models.GenesisTick, p.Host.ID(), models.Consensus)
	b.accepted[p.Genesis.Hash] = struct{}{}
	return b
}

func (b *base) issue(parents []models.Hash) *models.Transaction {
	// the id comes first: taking a reissued id may release one of our own sheep
	id := b.bag.Next()
	tx := models.NewTransaction(b.host.ID(), b.host.Tick(), id, parents)
	b.sheep[tx.Hash] = tx
	b.log.Append(tx)
	return tx
}

func (b *base) ProcessNew(tx *models.Transaction, sender int) []*models.Transaction {
	me, tick := b.host.ID(), b.host.Tick()
	if b.view.Contains(tx.Hash) {
		panic(models.Violation(me, tick, tx, "transaction linked twice"))
	}

	attached, missing := b.view.Ingest(tx, func(n *dag.Node) {
		n.Tx.AddEvent(tick, me, models.PreConsensus)
	})
	if len(missing) > 0 {
		if sender == me {
			panic(models.Violation(me, tick, tx, "miner created an orphan"))
		}
		for _, h := range missing {
			b.host.SendRequest(sender, h)
		}
	}

	out := make([]*models.Transaction, len(attached))
	for i, n := range attached {
		out[i] = n.Tx
	}
	return out
}

func (b *base) accept(n *dag.Node) {
	if _, ok := b.accepted[n.Tx.Hash]; ok {
		return
	}
	b.accepted[n.Tx.Hash] = struct{}{}
	n.Tx.AddEvent(b.host.Tick(), b.host.ID(), models.Consensus)
	metrics.ConsensusEvents.WithLabelValues(b.label, models.Consensus.String()).Inc()
}

func (b *base) disconsense(n *dag.Node) {
	if _, ok := b.accepted[n.Tx.Hash]; !ok || n.Tx.IsGenesis() {
		return
	}
	delete(b.accepted, n.Tx.Hash)
	n.Tx.AddEvent(b.host.Tick(), b.host.ID(), models.Disconsensed)
	metrics.ConsensusEvents.WithLabelValues(b.label, models.Disconsensed.String()).Inc()
}

func (b *base) isSheep(n *dag.Node) bool {
	_, ok := b.sheep[n.Tx.Hash]
	return ok
}

func (b *base) CheckReissues() {
	for _, id := range b.reissue.order {
		b.bag.Add(id, b)
	}
}

func (b *base) RemoveSheep(id int) {
	for h, tx := range b.sheep {
		if tx.ID == id {
			delete(b.sheep, h)
		}
	}
	b.reissue.remove(id)
}

func (b *base) HasSheep() bool {
	return len(b.sheep) > 0
}

func (b *base) ReissueCandidates() []int {
	return b.reissue.list()
}

func (b *base) View() *dag.View {
	return b.view
}

func (b *base) IsAccepted(h models.Hash) bool {
	_, ok := b.accepted[h]
	return ok
}

// Accepted lists accepted transactions in link order.
func (b *base) Accepted() []*models.Transaction {
	var out []*models.Transaction
	for _, n := range b.view.Nodes() {
		if b.IsAccepted(n.Tx.Hash) {
			out = append(out, n.Tx)
		}
	}
	return out
}
