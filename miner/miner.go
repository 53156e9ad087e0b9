// Package miner is the protocol-agnostic part of a simulated miner: message
// queues with per-edge delay, the seen set and broadcast. Consensus decisions
// are delegated to a protocol.Protocol.
package miner

import (
	"math/rand"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"dag-consensus-sim/logger"
	"dag-consensus-sim/models"
	"dag-consensus-sim/protocol"
	"dag-consensus-sim/topology"
)

// noChange keeps tick arithmetic on lastChange far from overflow.
const noChange = -1 << 30

// Clock tells a miner the current tick.
type Clock interface {
	Tick() int
}

// Factory builds the protocol variant a miner runs, bound to that miner.
type Factory func(host protocol.Host) (protocol.Protocol, error)

// Config identifies a miner within its run.
type Config struct {
	ID      int
	Power   float64
	Genesis *models.Transaction
	Clock   Clock
	Rand    *rand.Rand
	// RecheckWindow is how many ticks after its last change a miner with
	// sheep keeps re-running the consensus check with nothing new delivered.
	RecheckWindow int
}

// Link is the outgoing half of an edge.
type Link struct {
	Peer  *Miner
	Delay topology.Distribution
}

// Stats counts what a miner handled over a run.
type Stats struct {
	Delivered  int
	Duplicates int
	Requests   int
	Served     int
	Broadcasts int
	Checks     int
	Created    int
}

type envelope struct {
	msg   models.Message
	delay int
}

type Miner struct {
	id            int
	power         float64
	clock         Clock
	rng           *rand.Rand
	recheckWindow int

	links     map[int]Link
	neighbors []int

	seen     map[models.Hash]*models.Transaction
	preQueue []envelope
	queue    []envelope

	proto      protocol.Protocol
	lastChange int
	stats      Stats
	log        *zap.Logger
}

func New(cfg Config, factory Factory) (*Miner, error) {
	if cfg.Genesis == nil || cfg.Clock == nil || cfg.Rand == nil {
		return nil, errors.New("miner config needs genesis, clock and rand")
	}
	m := &Miner{
		id:            cfg.ID,
		power:         cfg.Power,
		clock:         cfg.Clock,
		rng:           cfg.Rand,
		recheckWindow: cfg.RecheckWindow,
		links:         make(map[int]Link),
		seen:          map[models.Hash]*models.Transaction{cfg.Genesis.Hash: cfg.Genesis},
		lastChange:    noChange,
		log:           logger.Logger.With(zap.Int("miner", cfg.ID)),
	}
	p, err := factory(m)
	if err != nil {
		return nil, errors.Wrapf(err, "miner %d", cfg.ID)
	}
	m.proto = p
	return m, nil
}

func (m *Miner) ID() int {
	return m.id
}

func (m *Miner) Tick() int {
	return m.clock.Tick()
}

func (m *Miner) Power() float64 {
	return m.power
}

func (m *Miner) Protocol() protocol.Protocol {
	return m.proto
}

func (m *Miner) Stats() Stats {
	return m.stats
}

// Connect adds an outgoing link to peer. Links are one-way; the driver
// connects both ends.
func (m *Miner) Connect(peer *Miner, delay topology.Distribution) {
	if _, ok := m.links[peer.id]; !ok {
		m.neighbors = append(m.neighbors, peer.id)
		sort.Ints(m.neighbors)
	}
	m.links[peer.id] = Link{Peer: peer, Delay: delay}
}

// Neighbors returns peer ids in ascending order.
func (m *Miner) Neighbors() []int {
	return m.neighbors
}

// Seen reports whether the miner has ever received or created h.
func (m *Miner) Seen(h models.Hash) bool {
	_, ok := m.seen[h]
	return ok
}

func (m *Miner) SeenCount() int {
	return len(m.seen)
}

// HasPending reports whether any message is still on its way to the miner.
func (m *Miner) HasPending() bool {
	return len(m.queue) > 0 || len(m.preQueue) > 0
}

func (m *Miner) fail(tx *models.Transaction, reason string) {
	panic(models.Violation(m.id, m.Tick(), tx, reason))
}

// Push queues msg to arrive after delay ticks. It lands in the pre-queue and
// only becomes deliverable after the next Flush.
func (m *Miner) Push(msg models.Message, delay int) {
	if delay < 0 {
		m.fail(msg.Tx, "negative message delay")
	}
	m.preQueue = append(m.preQueue, envelope{msg: msg, delay: delay})
}

// Flush makes everything pushed since the last flush deliverable. The driver
// flushes every miner only after all of them have reacted to the tick, so no
// miner sees a message sent during the same tick.
func (m *Miner) Flush() {
	m.queue = m.preQueue
	m.preQueue = nil
}

// Deliver counts every queued message down one tick and returns those that
// arrived. The rest go back through Push.
func (m *Miner) Deliver() []models.Message {
	var arrived []models.Message
	for _, env := range m.queue {
		if d := env.delay - 1; d > 0 {
			m.Push(env.msg, d)
			continue
		}
		arrived = append(arrived, env.msg)
	}
	m.queue = nil
	return arrived
}

func (m *Miner) send(to int, msg models.Message) {
	if msg.Type == models.Block {
		for _, p := range msg.Tx.Parents {
			if !m.Seen(p) {
				m.fail(msg.Tx, "sending a transaction whose parent was never ingested")
			}
		}
	}
	link, ok := m.links[to]
	if !ok {
		m.fail(msg.Tx, "sending to a miner that is not a neighbor")
	}
	link.Peer.Push(msg, link.Delay.SampleTicks(m.rng))
}

func (m *Miner) broadcast(tx *models.Transaction) {
	m.stats.Broadcasts++
	for _, to := range m.neighbors {
		m.send(to, models.Message{Sender: m.id, Type: models.Block, Tx: tx})
	}
}

// SendRequest asks peer `to` for the transaction with hash h.
func (m *Miner) SendRequest(to int, h models.Hash) {
	if to == m.id {
		m.fail(nil, "request addressed to self for "+string(h))
	}
	m.stats.Requests++
	m.send(to, models.Message{Sender: m.id, Type: models.Request, Hash: h})
}

func (m *Miner) ingest(tx *models.Transaction, sender int) {
	for _, out := range m.proto.ProcessNew(tx, sender) {
		m.broadcast(out)
	}
}

// ReceiveBlock ingests tx unless it was seen before, broadcasting whatever
// becomes linked. It reports whether tx was new.
func (m *Miner) ReceiveBlock(tx *models.Transaction, sender int) bool {
	if m.Seen(tx.Hash) {
		m.stats.Duplicates++
		return false
	}
	m.seen[tx.Hash] = tx
	m.stats.Delivered++
	m.ingest(tx, sender)
	return true
}

// ReceiveRequest answers a peer asking for h.
func (m *Miner) ReceiveRequest(h models.Hash, requester int) {
	tx, ok := m.seen[h]
	if !ok {
		panic(&models.InvariantError{
			Miner:  m.id,
			Tick:   m.Tick(),
			TxID:   -1,
			Hash:   h,
			Reason: "request for a transaction never seen",
		})
	}
	m.stats.Served++
	m.send(requester, models.Message{Sender: m.id, Type: models.Block, Tx: tx})
}

// CreateAndBroadcast makes a new transaction and ingests it as if delivered
// by the miner itself.
func (m *Miner) CreateAndBroadcast() *models.Transaction {
	tx := m.proto.MakeTx()
	if m.Seen(tx.Hash) {
		m.fail(tx, "created transaction hash already seen")
	}
	m.seen[tx.Hash] = tx
	m.stats.Created++
	m.lastChange = m.Tick()
	m.log.Debug("Created transaction",
		zap.Int("tx_id", tx.ID), zap.String("hash", tx.Hash.Short()), zap.Int("tick", tx.Created))
	m.ingest(tx, m.id)
	return tx
}

// RunConsensusCheck re-derives acceptance across the whole local view.
func (m *Miner) RunConsensusCheck() {
	m.stats.Checks++
	m.proto.CheckAll()
}

// Step delivers this tick's messages and reacts to them. The consensus check
// runs when anything new was ingested, or when the miner shepherds
// transactions and changed within the recheck window: a peer's fork
// resolution may only become visible a tick after our own change.
func (m *Miner) Step() int {
	tick := m.Tick()
	fresh := 0
	for _, msg := range m.Deliver() {
		switch msg.Type {
		case models.Block:
			if m.ReceiveBlock(msg.Tx, msg.Sender) {
				fresh++
			}
		case models.Request:
			m.ReceiveRequest(msg.Hash, msg.Sender)
		}
	}

	recent := tick-m.lastChange >= 1 && tick-m.lastChange <= m.recheckWindow
	if fresh > 0 {
		m.lastChange = tick
	}
	if fresh > 0 || (recent && m.proto.HasSheep()) {
		m.RunConsensusCheck()
	}
	return fresh
}

// CheckReissues pushes the latest reissue candidates into the bag.
func (m *Miner) CheckReissues() {
	m.proto.CheckReissues()
}

// Snapshot captures the miner's final view for reporting.
func (m *Miner) Snapshot() models.MinerView {
	view := m.proto.View()
	out := models.MinerView{
		Miner: m.id,
		Root:  view.Root().Tx.Hash,
		Seen:  len(m.seen),
	}
	for _, n := range view.Frontier() {
		out.Frontier = append(out.Frontier, n.Tx.Hash)
	}
	for _, tx := range m.proto.Accepted() {
		out.Accepted = append(out.Accepted, tx.Hash)
	}
	for _, tx := range view.Orphans() {
		out.Orphans = append(out.Orphans, tx.Hash)
	}
	return out
}
