// Package protocol holds the consensus rules a miner runs: how it picks
// parents, links what it receives into its view, decides acceptance and asks
// for stalled transactions to be reissued.
package protocol

import (
	"math/rand"
	"strings"

	"github.com/cockroachdb/errors"

	"dag-consensus-sim/dag"
	"dag-consensus-sim/idbag"
	"dag-consensus-sim/models"
)

// Type selects a protocol variant.
type Type int

const (
	Chain Type = iota + 1
	Tangle
)

// ErrUnknownType is returned for protocol names no variant answers to.
var ErrUnknownType = errors.New("unknown protocol type")

// ParseType accepts the variant name or the network it models.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "CHAIN", "BITCOIN":
		return Chain, nil
	case "TANGLE", "IOTA":
		return Tangle, nil
	}
	return 0, errors.Wrapf(ErrUnknownType, "%q", s)
}

func (t Type) String() string {
	switch t {
	case Chain:
		return "CHAIN"
	case Tangle:
		return "TANGLE"
	}
	return "UNKNOWN"
}

// SharedBag reports whether all miners of the variant reissue through one bag.
// Any chain miner may carry a stalled id forward; tangle miners only shepherd
// their own.
func (t Type) SharedBag() bool {
	return t == Chain
}

// Host is the miner a protocol runs inside.
type Host interface {
	ID() int
	Tick() int
	SendRequest(to int, h models.Hash)
}

// Protocol is the closed set of per-miner consensus rules.
type Protocol interface {
	idbag.Shepherd

	// MakeTx issues a new transaction on top of the local view and appends it
	// to the run's log. It does not link it; the caller ingests it like any
	// other delivery.
	MakeTx() *models.Transaction
	// ProcessNew links tx, and any buffered orphans it unblocks, into the view
	// and returns what was linked, for broadcast.
	ProcessNew(tx *models.Transaction, sender int) []*models.Transaction
	// CheckAll re-derives acceptance for every linked node and recomputes the
	// reissue candidates.
	CheckAll()
	// CheckReissues hands the current candidates to the bag.
	CheckReissues()
	HasSheep() bool
	ReissueCandidates() []int
	View() *dag.View
	Accepted() []*models.Transaction
	IsAccepted(h models.Hash) bool
}

// Params carries what a variant needs from its miner and its run.
type Params struct {
	Host        Host
	Genesis     *models.Transaction
	Bag         *idbag.Bag
	Log         *models.TxLog
	Rand        *rand.Rand
	AcceptDepth int // chain only
}

// New builds the variant t for one miner.
func New(t Type, p Params) (Protocol, error) {
	switch t {
	case Chain:
		if p.AcceptDepth < 0 {
			return nil, errors.Newf("accept depth must not be negative, got %d", p.AcceptDepth)
		}
		return newChain(p), nil
	case Tangle:
		return newTangle(p), nil
	}
	return nil, errors.Wrapf(ErrUnknownType, "%d", int(t))
}
