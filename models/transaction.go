package models

import (
	"sync"
)

// NoMiner is the origin of the genesis transaction.
const NoMiner = -1

// GenesisID is the id reserved for the genesis transaction; fresh ids start after it.
const GenesisID = 0

// GenesisTick is the tick at which every miner holds the genesis transaction in consensus.
const GenesisTick = -1

// Transaction is immutable once created apart from its append-only history.
type Transaction struct {
	ID      int     `json:"id"`      // logical id, shared by reissues
	Origin  int     `json:"origin"`  // originating miner
	Created int     `json:"created"` // creation tick
	Parents []Hash  `json:"parents"` // one for chain, up to two for tangle
	Hash    Hash    `json:"hash"`    // content hash, storage identity
	History []Event `json:"history"`
}

// NewTransaction builds a transaction and records its CREATED event.
func NewTransaction(origin, tick, id int, parents []Hash) *Transaction {
	tx := &Transaction{
		ID:      id,
		Origin:  origin,
		Created: tick,
		Parents: parents,
		Hash:    ContentHash(id, tick, origin, parents),
	}
	tx.AddEvent(tick, origin, Created)
	return tx
}

// NewGenesis builds the parentless root transaction. It has no originating
// miner and therefore no CREATED event.
func NewGenesis() *Transaction {
	return &Transaction{
		ID:      GenesisID,
		Origin:  NoMiner,
		Created: GenesisTick,
		Hash:    ContentHash(GenesisID, GenesisTick, NoMiner, nil),
	}
}

func (t *Transaction) AddEvent(tick, miner int, state State) {
	t.History = append(t.History, Event{Tick: tick, Miner: miner, State: state})
}

// IsGenesis reports whether t is the parentless root.
func (t *Transaction) IsGenesis() bool {
	return len(t.Parents) == 0
}

// LastState returns the latest state the miner recorded for t.
func (t *Transaction) LastState(miner int) (State, bool) {
	for i := len(t.History) - 1; i >= 0; i-- {
		if t.History[i].Miner == miner {
			return t.History[i].State, true
		}
	}
	return 0, false
}

// TxLog is the run-wide, append-only list of every transaction created,
// reissues included. Appends come from whichever miner wins the lottery.
type TxLog struct {
	mu  sync.Mutex
	txs []*Transaction
}

func NewTxLog() *TxLog {
	return &TxLog{}
}

func (l *TxLog) Append(tx *Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs = append(l.txs, tx)
}

// All returns a snapshot of the log in creation order.
func (l *TxLog) All() []*Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Transaction, len(l.txs))
	copy(out, l.txs)
	return out
}

func (l *TxLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}
