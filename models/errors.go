package models

import (
	"fmt"
)

// InvariantError reports a protocol invariant violation. These are bugs in a
// protocol or in the driver wiring and abort the run.
type InvariantError struct {
	Miner  int
	Tick   int
	TxID   int
	Hash   Hash
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s (miner=%d tick=%d tx=%d hash=%s)",
		e.Reason, e.Miner, e.Tick, e.TxID, e.Hash)
}

// Violation builds an InvariantError about tx, which may be nil.
func Violation(miner, tick int, tx *Transaction, reason string) *InvariantError {
	e := &InvariantError{Miner: miner, Tick: tick, TxID: -1, Reason: reason}
	if tx != nil {
		e.TxID = tx.ID
		e.Hash = tx.Hash
	}
	return e
}
