// Package report summarises a finished run from the transaction histories:
// which transactions every miner agreed on, how long agreement took and how
// often it was lost again.
package report

import (
	"sort"

	"github.com/cockroachdb/errors"

	"dag-consensus-sim/models"
)

// Status classifies one transaction attempt at the end of a run.
type Status int

const (
	// Consensed: every miner accepted it at some point.
	Consensed Status = iota + 1
	// Unconsensed: some miners accepted it, others never did.
	Unconsensed
	// Unaccepted: no miner ever accepted it.
	Unaccepted
)

func (s Status) String() string {
	switch s {
	case Consensed:
		return "CONSENSED"
	case Unconsensed:
		return "UNCONSENSED"
	case Unaccepted:
		return "UNACCEPTED"
	}
	return "UNKNOWN"
}

func (s Status) MarshalText() ([]byte, error) {
	if s < Consensed || s > Unaccepted {
		return nil, errors.Newf("unknown status %d", int(s))
	}
	return []byte(s.String()), nil
}

// TxReport is the outcome of one attempt.
type TxReport struct {
	ID           int         `json:"id"`
	Hash         models.Hash `json:"hash"`
	Origin       int         `json:"origin"`
	Created      int         `json:"created"`
	Status       Status      `json:"status"`
	Disconsensed bool        `json:"disconsensed"` // lost acceptance at least once
}

// Timing is how long it took each miner to accept an id, counted from the
// creation of its first attempt. Reissued attempts are folded in.
type Timing struct {
	ID    int         `json:"id"`
	Times map[int]int `json:"times"` // miner -> ticks until its latest acceptance
	Max   int         `json:"max"`
}

// Episode is a stretch during which a miner had withdrawn acceptance of a
// transaction. Open episodes were never closed by a later acceptance.
type Episode struct {
	TxID  int         `json:"tx_id"`
	Hash  models.Hash `json:"hash"`
	Miner int         `json:"miner"`
	From  int         `json:"from"`
	To    int         `json:"to"`
	Open  bool        `json:"open"`
}

// Duration is the episode length in ticks, or -1 while open.
func (e Episode) Duration() int {
	if e.Open {
		return -1
	}
	return e.To - e.From
}

// Summary counts the per-attempt outcomes.
type Summary struct {
	Transactions int     `json:"transactions"`
	Consensed    int     `json:"consensed"`
	Unconsensed  int     `json:"unconsensed"`
	Unaccepted   int     `json:"unaccepted"`
	Disconsensed int     `json:"disconsensed"`
	Episodes     int     `json:"episodes"`
	MeanMaxTime  float64 `json:"mean_max_time"`
	WorstTime    int     `json:"worst_time"`
}

type Report struct {
	Miners       int        `json:"miners"`
	Transactions []TxReport `json:"transactions"`
	Timings      []Timing   `json:"timings"`
	Episodes     []Episode  `json:"episodes"`
	Summary      Summary    `json:"summary"`
}

// Build classifies every non-genesis transaction in log order. miners is the
// size of the network the run had.
func Build(miners int, txs []*models.Transaction) *Report {
	r := &Report{Miners: miners}
	first := make(map[int]*Timing)
	firstCreated := make(map[int]int)

	for _, tx := range txs {
		if tx.IsGenesis() {
			continue
		}
		r.Transactions = append(r.Transactions, classify(miners, tx))
		r.Episodes = append(r.Episodes, episodes(tx)...)

		if _, ok := firstCreated[tx.ID]; !ok {
			firstCreated[tx.ID] = tx.Created
		}
		for _, e := range tx.History {
			if e.State != models.Consensus {
				continue
			}
			tm, ok := first[tx.ID]
			if !ok {
				tm = &Timing{ID: tx.ID, Times: make(map[int]int), Max: -1}
				first[tx.ID] = tm
			}
			d := e.Tick - firstCreated[tx.ID]
			if prev, ok := tm.Times[e.Miner]; !ok || d > prev {
				tm.Times[e.Miner] = d
			}
			if d > tm.Max {
				tm.Max = d
			}
		}
	}

	for _, tm := range first {
		r.Timings = append(r.Timings, *tm)
	}
	sort.Slice(r.Timings, func(i, j int) bool { return r.Timings[i].ID < r.Timings[j].ID })
	r.Summary = r.summarise()
	return r
}

func classify(miners int, tx *models.Transaction) TxReport {
	out := TxReport{ID: tx.ID, Hash: tx.Hash, Origin: tx.Origin, Created: tx.Created}
	accepted := make(map[int]struct{})
	for _, e := range tx.History {
		switch e.State {
		case models.Consensus:
			accepted[e.Miner] = struct{}{}
		case models.Disconsensed:
			out.Disconsensed = true
		}
	}
	switch {
	case len(accepted) == 0:
		out.Status = Unaccepted
	case len(accepted) < miners:
		out.Status = Unconsensed
	default:
		out.Status = Consensed
	}
	return out
}

func episodes(tx *models.Transaction) []Episode {
	var out []Episode
	open := make(map[int]int) // miner -> index into out
	for _, e := range tx.History {
		switch e.State {
		case models.Disconsensed:
			if _, ok := open[e.Miner]; ok {
				continue
			}
			open[e.Miner] = len(out)
			out = append(out, Episode{TxID: tx.ID, Hash: tx.Hash, Miner: e.Miner, From: e.Tick, Open: true})
		case models.Consensus:
			if i, ok := open[e.Miner]; ok {
				out[i].To = e.Tick
				out[i].Open = false
				delete(open, e.Miner)
			}
		}
	}
	return out
}

func (r *Report) summarise() Summary {
	s := Summary{Transactions: len(r.Transactions), Episodes: len(r.Episodes)}
	for _, t := range r.Transactions {
		switch t.Status {
		case Consensed:
			s.Consensed++
		case Unconsensed:
			s.Unconsensed++
		case Unaccepted:
			s.Unaccepted++
		}
		if t.Disconsensed {
			s.Disconsensed++
		}
	}
	if len(r.Timings) > 0 {
		total := 0
		for _, tm := range r.Timings {
			total += tm.Max
			if tm.Max > s.WorstTime {
				s.WorstTime = tm.Max
			}
		}
		s.MeanMaxTime = float64(total) / float64(len(r.Timings))
	}
	return s
}

// Unconsensed lists the ids of attempts that only part of the network accepted.
func (r *Report) Unconsensed() []int {
	return r.idsWhere(func(t TxReport) bool { return t.Status == Unconsensed })
}

// Disconsensed lists the ids of attempts that lost acceptance at least once.
func (r *Report) Disconsensed() []int {
	return r.idsWhere(func(t TxReport) bool { return t.Disconsensed })
}

func (r *Report) idsWhere(keep func(TxReport) bool) []int {
	var ids []int
	for _, t := range r.Transactions {
		if keep(t) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
