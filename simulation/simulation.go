// Package simulation drives a network of miners tick by tick until its
// termination condition holds.
package simulation

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"dag-consensus-sim/idbag"
	"dag-consensus-sim/logger"
	"dag-consensus-sim/metrics"
	"dag-consensus-sim/miner"
	"dag-consensus-sim/models"
	"dag-consensus-sim/protocol"
	"dag-consensus-sim/topology"
)

// Option customises a Simulation.
type Option func(*Simulation)

// WithLottery replaces the power-weighted lottery.
func WithLottery(l Lottery) Option {
	return func(s *Simulation) {
		s.lottery = l
	}
}

// WithPowers sets each miner's power by id. Missing entries default to 1.
func WithPowers(powers []float64) Option {
	return func(s *Simulation) {
		s.powers = powers
	}
}

// Simulation owns the miner network, the run's transaction log and the id
// counter, and advances them one tick at a time.
type Simulation struct {
	settings Settings
	graph    *topology.Graph
	rng      *rand.Rand
	lottery  Lottery
	powers   []float64

	genesis *models.Transaction
	log     *models.TxLog
	counter *idbag.Counter
	bags    []*idbag.Bag
	bagOf   []*idbag.Bag
	miners  []*miner.Miner

	tick        int
	triggeredAt int
	label       string
	logger      *zap.Logger
}

func New(settings Settings, graph *topology.Graph, opts ...Option) (*Simulation, error) {
	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "simulation settings")
	}
	if graph == nil || !graph.Connected() {
		return nil, errors.Wrap(topology.ErrInvalidGraph, "miner graph must be connected")
	}
	if settings.Termination.MaxTicks == 0 {
		settings.Termination.MaxTicks = DefaultMaxTicks
	}

	s := &Simulation{
		settings:    settings,
		graph:       graph,
		rng:         rand.New(rand.NewSource(settings.Seed)),
		lottery:     WeightedLottery{TargetTicks: settings.TargetTicksBetweenGeneration},
		genesis:     models.NewGenesis(),
		log:         models.NewTxLog(),
		counter:     idbag.NewCounter(),
		triggeredAt: -1,
		label:       settings.Protocol.String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Logger.With(zap.String("protocol", s.label), zap.Int64("seed", settings.Seed))
	s.log.Append(s.genesis)

	var shared *idbag.Bag
	if settings.Protocol.SharedBag() {
		shared = idbag.New(s.counter)
		s.bags = append(s.bags, shared)
	}
	for id := 0; id < graph.Len(); id++ {
		bag := shared
		if bag == nil {
			bag = idbag.New(s.counter)
			s.bags = append(s.bags, bag)
		}
		s.bagOf = append(s.bagOf, bag)

		m, err := miner.New(miner.Config{
			ID:            id,
			Power:         s.power(id),
			Genesis:       s.genesis,
			Clock:         s,
			Rand:          s.rng,
			RecheckWindow: settings.RecheckWindow,
		}, func(host protocol.Host) (protocol.Protocol, error) {
			return protocol.New(settings.Protocol, protocol.Params{
				Host:        host,
				Genesis:     s.genesis,
				Bag:         bag,
				Log:         s.log,
				Rand:        s.rng,
				AcceptDepth: settings.AcceptDepth,
			})
		})
		if err != nil {
			return nil, err
		}
		s.miners = append(s.miners, m)
	}
	for _, m := range s.miners {
		for _, e := range graph.Neighbors(m.ID()) {
			m.Connect(s.miners[e.To], e.Delay)
		}
	}
	return s, nil
}

func (s *Simulation) power(id int) float64 {
	if id < len(s.powers) {
		return s.powers[id]
	}
	return 1
}

// Tick is the current tick; Simulation is the clock of its miners.
func (s *Simulation) Tick() int {
	return s.tick
}

func (s *Simulation) Miners() []*miner.Miner {
	return s.miners
}

func (s *Simulation) Genesis() *models.Transaction {
	return s.genesis
}

func (s *Simulation) Log() *models.TxLog {
	return s.log
}

// TriggeredAt is the tick the primary condition fired on, or -1.
func (s *Simulation) TriggeredAt() int {
	return s.triggeredAt
}

// Step runs one tick and reports whether the run is over. The tick only
// advances when it is not.
func (s *Simulation) Step() bool {
	for _, b := range s.bags {
		b.Clear()
	}

	for _, m := range s.miners {
		before := m.Stats()
		m.Step()
		after := m.Stats()
		metrics.Deliveries.WithLabelValues(s.label, "new").Add(float64(after.Delivered - before.Delivered))
		metrics.Deliveries.WithLabelValues(s.label, "duplicate").Add(float64(after.Duplicates - before.Duplicates))
	}

	pending := 0
	for _, m := range s.miners {
		m.CheckReissues()
	}
	for _, b := range s.bags {
		pending += b.Len()
	}
	metrics.ReissueRequests.WithLabelValues(s.label).Add(float64(pending))

	if s.triggeredAt < 0 {
		s.generate()
	}

	for _, m := range s.miners {
		m.Flush()
	}
	metrics.Ticks.WithLabelValues(s.label).Inc()

	if s.triggeredAt < 0 && s.primaryMet() {
		s.trigger()
	}
	if s.finished() {
		return true
	}
	s.tick++
	return false
}

func (s *Simulation) generate() {
	for _, id := range s.lottery.Winners(s.tick, s.miners, s.rng) {
		if s.settings.Termination.Condition == Transactions &&
			s.bagOf[id].PeekNext() > s.settings.Termination.Value {
			// this miner would open an id past the target
			continue
		}
		fresh := s.bagOf[id].Len() == 0

		m := s.miners[id]
		m.CreateAndBroadcast()
		m.RunConsensusCheck()

		kind := "reissue"
		if fresh {
			kind = "fresh"
		}
		metrics.Transactions.WithLabelValues(s.label, kind).Inc()
	}
}

func (s *Simulation) primaryMet() bool {
	t := s.settings.Termination
	if t.Condition == Ticks {
		return s.tick+1 >= t.Value
	}
	// nothing left that could still be issued at or below the target
	for _, b := range s.bags {
		if b.PeekNext() <= t.Value {
			return false
		}
	}
	return true
}

func (s *Simulation) trigger() {
	s.triggeredAt = s.tick
	s.logger.Info("Termination condition met",
		zap.Int("tick", s.tick),
		zap.String("condition", s.settings.Termination.Condition.String()),
		zap.Int("issued", s.counter.Issued()))
}

func (s *Simulation) finished() bool {
	t := s.settings.Termination
	if s.tick+1 >= t.MaxTicks {
		if s.triggeredAt < 0 {
			s.logger.Warn("Tick ceiling reached before termination condition", zap.Int("tick", s.tick))
		}
		return true
	}
	if s.triggeredAt < 0 {
		return false
	}
	if !t.Cooldown {
		return true
	}
	for _, m := range s.miners {
		if m.HasPending() {
			return s.tick >= s.triggeredAt+t.CooldownTicks
		}
	}
	return true
}

// Run steps until termination. A protocol invariant violation aborts the run
// and comes back as an error wrapping the *models.InvariantError; cancelling
// ctx aborts between ticks.
func (s *Simulation) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ie, ok := r.(*models.InvariantError)
		if !ok {
			panic(r)
		}
		s.logger.Error("Run aborted",
			zap.Int("miner", ie.Miner), zap.Int("tick", ie.Tick),
			zap.Int("tx_id", ie.TxID), zap.String("hash", string(ie.Hash)),
			zap.String("reason", ie.Reason))
		metrics.Runs.WithLabelValues(s.label, "invariant").Inc()
		res, err = nil, errors.WithStack(ie)
	}()

	s.logger.Info("Starting simulation", zap.Int("miners", len(s.miners)))
	for {
		if err := ctx.Err(); err != nil {
			metrics.Runs.WithLabelValues(s.label, "aborted").Inc()
			return nil, errors.Wrapf(err, "run aborted at tick %d", s.tick)
		}
		if s.Step() {
			break
		}
	}

	res = s.Result()
	metrics.Runs.WithLabelValues(s.label, "completed").Inc()
	metrics.RunTicks.WithLabelValues(s.label).Observe(float64(res.Ticks))
	metrics.RunDuration.WithLabelValues(s.label).Observe(time.Since(start).Seconds())
	s.logger.Info("Simulation finished",
		zap.Int("ticks", res.Ticks),
		zap.Int("transactions", len(res.Transactions)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// Result is what a run hands to the reporting layer.
type Result struct {
	Protocol     protocol.Type
	Seed         int64
	Ticks        int // ticks executed
	TriggeredAt  int
	Transactions []*models.Transaction
	Views        []models.MinerView
	Stats        []miner.Stats
}

// Result snapshots the run in its current state.
func (s *Simulation) Result() *Result {
	res := &Result{
		Protocol:     s.settings.Protocol,
		Seed:         s.settings.Seed,
		Ticks:        s.tick + 1,
		TriggeredAt:  s.triggeredAt,
		Transactions: s.log.All(),
	}
	for _, m := range s.miners {
		res.Views = append(res.Views, m.Snapshot())
		res.Stats = append(res.Stats, m.Stats())
	}
	return res
}

// DistinctIDs counts logical transactions, genesis excluded.
func (r *Result) DistinctIDs() int {
	ids := make(map[int]struct{})
	for _, tx := range r.Transactions {
		if !tx.IsGenesis() {
			ids[tx.ID] = struct{}{}
		}
	}
	return len(ids)
}
