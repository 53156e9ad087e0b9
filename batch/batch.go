// Package batch runs many independent simulations, Monte Carlo style, on a
// worker pool.
package batch

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"dag-consensus-sim/logger"
	"dag-consensus-sim/models"
	"dag-consensus-sim/simulation"
	"dag-consensus-sim/topology"
)

// Selection says whether every run gets its own network.
type Selection int

const (
	// Once builds one graph and one power assignment, shared by every run.
	Once Selection = iota + 1
	// EachTime builds a fresh graph and powers from each run's seed.
	EachTime
)

func ParseSelection(s string) (Selection, error) {
	switch strings.ToUpper(s) {
	case "ONCE", "GENERATE_ONCE":
		return Once, nil
	case "EACH_TIME", "GENERATE_EACH_TIME":
		return EachTime, nil
	}
	return 0, errors.Newf("unknown topology selection %q", s)
}

func (s Selection) String() string {
	switch s {
	case Once:
		return "GENERATE_ONCE"
	case EachTime:
		return "GENERATE_EACH_TIME"
	}
	return "UNKNOWN"
}

type Options struct {
	// Settings is the template for every run. Run i uses seed Settings.Seed+i.
	Settings   simulation.Settings
	Topology   topology.Spec
	Power      topology.Distribution
	Executions int
	Workers    int
	Selection  Selection
	// Lottery overrides the power-weighted lottery; mostly for tests.
	Lottery simulation.Lottery
}

func (o Options) Validate() error {
	switch {
	case o.Executions < 1:
		return errors.Newf("executions %d must be positive", o.Executions)
	case o.Workers < 1:
		return errors.Newf("workers %d must be positive", o.Workers)
	case o.Selection != Once && o.Selection != EachTime:
		return errors.Newf("unknown topology selection %d", int(o.Selection))
	}
	if err := o.Power.Validate(); err != nil {
		return errors.Wrap(err, "power distribution")
	}
	return o.Settings.Validate()
}

// Outcome is one finished run. Err is set, and Result nil, when the run failed.
type Outcome struct {
	Index  int
	Run    *models.Run
	Result *simulation.Result
	Err    error
}

// Sink receives outcomes one at a time, in completion order.
type Sink func(Outcome) error

type network struct {
	graph  *topology.Graph
	powers []float64
}

func buildNetwork(o Options, seed int64) (*network, error) {
	rng := rand.New(rand.NewSource(seed))
	g, err := topology.Build(o.Topology, rng)
	if err != nil {
		return nil, err
	}
	powers := make([]float64, g.Len())
	for i := range powers {
		powers[i] = o.Power.SampleNonNegative(rng)
	}
	return &network{graph: g, powers: powers}, nil
}

// RunID names run i of a batch.
func RunID(seed int64, index int) string {
	return fmt.Sprintf("run-%d-%04d", seed, index)
}

// Run executes every run and hands each outcome to sink. A failed run does
// not stop the batch; a sink error or a cancelled ctx does. The returned
// error joins the failures of all runs.
func Run(ctx context.Context, o Options, sink Sink) error {
	if err := o.Validate(); err != nil {
		return err
	}

	var shared *network
	if o.Selection == Once {
		n, err := buildNetwork(o, o.Settings.Seed)
		if err != nil {
			return errors.Wrap(err, "build shared network")
		}
		shared = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := ants.NewPool(o.Workers, ants.WithNonblocking(false))
	if err != nil {
		return errors.Wrap(err, "create worker pool")
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		failed  error
		sinkErr error
	)
	logger.Logger.Info("Starting batch",
		zap.Int("executions", o.Executions),
		zap.Int("workers", o.Workers),
		zap.String("selection", o.Selection.String()))

	for i := 0; i < o.Executions; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)

		currentIndex := i
		if err := pool.Submit(func() {
			defer wg.Done()
			out := execute(ctx, o, shared, currentIndex)

			mu.Lock()
			defer mu.Unlock()
			if out.Err != nil {
				failed = errors.CombineErrors(failed, out.Err)
			}
			if sinkErr != nil {
				return
			}
			if err := sink(out); err != nil {
				sinkErr = errors.Wrapf(err, "handle %s", out.Run.ID)
				cancel()
			}
		}); err != nil {
			wg.Done()
			return errors.Wrap(err, "submit run")
		}
	}
	wg.Wait()

	if sinkErr != nil {
		return sinkErr
	}
	if err := ctx.Err(); err != nil {
		return errors.CombineErrors(err, failed)
	}
	return failed
}

func execute(ctx context.Context, o Options, shared *network, index int) Outcome {
	settings := o.Settings
	settings.Seed = o.Settings.Seed + int64(index)
	out := Outcome{
		Index: index,
		Run: &models.Run{
			ID:          RunID(o.Settings.Seed, index),
			Protocol:    settings.Protocol.String(),
			Seed:        settings.Seed,
			TriggeredAt: -1,
			CreatedAt:   time.Now().UnixMilli(),
		},
	}

	net := shared
	if net == nil {
		n, err := buildNetwork(o, settings.Seed)
		if err != nil {
			out.Err = errors.Wrapf(err, "%s: build network", out.Run.ID)
			out.Run.Error = out.Err.Error()
			return out
		}
		net = n
	}
	out.Run.Miners = net.graph.Len()

	opts := []simulation.Option{simulation.WithPowers(net.powers)}
	if o.Lottery != nil {
		opts = append(opts, simulation.WithLottery(o.Lottery))
	}
	sim, err := simulation.New(settings, net.graph, opts...)
	if err == nil {
		out.Result, err = sim.Run(ctx)
	}
	if err != nil {
		out.Err = errors.Wrapf(err, "%s", out.Run.ID)
		out.Run.Error = out.Err.Error()
		return out
	}

	out.Run.Ticks = out.Result.Ticks
	out.Run.TriggeredAt = out.Result.TriggeredAt
	out.Run.Transactions = len(out.Result.Transactions)
	out.Run.DistinctIDs = out.Result.DistinctIDs()
	return out
}
