package batch_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dag-consensus-sim/batch"
	"dag-consensus-sim/protocol"
	"dag-consensus-sim/simulation"
	"dag-consensus-sim/topology"
)

func options(sel batch.Selection) batch.Options {
	return batch.Options{
		Settings: simulation.Settings{
			Protocol:                     protocol.Chain,
			AcceptDepth:                  1,
			TargetTicksBetweenGeneration: 2,
			RecheckWindow:                1,
			Termination: simulation.Termination{
				Condition:     simulation.Transactions,
				Value:         8,
				Cooldown:      true,
				CooldownTicks: 50,
				MaxTicks:      2000,
			},
			Seed: 100,
		},
		Topology: topology.Spec{
			Type:   topology.Geometric,
			Miners: 6,
			Radius: 0.6,
			Delay:  topology.Distribution{Type: topology.Uniform, Low: 0, High: 3},
		},
		Power:      topology.Distribution{Type: topology.Uniform, Low: 1, High: 5},
		Executions: 6,
		Workers:    3,
		Selection:  sel,
	}
}

func collect(t *testing.T, o batch.Options) map[int]batch.Outcome {
	t.Helper()
	out := make(map[int]batch.Outcome)
	err := batch.Run(context.Background(), o, func(oc batch.Outcome) error {
		out[oc.Index] = oc
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestRunExecutesEveryRun(t *testing.T) {
	for _, sel := range []batch.Selection{batch.Once, batch.EachTime} {
		t.Run(sel.String(), func(t *testing.T) {
			outcomes := collect(t, options(sel))
			require.Len(t, outcomes, 6)
			for i, oc := range outcomes {
				require.NoError(t, oc.Err)
				assert.Equal(t, batch.RunID(100, i), oc.Run.ID)
				assert.Equal(t, int64(100+i), oc.Run.Seed)
				assert.Equal(t, 6, oc.Run.Miners)
				assert.Equal(t, oc.Result.Ticks, oc.Run.Ticks)
				assert.Equal(t, len(oc.Result.Transactions), oc.Run.Transactions)
				assert.Empty(t, oc.Run.Error)
			}
		})
	}
}

func TestRunIsReproducible(t *testing.T) {
	first := collect(t, options(batch.EachTime))
	second := collect(t, options(batch.EachTime))
	for i := range first {
		a, b := first[i].Result, second[i].Result
		require.Equal(t, len(a.Transactions), len(b.Transactions))
		for k := range a.Transactions {
			assert.Equal(t, a.Transactions[k].Hash, b.Transactions[k].Hash)
		}
	}
}

func TestSinkErrorStopsBatch(t *testing.T) {
	o := options(batch.Once)
	o.Workers = 1
	boom := errors.New("disk full")
	calls := 0
	err := batch.Run(context.Background(), o, func(batch.Outcome) error {
		calls++
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, calls)
}

func TestFailedRunIsReported(t *testing.T) {
	o := options(batch.EachTime)
	o.Executions = 2
	o.Topology = topology.Spec{Type: topology.Static, Miners: 3, Edges: [][2]int{{0, 1}}, Delay: topology.Fixed(0)}

	var outcomes []batch.Outcome
	err := batch.Run(context.Background(), o, func(oc batch.Outcome) error {
		outcomes = append(outcomes, oc)
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, topology.ErrInvalidGraph))
	require.Len(t, outcomes, 2)
	for _, oc := range outcomes {
		assert.Nil(t, oc.Result)
		assert.NotEmpty(t, oc.Run.Error)
	}
}

func TestValidate(t *testing.T) {
	o := options(batch.Once)
	o.Workers = 0
	assert.Error(t, o.Validate())

	o = options(batch.Once)
	o.Selection = 0
	assert.Error(t, o.Validate())

	o = options(batch.Once)
	o.Power = topology.Distribution{}
	assert.Error(t, o.Validate())

	sel, err := batch.ParseSelection("generate_each_time")
	require.NoError(t, err)
	assert.Equal(t, batch.EachTime, sel)
}
