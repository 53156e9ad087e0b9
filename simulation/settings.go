package simulation

import (
	"strings"

	"github.com/cockroachdb/errors"

	"dag-consensus-sim/protocol"
)

// Condition is the primary termination condition.
type Condition int

const (
	// Transactions stops generation once the target number of distinct ids
	// has been issued and no reissue is pending.
	Transactions Condition = iota + 1
	// Ticks stops generation after the target number of ticks.
	Ticks
)

func ParseCondition(s string) (Condition, error) {
	switch strings.ToUpper(s) {
	case "TRANSACTIONS", "NUMBER_OF_GENERATED_TRANSACTIONS":
		return Transactions, nil
	case "TICKS", "NUMBER_OF_TIME_TICKS":
		return Ticks, nil
	}
	return 0, errors.Newf("unknown termination condition %q", s)
}

func (c Condition) String() string {
	switch c {
	case Transactions:
		return "TRANSACTIONS"
	case Ticks:
		return "TICKS"
	}
	return "UNKNOWN"
}

// Termination decides when a run ends.
type Termination struct {
	Condition Condition
	Value     int
	// Cooldown keeps delivering after the primary condition until the
	// network is quiet or CooldownTicks have passed.
	Cooldown      bool
	CooldownTicks int
	// MaxTicks is the hard ceiling for runs whose primary condition never fires.
	MaxTicks int
}

// Settings configure one run.
type Settings struct {
	Protocol                     protocol.Type
	AcceptDepth                  int
	TargetTicksBetweenGeneration float64
	RecheckWindow                int
	Termination                  Termination
	Seed                         int64
}

// DefaultMaxTicks bounds a run when no ceiling is configured.
const DefaultMaxTicks = 1_000_000

func (s Settings) Validate() error {
	switch {
	case s.Protocol != protocol.Chain && s.Protocol != protocol.Tangle:
		return errors.Wrapf(protocol.ErrUnknownType, "%d", int(s.Protocol))
	case s.AcceptDepth < 0:
		return errors.Newf("accept depth %d is negative", s.AcceptDepth)
	case s.TargetTicksBetweenGeneration < 1:
		return errors.Newf("target ticks between generation %v is below 1", s.TargetTicksBetweenGeneration)
	case s.RecheckWindow < 0:
		return errors.Newf("recheck window %d is negative", s.RecheckWindow)
	case s.Termination.Condition != Transactions && s.Termination.Condition != Ticks:
		return errors.Newf("unknown termination condition %d", int(s.Termination.Condition))
	case s.Termination.Value < 1:
		return errors.Newf("termination value %d must be positive", s.Termination.Value)
	case s.Termination.CooldownTicks < 0:
		return errors.Newf("cooldown ticks %d is negative", s.Termination.CooldownTicks)
	case s.Termination.MaxTicks < 0:
		return errors.Newf("max ticks %d is negative", s.Termination.MaxTicks)
	}
	return nil
}
