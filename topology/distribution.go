package topology

import (
	"math"
	"math/rand"
	"strings"

	"github.com/cockroachdb/errors"
)

// DistributionType names a sampling law.
type DistributionType int

const (
	Constant DistributionType = iota + 1
	Uniform
	Gaussian
	Laplacian
)

// ErrInvalidDistribution is returned for unknown or ill-formed distributions.
var ErrInvalidDistribution = errors.New("invalid distribution")

func ParseDistributionType(s string) (DistributionType, error) {
	switch strings.ToUpper(s) {
	case "CONSTANT":
		return Constant, nil
	case "UNIFORM":
		return Uniform, nil
	case "GAUSSIAN", "NORMAL":
		return Gaussian, nil
	case "LAPLACIAN", "LAPLACE":
		return Laplacian, nil
	}
	return 0, errors.Wrapf(ErrInvalidDistribution, "unknown type %q", s)
}

func (t DistributionType) String() string {
	switch t {
	case Constant:
		return "CONSTANT"
	case Uniform:
		return "UNIFORM"
	case Gaussian:
		return "GAUSSIAN"
	case Laplacian:
		return "LAPLACIAN"
	}
	return "UNKNOWN"
}

// Distribution is sampled afresh for every message on an edge, and once per
// miner for mining power.
type Distribution struct {
	Type   DistributionType
	Value  float64 // constant
	Low    float64 // uniform
	High   float64 // uniform
	Mean   float64 // gaussian, laplacian
	StdDev float64 // gaussian; scale for laplacian
}

// Fixed returns a distribution that always yields v.
func Fixed(v float64) Distribution {
	return Distribution{Type: Constant, Value: v}
}

func (d Distribution) Validate() error {
	switch d.Type {
	case Constant:
		return nil
	case Uniform:
		if d.High < d.Low {
			return errors.Wrapf(ErrInvalidDistribution, "uniform high %v below low %v", d.High, d.Low)
		}
		return nil
	case Gaussian, Laplacian:
		if d.StdDev < 0 {
			return errors.Wrapf(ErrInvalidDistribution, "%s spread %v is negative", d.Type, d.StdDev)
		}
		return nil
	}
	return errors.Wrapf(ErrInvalidDistribution, "type %d", int(d.Type))
}

func (d Distribution) Sample(rng *rand.Rand) float64 {
	switch d.Type {
	case Uniform:
		return d.Low + rng.Float64()*(d.High-d.Low)
	case Gaussian:
		return d.Mean + rng.NormFloat64()*d.StdDev
	case Laplacian:
		u := rng.Float64() - 0.5
		return d.Mean - d.StdDev*math.Copysign(1, u)*math.Log(1-2*math.Abs(u))
	}
	return d.Value
}

// SampleTicks samples a delay as a whole, non-negative number of ticks.
func (d Distribution) SampleTicks(rng *rand.Rand) int {
	v := math.Round(d.Sample(rng))
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return int(v)
}

// SampleNonNegative clamps a sample at zero; used for mining power.
func (d Distribution) SampleNonNegative(rng *rand.Rand) float64 {
	v := d.Sample(rng)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
