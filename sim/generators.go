package sim

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Default person parameters.
const (
	DefaultSpeed             = 3.34
	DefaultSpeedDeviation    = 0.65
	DefaultPatience          = 20
	DefaultPatienceDeviation = 10
)

// SpeedGenerator draws the walking speed of a newly spawned person, in cells per time unit.
type SpeedGenerator interface {
	Init(rng *rand.Rand)
	Next() float64
}

// PatienceGenerator draws how many consecutive rejected moves a person tolerates
// before accepting a move that worsens its position.
type PatienceGenerator interface {
	Init(rng *rand.Rand)
	Next() int
}

// FixedSpeedGenerator always returns the same speed.
type FixedSpeedGenerator struct {
	Speed float64
}

func (g *FixedSpeedGenerator) Init(*rand.Rand) {}
func (g *FixedSpeedGenerator) Next() float64   { return g.Speed }

// NormSpeedGenerator draws from N(mean, dev) clipped to [mean-dev, mean+dev].
type NormSpeedGenerator struct {
	Mean      float64
	Deviation float64

	dist distuv.Normal
}

func (g *NormSpeedGenerator) Init(rng *rand.Rand) {
	g.dist = distuv.Normal{Mu: g.Mean, Sigma: g.Deviation, Src: rng}
}

func (g *NormSpeedGenerator) Next() float64 {
	if g.Deviation <= 0 {
		return g.Mean
	}
	return clamp(g.dist.Rand(), g.Mean-g.Deviation, g.Mean+g.Deviation)
}

// FixedPatienceGenerator always returns the same patience.
type FixedPatienceGenerator struct {
	Patience int
}

func (g *FixedPatienceGenerator) Init(*rand.Rand) {}
func (g *FixedPatienceGenerator) Next() int       { return g.Patience }

// NormPatienceGenerator draws from N(mean, maxDev/3), clipped to
// [max(0, mean-maxDev), mean+maxDev] and rounded.
type NormPatienceGenerator struct {
	Mean         int
	MaxDeviation int

	dist distuv.Normal
}

func (g *NormPatienceGenerator) Init(rng *rand.Rand) {
	g.dist = distuv.Normal{Mu: float64(g.Mean), Sigma: float64(g.MaxDeviation) / 3, Src: rng}
}

func (g *NormPatienceGenerator) Next() int {
	if g.MaxDeviation <= 0 {
		return g.Mean
	}
	lo := math.Max(0, float64(g.Mean-g.MaxDeviation))
	hi := float64(g.Mean + g.MaxDeviation)
	return int(math.Round(clamp(g.dist.Rand(), lo, hi)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
