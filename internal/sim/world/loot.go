package world

import (
	"math"
	"time"
)

// LootGenerator decides how many items to spawn on a tick so that the item
// count keeps chasing the looter count at the configured rate. The generator
// accumulates time since it last produced anything; the longer the drought,
// the higher the per-call probability.
type LootGenerator struct {
	period      time.Duration
	probability float64

	withoutLoot time.Duration
	randomScale func() float64
}

// NewLootGenerator builds a generator for one session. randomScale is an
// optional [0,1] multiplier applied to the spawn probability; nil keeps it
// deterministic at 1.
func NewLootGenerator(period time.Duration, probability float64, randomScale func() float64) *LootGenerator {
	if randomScale == nil {
		randomScale = func() float64 { return 1.0 }
	}
	return &LootGenerator{
		period:      period,
		probability: probability,
		randomScale: randomScale,
	}
}

// Next returns how many items to spawn after elapsed time with the given
// item and looter counts. Never exceeds the shortage; zero looters always
// yields zero.
func (g *LootGenerator) Next(elapsed time.Duration, items, looters int) int {
	if g.period <= 0 {
		return 0
	}
	g.withoutLoot += elapsed

	shortage := looters - items
	if shortage < 0 {
		shortage = 0
	}

	ratio := g.withoutLoot.Seconds() / g.period.Seconds()
	p := (1.0 - math.Pow(1.0-g.probability, ratio)) * g.randomScale()
	p = math.Max(0, math.Min(1, p))

	generated := int(math.Round(float64(shortage) * p))
	if generated > 0 {
		g.withoutLoot = 0
	}
	return generated
}
