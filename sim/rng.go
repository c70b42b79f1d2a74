package sim

import (
	"hash/fnv"
	"math/rand"
)

// Subsystem names for PartitionedRNG. Each strategy family draws from its own
// stream so that, for example, adding a consume strategy draw never shifts the
// spawn sequence.
const (
	SubsystemSpawn      = "spawn"
	SubsystemMovement   = "movement"
	SubsystemConsume    = "consume"
	SubsystemGenerators = "generators"
)

// PartitionedRNG hands out deterministic, isolated random streams per subsystem.
//
// Derivation: seed(name) = masterSeed XOR fnv1a64(name).
//
// Not thread-safe; used from the simulation goroutine only.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a master seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the stream for name, creating it on first use.
// The same name always yields the same *rand.Rand instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.seed ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the master seed.
func (p *PartitionedRNG) Seed() int64 { return p.seed }

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
