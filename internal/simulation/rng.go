package simulation

import (
	"hash/fnv"
	"math/rand/v2"
)

// propertyKey folds a property id into a 64-bit stream key.
func propertyKey(propertyID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(propertyID))
	return h.Sum64()
}

// splitmix64 is the finalizer from Vigna's SplitMix64 generator; it spreads
// nearby seeds across the full 64-bit space.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// newTrialRand derives an independent random stream from (seed, property,
// trial index). Trials never touch global RNG state, so identical inputs
// yield identical draws no matter how trials are scheduled across workers.
func newTrialRand(seed, propKey uint64, trial int) *rand.Rand {
	s1 := splitmix64(seed ^ propKey)
	s2 := splitmix64(propKey + splitmix64(seed) + uint64(trial)*0x9e3779b97f4a7c15)
	return rand.New(rand.NewPCG(s1, s2))
}
