// Package scene generates the sphere sets traced by the renderer.
//
// A scene is a fixed set of spheres resting on the ground plane y = 0,
// placed by rejection sampling so that no two spheres overlap, with a
// randomized metal or non-metal material each. Scenes are immutable: a new
// configuration or seed produces a new Scene.
package scene

import (
	"math/rand/v2"

	"github.com/gogpu/raytrace"
)

// seedMix decorrelates the two PCG state words derived from a single seed.
const seedMix = 0x9e3779b97f4a7c15

// Scene is one generated sphere set together with the inputs that produced it.
type Scene struct {
	Config  Config
	Seed    uint64
	Spheres []Sphere
}

// Stats summarizes a generated scene.
type Stats struct {
	Requested int
	Accepted  int
	Rejected  int
	Metals    int
}

// NewRand returns the deterministic random source used for a seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^seedMix))
}

// New generates a scene from cfg using a random source seeded with seed.
// Two calls with the same arguments produce identical scenes.
func New(cfg Config, seed uint64) (*Scene, error) {
	spheres, err := Generate(cfg, NewRand(seed))
	if err != nil {
		return nil, err
	}
	s := &Scene{Config: cfg, Seed: seed, Spheres: spheres}

	st := s.Stats()
	raytrace.Logger().Info("scene: generated",
		"seed", seed,
		"requested", st.Requested,
		"accepted", st.Accepted,
		"metals", st.Metals)
	return s, nil
}

// Stats returns placement statistics for the scene.
func (s *Scene) Stats() Stats {
	st := Stats{
		Requested: int(s.Config.SphereCount),
		Accepted:  len(s.Spheres),
	}
	st.Rejected = st.Requested - st.Accepted
	for i := range s.Spheres {
		if s.Spheres[i].Material.IsMetal() {
			st.Metals++
		}
	}
	return st
}
