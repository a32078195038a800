package scene

import (
	"fmt"
	"math/rand/v2"

	"github.com/chewxy/math32"

	"github.com/gogpu/raytrace"
)

// Generate places up to cfg.SphereCount non-overlapping spheres on the
// ground plane.
//
// Each index draws a radius and a center uniformly over the placement disk.
// A candidate that overlaps an accepted sphere is discarded and generation
// moves on to the next index; it is never redrawn, which bounds generation
// time at SphereCount² distance checks. Accepted spheres are returned in
// acceptance order.
//
// Generate is deterministic for a given rng state.
func Generate(cfg Config, rng *rand.Rand) ([]Sphere, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: scene: nil random source", raytrace.ErrConfiguration)
	}

	spheres := make([]Sphere, 0, cfg.SphereCount)
	for range cfg.SphereCount {
		radius := cfg.RadiusRange.Lerp(rng.Float32())
		p := sampleDisk(rng, cfg.PlacementRadius)
		candidate := Sphere{
			Center: raytrace.V3(p.X, radius, p.Y),
			Radius: radius,
		}
		if overlapsAny(candidate, spheres) {
			continue
		}
		candidate.Material = randomMaterial(rng, cfg.ShininessRange)
		spheres = append(spheres, candidate)
	}
	return spheres, nil
}

func overlapsAny(s Sphere, accepted []Sphere) bool {
	for i := range accepted {
		if s.Overlaps(accepted[i]) {
			return true
		}
	}
	return false
}

// sampleDisk returns a point uniformly distributed over a disk of the given
// radius. The square root on the radial draw keeps the density uniform in
// area rather than in radius.
func sampleDisk(rng *rand.Rand, radius float32) raytrace.Vec2 {
	r := radius * math32.Sqrt(rng.Float32())
	theta := 2 * math32.Pi * rng.Float32()
	return raytrace.V2(r*math32.Cos(theta), r*math32.Sin(theta))
}

func randomMaterial(rng *rand.Rand, shininess Range) Material {
	color := raytrace.V3(rng.Float32(), rng.Float32(), rng.Float32())
	metal := rng.Float32() < 0.5

	m := Material{Shininess: shininess.Lerp(rng.Float32())}
	if metal {
		m.Specular = color
	} else {
		m.Diffuse = color
		m.Specular = raytrace.Splat3(NonMetalSpecular)
	}
	return m
}
