package scene

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/raytrace"
)

// Range is a closed interval [Min, Max] sampled uniformly.
type Range struct {
	Min float32 `toml:"min" yaml:"min"`
	Max float32 `toml:"max" yaml:"max"`
}

// Valid reports whether the range is finite and Min <= Max.
func (r Range) Valid() bool {
	if !finite(r.Min) || !finite(r.Max) {
		return false
	}
	return r.Min <= r.Max
}

// Lerp maps t in [0, 1) onto the range.
func (r Range) Lerp(t float32) float32 {
	return r.Min + (r.Max-r.Min)*t
}

// Config holds the parameters of one scene generation call.
// It is a plain value: generation never mutates it.
type Config struct {
	// SphereCount is the number of placement attempts. Rejected candidates
	// are not retried, so the result may hold fewer spheres.
	SphereCount uint32 `toml:"sphere_count" yaml:"sphere_count"`

	// RadiusRange bounds the sphere radius. Min must be positive.
	RadiusRange Range `toml:"radius" yaml:"radius"`

	// PlacementRadius is the radius of the disk on the ground plane that
	// sphere centers are drawn from.
	PlacementRadius float32 `toml:"placement_radius" yaml:"placement_radius"`

	// ShininessRange bounds the specular exponent.
	ShininessRange Range `toml:"shininess" yaml:"shininess"`
}

// Default generation parameters.
const (
	DefaultSphereCount     = 100
	DefaultRadiusMin       = 3
	DefaultRadiusMax       = 8
	DefaultPlacementRadius = 100
	DefaultShininessMin    = 10
	DefaultShininessMax    = 200
)

// DefaultConfig returns the configuration used when no settings file is given.
func DefaultConfig() Config {
	return Config{
		SphereCount:     DefaultSphereCount,
		RadiusRange:     Range{Min: DefaultRadiusMin, Max: DefaultRadiusMax},
		PlacementRadius: DefaultPlacementRadius,
		ShininessRange:  Range{Min: DefaultShininessMin, Max: DefaultShininessMax},
	}
}

// Validate checks the configuration. All failures wrap raytrace.ErrConfiguration.
func (c Config) Validate() error {
	if !c.RadiusRange.Valid() {
		return fmt.Errorf("%w: scene: radius range [%g, %g] is degenerate",
			raytrace.ErrConfiguration, c.RadiusRange.Min, c.RadiusRange.Max)
	}
	if c.RadiusRange.Min <= 0 {
		return fmt.Errorf("%w: scene: minimum radius %g must be positive",
			raytrace.ErrConfiguration, c.RadiusRange.Min)
	}
	if !finite(c.PlacementRadius) || c.PlacementRadius < 0 {
		return fmt.Errorf("%w: scene: placement radius %g must be a non-negative number",
			raytrace.ErrConfiguration, c.PlacementRadius)
	}
	if !c.ShininessRange.Valid() {
		return fmt.Errorf("%w: scene: shininess range [%g, %g] is degenerate",
			raytrace.ErrConfiguration, c.ShininessRange.Min, c.ShininessRange.Max)
	}
	if c.ShininessRange.Min < 0 {
		return fmt.Errorf("%w: scene: minimum shininess %g must not be negative",
			raytrace.ErrConfiguration, c.ShininessRange.Min)
	}
	return nil
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
