package scene

import "github.com/gogpu/raytrace"

// NonMetalSpecular is the flat specular reflectance given to every
// non-metal surface.
const NonMetalSpecular = 0.04

// Material describes how a sphere reflects light.
//
// Diffuse and Specular split the surface energy: a metal has a zero Diffuse
// and its base color in Specular; a non-metal has its base color in Diffuse
// and Specular set to NonMetalSpecular on every channel.
type Material struct {
	Diffuse   raytrace.Vec3
	Specular  raytrace.Vec3
	Shininess float32
}

// IsMetal reports whether the material is a metal (no diffuse energy).
func (m Material) IsMetal() bool {
	return m.Diffuse.IsZero()
}

// Sphere is a sphere primitive. Spheres are generated as a set and replaced
// wholesale; they are never edited in place.
type Sphere struct {
	Center   raytrace.Vec3
	Radius   float32
	Material Material
}

// Overlaps reports whether s intersects o. Touching spheres do not overlap.
func (s Sphere) Overlaps(o Sphere) bool {
	return s.Center.Distance(o.Center) < s.Radius+o.Radius
}
