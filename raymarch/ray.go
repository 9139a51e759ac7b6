// Package raymarch composites a render buffer into pixels by marching camera
// rays through the unit cube that holds the volume.
package raymarch

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// parallelEps treats direction components below it as parallel to a slab.
const parallelEps = 1e-12

type recips struct {
	inv [3]float32
	par [3]bool
}

func computeRecips(d mgl32.Vec3) recips {
	var r recips
	for i := 0; i < 3; i++ {
		if d[i] > parallelEps || d[i] < -parallelEps {
			r.inv[i] = 1 / d[i]
		} else {
			r.par[i] = true
		}
	}
	return r
}

// IntersectUnitCube intersects the ray o + t*d with [0,1]^3 using the slab
// method. tNear is the largest per-axis entry and tFar the smallest per-axis
// exit. hit is false when tFar <= tNear or the box lies entirely behind the
// origin.
func IntersectUnitCube(o, d mgl32.Vec3) (tNear, tFar float32, hit bool) {
	return intersect(o, computeRecips(d))
}

func intersect(o mgl32.Vec3, rr recips) (tNear, tFar float32, hit bool) {
	tNear, tFar = -math32.MaxFloat32, math32.MaxFloat32
	for i := 0; i < 3; i++ {
		if rr.par[i] {
			if o[i] < 0 || o[i] > 1 {
				return 0, 0, false
			}
			continue
		}
		t1 := (0 - o[i]) * rr.inv[i]
		t2 := (1 - o[i]) * rr.inv[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tNear {
			tNear = t1
		}
		if t2 < tFar {
			tFar = t2
		}
	}
	if tFar <= tNear || tFar < 0 {
		return tNear, tFar, false
	}
	return tNear, tFar, true
}
