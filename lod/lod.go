// Package lod decides per frame which render elements are drawn and at what
// grid resolution, from their distance to the camera.
package lod

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/fieldview/field"
)

// Bounds is an element's bounding sphere in world space.
type Bounds struct {
	Center mgl32.Vec3
	Radius float32
}

// Visibility is whether an element is drawn.
type Visibility struct {
	Visible bool
}

// Tier is the index into the manager's tier table; 0 is full resolution.
type Tier struct {
	Level int
}

// TierSpec is one row of the distance table: elements whose distance is at
// most Distance render at Scale times the base resolution.
type TierSpec struct {
	Distance float32 `yaml:"distance"`
	Scale    float32 `yaml:"scale"`
}

// Config controls the manager.
type Config struct {
	// MaxRenderDistance hides elements farther than this. Zero disables
	// hiding.
	MaxRenderDistance float32
	Tiers             []TierSpec
}

// DefaultConfig returns the policy used when none is configured: full
// resolution up close, then half and quarter, never hidden.
func DefaultConfig() Config {
	return Config{
		Tiers: []TierSpec{
			{Distance: 3, Scale: 1},
			{Distance: 6, Scale: 0.5},
			{Distance: 12, Scale: 0.25},
		},
	}
}

// Manager owns the element set. Elements are ECS entities so the per-frame
// pass is a single query over packed components.
type Manager struct {
	world  *ecs.World
	mapper *ecs.Map3[Bounds, Visibility, Tier]
	filter *ecs.Filter3[Bounds, Visibility, Tier]
	bounds *ecs.Map1[Bounds]
	vis    *ecs.Map1[Visibility]
	tier   *ecs.Map1[Tier]

	maxDist float32
	tiers   []TierSpec

	count   int
	visible int
}

// NewManager creates an empty manager. Tiers are sorted by distance; an
// empty table means a single full-resolution tier.
func NewManager(cfg Config) *Manager {
	world := ecs.NewWorld()
	m := &Manager{
		world:  world,
		mapper: ecs.NewMap3[Bounds, Visibility, Tier](world),
		filter: ecs.NewFilter3[Bounds, Visibility, Tier](world),
		bounds: ecs.NewMap1[Bounds](world),
		vis:    ecs.NewMap1[Visibility](world),
		tier:   ecs.NewMap1[Tier](world),
	}
	m.Configure(cfg)
	return m
}

// Configure replaces the distance policy. Element states are re-evaluated on
// the next Update.
func (m *Manager) Configure(cfg Config) {
	m.maxDist = cfg.MaxRenderDistance
	m.tiers = append(m.tiers[:0], cfg.Tiers...)
	for i := range m.tiers {
		if !(m.tiers[i].Scale > 0) || m.tiers[i].Scale > 1 {
			m.tiers[i].Scale = 1
		}
	}
	sort.SliceStable(m.tiers, func(i, j int) bool { return m.tiers[i].Distance < m.tiers[j].Distance })
	if len(m.tiers) == 0 {
		m.tiers = []TierSpec{{Distance: 0, Scale: 1}}
	}
}

// Add registers an element. It starts visible at tier 0.
func (m *Manager) Add(center mgl32.Vec3, radius float32) ecs.Entity {
	m.count++
	m.visible++
	return m.mapper.NewEntity(&Bounds{Center: center, Radius: radius}, &Visibility{Visible: true}, &Tier{})
}

// Move updates an element's bounds.
func (m *Manager) Move(e ecs.Entity, center mgl32.Vec3, radius float32) {
	if !m.world.Alive(e) {
		return
	}
	b := m.bounds.Get(e)
	b.Center, b.Radius = center, radius
}

// Remove drops an element.
func (m *Manager) Remove(e ecs.Entity) {
	if !m.world.Alive(e) {
		return
	}
	if m.vis.Get(e).Visible {
		m.visible--
	}
	m.count--
	m.world.RemoveEntity(e)
}

// Count returns the number of elements.
func (m *Manager) Count() int { return m.count }

// VisibleCount returns the number of elements currently drawn.
func (m *Manager) VisibleCount() int { return m.visible }

// Visible reports whether e is drawn.
func (m *Manager) Visible(e ecs.Entity) bool {
	if !m.world.Alive(e) {
		return false
	}
	return m.vis.Get(e).Visible
}

// TierOf returns the tier level of e.
func (m *Manager) TierOf(e ecs.Entity) int {
	if !m.world.Alive(e) {
		return 0
	}
	return m.tier.Get(e).Level
}

// Resolution scales base by the tier's factor, keeping at least one cell per
// axis.
func (m *Manager) Resolution(level int, base field.Vec3i) field.Vec3i {
	if level < 0 || level >= len(m.tiers) {
		level = 0
	}
	s := m.tiers[level].Scale
	return field.Vec3i{X: scaleAxis(base.X, s), Y: scaleAxis(base.Y, s), Z: scaleAxis(base.Z, s)}
}

func scaleAxis(n int, s float32) int {
	v := int(float32(n)*s + 0.5)
	if v < 1 {
		return 1
	}
	return v
}

// tierFor picks the first tier whose distance covers d, or the coarsest.
func (m *Manager) tierFor(d float32) int {
	for i, t := range m.tiers {
		if d <= t.Distance {
			return i
		}
	}
	return len(m.tiers) - 1
}

// Update re-evaluates every element against the camera position and returns
// how many changed visibility or tier. Elements whose state is unchanged are
// not written.
func (m *Manager) Update(eye mgl32.Vec3) int {
	changed := 0
	query := m.filter.Query()
	for query.Next() {
		b, v, t := query.Get()

		d := b.Center.Sub(eye).Len() - b.Radius
		if d < 0 {
			d = 0
		}
		show := m.maxDist <= 0 || d <= m.maxDist
		level := t.Level
		if show {
			level = m.tierFor(d)
		}

		if show != v.Visible {
			v.Visible = show
			if show {
				m.visible++
			} else {
				m.visible--
			}
			changed++
			if level != t.Level {
				t.Level = level
			}
			continue
		}
		if level != t.Level {
			t.Level = level
			changed++
		}
	}
	return changed
}
