// Package playback owns the current time index of a field and decides when
// the render buffer has to be rebuilt.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// ErrNotReady is returned by commands issued while no field is attached or
// before the first buffer has been built.
var ErrNotReady = errors.New("playback: not ready")

// State is the controller's mode.
type State int

const (
	Idle State = iota
	Ready
	Playing
	Scrubbing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Scrubbing:
		return "scrubbing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultSecondsPerStep matches the usual fMRI repetition time.
const DefaultSecondsPerStep = 2.0

// Controller is the playback state for one visual instance. It is driven by
// the frame loop and is not safe for concurrent use.
type Controller struct {
	state State
	steps int // T
	index int
	pos   float64 // clock in steps: seconds * speed / secondsPerStep

	secondsPerStep float64
	speed          float64

	rebuild func(index int)
}

// New creates an idle controller. rebuild is called once per time-index
// change and may be nil.
func New(secondsPerStep, speed float64, rebuild func(index int)) *Controller {
	c := &Controller{rebuild: rebuild}
	c.SetSecondsPerStep(secondsPerStep)
	c.SetSpeed(speed)
	return c
}

func (c *Controller) State() State { return c.state }
func (c *Controller) Index() int { return c.index }
func (c *Controller) Steps() int { return c.steps }
func (c *Controller) Speed() float64 { return c.speed }
func (c *Controller) SecondsPerStep() float64 { return c.secondsPerStep }
func (c *Controller) Playing() bool { return c.state == Playing }
func (c *Controller) OnRebuild(fn func(int)) { c.rebuild = fn }

// Attach binds a field with steps time points. The controller stays Idle
// until Built reports the first buffer; the rebuild hook fires for index 0.
func (c *Controller) Attach(steps int) error {
	if steps < 1 {
		return fmt.Errorf("playback: attach %d time points: %w", steps, ErrNotReady)
	}
	c.state = Idle
	c.steps = steps
	c.index = 0
	c.pos = 0
	slog.Info("playback attached", "steps", steps)
	c.fire()
	return nil
}

// Built reports that a buffer is live. The first call after Attach moves the
// controller from Idle to Ready.
func (c *Controller) Built() {
	if c.state == Idle && c.steps > 0 {
		c.transition(Ready)
	}
}

// Detach drops the field. The controller returns to Idle and forgets the
// time index.
func (c *Controller) Detach() {
	if c.steps == 0 && c.state == Idle {
		return
	}
	c.steps = 0
	c.index = 0
	c.pos = 0
	c.transition(Idle)
}

// Play enables auto-advance. The clock restarts at the current index.
func (c *Controller) Play() error {
	if c.state == Idle {
		return ErrNotReady
	}
	if c.state == Playing {
		return nil
	}
	c.pos = float64(c.index)
	c.transition(Playing)
	return nil
}

// Pause stops auto-advance and hands the index to explicit requests.
func (c *Controller) Pause() error {
	if c.state == Idle {
		return ErrNotReady
	}
	if c.state != Scrubbing {
		c.transition(Scrubbing)
	}
	return nil
}

// Toggle switches between Playing and Scrubbing.
func (c *Controller) Toggle() error {
	if c.state == Playing {
		return c.Pause()
	}
	return c.Play()
}

// Scrub sets the index from a fraction of the timeline and stops playback.
func (c *Controller) Scrub(fraction float64) error {
	if err := c.Pause(); err != nil {
		return err
	}
	if math.IsNaN(fraction) {
		fraction = 0
	}
	fraction = min(max(fraction, 0), 1)
	c.setIndex(clampIndex(int(math.Floor(fraction*float64(c.steps-1))), c.steps))
	return nil
}

// SetTimeIndex jumps to index i (clamped) and stops playback.
func (c *Controller) SetTimeIndex(i int) error {
	if err := c.Pause(); err != nil {
		return err
	}
	c.setIndex(clampIndex(i, c.steps))
	return nil
}

// Step moves the index by delta, wrapping around the timeline, and stops
// playback.
func (c *Controller) Step(delta int) error {
	if err := c.Pause(); err != nil {
		return err
	}
	c.setIndex(wrap(c.index+delta, c.steps))
	return nil
}

// SetSpeed changes the animation speed multiplier. Non-positive values are
// ignored. Speed applies to time accumulated after the change.
func (c *Controller) SetSpeed(speed float64) {
	if !(speed > 0) {
		if c.speed == 0 {
			c.speed = 1
		}
		return
	}
	c.speed = speed
}

// SetSecondsPerStep changes the frame interval. Non-positive values select
// DefaultSecondsPerStep.
func (c *Controller) SetSecondsPerStep(s float64) {
	if !(s > 0) {
		s = DefaultSecondsPerStep
	}
	c.secondsPerStep = s
}

// Advance adds dt seconds to the clock while Playing and returns the
// resulting index.
func (c *Controller) Advance(dt float64) int {
	if c.state != Playing || dt <= 0 {
		return c.index
	}
	c.pos += dt * c.speed / c.secondsPerStep
	c.pos = math.Mod(c.pos, float64(c.steps))
	c.setIndex(wrap(int(math.Floor(c.pos)), c.steps))
	return c.index
}

// Fraction returns the index as a fraction of the timeline, for sliders.
func (c *Controller) Fraction() float64 {
	if c.steps <= 1 {
		return 0
	}
	return float64(c.index) / float64(c.steps-1)
}

func (c *Controller) setIndex(i int) {
	if i == c.index {
		return
	}
	c.index = i
	c.fire()
}

func (c *Controller) fire() {
	if c.rebuild != nil {
		c.rebuild(c.index)
	}
}

func (c *Controller) transition(to State) {
	slog.Info("playback state", "from", c.state.String(), "to", to.String(), "index", c.index)
	c.state = to
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

func wrap(i, n int) int {
	if n <= 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
