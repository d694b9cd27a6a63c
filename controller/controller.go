// Package controller provides bounded values that components expose for
// external adjustment: faders, knobs and switches.
package controller

import (
	"cmp"
	"fmt"
	"sync"
)

type (
	// Controller is a named value clamped to [minimum, maximum]. It is safe
	// for concurrent use.
	Controller[V any] struct {
		name     string
		minimum  V
		maximum  V
		centered bool
		compare  func(a, b V) int

		mu       sync.Mutex
		value    V
		onChange []func(V)
	}

	// Control is a type-agnostic view of controller. Components return
	// their controllers as controls.
	Control interface {
		Name() string
		Centered() bool
		String() string
	}

	// Controlled is implemented by components with adjustable values.
	Controlled interface {
		Controllers() []Control
	}
)

// New returns controller for ordered values. Initial value is clamped.
func New[V cmp.Ordered](name string, minimum, maximum, value V, centered bool) *Controller[V] {
	return NewFunc(name, minimum, maximum, value, centered, cmp.Compare[V])
}

// NewFunc returns controller for values ordered by compare function.
func NewFunc[V any](name string, minimum, maximum, value V, centered bool, compare func(a, b V) int) *Controller[V] {
	if compare(minimum, maximum) > 0 {
		minimum, maximum = maximum, minimum
	}
	c := &Controller[V]{
		name:     name,
		minimum:  minimum,
		maximum:  maximum,
		centered: centered,
		compare:  compare,
	}
	c.value = c.clamp(value)
	return c
}

// NewFader returns not centered controller with value set to maximum.
func NewFader(name string, minimum, maximum float64) *Controller[float64] {
	return New(name, minimum, maximum, maximum, false)
}

// NewKnob returns centered controller with value set to the midpoint.
func NewKnob(name string, minimum, maximum float64) *Controller[float64] {
	return New(name, minimum, maximum, minimum+(maximum-minimum)/2, true)
}

// NewSwitch returns boolean controller.
func NewSwitch(name string, on bool) *Controller[bool] {
	return NewFunc(name, false, true, on, false, compareBool)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// Name returns the name of controller.
func (c *Controller[V]) Name() string {
	return c.name
}

// Centered reports whether controller is centered around its midpoint.
func (c *Controller[V]) Centered() bool {
	return c.centered
}

// Minimum returns lower bound.
func (c *Controller[V]) Minimum() V {
	return c.minimum
}

// Maximum returns upper bound.
func (c *Controller[V]) Maximum() V {
	return c.maximum
}

// Value returns current value.
func (c *Controller[V]) Value() V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set clamps provided value and stores it. Change hooks are called only
// if the stored value changed. Returns the stored value.
func (c *Controller[V]) Set(v V) V {
	c.mu.Lock()
	v = c.clamp(v)
	if c.compare(v, c.value) == 0 {
		c.mu.Unlock()
		return v
	}
	c.value = v
	hooks := c.onChange
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(v)
	}
	return v
}

// OnChange adds a hook that is called with a new value after it's changed.
func (c *Controller[V]) OnChange(fn func(V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

func (c *Controller[V]) clamp(v V) V {
	if c.compare(v, c.minimum) < 0 {
		return c.minimum
	}
	if c.compare(v, c.maximum) > 0 {
		return c.maximum
	}
	return v
}

func (c *Controller[V]) String() string {
	return fmt.Sprintf("%s=%v [%v, %v]", c.name, c.Value(), c.minimum, c.maximum)
}
