package controller_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/stream/controller"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		value    float64
		expected float64
	}{
		{value: -1, expected: 0},
		{value: 0.3, expected: 0.3},
		{value: 2, expected: 1},
	}
	c := controller.New("volume", 0.0, 1.0, 0.5, false)
	for _, test := range tests {
		c.Set(test.value)
		assert.Equal(t, test.expected, c.Value())
	}
}

func TestOnChange(t *testing.T) {
	c := controller.New("volume", 0, 10, 10, false)
	var calls []int
	c.OnChange(func(v int) {
		calls = append(calls, v)
	})

	c.Set(11) // clamps to current value
	c.Set(10)
	assert.Empty(t, calls)

	c.Set(5)
	c.Set(5)
	c.Set(-3)
	assert.Equal(t, []int{5, 0}, calls)
}

func TestKnob(t *testing.T) {
	k := controller.NewKnob("pan", -1, 1)
	assert.True(t, k.Centered())
	assert.Equal(t, 0.0, k.Value())

	f := controller.NewFader("fader", 0, 1)
	assert.False(t, f.Centered())
	assert.Equal(t, 1.0, f.Value())
}

func TestSwitch(t *testing.T) {
	s := controller.NewSwitch("mute", false)
	changed := 0
	s.OnChange(func(bool) { changed++ })
	s.Set(false)
	s.Set(true)
	s.Set(true)
	assert.True(t, s.Value())
	assert.Equal(t, 1, changed)
}

func TestSwappedBounds(t *testing.T) {
	c := controller.New("gain", 5, -5, 20, false)
	assert.Equal(t, -5, c.Minimum())
	assert.Equal(t, 5, c.Maximum())
	assert.Equal(t, 5, c.Value())
}
