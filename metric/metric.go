// Package metric publishes per-component counters with expvar. Counters
// are grouped by component type, all components of the same type share
// them.
package metric

import (
	"expvar"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Name of the expvar map with all components.
const Name = "stream"

// Counter names.
const (
	MessageCounter   = "Messages"
	ByteCounter      = "Bytes"
	LatencyCounter   = "Latency"
	ComponentCounter = "Components"
)

type (
	// Stats is a snapshot of counters of a component type.
	Stats struct {
		Components int64
		Messages   int64
		Bytes      int64
		// Latency is the time between the last two measured chunks.
		Latency time.Duration
	}

	// ResetFunc returns a new MeasureFunc. It postpones latency capture
	// until the component actually runs.
	ResetFunc func() MeasureFunc

	// MeasureFunc captures counters of a forwarded chunk.
	MeasureFunc func(bytes int64)

	counters struct {
		components expvar.Int
		messages   expvar.Int
		bytes      expvar.Int
		latency    latency
	}

	latency struct {
		nanos atomic.Int64
	}
)

var (
	published = expvar.NewMap(Name)

	mu    sync.Mutex
	types = make(map[string]*counters)
)

// Meter registers a component and returns closure to measure its chunks.
func Meter(component any) ResetFunc {
	c := lookup(TypeName(component), true)
	c.components.Add(1)
	return func() MeasureFunc {
		last := time.Now()
		return func(n int64) {
			now := time.Now()
			c.latency.nanos.Store(int64(now.Sub(last)))
			c.messages.Add(1)
			c.bytes.Add(n)
			last = now
		}
	}
}

// Get returns counters of component type. Zero stats are returned for
// types that were never metered.
func Get(component any) Stats {
	c := lookup(TypeName(component), false)
	if c == nil {
		return Stats{}
	}
	return c.stats()
}

// GetAll returns counters of all metered component types.
func GetAll() map[string]Stats {
	mu.Lock()
	defer mu.Unlock()
	all := make(map[string]Stats, len(types))
	for name, c := range types {
		all[name] = c.stats()
	}
	return all
}

func lookup(name string, create bool) *counters {
	mu.Lock()
	defer mu.Unlock()
	if c, ok := types[name]; ok || !create {
		return c
	}
	c := &counters{}
	m := new(expvar.Map).Init()
	m.Set(ComponentCounter, &c.components)
	m.Set(MessageCounter, &c.messages)
	m.Set(ByteCounter, &c.bytes)
	m.Set(LatencyCounter, &c.latency)
	published.Set(name, m)
	types[name] = c
	return c
}

func (c *counters) stats() Stats {
	return Stats{
		Components: c.components.Value(),
		Messages:   c.messages.Value(),
		Bytes:      c.bytes.Value(),
		Latency:    time.Duration(c.latency.nanos.Load()),
	}
}

// String formats latency as a quoted duration.
func (l *latency) String() string {
	return strconv.Quote(time.Duration(l.nanos.Load()).String())
}

// TypeName returns the type name of component without pointers.
func TypeName(component any) string {
	t := reflect.TypeOf(component)
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
