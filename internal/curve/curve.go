// Package curve implements time-stamped parameter automation: a value that
// holds or ramps linearly between scheduled points.
package curve

import "sort"

type event struct {
	t    float64
	v    float64
	ramp bool // linear ramp from the previous event, otherwise a step at t
}

// Curve is a piecewise-linear parameter timeline. The zero value holds 0.
type Curve struct {
	initial float64
	events  []event
}

// New returns a curve that holds v until the first scheduled event.
func New(v float64) *Curve {
	return &Curve{initial: v}
}

// SetValueAt jumps to v at time t.
func (c *Curve) SetValueAt(v, t float64) {
	c.insert(event{t: t, v: v})
}

// LinearRampTo ramps from the preceding event to v, arriving at time t.
func (c *Curve) LinearRampTo(v, t float64) {
	c.insert(event{t: t, v: v, ramp: true})
}

// CancelAndHold drops every event at or after t and holds the value the
// curve had at t.
func (c *Curve) CancelAndHold(t float64) {
	v := c.ValueAt(t)
	i := sort.Search(len(c.events), func(i int) bool { return c.events[i].t >= t })
	c.events = c.events[:i]
	c.events = append(c.events, event{t: t, v: v})
}

// ValueAt evaluates the curve at time t.
func (c *Curve) ValueAt(t float64) float64 {
	// first event strictly after t
	i := sort.Search(len(c.events), func(i int) bool { return c.events[i].t > t })
	if i == 0 {
		return c.initial
	}
	prev := c.events[i-1]
	if i < len(c.events) && c.events[i].ramp {
		next := c.events[i]
		span := next.t - prev.t
		if span <= 0 {
			return next.v
		}
		return prev.v + (next.v-prev.v)*(t-prev.t)/span
	}
	return prev.v
}

// End is the time of the last scheduled event, or 0 when there is none.
func (c *Curve) End() float64 {
	if len(c.events) == 0 {
		return 0
	}
	return c.events[len(c.events)-1].t
}

// Len reports the number of scheduled events.
func (c *Curve) Len() int { return len(c.events) }

// Clone returns an independent copy.
func (c *Curve) Clone() *Curve {
	return &Curve{initial: c.initial, events: append([]event(nil), c.events...)}
}

// Points returns the scheduled times and values in order.
func (c *Curve) Points() (times, values []float64) {
	times = make([]float64, len(c.events))
	values = make([]float64, len(c.events))
	for i, e := range c.events {
		times[i] = e.t
		values[i] = e.v
	}
	return times, values
}

// insert keeps events ordered by time; equal times keep insertion order.
func (c *Curve) insert(e event) {
	i := sort.Search(len(c.events), func(i int) bool { return c.events[i].t > e.t })
	c.events = append(c.events, event{})
	copy(c.events[i+1:], c.events[i:])
	c.events[i] = e
}
