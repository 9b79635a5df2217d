package curve

import (
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCurveHoldsAndRamps(t *testing.T) {
	c := New(0.25)
	c.SetValueAt(0, 1)
	c.LinearRampTo(1, 2)
	c.LinearRampTo(0.5, 4)

	cases := []struct {
		at, want float64
	}{
		{0, 0.25},
		{0.999, 0.25},
		{1, 0},
		{1.5, 0.5},
		{2, 1},
		{3, 0.75},
		{4, 0.5},
		{10, 0.5},
	}
	for _, tc := range cases {
		if got := c.ValueAt(tc.at); !near(got, tc.want) {
			t.Errorf("ValueAt(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}
}

func TestZeroLengthRampIsStep(t *testing.T) {
	c := New(0)
	c.SetValueAt(0, 1)
	c.LinearRampTo(1, 1)
	if got := c.ValueAt(1); got != 1 {
		t.Fatalf("ValueAt(1) = %v, want 1", got)
	}
}

func TestCancelAndHoldFreezesRamp(t *testing.T) {
	c := New(0)
	c.SetValueAt(0, 0)
	c.LinearRampTo(1, 1)
	c.LinearRampTo(0, 2)
	c.CancelAndHold(0.5)
	if got := c.ValueAt(0.75); !near(got, 0.5) {
		t.Fatalf("held value = %v, want 0.5", got)
	}
	c.LinearRampTo(0, 0.505)
	if got := c.ValueAt(0.6); got != 0 {
		t.Fatalf("after fade = %v, want 0", got)
	}
	if c.End() != 0.505 {
		t.Fatalf("End = %v, want 0.505", c.End())
	}
}

func TestInsertKeepsOrder(t *testing.T) {
	c := New(0)
	c.SetValueAt(3, 3)
	c.SetValueAt(1, 1)
	c.SetValueAt(2, 2)
	times, values := c.Points()
	for i := range times {
		if times[i] != float64(i+1) || values[i] != float64(i+1) {
			t.Fatalf("unexpected order: %v %v", times, values)
		}
	}
}
