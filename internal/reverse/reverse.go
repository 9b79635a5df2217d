// Package reverse derives and memoizes reversed copies of sample regions.
package reverse

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cbegin/padseq-go/internal/model"
)

// DefaultSize bounds the number of cached regions.
const DefaultSize = 256

type key struct {
	sample     *model.Sample
	start, end int
}

// Cache memoizes reversed regions per (sample identity, start frame, end
// frame). Entries keep their sample reachable until evicted or forgotten.
type Cache struct {
	entries *lru.Cache[key, [][]float32]
}

// New returns a cache holding at most size regions (DefaultSize if size <= 0).
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[key, [][]float32](size)
	if err != nil {
		// only returned for non-positive sizes
		panic(err)
	}
	return &Cache{entries: c}
}

// Frames converts a region in seconds to frame bounds within s.
func Frames(s *model.Sample, start, end float64) (int, int) {
	n := s.Frames()
	sf := int(math.Round(start * float64(s.SampleRate)))
	ef := int(math.Round(end * float64(s.SampleRate)))
	sf = clampInt(sf, 0, n)
	ef = clampInt(ef, 0, n)
	if ef < sf {
		ef = sf
	}
	return sf, ef
}

// Reverse returns the region [start, end) (seconds) of s reversed per
// channel: out[j] = in[end-1-j]. The result is shared and must not be
// modified.
func (c *Cache) Reverse(s *model.Sample, start, end float64) [][]float32 {
	sf, ef := Frames(s, start, end)
	k := key{sample: s, start: sf, end: ef}
	if buf, ok := c.entries.Get(k); ok {
		return buf
	}
	buf := Region(s.Data, sf, ef)
	c.entries.Add(k, buf)
	return buf
}

// Forget drops every cached region of s.
func (c *Cache) Forget(s *model.Sample) {
	for _, k := range c.entries.Keys() {
		if k.sample == s {
			c.entries.Remove(k)
		}
	}
}

// Len reports the number of cached regions.
func (c *Cache) Len() int { return c.entries.Len() }

// Region copies frames [start, end) of data in reverse order.
func Region(data [][]float32, start, end int) [][]float32 {
	out := make([][]float32, len(data))
	n := end - start
	for ch, in := range data {
		rev := make([]float32, n)
		for j := 0; j < n; j++ {
			rev[j] = in[end-1-j]
		}
		out[ch] = rev
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
