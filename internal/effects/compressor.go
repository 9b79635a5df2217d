package effects

import "math"

// Compressor is a stereo-linked bus compressor. Both channels share one
// envelope so transients do not pull the stereo image sideways.
type Compressor struct {
	threshold float32
	ratio     float32
	attack    float32 // coefficient
	release   float32 // coefficient
	makeup    float32
	env       float32
	reduction float32
}

// NewCompressor creates a compressor effect.
// thresholdDB: threshold in dB (e.g., -18)
// ratio: compression ratio (e.g., 4 for 4:1); values <= 1 pass audio through
// attackMs, releaseMs: envelope times
// makeupDB: makeup gain in dB
func NewCompressor(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float32) *Compressor {
	return &Compressor{
		threshold: dbToLinear(thresholdDB),
		ratio:     ratio,
		attack:    envCoeff(attackMs, sampleRate),
		release:   envCoeff(releaseMs, sampleRate),
		makeup:    dbToLinear(makeupDB),
		reduction: 1,
	}
}

// NewLimiter returns a fast, high-ratio compressor that keeps a bounced mix
// under ceilingDB.
func NewLimiter(sampleRate int, ceilingDB float32) *Compressor {
	return NewCompressor(sampleRate, ceilingDB, 50, 0.1, 80, 0)
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	peak := float32(math.Max(math.Abs(float64(l)), math.Abs(float64(r))))
	if peak > c.env {
		c.env += c.attack * (peak - c.env)
	} else {
		c.env += c.release * (peak - c.env)
	}
	c.reduction = c.gainFor(c.env)
	g := c.reduction * c.makeup
	return l * g, r * g
}

// Reduction returns the most recent gain reduction factor (1 = none).
func (c *Compressor) Reduction() float32 { return c.reduction }

func (c *Compressor) gainFor(env float32) float32 {
	if c.ratio <= 1 || env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	over := env / c.threshold
	return float32(math.Pow(float64(over), float64(1/c.ratio-1)))
}

func (c *Compressor) Reset() {
	c.env = 0
	c.reduction = 1
}

func dbToLinear(db float32) float32 {
	return float32(math.Pow(10, float64(db)/20))
}

func envCoeff(ms float32, sampleRate int) float32 {
	if ms <= 0 {
		return 1
	}
	return float32(1 - math.Exp(-1/(float64(ms)*float64(sampleRate)/1000)))
}
