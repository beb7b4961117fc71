// Package loudness estimates buffer loudness and derives normalization
// gain trims. Levels are RMS-based, expressed in dBFS.
package loudness

import (
	"math"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/wavedeck/wavedeck/internal/pcm"
)

// Measure computes the RMS level of a buffer in dBFS in a single pass over
// all channels. A silent buffer measures negative infinity.
func Measure(buf *pcm.Buffer) float64 {
	if buf == nil || len(buf.Samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range buf.Samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(buf.Samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// Gain returns the linear multiplier that aligns a measured level with the
// target. Silent buffers get a unity trim; boosting silence to a target is
// never useful.
func Gain(measured, target float64) float64 {
	if math.IsInf(measured, -1) {
		return 1.0
	}
	return math.Pow(10, (target-measured)/20)
}

// Meter caches measured levels per file path. A level lives exactly as
// long as its decoded buffer: the decode cache calls Forget on eviction.
type Meter struct {
	mu     sync.RWMutex
	levels map[string]float64
}

// NewMeter creates an empty level cache.
func NewMeter() *Meter {
	return &Meter{levels: make(map[string]float64)}
}

// Level returns the cached level for path, measuring synchronously once if
// the deferred background measurement has not landed yet.
func (m *Meter) Level(path string, buf *pcm.Buffer) float64 {
	m.mu.RLock()
	level, ok := m.levels[path]
	m.mu.RUnlock()
	if ok {
		return level
	}
	return m.measure(path, buf)
}

// Store caches a precomputed level. A level that already landed wins, so
// a synchronous first-use measurement and a deferred one never fight.
func (m *Meter) Store(path string, level float64) {
	m.mu.Lock()
	if _, ok := m.levels[path]; ok {
		m.mu.Unlock()
		return
	}
	m.levels[path] = level
	m.mu.Unlock()
	log.Debug("measured loudness", "path", path, "db", level)
}

func (m *Meter) measure(path string, buf *pcm.Buffer) float64 {
	level := Measure(buf)
	m.mu.Lock()
	// A concurrent measurement may have landed first; keep one value.
	if cached, ok := m.levels[path]; ok {
		m.mu.Unlock()
		return cached
	}
	m.levels[path] = level
	m.mu.Unlock()
	log.Debug("measured loudness", "path", path, "db", level)
	return level
}

// Forget drops the cached level for a path. Called by the decode cache
// when the owning buffer is evicted.
func (m *Meter) Forget(path string) {
	m.mu.Lock()
	delete(m.levels, path)
	m.mu.Unlock()
}

// Has reports whether a level is cached for path.
func (m *Meter) Has(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.levels[path]
	return ok
}

// Reset clears all cached levels.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.levels = make(map[string]float64)
	m.mu.Unlock()
}
