// Package cache decodes audio files on demand and keeps the resulting PCM
// buffers in a bounded in-memory cache.
//
// Eviction is FIFO by insertion order: a sample browser touches many files
// once while the user arrows through a folder, so recency tracking buys
// little over dropping the oldest decode. A file's measured loudness level
// is invalidated at the same moment its buffer is evicted.
package cache

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/wavedeck/wavedeck/internal/codec"
	"github.com/wavedeck/wavedeck/internal/loudness"
	"github.com/wavedeck/wavedeck/internal/pcm"
	"github.com/wavedeck/wavedeck/internal/source"
)

// DefaultMaxEntries bounds the cache when no capacity is configured.
const DefaultMaxEntries = 32

// inflight is a decode in progress. Concurrent requests for the same path
// share one fetch+decode and block on done.
type inflight struct {
	done chan struct{}
	buf  *pcm.Buffer
	err  error
}

// Loader fetches, decodes and caches audio buffers.
type Loader struct {
	src   source.ByteSource
	meter *loudness.Meter
	max   int

	// Device format buffers are converted to at decode time.
	// Zero values keep the file's native format.
	sampleRate int
	channels   int

	// One lock covers entries, insertion order and the in-flight map:
	// they are always mutated together.
	mu      sync.Mutex
	entries map[string]*pcm.Buffer
	order   []string
	pending map[string]*inflight

	stats Stats
}

// Stats holds cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Shared    int64 // requests that joined an in-flight decode
}

// Options configures a Loader.
type Options struct {
	MaxEntries int
	SampleRate int
	Channels   int
}

// NewLoader creates a loader backed by the given byte source. The meter
// receives deferred loudness measurements and eviction invalidations.
func NewLoader(src source.ByteSource, meter *loudness.Meter, opts Options) *Loader {
	max := opts.MaxEntries
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Loader{
		src:        src,
		meter:      meter,
		max:        max,
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		entries:    make(map[string]*pcm.Buffer),
		pending:    make(map[string]*inflight),
	}
}

// Decode returns the decoded buffer for a path. Cache hits return without
// I/O; concurrent calls for the same path share one underlying decode;
// misses fetch, decode, insert (evicting the oldest entry at capacity) and
// schedule a deferred loudness measurement.
func (l *Loader) Decode(ctx context.Context, path string) (*pcm.Buffer, error) {
	l.mu.Lock()
	if buf, ok := l.entries[path]; ok {
		l.stats.Hits++
		l.mu.Unlock()
		return buf, nil
	}
	if fl, ok := l.pending[path]; ok {
		l.stats.Shared++
		l.mu.Unlock()
		select {
		case <-fl.done:
			return fl.buf, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.stats.Misses++
	fl := &inflight{done: make(chan struct{})}
	l.pending[path] = fl
	l.mu.Unlock()

	buf, err := l.decode(ctx, path)

	l.mu.Lock()
	// Clear may have swapped the in-flight map while we were decoding;
	// a stale completion must not repopulate the cache.
	live := l.pending[path] == fl
	if live {
		delete(l.pending, path)
	}
	if err != nil {
		fl.err = &DecodeError{Path: path, Err: err}
		l.mu.Unlock()
		close(fl.done)
		return nil, fl.err
	}
	if live {
		l.insertLocked(path, buf)
	}
	fl.buf = buf
	l.mu.Unlock()
	close(fl.done)

	if live && l.meter != nil {
		l.measureDeferred(path, buf)
	}
	return buf, nil
}

// measureDeferred schedules the loudness pass so the first normalized play
// does not pay for it. The level lands only while the buffer is still
// resident; the check holds the cache lock so an eviction's Forget cannot
// interleave with the store.
func (l *Loader) measureDeferred(path string, buf *pcm.Buffer) {
	go func() {
		level := loudness.Measure(buf)
		l.mu.Lock()
		if _, ok := l.entries[path]; ok {
			l.meter.Store(path, level)
		}
		l.mu.Unlock()
	}()
}

// decode runs the fetch and codec work without holding the lock.
func (l *Loader) decode(ctx context.Context, path string) (*pcm.Buffer, error) {
	data, err := l.src.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	buf, err := codec.Decode(path, data)
	if err != nil {
		return nil, err
	}
	if l.sampleRate > 0 && l.channels > 0 {
		buf = pcm.Convert(buf, l.sampleRate, l.channels)
	}
	return buf, nil
}

// insertLocked adds a buffer, evicting the oldest insertion at capacity.
func (l *Loader) insertLocked(path string, buf *pcm.Buffer) {
	if _, ok := l.entries[path]; ok {
		l.entries[path] = buf
		return
	}
	for len(l.order) >= l.max {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.entries, oldest)
		l.stats.Evictions++
		if l.meter != nil {
			l.meter.Forget(oldest)
		}
		log.Debug("evicted decoded buffer", "path", oldest)
	}
	l.entries[path] = buf
	l.order = append(l.order, path)
}

// Contains reports whether a path is resident, without touching order.
func (l *Loader) Contains(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[path]
	return ok
}

// Len returns the number of resident buffers.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Stats returns a copy of the cache counters.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Clear drops all resident buffers, the in-flight map and the measured
// levels. In-flight decodes still complete but their results are dropped.
func (l *Loader) Clear() {
	l.mu.Lock()
	l.entries = make(map[string]*pcm.Buffer)
	l.order = nil
	l.pending = make(map[string]*inflight)
	l.mu.Unlock()
	if l.meter != nil {
		l.meter.Reset()
	}
}
