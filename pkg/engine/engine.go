// Package engine is the playback core of the sample browser: it decodes
// files on demand through a bounded cache, owns the single active output
// source and exposes the transport operations the UI drives.
//
// Correctness under rapid overlapping input rests on a generation counter
// rather than cancellation: every Play bumps the generation, releases the
// engine lock for the decode, and re-checks the generation afterwards. A
// superseded decode completes normally and its result is discarded before
// it can produce an audible source.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wavedeck/wavedeck/internal/cache"
	"github.com/wavedeck/wavedeck/internal/config"
	"github.com/wavedeck/wavedeck/internal/loudness"
	"github.com/wavedeck/wavedeck/internal/pcm"
	"github.com/wavedeck/wavedeck/internal/source"
	"github.com/wavedeck/wavedeck/pkg/audio"
)

// File describes an audio file handed to the engine by the browser UI.
// The engine never mutates it.
type File struct {
	Path string
	BPM  float64 // 0 when unknown
	Key  string  // musical key, empty when unknown
}

// Options configures a new Engine.
type Options struct {
	// Source fetches raw file bytes. Required.
	Source source.ByteSource

	// Device is the output device. When nil, a real device is opened
	// lazily on first play using the configured format.
	Device audio.Device

	// Settings supplies reactive configuration. When nil a provider with
	// defaults is used.
	Settings *config.Provider

	// Clock overrides the playback clock. Tests inject a fake.
	Clock func() time.Time

	// WatchInterval is the poll period for end-of-buffer detection.
	WatchInterval time.Duration
}

// Engine is the transport controller. All methods are safe for concurrent
// use; one coarse mutex guards the session state, released only across the
// decode suspension point.
type Engine struct {
	settings *config.Provider
	loader   *cache.Loader
	meter    *loudness.Meter
	prefetch *Prefetcher

	newDevice func(*config.Config) (audio.Device, error)
	clock     func() time.Time
	watchTick time.Duration

	mu            sync.Mutex
	device        audio.Device // lazily created, memoized
	gen           uint64
	current       *File
	player        audio.Player
	reader        *audio.Reader
	buf           *pcm.Buffer
	startAt       time.Time
	pauseOffset   time.Duration
	intendPlaying bool
	playing       bool
	loop          bool
	volume        float64
	trim          float64
	disposed      bool
	listener      func(State)
}

// New creates an engine around a byte source.
func New(opts Options) *Engine {
	settings := opts.Settings
	if settings == nil {
		settings = config.NewProvider(config.Default())
	}
	cfg := settings.Get()

	// Buffers are converted at decode time to the device format, so the
	// format has to be pinned before the device itself exists.
	sampleRate, channels := cfg.SampleRate, cfg.Channels
	if opts.Device != nil {
		sampleRate, channels = opts.Device.SampleRate(), opts.Device.ChannelCount()
	}

	meter := loudness.NewMeter()
	loader := cache.NewLoader(opts.Source, meter, cache.Options{
		MaxEntries: cfg.CacheMaxEntries,
		SampleRate: sampleRate,
		Channels:   channels,
	})

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	tick := opts.WatchInterval
	if tick <= 0 {
		tick = 20 * time.Millisecond
	}

	e := &Engine{
		settings:  settings,
		loader:    loader,
		meter:     meter,
		device:    opts.Device,
		clock:     clock,
		watchTick: tick,
		loop:      cfg.Loop,
		volume:    clampVolume(cfg.Volume),
		trim:      1.0,
		newDevice: func(c *config.Config) (audio.Device, error) {
			return audio.NewOtoDevice(c.SampleRate, c.Channels, c.BufferMs)
		},
	}
	e.prefetch = &Prefetcher{loader: loader}
	return e
}

// Play decodes file and makes it the single audible source, resuming from
// the paused offset when the file is the current one. Neighbors are
// prefetched best-effort. A Play superseded by a newer Play before its
// decode resolves returns nil without producing output.
func (e *Engine) Play(ctx context.Context, file File, neighbors ...File) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	e.gen++
	gen := e.gen

	// Replaying the paused current file resumes where it left off; any
	// other file starts at zero.
	var offset time.Duration
	if e.current != nil && e.current.Path == file.Path && !e.playing {
		offset = e.pauseOffset
	}
	e.haltLocked()
	f := file
	e.current = &f
	// Intent must be visible before the decode await so a Seek issued
	// mid-decode observes it.
	e.intendPlaying = true
	e.mu.Unlock()

	buf, err := e.loader.Decode(ctx, file.Path)

	e.mu.Lock()
	if e.disposed || e.gen != gen {
		e.mu.Unlock()
		log.Debug("superseded play discarded", "path", file.Path, "generation", gen)
		return nil
	}
	if err != nil {
		e.intendPlaying = false
		e.mu.Unlock()
		return err
	}

	dev, err := e.deviceLocked()
	if err != nil {
		e.intendPlaying = false
		e.mu.Unlock()
		return err
	}

	cfg := e.settings.Get()
	trim := 1.0
	if cfg.NormalizeVolume {
		level := e.meter.Level(file.Path, buf)
		trim = loudness.Gain(level, cfg.NormalizationTargetDB)
	}

	frameBytes := buf.Channels * pcm.BytesPerSample
	reader := audio.NewReader(buf.Bytes(), frameBytes, buf.FrameAt(offset), e.loop)
	player, err := dev.NewPlayer(reader)
	if err != nil {
		e.intendPlaying = false
		e.mu.Unlock()
		return fmt.Errorf("create output source: %w", err)
	}
	if err := dev.Resume(); err != nil {
		_ = player.Close()
		e.intendPlaying = false
		e.mu.Unlock()
		return fmt.Errorf("resume output device: %w", err)
	}
	player.SetVolume(e.volume * trim)
	player.Play()

	e.player = player
	e.reader = reader
	e.buf = buf
	e.trim = trim
	e.startAt = e.clock().Add(-offset)
	e.pauseOffset = 0
	e.playing = true
	st := e.snapshotLocked()
	e.mu.Unlock()

	go e.watch(gen, player, reader)
	e.notify(st)
	e.prefetch.Warm(neighbors)
	return nil
}

// Preload warms the decode cache without touching playback.
func (e *Engine) Preload(ctx context.Context, file File) error {
	_, err := e.loader.Decode(ctx, file.Path)
	return err
}

// Stop halts and disconnects the active source. Stopping twice is fine.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.intendPlaying = false
	e.haltLocked()
	e.pauseOffset = 0
	st := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(st)
}

// Pause halts playback but keeps the resume offset. A no-op when nothing
// is playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.intendPlaying = false
	if !e.playing {
		e.mu.Unlock()
		return
	}
	e.pauseOffset = e.clock().Sub(e.startAt)
	e.haltLocked()
	st := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(st)
}

// Seek moves the playhead. If playback was intended, including a play
// whose decode is still in flight, the current file restarts at the new
// offset; otherwise the offset is parked for the next play.
func (e *Engine) Seek(ctx context.Context, position time.Duration) error {
	if position < 0 {
		position = 0
	}
	// Intent capture, halt and offset parking happen in one critical
	// section, with the generation bumped inside it: an in-flight decode
	// must never resolve between the halt and the replay, start a stale
	// source and wipe the parked offset.
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	wasIntending := e.intendPlaying
	current := e.current
	e.gen++
	e.intendPlaying = false
	e.haltLocked()
	e.pauseOffset = position
	st := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(st)

	if wasIntending && current != nil {
		return e.Play(ctx, *current)
	}
	return nil
}

// SetLoop updates the stored loop flag and the active source, if any.
func (e *Engine) SetLoop(enabled bool) {
	e.mu.Lock()
	e.loop = enabled
	if e.reader != nil {
		e.reader.SetLoop(enabled)
	}
	st := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(st)
}

// SetVolume sets the master volume, clamped to [0,1]. Takes effect
// immediately, independent of decode state.
func (e *Engine) SetVolume(level float64) {
	e.mu.Lock()
	e.volume = clampVolume(level)
	if e.player != nil {
		e.player.SetVolume(e.volume * e.trim)
	}
	st := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(st)
}

// Volume returns the master volume.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Dispose stops playback and releases the device, the decode cache, the
// in-flight map and the measured-level cache.
func (e *Engine) Dispose() {
	e.Stop()
	e.mu.Lock()
	e.disposed = true
	dev := e.device
	e.device = nil
	e.buf = nil
	e.current = nil
	e.mu.Unlock()
	if dev != nil {
		_ = dev.Close()
	}
	e.loader.Clear()
}

// SetListener registers the playback-state sink. The listener is invoked
// outside the engine lock after every transport mutation.
func (e *Engine) SetListener(fn func(State)) {
	e.mu.Lock()
	e.listener = fn
	e.mu.Unlock()
}

// CacheStats exposes decode-cache counters for status output.
func (e *Engine) CacheStats() cache.Stats {
	return e.loader.Stats()
}

// haltLocked synchronously stops and disconnects the active source.
// Tolerates being called with no source.
func (e *Engine) haltLocked() {
	if e.player != nil {
		_ = e.player.Close()
		e.player = nil
		e.reader = nil
	}
	e.playing = false
}

// deviceLocked returns the memoized output device, creating it on first
// use.
func (e *Engine) deviceLocked() (audio.Device, error) {
	if e.device != nil {
		return e.device, nil
	}
	dev, err := e.newDevice(e.settings.Get())
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	e.device = dev
	return dev, nil
}

// watch polls for natural end of buffer. Completion flips the playing flag
// but leaves the pause offset alone: a finished track restarts at zero on
// the next play.
func (e *Engine) watch(gen uint64, player audio.Player, reader *audio.Reader) {
	ticker := time.NewTicker(e.watchTick)
	defer ticker.Stop()
	for range ticker.C {
		e.mu.Lock()
		if e.disposed || e.gen != gen || !e.playing {
			e.mu.Unlock()
			return
		}
		if reader.Finished() && !player.IsPlaying() {
			_ = player.Close()
			e.player = nil
			e.reader = nil
			e.playing = false
			st := e.snapshotLocked()
			e.mu.Unlock()
			e.notify(st)
			return
		}
		e.mu.Unlock()
	}
}

func (e *Engine) notify(st State) {
	e.mu.Lock()
	fn := e.listener
	e.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
