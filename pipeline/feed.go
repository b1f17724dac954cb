package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// StatsFunc reports the registered and present-today counts for the overlay.
type StatsFunc func(ctx context.Context) (registered, present int)

// FeedStatus is a point-in-time view of a feed for the API.
type FeedStatus struct {
	ID           string  `json:"id"`
	Running      bool    `json:"running"`
	Frames       int64   `json:"frames"`
	FPS          float64 `json:"fps"`
	ActiveTracks int     `json:"active_tracks"`
	LastError    string  `json:"last_error,omitempty"`
}

// Feed runs the capture, process and render loop for one camera.
type Feed struct {
	ID       string
	opener   SourceOpener
	proc     *Processor
	renderer Renderer
	stats    StatsFunc
	now      func() time.Time

	resetRequested atomic.Bool

	mu         sync.RWMutex
	running    bool
	frames     int64
	fps        float64
	tracks     int
	lastErr    error
	lastFrame  []byte
	overlay    Overlay
	statsAt    time.Time
	fpsCount   int
	fpsStarted time.Time
}

// FeedOptions are the optional parts of a feed.
type FeedOptions struct {
	Renderer Renderer
	Stats    StatsFunc
	// Clock overrides time.Now.
	Clock func() time.Time
}

func NewFeed(id string, opener SourceOpener, proc *Processor, opts FeedOptions) *Feed {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Feed{
		ID:       id,
		opener:   opener,
		proc:     proc,
		renderer: opts.Renderer,
		stats:    opts.Stats,
		now:      clock,
		overlay:  Overlay{Feed: id},
	}
}

// Run processes frames until ctx is cancelled, the source ends or the
// operator closes the display. The source is released and the per-feed
// caches are cleared on return.
func (f *Feed) Run(ctx context.Context) (err error) {
	src, err := f.opener.Open(ctx)
	if err != nil {
		f.setErr(err)
		return fmt.Errorf("failed to open source for feed %s: %w", f.ID, err)
	}
	f.setRunning(true)
	log.Printf("pipeline: feed %s started", f.ID)

	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Printf("pipeline: WARNING closing source for feed %s: %v", f.ID, cerr)
		}
		f.proc.Reset()
		f.setRunning(false)
		if err != nil {
			f.setErr(err)
		}
		log.Printf("pipeline: feed %s stopped", f.ID)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if f.resetRequested.Swap(false) {
			f.proc.Reset()
			log.Printf("pipeline: feed %s caches cleared", f.ID)
		}

		frame, rerr := src.Read(ctx)
		if rerr != nil {
			if errors.Is(rerr, ErrEndOfStream) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read frame from feed %s: %w", f.ID, rerr)
		}

		now := f.now()
		res := f.proc.Process(ctx, frame, now)
		for _, msg := range res.Messages {
			log.Printf("[%s] %s: %s", now.Format("15:04:05"), f.ID, msg)
		}
		overlay := f.tick(ctx, now)

		if f.renderer == nil {
			continue
		}
		jpeg, rerr := f.renderer.Render(frame, res, overlay)
		if len(jpeg) > 0 {
			f.mu.Lock()
			f.lastFrame = jpeg
			f.mu.Unlock()
		}
		if errors.Is(rerr, ErrQuit) {
			log.Printf("pipeline: feed %s display closed", f.ID)
			return nil
		}
		if rerr != nil {
			log.Printf("pipeline: WARNING rendering feed %s: %v", f.ID, rerr)
		}
	}
}

// tick updates frame counters, the once-per-second FPS figure and the
// overlay statistics.
func (f *Feed) tick(ctx context.Context, now time.Time) Overlay {
	// statsAt is only written by the Run goroutine
	refresh := f.stats != nil && now.Sub(f.statsAt) >= time.Second
	var registered, present int
	if refresh {
		registered, present = f.stats(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.frames++
	f.tracks = f.proc.ActiveTracks()
	if f.fpsStarted.IsZero() {
		f.fpsStarted = now
	} else {
		f.fpsCount++
	}
	if elapsed := now.Sub(f.fpsStarted); elapsed >= time.Second {
		f.fps = float64(f.fpsCount) / elapsed.Seconds()
		f.fpsCount = 0
		f.fpsStarted = now
	}
	if refresh {
		f.overlay.Registered, f.overlay.Present = registered, present
		f.statsAt = now
	}
	f.overlay.FPS = f.fps
	return f.overlay
}

// RequestReset asks the loop to clear its caches before the next frame.
func (f *Feed) RequestReset() {
	f.resetRequested.Store(true)
}

// LatestFrame returns the last rendered JPEG, if any.
func (f *Feed) LatestFrame() ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastFrame, len(f.lastFrame) > 0
}

func (f *Feed) Status() FeedStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st := FeedStatus{
		ID:           f.ID,
		Running:      f.running,
		Frames:       f.frames,
		FPS:          f.fps,
		ActiveTracks: f.tracks,
	}
	if f.lastErr != nil {
		st.LastError = f.lastErr.Error()
	}
	return st
}

func (f *Feed) setRunning(v bool) {
	f.mu.Lock()
	f.running = v
	f.mu.Unlock()
}

func (f *Feed) setErr(err error) {
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
}
