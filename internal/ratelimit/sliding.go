package ratelimit

import (
	"context"
	"sync"
	"time"

	"acm-chatbot/backend/pkg/logger"
)

// Options configures a SlidingWindow.
type Options struct {
	// Window is the length of the sliding window.
	Window time.Duration
	// IdleTTL is how long an empty window is kept before eviction.
	IdleTTL time.Duration
	// JanitorInterval is how often idle windows are swept. Zero disables the janitor.
	JanitorInterval time.Duration
}

// DefaultOptions returns a one-minute window swept every minute.
func DefaultOptions() Options {
	return Options{
		Window:          DefaultWindow,
		IdleTTL:         10 * time.Minute,
		JanitorInterval: time.Minute,
	}
}

// window is the admission log of one key. evicted is set by the janitor
// after the window was removed from the map.
type window struct {
	mu       sync.Mutex
	stamps   []time.Time
	lastSeen time.Time
	evicted  bool
}

// prune drops admissions at or before cutoff.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(w.stamps) {
		w.stamps = w.stamps[:0]
		return
	}
	w.stamps = append(w.stamps[:0], w.stamps[i:]...)
}

// SlidingWindow is an in-process Limiter. Each key has its own lock; the
// key map lock is held only for lookup.
type SlidingWindow struct {
	opts Options
	log  *logger.Logger
	now  func() time.Time

	mu      sync.RWMutex
	windows map[string]*window

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSlidingWindow creates a limiter and starts its janitor.
func NewSlidingWindow(opts Options, log *logger.Logger) *SlidingWindow {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.IdleTTL < opts.Window {
		opts.IdleTTL = opts.Window
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	s := &SlidingWindow{
		opts:    opts,
		log:     log,
		now:     time.Now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
	}

	if opts.JanitorInterval > 0 {
		s.wg.Add(1)
		go s.janitor()
	}
	return s
}

// Admit records an admission for key unless limit admissions already fall
// inside the window ending now.
func (s *SlidingWindow) Admit(ctx context.Context, key string, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if limit <= 0 {
		return &ExceededError{Key: key, Limit: limit, RetryAfter: s.opts.Window}
	}

	for {
		w := s.lookup(key)

		w.mu.Lock()
		if w.evicted {
			w.mu.Unlock()
			continue
		}

		now := s.now()
		w.prune(now.Add(-s.opts.Window))
		w.lastSeen = now

		if len(w.stamps) >= limit {
			retry := w.stamps[0].Add(s.opts.Window).Sub(now)
			w.mu.Unlock()
			return &ExceededError{Key: key, Limit: limit, RetryAfter: retry}
		}

		w.stamps = append(w.stamps, now)
		w.mu.Unlock()
		return nil
	}
}

// Len returns the number of admissions currently counted for key.
func (s *SlidingWindow) Len(key string) int {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(s.now().Add(-s.opts.Window))
	return len(w.stamps)
}

// Close stops the janitor. Safe to call more than once.
func (s *SlidingWindow) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

func (s *SlidingWindow) lookup(key string) *window {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[key]; ok {
		return w
	}
	w = &window{}
	s.windows[key] = w
	return w
}

func (s *SlidingWindow) janitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				s.log.Debug("Evicted idle rate limit windows", "count", n)
			}
		case <-s.stop:
			return
		}
	}
}

// sweep removes windows that are empty and idle for longer than IdleTTL.
func (s *SlidingWindow) sweep() int {
	now := s.now()
	cutoff := now.Add(-s.opts.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, w := range s.windows {
		w.mu.Lock()
		w.prune(cutoff)
		if len(w.stamps) == 0 && now.Sub(w.lastSeen) > s.opts.IdleTTL {
			w.evicted = true
			delete(s.windows, key)
			evicted++
		}
		w.mu.Unlock()
	}
	return evicted
}
