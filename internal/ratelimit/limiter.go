package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const numShards = 32

// Config holds the limiter settings.
type Config struct {
	// Quota is the number of admissions allowed per key within Window.
	Quota int
	// Window is the trailing period admissions are counted over.
	Window time.Duration
	// MaxKeys is a soft cap on tracked keys. A shard holding more than its
	// share is swept on insert. Zero disables the cap.
	MaxKeys int
}

// DefaultConfig returns 10 admissions per 60 seconds.
func DefaultConfig() Config {
	return Config{Quota: 10, Window: time.Minute, MaxKeys: 10000}
}

// Decision is the result of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest admission leaves the window.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used by Run.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// window is the admission history of one key, oldest first.
type window struct {
	mu     sync.Mutex
	stamps []time.Time
	// dead is set when the window has been removed from its shard. A caller
	// holding a dead window must look the key up again.
	dead bool
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Limiter is an in-memory per-key sliding-window admission controller.
// Keys are spread over shards so unrelated keys share a lock only for the
// map lookup; the check-and-append itself is serialized per key.
type Limiter struct {
	cfg         Config
	shards      [numShards]*shard
	maxPerShard int
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a Limiter. Non-positive Quota or Window fall back to defaults.
func New(cfg Config, opts ...Option) *Limiter {
	def := DefaultConfig()
	if cfg.Quota <= 0 {
		cfg.Quota = def.Quota
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}

	l := &Limiter{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	if cfg.MaxKeys > 0 {
		l.maxPerShard = (cfg.MaxKeys + numShards - 1) / numShards
	}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*window)}
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "rate_limiter"))
	return l
}

func (l *Limiter) shardFor(key string) *shard {
	return l.shards[xxhash.Sum64String(key)%numShards]
}

// Admit records an admission for key if the key is under quota.
func (l *Limiter) Admit(key string) Decision {
	s := l.shardFor(key)
	for {
		now := l.now()
		w := l.lookup(s, key, now)

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		d := l.admitLocked(w, now)
		w.mu.Unlock()
		return d
	}
}

func (l *Limiter) lookup(s *shard, key string, now time.Time) *window {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.windows[key]; ok {
		return w
	}
	if l.maxPerShard > 0 && len(s.windows) >= l.maxPerShard {
		l.sweepShardLocked(s, now)
	}
	w := &window{}
	s.windows[key] = w
	return w
}

func (l *Limiter) admitLocked(w *window, now time.Time) Decision {
	w.stamps = l.trim(w.stamps, now)

	if len(w.stamps) >= l.cfg.Quota {
		retry := l.cfg.Window - now.Sub(w.stamps[0])
		if retry < 0 {
			retry = 0
		}
		return Decision{
			Allowed:    false,
			Limit:      l.cfg.Quota,
			Remaining:  0,
			RetryAfter: retry,
		}
	}

	w.stamps = append(w.stamps, now)
	return Decision{
		Allowed:   true,
		Limit:     l.cfg.Quota,
		Remaining: l.cfg.Quota - len(w.stamps),
	}
}

// trim drops stamps that are more than one window old.
func (l *Limiter) trim(stamps []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) > l.cfg.Window {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

// Sweep removes keys whose windows are empty at now and returns how many
// were removed.
func (l *Limiter) Sweep(now time.Time) int {
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		removed += l.sweepShardLocked(s, now)
		s.mu.Unlock()
	}
	return removed
}

func (l *Limiter) sweepShardLocked(s *shard, now time.Time) int {
	removed := 0
	for key, w := range s.windows {
		w.mu.Lock()
		w.stamps = l.trim(w.stamps, now)
		if len(w.stamps) == 0 {
			w.dead = true
			delete(s.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

// Run sweeps idle keys once per window until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(l.now()); n > 0 {
				l.logger.Debug("swept idle rate limit keys",
					slog.Int("removed", n),
					slog.Int("remaining", l.Len()))
			}
		}
	}
}
