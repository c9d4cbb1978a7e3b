package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/instrument"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/output"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultKillTimeout   = 5 * time.Second
)

var (
	ErrNotFound = errors.New("session not found")
	ErrDisposed = errors.New("session registry disposed")
)

// Observer receives registry events. Implemented by the metrics layer.
type Observer interface {
	SessionCreated()
	SessionTornDown(reason string)
	TeardownStepFailed(step string)
	SetActiveSessions(n int)
}

type nopObserver struct{}

func (nopObserver) SessionCreated()           {}
func (nopObserver) SessionTornDown(string)    {}
func (nopObserver) TeardownStepFailed(string) {}
func (nopObserver) SetActiveSessions(int)     {}

// Options configures a Registry. Zero values select defaults.
type Options struct {
	Timeout       time.Duration
	SweepInterval time.Duration
	KillTimeout   time.Duration

	// Defaults is the configuration for sessions created without one.
	Defaults Config

	Fs       afero.Fs
	Reporter types.Reporter
	// WriterObserver receives file writer health signals of every session.
	WriterObserver telemetry.Observer
	// OnDetachedError observes failures of teardowns nobody waits for.
	OnDetachedError func(sessionID string, err error)
}

// Metrics is a point-in-time registry summary.
type Metrics struct {
	Total          int           `json:"total"`
	Active         int           `json:"active"`
	OldestID       string        `json:"oldest_id,omitempty"`
	OldestAge      time.Duration `json:"oldest_age"`
	CachedElements int           `json:"cached_elements"`
}

// Registry owns every live session. It is created by the process entry
// point and shared by dependency injection.
type Registry struct {
	timeout         time.Duration
	killTimeout     time.Duration
	defaults        Config
	fs              afero.Fs
	reporter        types.Reporter
	writerObserver  telemetry.Observer
	onDetachedError func(string, error)
	log             *zap.Logger
	metrics         Observer

	mu       sync.RWMutex
	sessions map[string]*Session
	pending  map[string]int
	disposed bool

	detached  sync.WaitGroup
	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// NewRegistry creates a registry and starts its expiry sweep.
func NewRegistry(log *zap.Logger, opts Options) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		timeout:         opts.Timeout,
		killTimeout:     opts.KillTimeout,
		defaults:        opts.Defaults,
		fs:              opts.Fs,
		reporter:        opts.Reporter,
		writerObserver:  opts.WriterObserver,
		onDetachedError: opts.OnDetachedError,
		log:             log.Named("sessions"),
		metrics:         nopObserver{},
		sessions:        make(map[string]*Session),
		pending:         make(map[string]int),
		stopSweep:       cancel,
		sweepDone:       make(chan struct{}),
	}

	go r.sweepLoop(ctx, opts.SweepInterval)
	return r
}

// WithMetrics adds metrics tracking to the registry
func (r *Registry) WithMetrics(metrics Observer) *Registry {
	if metrics != nil {
		r.metrics = metrics
	}
	return r
}

// Timeout returns the inactivity timeout.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// GetOrCreate returns the live session for id, creating it with cfg (or
// the registry defaults when cfg is nil) if none exists. An expired
// session is torn down in the background and replaced.
func (r *Registry) GetOrCreate(id string, cfg *Config) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil, ErrDisposed
	}

	if s, ok := r.sessions[id]; ok {
		if !s.expired(time.Now(), r.timeout) {
			return s, nil
		}
		r.expireLocked(s)
	}

	if cfg == nil {
		cfg = &r.defaults
	}
	if n := r.pending[id]; n > 0 {
		r.log.Warn("Creating session while its predecessor is still being torn down",
			zap.String("session_id", id),
			zap.Int("pending_teardowns", n),
		)
	}

	s := r.newSessionLocked(id, *cfg)
	r.sessions[id] = s
	r.metrics.SessionCreated()
	r.metrics.SetActiveSessions(len(r.sessions))
	r.log.Info("Session created", zap.String("session_id", id))
	return s, nil
}

func (r *Registry) newSessionLocked(id string, cfg Config) *Session {
	tcfg := telemetry.Normalize(cfg.Telemetry, r.log)
	logger := telemetry.New(id, tcfg, telemetry.Options{
		Console:  r.log,
		Fs:       r.fs,
		Observer: r.writerObserver,
	})

	var history *instrument.History
	if cfg.Reporting {
		history = instrument.NewHistory()
	}

	return newSession(id, logger, output.New(r.fs, SessionDir(tcfg.OutputDir, id), id), history)
}

// Get returns the live session for id. An expired session is removed, its
// teardown is started in the background, and Get reports not found.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(time.Now(), r.timeout) {
		r.expireLocked(s)
		return nil, false
	}
	return s, true
}

// Has reports whether a live session is mapped to id.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return ok && !s.expired(time.Now(), r.timeout)
}

// Delete removes the session and waits for its teardown. A partial
// teardown is reported as a *TeardownError; the session is removed either way.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.metrics.SetActiveSessions(len(r.sessions))
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return r.teardown(ctx, s, "deleted")
}

// expireLocked unmaps s and tears it down in the background.
func (r *Registry) expireLocked(s *Session) {
	delete(r.sessions, s.id)
	r.metrics.SetActiveSessions(len(r.sessions))
	r.pending[s.id]++
	r.detached.Add(1)

	go func() {
		defer r.detached.Done()

		err := r.teardown(context.Background(), s, "expired")

		r.mu.Lock()
		if r.pending[s.id]--; r.pending[s.id] <= 0 {
			delete(r.pending, s.id)
		}
		r.mu.Unlock()

		if err != nil && r.onDetachedError != nil {
			r.onDetachedError(s.id, err)
		}
	}()
}

// WaitDetached blocks until every background teardown has finished or ctx
// is done.
func (r *Registry) WaitDetached(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.detached.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep tears down every expired session in parallel. One session's
// failure does not affect the others; all failures are combined.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	now := time.Now()

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.expired(now, r.timeout) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.metrics.SetActiveSessions(len(r.sessions))
	r.mu.Unlock()

	if len(expired) == 0 {
		return 0, nil
	}

	r.log.Info("Sweeping expired sessions", zap.Int("count", len(expired)))
	return len(expired), r.teardownAll(ctx, expired, "expired")
}

func (r *Registry) teardownAll(ctx context.Context, sessions []*Session, reason string) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)

	for _, s := range sessions {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					r.log.Error("Teardown panicked", zap.String("session_id", s.id), zap.Any("panic", p))
					err = nil
				}
			}()
			if terr := r.teardown(ctx, s, reason); terr != nil {
				mu.Lock()
				errs = multierr.Append(errs, terr)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return errs
}

func (r *Registry) sweepLoop(ctx context.Context, interval time.Duration) {
	defer close(r.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.Warn("Sweep finished with teardown failures", zap.Int("swept", n), zap.Error(err))
			}
		}
	}
}

// Metrics returns a summary of all mapped sessions.
func (r *Registry) Metrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	m := Metrics{Total: len(r.sessions)}

	var oldest *Session
	for _, s := range r.sessions {
		if !s.expired(now, r.timeout) {
			m.Active++
		}
		m.CachedElements += s.CachedElements()
		if oldest == nil || s.createdAt.Before(oldest.createdAt) {
			oldest = s
		}
	}

	if oldest != nil {
		m.OldestID = oldest.id
		m.OldestAge = now.Sub(oldest.createdAt)
	}
	return m
}

// List returns descriptors of all live sessions.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		if !s.expired(now, r.timeout) {
			infos = append(infos, s.Info())
		}
	}
	return infos
}

// Dispose stops the sweep and tears down every session in parallel. It
// also waits for background teardowns. Safe to call more than once.
func (r *Registry) Dispose(ctx context.Context) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.disposed = true
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.metrics.SetActiveSessions(0)
	r.mu.Unlock()

	r.stopSweep()
	<-r.sweepDone

	r.log.Info("Disposing session registry", zap.Int("sessions", len(all)))
	err := r.teardownAll(ctx, all, "disposed")
	return multierr.Append(err, r.WaitDetached(ctx))
}
