package cfddns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var discard = func() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}()

// CycleResult is the outcome of one discovery and update cycle.
type CycleResult struct {
	Started time.Time
	IP      netip.Addr
	// Updated is the number of records that now point at IP.
	Updated int
	// Unchanged is set when the cycle skipped updates because IP was already published.
	Unchanged bool
	// Skipped is set when the tick was dropped because a previous cycle was still running.
	Skipped bool
	Err     error
}

// New returns a Reconciler that keeps bindings pointed at the address found by its resolver.
//
// A provider must be registered with UsingProvider.
// The resolver defaults to the trace endpoint at DefaultTraceURL.
func New(bindings []Binding, options ...Option) (*Reconciler, error) {
	if len(bindings) == 0 {
		return nil, errors.New("cfddns.New: at least one binding is required")
	}
	r := &Reconciler{
		bindings: bindings,
		interval: DefaultInterval,
		logger:   discard,
	}
	for i, opt := range options {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("cfddns.New: option %d returned an error: %w", i, err)
		}
	}
	if r.provider == nil {
		return nil, errors.New("cfddns.New: no DNS provider was registered - use cfddns.UsingProvider")
	}
	if r.resolver == nil {
		tr, err := TraceResolver(DefaultTraceURL, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("cfddns.New: %w", err)
		}
		r.resolver = tr
	}
	if r.handle == nil {
		r.handle = r.logResult
	}
	return r, nil
}

type Option func(*Reconciler) error

func UsingProvider(p Provider) Option {
	return func(r *Reconciler) error {
		if p == nil {
			return errors.New("provider cannot be nil")
		}
		r.provider = p
		return nil
	}
}

func UsingResolver(resolver Resolver) Option {
	return func(r *Reconciler) error {
		r.resolver = resolver
		return nil
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Reconciler) error {
		if logger == nil {
			logger = discard
		}
		r.logger = logger.WithField("component", "reconciler")
		return nil
	}
}

// WithInterval sets the time between cycles.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive; got %s", d)
		}
		r.interval = d
		return nil
	}
}

// OnlyOnChange skips the updates of a cycle when the discovered address is the one last published
// by a fully successful cycle. By default every cycle republishes.
func OnlyOnChange(enabled bool) Option {
	return func(r *Reconciler) error {
		r.onlyOnChange = enabled
		return nil
	}
}

// SingleFlight drops ticks that arrive while a cycle is still running.
// By default cycles may overlap, and the last write wins at the provider.
func SingleFlight(enabled bool) Option {
	return func(r *Reconciler) error {
		r.guard = nil
		if enabled {
			r.guard = semaphore.NewWeighted(1)
		}
		return nil
	}
}

// WithResultHandler routes every CycleResult to fn instead of the logger.
// fn may be called concurrently.
func WithResultHandler(fn func(CycleResult)) Option {
	return func(r *Reconciler) error {
		r.handle = fn
		return nil
	}
}

// Reconciler runs discovery and update cycles on a fixed interval.
type Reconciler struct {
	resolver     Resolver
	provider     Provider
	bindings     []Binding
	interval     time.Duration
	logger       logrus.FieldLogger
	onlyOnChange bool
	guard        *semaphore.Weighted
	handle       func(CycleResult)

	mu        sync.Mutex
	published netip.Addr
}

// Bindings returns the domain to record pairs this reconciler keeps updated.
func (r *Reconciler) Bindings() []Binding {
	return append([]Binding(nil), r.bindings...)
}

// RunCycle discovers the current address and publishes it to every binding.
func (r *Reconciler) RunCycle(ctx context.Context) CycleResult {
	res := CycleResult{Started: time.Now()}

	ip, err := r.resolver.Resolve(ctx)
	if err != nil {
		res.Err = fmt.Errorf("error getting IP: %w", err)
		return res
	}
	res.IP = ip

	if r.onlyOnChange {
		r.mu.Lock()
		last := r.published
		r.mu.Unlock()
		if last == ip {
			res.Unchanged = true
			return res
		}
	}

	res.Updated, err = UpdateRecords(ctx, r.provider, r.bindings, ip, r.logger)
	if err != nil {
		res.Err = fmt.Errorf("error updating records with %s: %w", ip, err)
		return res
	}

	r.mu.Lock()
	r.published = ip
	r.mu.Unlock()
	return res
}

// Run starts a cycle immediately and then once per interval until ctx is done.
//
// Each cycle runs in its own goroutine, so a slow cycle never delays the next tick.
// Cycle failures are handed to the result handler and never stop the loop.
// Run waits for in-flight cycles before returning.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	r.logger.WithField("interval", r.interval.String()).Infof("managing %d records", len(r.bindings))
	r.spawn(ctx, &wg)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping")
			return nil
		case <-ticker.C:
			r.spawn(ctx, &wg)
		}
	}
}

func (r *Reconciler) spawn(ctx context.Context, wg *sync.WaitGroup) {
	if r.guard != nil && !r.guard.TryAcquire(1) {
		r.handle(CycleResult{Started: time.Now(), Skipped: true})
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if r.guard != nil {
			defer r.guard.Release(1)
		}
		r.handle(r.RunCycle(ctx))
	}()
}

func (r *Reconciler) logResult(res CycleResult) {
	l := r.logger.WithField("took", time.Since(res.Started).Round(time.Millisecond).String())
	if res.IP.IsValid() {
		l = l.WithField("ip", res.IP.String())
	}
	switch {
	case res.Skipped:
		l.Warn("previous cycle is still running; skipping tick")
	case res.Err != nil:
		l.WithError(res.Err).Errorf("cycle failed after updating %d of %d records", res.Updated, len(r.bindings))
	case res.Unchanged:
		l.Debug("ip unchanged; nothing to update")
	default:
		l.Infof("updated %d records", res.Updated)
	}
}
