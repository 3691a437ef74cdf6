package cfddns_test

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Travis-Britz/cfddns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoBindings = []cfddns.Binding{
	{Domain: "a.example.com", RecordID: "r1"},
	{Domain: "b.example.com", RecordID: "r2"},
}

func staticIP(t *testing.T, ip string) cfddns.Resolver {
	t.Helper()
	r, err := cfddns.FromString(ip)
	require.NoError(t, err)
	return r
}

func TestRunCycleUpdatesEveryBinding(t *testing.T) {
	p := &fakeProvider{}
	r, err := cfddns.New(twoBindings, cfddns.UsingProvider(p), cfddns.UsingResolver(staticIP(t, "203.0.113.7")))
	require.NoError(t, err)

	for cycle := 1; cycle <= 2; cycle++ {
		res := r.RunCycle(context.Background())
		require.NoError(t, res.Err)
		assert.Equal(t, 2, res.Updated)
		assert.False(t, res.Unchanged)
		// the same address is republished every cycle
		assert.Len(t, p.Updates(), 2*cycle)
	}
	for i, u := range p.Updates() {
		assert.Equal(t, "203.0.113.7", u.IP.String())
		assert.Equal(t, twoBindings[i%2], u.Binding)
	}
}

func TestRunCycleOnlyOnChange(t *testing.T) {
	p := &fakeProvider{}
	var current atomic.Value
	current.Store(netip.MustParseAddr("203.0.113.7"))
	resolver := cfddns.ResolverFunc(func(context.Context) (netip.Addr, error) {
		return current.Load().(netip.Addr), nil
	})
	r, err := cfddns.New(twoBindings, cfddns.UsingProvider(p), cfddns.UsingResolver(resolver), cfddns.OnlyOnChange(true))
	require.NoError(t, err)

	require.NoError(t, r.RunCycle(context.Background()).Err)
	res := r.RunCycle(context.Background())
	require.NoError(t, res.Err)
	assert.True(t, res.Unchanged)
	assert.Len(t, p.Updates(), 2)

	current.Store(netip.MustParseAddr("203.0.113.8"))
	res = r.RunCycle(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Updated)
	assert.Len(t, p.Updates(), 4)
}

func TestRunCycleOnlyOnChangeRetriesAfterFailure(t *testing.T) {
	p := &fakeProvider{fail: map[string]error{"b.example.com": errors.New("boom")}}
	r, err := cfddns.New(twoBindings, cfddns.UsingProvider(p), cfddns.UsingResolver(staticIP(t, "203.0.113.7")), cfddns.OnlyOnChange(true))
	require.NoError(t, err)

	res := r.RunCycle(context.Background())
	require.Error(t, res.Err)
	assert.Equal(t, 1, res.Updated)

	// a partially failed cycle does not count as published
	res = r.RunCycle(context.Background())
	assert.False(t, res.Unchanged)
	assert.Len(t, p.Updates(), 2)
}

func TestRunCycleDiscoveryFailure(t *testing.T) {
	p := &fakeProvider{}
	boom := errors.New("no network")
	resolver := cfddns.ResolverFunc(func(context.Context) (netip.Addr, error) { return netip.Addr{}, boom })
	r, err := cfddns.New(twoBindings, cfddns.UsingProvider(p), cfddns.UsingResolver(resolver))
	require.NoError(t, err)

	res := r.RunCycle(context.Background())
	require.ErrorIs(t, res.Err, boom)
	assert.False(t, res.IP.IsValid())
	assert.Empty(t, p.Updates())
}

func TestNewValidation(t *testing.T) {
	_, err := cfddns.New(nil, cfddns.UsingProvider(&fakeProvider{}))
	assert.Error(t, err)

	_, err = cfddns.New(twoBindings)
	assert.Error(t, err, "a provider is required")

	_, err = cfddns.New(twoBindings, cfddns.UsingProvider(&fakeProvider{}), cfddns.WithInterval(0))
	assert.Error(t, err)

	r, err := cfddns.New(twoBindings, cfddns.UsingProvider(&fakeProvider{}))
	require.NoError(t, err)
	assert.Equal(t, twoBindings, r.Bindings())
}

// slowResolver blocks for delay and tracks how many calls are in flight at once.
type slowResolver struct {
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
}

func (s *slowResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	s.calls.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-ctx.Done():
		return netip.Addr{}, ctx.Err()
	case <-time.After(s.delay):
		return netip.MustParseAddr("203.0.113.7"), nil
	}
}

type resultLog struct {
	mu      sync.Mutex
	results []cfddns.CycleResult
}

func (l *resultLog) add(r cfddns.CycleResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
}

func (l *resultLog) skipped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.results {
		if r.Skipped {
			n++
		}
	}
	return n
}

func TestRunOverlappingCycles(t *testing.T) {
	resolver := &slowResolver{delay: 60 * time.Millisecond}
	var log resultLog
	r, err := cfddns.New(twoBindings,
		cfddns.UsingProvider(&fakeProvider{}),
		cfddns.UsingResolver(resolver),
		cfddns.WithInterval(10*time.Millisecond),
		cfddns.WithResultHandler(log.add),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.GreaterOrEqual(t, resolver.peak.Load(), int32(2), "a slow cycle must not hold back the next tick")
	assert.Zero(t, log.skipped())
	assert.Zero(t, resolver.active.Load(), "Run waits for in-flight cycles")
}

func TestRunSingleFlight(t *testing.T) {
	resolver := &slowResolver{delay: 60 * time.Millisecond}
	var log resultLog
	r, err := cfddns.New(twoBindings,
		cfddns.UsingProvider(&fakeProvider{}),
		cfddns.UsingResolver(resolver),
		cfddns.WithInterval(10*time.Millisecond),
		cfddns.SingleFlight(true),
		cfddns.WithResultHandler(log.add),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.Equal(t, int32(1), resolver.peak.Load())
	assert.Positive(t, log.skipped())
}

func TestRunSurvivesFailingCycles(t *testing.T) {
	var calls atomic.Int32
	resolver := cfddns.ResolverFunc(func(context.Context) (netip.Addr, error) {
		calls.Add(1)
		return netip.Addr{}, errors.New("trace endpoint down")
	})
	var log resultLog
	r, err := cfddns.New(twoBindings,
		cfddns.UsingProvider(&fakeProvider{}),
		cfddns.UsingResolver(resolver),
		cfddns.WithInterval(10*time.Millisecond),
		cfddns.WithResultHandler(log.add),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.GreaterOrEqual(t, calls.Load(), int32(3))
	log.mu.Lock()
	defer log.mu.Unlock()
	for _, res := range log.results {
		assert.Error(t, res.Err)
	}
}

func TestRunFirstCycleIsImmediate(t *testing.T) {
	p := &fakeProvider{}
	r, err := cfddns.New(twoBindings,
		cfddns.UsingProvider(p),
		cfddns.UsingResolver(staticIP(t, "203.0.113.7")),
		cfddns.WithInterval(time.Hour),
		cfddns.WithResultHandler(func(cfddns.CycleResult) {}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.Len(t, p.Updates(), 2)
}
