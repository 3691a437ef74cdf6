package cfddns_test

import (
	"context"
	"net/netip"
	"sync"

	"github.com/Travis-Britz/cfddns"
)

type update struct {
	Binding cfddns.Binding
	IP      netip.Addr
}

// fakeProvider records updates in memory.
type fakeProvider struct {
	records []cfddns.Record
	listErr error
	fail    map[string]error // by domain

	mu      sync.Mutex
	lists   int
	updates []update
}

func (p *fakeProvider) ListRecords(context.Context) ([]cfddns.Record, error) {
	p.mu.Lock()
	p.lists++
	p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.records, nil
}

func (p *fakeProvider) UpdateRecord(_ context.Context, b cfddns.Binding, ip netip.Addr) error {
	if err := p.fail[b.Domain]; err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update{Binding: b, IP: ip})
	return nil
}

func (p *fakeProvider) Updates() []update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]update(nil), p.updates...)
}
