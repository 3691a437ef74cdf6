package cfddns

import (
	"context"
	"net/netip"
)

// Resolver discovers the public IPv4 address of this host.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(context.Context) (netip.Addr, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) { return f(ctx) }

// Provider lists and updates the DNS records of a single zone.
type Provider interface {
	ListRecords(ctx context.Context) ([]Record, error)
	UpdateRecord(ctx context.Context, b Binding, addr netip.Addr) error
}

// Record is a DNS record as listed by the provider.
type Record struct {
	ID      string
	Name    string
	Type    string
	Content string
}

// Binding pairs a configured domain with the provider's record ID.
// A slice of bindings is built once at startup and shared read-only by every cycle.
type Binding struct {
	Domain   string
	RecordID string
}
