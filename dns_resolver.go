package cfddns

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

const (
	DefaultDNSTarget = "myip.opendns.com"
	DefaultDNSServer = "resolver1.opendns.com:53"
)

// DNSResolver constructs a resolver that learns the public address from a DNS server that answers
// a well-known name with the address of the client, like OpenDNS does for myip.opendns.com.
//
// Empty arguments select DefaultDNSServer and DefaultDNSTarget.
func DNSResolver(server, target string, timeout time.Duration) Resolver {
	if server == "" {
		server = DefaultDNSServer
	}
	if target == "" {
		target = DefaultDNSTarget
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &dnsResolver{server: server, target: target, timeout: timeout}
}

type dnsResolver struct {
	server  string
	target  string
	timeout time.Duration
}

func (d *dnsResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// udp4 for the same reason the trace client dials tcp4
	c := &dns.Client{Net: "udp4", Timeout: d.timeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(d.target), dns.TypeA)

	r, _, err := c.ExchangeContext(ctx, m, d.server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dns query for %s at %s failed: %w", d.target, d.server, err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("dns query for %s at %s returned %s", d.target, d.server, dns.RcodeToString[r.Rcode])
	}
	for _, ans := range r.Answer {
		a, ok := ans.(*dns.A)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(a.A.To4())
		if !ok {
			continue
		}
		return ip, nil
	}
	return netip.Addr{}, fmt.Errorf("dns query for %s at %s returned no A record", d.target, d.server)
}
