package cfddns_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/Travis-Britz/cfddns"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNS serves handler on a local UDP port and returns its address.
func startDNS(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSResolver(t *testing.T) {
	addr := startDNS(t, func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		if q := req.Question[0]; q.Name == "myip.opendns.com." && q.Qtype == dns.TypeA {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET},
				A:   net.ParseIP("203.0.113.9"),
			})
		}
		w.WriteMsg(m)
	})

	r := cfddns.DNSResolver(addr, "", time.Second)
	ip, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("203.0.113.9"), ip)
}

func TestDNSResolverNoAnswer(t *testing.T) {
	addr := startDNS(t, func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeNameError)
		w.WriteMsg(m)
	})

	r := cfddns.DNSResolver(addr, "nothing.example.", time.Second)
	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NXDOMAIN")
}

func TestDNSResolverEmptyAnswer(t *testing.T) {
	addr := startDNS(t, func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		w.WriteMsg(m)
	})

	r := cfddns.DNSResolver(addr, "", time.Second)
	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no A record")
}

func TestInterfaceResolver(t *testing.T) {
	_, err := cfddns.InterfaceResolver("does-not-exist0").Resolve(context.Background())
	require.Error(t, err)

	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback == 0 {
			continue
		}
		// loopback interfaces have nothing publishable
		_, err := cfddns.InterfaceResolver(iface.Name).Resolve(context.Background())
		assert.Error(t, err, iface.Name)
	}
}

func TestFromString(t *testing.T) {
	r, err := cfddns.FromString("192.0.2.44")
	require.NoError(t, err)
	ip, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.44", ip.String())

	_, err = cfddns.FromString("2001:db8::1")
	assert.Error(t, err)
	_, err = cfddns.FromString("nope")
	assert.Error(t, err)
}
