package cfddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first IPv4 address of the named interface.
// Loopback addresses are skipped.
// It is only useful on hosts that hold their public address directly, such as most VPSs.
func InterfaceResolver(iface string) Resolver {
	return interfaceResolver{iface: iface}
}

type interfaceResolver struct {
	iface string
}

func (r interfaceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	iface, err := net.InterfaceByName(r.iface)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error getting interface %s by name: %w", r.iface, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error looking up addresses for interface %s: %w", r.iface, err)
	}
	// addr: ip+net:192.168.86.253/24
	// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
	var parseErrors []error
	for _, addr := range addrs {
		prefix, err := netip.ParsePrefix(addr.String())
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("error parsing local ip %s for interface %s: %s", addr.String(), r.iface, err))
			continue
		}
		ip := prefix.Addr()
		if ip.IsLoopback() || !ip.Is4() {
			continue
		}
		return ip, nil
	}
	if len(parseErrors) > 0 {
		return netip.Addr{}, errors.Join(parseErrors...)
	}
	return netip.Addr{}, fmt.Errorf("interface %s has no non-loopback IPv4 address", r.iface)
}
