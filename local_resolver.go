package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first global unicast IPv4 address of the given interfaces,
// checked in order.
// If no interfaces are provided then all interfaces are used.
// This is only useful on hosts whose public address is assigned directly to an interface.
func InterfaceResolver(iface ...string) Resolver {
	return interfaceResolver{ifaces: iface}
}

type interfaceResolver struct {
	ifaces []string
}

func (r interfaceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	if len(r.ifaces) == 0 {
		addrs, err := net.InterfaceAddrs()
		if err != nil {
			return netip.Addr{}, fmt.Errorf("%w: error getting addresses for interfaces: %w", ErrUnavailable, err)
		}
		if ip, ok := firstGlobalIPv4(addrs); ok {
			return ip, nil
		}
		return netip.Addr{}, fmt.Errorf("%w: no interface has a global IPv4 address", ErrUnavailable)
	}

	var errs []error
	for _, name := range r.ifaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("error getting interface %s by name: %w", name, err))
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			errs = append(errs, fmt.Errorf("error looking up addresses for interface %s: %w", name, err))
			continue
		}
		if ip, ok := firstGlobalIPv4(addrs); ok {
			return ip, nil
		}
		errs = append(errs, fmt.Errorf("interface %s has no global IPv4 address", name))
	}
	return netip.Addr{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// firstGlobalIPv4 skips loopback, link-local and private addresses.
//
//	addr: ip+net:192.168.86.253/24
//	addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
//	addr: ip+net:fe80::2cc9:801b:3551:9a43/64
func firstGlobalIPv4(addrs []net.Addr) (netip.Addr, bool) {
	for _, addr := range addrs {
		prefix, err := netip.ParsePrefix(addr.String())
		if err != nil {
			continue
		}
		ip := prefix.Addr()
		if !ip.Is4() || !ip.IsGlobalUnicast() || ip.IsPrivate() {
			continue
		}
		return ip, true
	}
	return netip.Addr{}, false
}
