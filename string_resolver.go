package ddns

import (
	"context"
	"fmt"
	"net/netip"
)

// FromString constructs a resolver that always returns the IPv4 address in addr.
func FromString(addr string) (Resolver, error) {
	if !ValidIPv4(addr) {
		return nil, fmt.Errorf("unable to parse IP: %q is not a valid IPv4 address", addr)
	}
	return stringResolver(addr), nil
}

type stringResolver string

func (s stringResolver) Resolve(context.Context) (netip.Addr, error) {
	addr, ok := ParseIPv4(string(s))
	if !ok {
		return netip.Addr{}, fmt.Errorf("%w: unable to parse IP %q", ErrUnavailable, string(s))
	}
	return addr, nil
}
