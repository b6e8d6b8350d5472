package ddns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
)

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(context.Context) (netip.Addr, error)

func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) { return f(ctx) }

// FirstOf constructs a resolver that tries each resolver in order and returns the first address found.
func FirstOf(resolvers ...Resolver) Resolver {
	return firstOf(resolvers)
}

type firstOf []Resolver

func (rs firstOf) Resolve(ctx context.Context) (netip.Addr, error) {
	var errs []error
	for _, r := range rs {
		ip, err := r.Resolve(ctx)
		if err == nil {
			return ip, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: no resolvers configured", ErrUnavailable)
	}
	return netip.Addr{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}
