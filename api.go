package ddns

import (
	"context"
	"net/netip"
)

// Resolver looks up the host's current public IPv4 address.
//
// A lookup that produced no usable address returns an error wrapping ErrUnavailable.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// Provider is the DNS provider API for a single zone.
type Provider interface {
	// ZoneExists reports whether the account owns domain.
	ZoneExists(ctx context.Context, domain string) (bool, error)
	// ListRecordIDs returns the ids of the A records in the domain's zone.
	// The order is not guaranteed to be stable between calls.
	ListRecordIDs(ctx context.Context, domain string) ([]string, error)
	// GetRecord fails if id does not exist.
	GetRecord(ctx context.Context, domain, id string) (Record, error)
	// UpdateRecord is idempotent.
	UpdateRecord(ctx context.Context, domain string, record Record) error
}

// Record is one DNS record in a zone.
type Record struct {
	ID        string
	SubDomain string // relative to the zone; empty for the apex
	Target    string
	TTL       int
}
