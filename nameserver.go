package ddns

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-logr/logr"
	"github.com/miekg/dns"
)

// nameserverCheck asks one nameserver which A records it serves for a name.
type nameserverCheck struct {
	server string // host:port
	client *dns.Client
	logger logr.Logger
}

func newNameserverCheck(addr string) (*nameserverCheck, error) {
	if addr == "" {
		return nil, fmt.Errorf("nameserver address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}
	return &nameserverCheck{
		server: addr,
		client: &dns.Client{Timeout: 5 * time.Second},
		logger: logr.Discard(),
	}, nil
}

func (n *nameserverCheck) lookupA(ctx context.Context, name string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	// authoritative servers ignore RD; recursive ones should not serve a stale cached answer for long
	m.RecursionDesired = true

	r, _, err := n.client.ExchangeContext(ctx, m, n.server)
	if err != nil {
		return nil, fmt.Errorf("querying %s for %s: %w", n.server, name, err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("querying %s for %s: %s", n.server, name, dns.RcodeToString[r.Rcode])
	}

	var out []string
	for _, a := range r.Answer {
		if rr, ok := a.(*dns.A); ok {
			out = append(out, rr.A.String())
		}
	}
	n.logger.V(1).Info("nameserver answered", "server", n.server, "name", name, "addresses", out)
	return out, nil
}
