package ddns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"time"

	"github.com/go-logr/logr"
)

// DefaultIPServices are used by New when no resolver option is given.
var DefaultIPServices = []string{
	"https://ifconfig.me/all.json",
	"https://ifconfig.co/json",
}

// DefaultLookupTimeout bounds a single request to an IP service.
const DefaultLookupTimeout = 15 * time.Second

// maxResponseSize caps how much of an IP service response is read.
const maxResponseSize = 64 << 10

// WebResolver constructs a resolver which uses external web services to look up the public IPv4 address.
//
// Each serviceURL must speak http and answer a GET with a 2xx status and a JSON object
// carrying the caller's address under the key "ip" or "ip_addr".
// When both keys are present "ip" is used.
//
// Services are tried in the order given.
// The first one that returns a valid IPv4 address wins and no further services are contacted.
// A non-2xx status, a transport error, a malformed body or an invalid address
// all count as a failure of that service and the next one is tried.
// If every service fails the returned error wraps ErrUnavailable.
func WebResolver(serviceURL ...string) (Resolver, error) {
	if len(serviceURL) == 0 {
		return nil, errors.New("no external IP lookup services were provided")
	}
	var URLs []*url.URL
	for _, u := range serviceURL {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("error parsing URL: %w", err)
		}
		if pu.Scheme != "http" && pu.Scheme != "https" {
			return nil, fmt.Errorf("unsupported scheme in IP service URL %q", u)
		}
		URLs = append(URLs, pu)
	}
	return &webResolver{serviceURLs: URLs, logger: logr.Discard()}, nil
}

type webResolver struct {
	httpClient  *http.Client
	serviceURLs []*url.URL
	timeout     time.Duration
	logger      logr.Logger
}

func (wr *webResolver) SetLogger(logger logr.Logger) { wr.logger = logger }

func (wr *webResolver) SetHTTPClient(c *http.Client) { wr.httpClient = c }

// Resolve implements ddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var errs []error
	for _, u := range wr.serviceURLs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ip, err := wr.lookup(ctx, u)
		if err != nil {
			wr.logger.Error(err, "IP service failed", "service", u.String())
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		wr.logger.V(1).Info("IP service answered", "service", u.String(), "ip", ip)
		return ip, nil
	}
	return netip.Addr{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// ipResponse accepts the two key names used by common IP services.
// Pointers distinguish an absent key from an empty one.
type ipResponse struct {
	IP     *string `json:"ip"`
	IPAddr *string `json:"ip_addr"`
}

func (r ipResponse) address() (string, bool) {
	if r.IP != nil {
		return *r.IP, true
	}
	if r.IPAddr != nil {
		return *r.IPAddr, true
	}
	return "", false
}

func (wr *webResolver) lookup(ctx context.Context, url *url.URL) (netip.Addr, error) {
	// The timeout also applies when the caller supplied context.Background
	// together with http.DefaultClient, which has no timeout of its own.
	timeout := wr.timeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	var body ipResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return netip.Addr{}, fmt.Errorf("error decoding response body: %w", err)
	}
	s, found := body.address()
	if !found {
		return netip.Addr{}, errors.New(`response has neither "ip" nor "ip_addr"`)
	}
	ip, ok := ParseIPv4(s)
	if !ok {
		return netip.Addr{}, fmt.Errorf("%q is not a valid IPv4 address", s)
	}
	return ip, nil
}
