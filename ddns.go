package ddns

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"
)

var (
	// ErrUnavailable means no resolver produced a valid address. It is transient.
	ErrUnavailable = errors.New("public IPv4 address unavailable")
	// ErrZoneNotOwned means the provider account does not own the configured domain.
	ErrZoneNotOwned = errors.New("domain is not owned by this account")
	// ErrRecordNotFound means no record in the zone matches the configured subdomain.
	ErrRecordNotFound = errors.New("no DNS record matches the subdomain")
	// ErrNoProvider is returned by New when no provider option was given.
	ErrNoProvider = errors.New("no DNS provider was registered")
)

const (
	// DefaultStartupTTL is used when correcting drift at startup unless WithStartupTTL is given.
	DefaultStartupTTL = 3600
	// DefaultLoopTTL is used for updates issued by the polling loop unless WithLoopTTL is given.
	DefaultLoopTTL = 300
	// DefaultInterval is the delay between polling cycles.
	DefaultInterval = 1 * time.Minute
	// DefaultVerifyDelay is how long startup waits before re-reading an updated record.
	DefaultVerifyDelay = 3 * time.Second
)

// New creates a client that keeps the A record for subDomain under domain pointed at the host's public IPv4 address.
// An empty subDomain manages the zone apex.
//
// A provider option such as UsingOVH or UsingCloudflare is required.
// Without a resolver option the client queries DefaultIPServices.
func New(domain, subDomain string, options ...Option) (*Client, error) {
	if domain == "" {
		return nil, fmt.Errorf("ddns.New: domain cannot be empty")
	}
	c := &Client{
		domain:      domain,
		subDomain:   subDomain,
		startupTTL:  DefaultStartupTTL,
		loopTTL:     DefaultLoopTTL,
		interval:    DefaultInterval,
		verifyDelay: DefaultVerifyDelay,
		retryFailed: true,
		logger:      logr.Discard(),
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ddns.New: option %d returned an error: %s", i, err)
		}
	}

	if c.Provider == nil {
		return nil, fmt.Errorf("ddns.New: %w - use ddns.UsingOVH or similar", ErrNoProvider)
	}
	if c.Resolver == nil {
		r, err := WebResolver(DefaultIPServices...)
		if err != nil {
			return nil, fmt.Errorf("ddns.New: default resolver: %w", err)
		}
		c.Resolver = r
	}

	// options may run in any order, so dependencies registered after WithLogger or UsingHTTPClient
	// only receive them here
	c.propagate()
	return c, nil
}

// Option configures a Client.
type Option func(*Client) error

// UsingOVH registers the OVH API as the DNS provider.
// endpoint is either an OVH endpoint name such as "ovh-eu" or a full API URL.
func UsingOVH(endpoint, appKey, appSecret, consumerKey string) Option {
	return func(c *Client) (err error) {
		if c.Provider, err = newOVHProvider(endpoint, appKey, appSecret, consumerKey); err != nil {
			return fmt.Errorf("ddns.UsingOVH: error creating OVH DNS provider: %w", err)
		}
		return nil
	}
}

// UsingCloudflare registers the Cloudflare API as the DNS provider.
func UsingCloudflare(token string) Option {
	return func(c *Client) (err error) {
		if c.Provider, err = newCloudflareProvider(token); err != nil {
			return fmt.Errorf("ddns.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

// UsingProvider registers any Provider implementation.
func UsingProvider(p Provider) Option {
	return func(c *Client) error {
		if p == nil {
			return errors.New("provider cannot be nil")
		}
		c.Provider = p
		return nil
	}
}

func UsingResolver(resolver Resolver) Option {
	return func(c *Client) error {
		c.Resolver = resolver
		return nil
	}
}

func UsingWebResolver(serviceURL ...string) Option {
	return func(c *Client) (err error) {
		c.Resolver, err = WebResolver(serviceURL...)
		return err
	}
}

// UsingHTTPClient sets the http.Client used by the web resolver and the provider.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *Client) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		c.httpClient = httpclient
		return nil
	}
}

// UsingHTTPTimeout bounds each request made by the web resolver and the provider.
func UsingHTTPTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive; got %s", d)
		}
		c.httpTimeout = d
		return nil
	}
}

func WithLogger(logger logr.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithStartupTTL sets the TTL used when correcting drift found at startup.
func WithStartupTTL(ttl int) Option {
	return func(c *Client) error {
		if ttl < 0 {
			return fmt.Errorf("startup TTL cannot be negative; got %d", ttl)
		}
		c.startupTTL = ttl
		return nil
	}
}

// WithLoopTTL sets the TTL used by updates issued from the polling loop.
func WithLoopTTL(ttl int) Option {
	return func(c *Client) error {
		if ttl < 0 {
			return fmt.Errorf("loop TTL cannot be negative; got %d", ttl)
		}
		c.loopTTL = ttl
		return nil
	}
}

// WithInterval sets the delay between the end of one polling cycle and the start of the next.
func WithInterval(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive; got %s", d)
		}
		c.interval = d
		return nil
	}
}

// WithVerifyDelay sets how long to wait before re-reading a record updated at startup.
func WithVerifyDelay(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("verify delay cannot be negative; got %s", d)
		}
		c.verifyDelay = d
		return nil
	}
}

// WithNameserverCheck makes the delayed verification also ask the nameserver at addr (host or host:port)
// which addresses it serves for the record.
func WithNameserverCheck(addr string) Option {
	return func(c *Client) (err error) {
		c.nameserver, err = newNameserverCheck(addr)
		return err
	}
}

// WithRetryFailedUpdates controls whether a polling cycle re-issues an update that failed in an earlier cycle
// even though the address has not changed since. It is enabled by default.
func WithRetryFailedUpdates(retry bool) Option {
	return func(c *Client) error {
		c.retryFailed = retry
		return nil
	}
}

func (c *Client) propagate() {
	type setLogger interface {
		SetLogger(logr.Logger)
	}
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}
	type setTimeout interface {
		SetTimeout(time.Duration)
	}

	if p, ok := c.Provider.(setLogger); ok {
		p.SetLogger(c.logger.WithName("provider"))
	}
	if c.nameserver != nil {
		c.nameserver.logger = c.logger.WithName("nameserver")
	}
	if c.httpClient != nil {
		if p, ok := c.Provider.(setHTTPClient); ok {
			p.SetHTTPClient(c.httpClient)
		}
	}
	if p, ok := c.Provider.(setTimeout); ok && c.httpTimeout > 0 {
		p.SetTimeout(c.httpTimeout)
	}
	if cf, ok := c.Provider.(*cloudflareProvider); ok && (c.httpClient != nil || c.httpTimeout > 0) {
		// a copy, so the timeout does not leak into the caller's client
		var hc http.Client
		if c.httpClient != nil {
			hc = *c.httpClient
		}
		if c.httpTimeout > 0 {
			hc.Timeout = c.httpTimeout
		}
		cloudflare.HTTPClient(&hc)(cf.api)
	}

	// resolvers combined with FirstOf get the same treatment as a single one
	resolvers := []Resolver{c.Resolver}
	if fo, ok := c.Resolver.(firstOf); ok {
		resolvers = fo
	}
	for _, r := range resolvers {
		if r, ok := r.(setLogger); ok {
			r.SetLogger(c.logger.WithName("resolver"))
		}
		if r, ok := r.(setHTTPClient); ok && c.httpClient != nil {
			r.SetHTTPClient(c.httpClient)
		}
		if wr, ok := r.(*webResolver); ok && c.httpTimeout > 0 {
			wr.timeout = c.httpTimeout
		}
	}
}

// Client reconciles one DNS record with the host's public address.
//
// Startup, Poll and Run must not be called concurrently.
type Client struct {
	Resolver
	Provider

	logger      logr.Logger
	httpClient  *http.Client
	httpTimeout time.Duration
	nameserver  *nameserverCheck

	domain      string
	subDomain   string
	startupTTL  int
	loopTTL     int
	interval    time.Duration
	verifyDelay time.Duration
	retryFailed bool

	state State

	// verifications tracks the delayed startup check so Run can wait for it.
	verifications sync.WaitGroup
}

// State is what the client currently believes about the managed record.
type State struct {
	// RecordID is empty until startup locates the record.
	RecordID string
	// LastKnownTarget is the address this process believes the record points at.
	LastKnownTarget string
	// PendingUpdate is set when the last update issued by the loop failed and will be retried.
	PendingUpdate bool
}

// State returns a copy of the client's state.
func (c *Client) State() State { return c.state }

// FQDN returns the managed record's fully qualified name without the trailing dot.
func (c *Client) FQDN() string { return absoluteName(c.subDomain, c.domain) }
