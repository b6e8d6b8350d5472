package ddns_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Travis-Britz/dnsupdater"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustWebResolver(t *testing.T, urls ...string) ddns.Resolver {
	t.Helper()
	wr, err := ddns.WebResolver(urls...)
	if err != nil {
		t.Fatalf("WebResolver failed: %s", err)
	}
	return wr
}

func TestLookup(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"ip":"192.168.2.1"}`)
	res, err := mustWebResolver(t, srv.URL).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Request failed: %s", err)
	}

	if expected, got := netip.MustParseAddr("192.168.2.1"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestFallbackAfterServerError(t *testing.T) {
	a := serve(t, http.StatusInternalServerError, `{"ip":"10.0.0.1"}`)
	b := serve(t, http.StatusOK, `{"ip":"203.0.113.7"}`)

	res, err := mustWebResolver(t, a.URL, b.URL).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("203.0.113.7"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestIPAddrKey(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"ip_addr":"198.51.100.2","remote_host":"unavailable"}`)
	res, err := mustWebResolver(t, srv.URL).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("198.51.100.2"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestIPKeyPreferred(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"ip_addr":"198.51.100.2","ip":"198.51.100.3"}`)
	res, err := mustWebResolver(t, srv.URL).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("198.51.100.3"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestAllInvalid(t *testing.T) {
	a := serve(t, http.StatusOK, `{"ip":"256.1.1.1"}`)
	b := serve(t, http.StatusOK, `not json`)
	c := serve(t, http.StatusOK, `{"address":"192.0.2.1"}`)

	res, err := mustWebResolver(t, a.URL, b.URL, c.URL).Resolve(context.Background())
	if err == nil {
		t.Fatalf("Expected error response; got err == nil")
	}
	if !errors.Is(err, ddns.ErrUnavailable) {
		t.Fatalf("Expected error to wrap ErrUnavailable; got %q", err)
	}
	if res.IsValid() {
		t.Fatalf("Expected zero address; got %s", res)
	}
}

func TestFirstSuccessWins(t *testing.T) {
	var hits atomic.Int32
	first := serve(t, http.StatusOK, `{"ip":"192.0.2.10"}`)
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, `{"ip":"192.0.2.20"}`)
	}))
	defer second.Close()

	res, err := mustWebResolver(t, first.URL, second.URL).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("192.0.2.10"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
	if h := hits.Load(); h != 0 {
		t.Fatalf("Expected the second service not to be called; got %d hits", h)
	}
}

func TestConnectionFailure(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	live := serve(t, http.StatusOK, `{"ip":"192.0.2.30"}`)

	res, err := mustWebResolver(t, deadURL, live.URL).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("192.0.2.30"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		io.WriteString(w, `{"ip":"192.0.2.40"}`)
	}))
	defer slow.Close()
	fast := serve(t, http.StatusOK, `{"ip":"192.0.2.41"}`)

	c, err := ddns.New("example.com", "home",
		ddns.UsingProvider(newFakeProvider()),
		ddns.UsingWebResolver(slow.URL, fast.URL),
		ddns.UsingHTTPTimeout(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	start := time.Now()
	res, err := c.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("192.0.2.41"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Expected the slow service to time out quickly; took %s", elapsed)
	}
}

func TestNoServices(t *testing.T) {
	if _, err := ddns.WebResolver(); err == nil {
		t.Fatalf("Expected an error; got err == nil")
	}
	if _, err := ddns.WebResolver("ftp://example.com/ip"); err == nil {
		t.Fatalf("Expected an error for a non-http scheme; got err == nil")
	}
}

func TestValidIPv4(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"192.168.1.1", true},
		{"0.0.0.0", true},
		{"255.255.255.255", true},
		{"010.001.000.1", true},
		{"256.1.1.1", false},
		{"1.1.1.300", false},
		{"10.0.0", false},
		{"10.0.0.1.2", false},
		{"10.0.0.1extra", false},
		{" 10.0.0.1", false},
		{"10.0.0.1\n", false},
		{"a.b.c.d", false},
		{"1..1.1", false},
		{"1000.1.1.1", false},
		{"::1", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ddns.ValidIPv4(tt.in); got != tt.want {
				t.Errorf("ValidIPv4(%q) = %v; want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseIPv4LeadingZeros(t *testing.T) {
	ip, ok := ddns.ParseIPv4("010.001.000.001")
	if !ok {
		t.Fatalf("Expected address to parse")
	}
	if expected, got := netip.MustParseAddr("10.1.0.1"), ip; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}
