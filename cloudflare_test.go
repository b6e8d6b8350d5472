package ddns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloudflare/cloudflare-go"
	"github.com/google/go-cmp/cmp"
)

// fakeCloudflare answers the handful of API calls the provider makes.
type fakeCloudflare struct {
	mu      sync.Mutex
	patched map[string]any
}

func envelope(result any) map[string]any {
	return map[string]any{
		"success":     true,
		"errors":      []any{},
		"messages":    []any{},
		"result":      result,
		"result_info": map[string]int{"page": 1, "per_page": 100, "count": 1, "total_count": 1, "total_pages": 1},
	}
}

func (f *fakeCloudflare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	record := map[string]any{"id": "rec1", "type": "A", "name": "home.example.com", "content": "1.2.3.4", "ttl": 300}

	var result any
	switch r.Method + " " + r.URL.Path {
	case "GET /zones":
		zones := []any{}
		if r.URL.Query().Get("name") == "example.com" {
			zones = append(zones, map[string]any{"id": "zone1", "name": "example.com"})
		}
		result = zones
	case "GET /zones/zone1/dns_records":
		result = []any{record}
	case "GET /zones/zone1/dns_records/rec1":
		result = record
	case "PATCH /zones/zone1/dns_records/rec1", "PUT /zones/zone1/dns_records/rec1":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.patched = body
		f.mu.Unlock()
		result = record
	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"errors":  []any{map[string]any{"code": 7003, "message": "no route for " + r.URL.Path}},
		})
		return
	}
	json.NewEncoder(w).Encode(envelope(result))
}

func newTestCloudflare(t *testing.T) (*cloudflareProvider, *fakeCloudflare) {
	t.Helper()
	fake := &fakeCloudflare{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cf, err := newCloudflareProvider("test-token")
	if err != nil {
		t.Fatal(err)
	}
	if err := cloudflare.BaseURL(srv.URL)(cf.api); err != nil {
		t.Fatal(err)
	}
	return cf, fake
}

func TestCloudflareProvider(t *testing.T) {
	cf, fake := newTestCloudflare(t)
	ctx := context.Background()

	owned, err := cf.ZoneExists(ctx, "example.com")
	if err != nil || !owned {
		t.Fatalf("ZoneExists(example.com): got %v, %v", owned, err)
	}
	owned, err = cf.ZoneExists(ctx, "other.org")
	if err != nil || owned {
		t.Fatalf("ZoneExists(other.org): got %v, %v", owned, err)
	}

	ids, err := cf.ListRecordIDs(ctx, "example.com")
	if err != nil {
		t.Fatalf("ListRecordIDs failed: %s", err)
	}
	if diff := cmp.Diff([]string{"rec1"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	rec, err := cf.GetRecord(ctx, "example.com", "rec1")
	if err != nil {
		t.Fatalf("GetRecord failed: %s", err)
	}
	want := Record{ID: "rec1", SubDomain: "home", Target: "1.2.3.4", TTL: 300}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	err = cf.UpdateRecord(ctx, "example.com", Record{ID: "rec1", SubDomain: "home", Target: "5.6.7.8", TTL: 60})
	if err != nil {
		t.Fatalf("UpdateRecord failed: %s", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.patched["content"] != "5.6.7.8" || fake.patched["name"] != "home.example.com" {
		t.Fatalf("unexpected update body: %v", fake.patched)
	}
}

func TestRelativeName(t *testing.T) {
	tests := []struct {
		fqdn, zone, want string
	}{
		{"home.example.com", "example.com", "home"},
		{"home.example.com.", "example.com", "home"},
		{"a.b.example.com", "example.com", "a.b"},
		{"example.com", "example.com", ""},
		{"HOME.Example.COM", "example.com", "HOME"},
		{"home.other.org", "example.com", "home.other.org"},
		{"notexample.com", "example.com", "notexample.com"},
	}
	for _, tt := range tests {
		t.Run(tt.fqdn, func(t *testing.T) {
			if got := relativeName(tt.fqdn, tt.zone); got != tt.want {
				t.Errorf("relativeName(%q, %q) = %q; want %q", tt.fqdn, tt.zone, got, tt.want)
			}
		})
	}
	if got := absoluteName("", "example.com"); got != "example.com" {
		t.Errorf("absoluteName of the apex = %q", got)
	}
	if got := absoluteName("home", "example.com"); got != "home.example.com" {
		t.Errorf("absoluteName(home) = %q", got)
	}
}
