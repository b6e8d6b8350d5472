package ddns

import (
	"context"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/miekg/dns"
)

// startNameserver serves home.example.com A 192.0.2.7 and NXDOMAIN for everything else.
func startNameserver(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			if len(r.Question) == 1 && r.Question[0].Name == "home.example.com." {
				m.SetReply(r)
				rr, _ := dns.NewRR("home.example.com. 60 IN A 192.0.2.7")
				m.Answer = append(m.Answer, rr)
			} else {
				m.SetRcode(r, dns.RcodeNameError)
			}
			w.WriteMsg(m)
		}),
	}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestNameserverLookup(t *testing.T) {
	ns, err := newNameserverCheck(startNameserver(t))
	if err != nil {
		t.Fatal(err)
	}

	got, err := ns.lookupA(context.Background(), "home.example.com")
	if err != nil {
		t.Fatalf("lookupA failed: %s", err)
	}
	if diff := cmp.Diff([]string{"192.0.2.7"}, got); diff != "" {
		t.Fatalf("answer mismatch (-want +got):\n%s", diff)
	}

	if _, err := ns.lookupA(context.Background(), "missing.example.com"); err == nil {
		t.Fatalf("Expected an error for NXDOMAIN")
	}
}

func TestNewNameserverCheck(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"192.0.2.53", "192.0.2.53:53"},
		{"192.0.2.53:5353", "192.0.2.53:5353"},
		{"ns1.example.com", "ns1.example.com:53"},
		{"2001:db8::53", "[2001:db8::53]:53"},
	}
	for _, tt := range tests {
		ns, err := newNameserverCheck(tt.in)
		if err != nil {
			t.Fatalf("newNameserverCheck(%q): %s", tt.in, err)
		}
		if ns.server != tt.want {
			t.Errorf("newNameserverCheck(%q): got %q, want %q", tt.in, ns.server, tt.want)
		}
	}
	if _, err := newNameserverCheck(""); err == nil {
		t.Fatalf("Expected an error for an empty address")
	}
}
