package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(b []byte) (int, error) { return len(b), nil }

// testServer runs an in process dns server answering from the given
// zone records and counting queries.
func testServer(t *testing.T, records map[uint16][]string) (address string, queries *atomic.Int64) {
	t.Helper()
	pc, e := net.ListenPacket(`udp`, `127.0.0.1:0`)
	if e != nil {
		t.Fatalf(`listen udp: %v`, e)
	}
	queries = new(atomic.Int64)
	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			queries.Add(1)
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			for _, text := range records[q.Qtype] {
				rr, e := dns.NewRR(text)
				if e != nil {
					t.Errorf(`bad test record %q: %v`, text, e)
					continue
				}
				if rr.Header().Name == q.Name {
					m.Answer = append(m.Answer, rr)
				}
			}
			if len(m.Answer) == 0 {
				m.Rcode = dns.RcodeNameError
			}
			w.WriteMsg(m)
		}),
	}
	go server.ActivateAndServe()
	<-started
	t.Cleanup(func() { server.Shutdown() })
	return pc.LocalAddr().String(), queries
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	addr, e := netip.ParseAddr(s)
	if e != nil {
		t.Fatalf(`parse addr %q: %v`, s, e)
	}
	return addr
}

func TestLookupAddresses(t *testing.T) {
	address, _ := testServer(t, map[uint16][]string{
		dns.TypeA: {
			`foo.test. 60 IN A 10.0.0.2`,
			`foo.test. 60 IN A 10.0.0.1`,
			`both.test. 60 IN A 10.0.0.9`,
		},
		dns.TypeAAAA: {
			`six.test. 60 IN AAAA fd00::1`,
			`both.test. 60 IN AAAA fd00::9`,
		},
	})
	r := New(testLogger(), address, time.Second)
	ctx := context.Background()

	t.Run(`ipv4 only sorted`, func(t *testing.T) {
		addrs, e := r.LookupAddresses(ctx, `foo.test`, Ipv4Only)
		if e != nil {
			t.Fatalf(`lookup: %v`, e)
		}
		want := []netip.Addr{mustAddr(t, `10.0.0.1`), mustAddr(t, `10.0.0.2`)}
		if len(addrs) != 2 || addrs[0] != want[0] || addrs[1] != want[1] {
			t.Fatalf(`addrs = %v, want %v`, addrs, want)
		}
	})
	t.Run(`ipv6 only`, func(t *testing.T) {
		addrs, e := r.LookupAddresses(ctx, `six.test`, Ipv6Only)
		if e != nil {
			t.Fatalf(`lookup: %v`, e)
		}
		if len(addrs) != 1 || addrs[0] != mustAddr(t, `fd00::1`) {
			t.Fatalf(`addrs = %v`, addrs)
		}
	})
	t.Run(`preferred family wins`, func(t *testing.T) {
		addrs, e := r.LookupAddresses(ctx, `both.test`, Ipv4ThenIpv6)
		if e != nil {
			t.Fatalf(`lookup: %v`, e)
		}
		if len(addrs) != 1 || addrs[0] != mustAddr(t, `10.0.0.9`) {
			t.Fatalf(`addrs = %v`, addrs)
		}
		addrs, e = r.LookupAddresses(ctx, `both.test`, Ipv6ThenIpv4)
		if e != nil {
			t.Fatalf(`lookup: %v`, e)
		}
		if len(addrs) != 1 || addrs[0] != mustAddr(t, `fd00::9`) {
			t.Fatalf(`addrs = %v`, addrs)
		}
	})
	t.Run(`falls back to other family`, func(t *testing.T) {
		addrs, e := r.LookupAddresses(ctx, `six.test`, Ipv4ThenIpv6)
		if e != nil {
			t.Fatalf(`lookup: %v`, e)
		}
		if len(addrs) != 1 || addrs[0] != mustAddr(t, `fd00::1`) {
			t.Fatalf(`addrs = %v`, addrs)
		}
	})
	t.Run(`no records`, func(t *testing.T) {
		_, e := r.LookupAddresses(ctx, `missing.test`, Ipv4ThenIpv6)
		if !errors.Is(e, ErrNoRecords) {
			t.Fatalf(`error = %v, want %v`, e, ErrNoRecords)
		}
	})
}

func TestLookupAddressesCache(t *testing.T) {
	address, queries := testServer(t, map[uint16][]string{
		dns.TypeA: {`foo.test. 60 IN A 10.0.0.1`},
	})
	r := New(testLogger(), address, time.Second)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, e := r.LookupAddresses(ctx, `foo.test`, Ipv4Only); e != nil {
			t.Fatalf(`lookup %d: %v`, i, e)
		}
	}
	if n := queries.Load(); n != 1 {
		t.Fatalf(`queries = %d, want 1`, n)
	}
}

func TestLookupSRV(t *testing.T) {
	address, _ := testServer(t, map[uint16][]string{
		dns.TypeSRV: {
			`svc.my.domain. 60 IN SRV 10 5 7001 spare.my.domain.`,
			`svc.my.domain. 60 IN SRV 0 5 7000 box.my.domain.`,
		},
	})
	r := New(testLogger(), address, time.Second)
	records, e := r.LookupSRV(context.Background(), `svc.my.domain`)
	if e != nil {
		t.Fatalf(`lookup srv: %v`, e)
	}
	if len(records) != 2 {
		t.Fatalf(`records = %v`, records)
	}
	if records[0].Target != `box.my.domain` || records[0].Port != 7000 {
		t.Fatalf(`lowest priority first, got %v`, records[0])
	}
}

func TestLookupUnreachableServer(t *testing.T) {
	r := New(testLogger(), `127.0.0.1:1`, time.Millisecond*100)
	_, e := r.LookupAddresses(context.Background(), `x.example`, Ipv4Only)
	if e == nil {
		t.Fatal(`expected error from unreachable server`)
	}
}

func TestOrderSRV(t *testing.T) {
	records := []SRV{
		{Target: `c`, Priority: 20, Weight: 1},
		{Target: `a`, Priority: 0, Weight: 1},
		{Target: `b`, Priority: 10, Weight: 1},
	}
	for i := 0; i < 16; i++ {
		ordered := orderSRV(records)
		if ordered[0].Target != `a` || ordered[1].Target != `b` || ordered[2].Target != `c` {
			t.Fatalf(`ordered = %v`, ordered)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{`Ipv4Only`, `Ipv6Only`, `Ipv4ThenIpv6`, `Ipv6ThenIpv4`} {
		strategy, e := ParseStrategy(s)
		if e != nil {
			t.Fatalf(`ParseStrategy(%q): %v`, s, e)
		}
		if strategy.String() != s {
			t.Fatalf(`round trip %q = %q`, s, strategy.String())
		}
	}
	if _, e := ParseStrategy(`Both`); e == nil {
		t.Fatal(`expected error`)
	}
}
