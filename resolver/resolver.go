// Package resolver answers address and srv queries against a single
// configured recursive dns server.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/miekg/dns"
)

var ErrNoRecords = errors.New(`resolver: no records`)

const DefaultTimeout = time.Second * 5

// SRV is one record of a service lookup before address resolution.
type SRV struct {
	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
}

type Resolver struct {
	log     *slog.Logger
	address string
	client  *dns.Client
	cache   *cache
}

// New creates a resolver querying the dns server at address
// ("host:port", port 53 assumed when missing) over udp.
func New(log *slog.Logger, address string, timeout time.Duration) *Resolver {
	if _, _, e := net.SplitHostPort(address); e != nil {
		address = net.JoinHostPort(address, `53`)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		log:     log.With(`resolver`, address),
		address: address,
		client: &dns.Client{
			Net:     `udp`,
			Timeout: timeout,
		},
		cache: newCache(),
	}
}

// LookupAddresses resolves name to addresses following strategy. For
// the preferred-then-other strategies both queries run in parallel and
// the other family's records are only used when the preferred family
// has none. Addresses are returned in deterministic order, callers
// that want load spreading shuffle on their own.
func (r *Resolver) LookupAddresses(ctx context.Context, name string, strategy Strategy) (addrs []netip.Addr, e error) {
	switch strategy {
	case Ipv4Only:
		return r.lookup(ctx, name, dns.TypeA)
	case Ipv6Only:
		return r.lookup(ctx, name, dns.TypeAAAA)
	case Ipv4ThenIpv6:
		return r.lookupBoth(ctx, name, dns.TypeA, dns.TypeAAAA)
	default:
		return r.lookupBoth(ctx, name, dns.TypeAAAA, dns.TypeA)
	}
}

type lookupResult struct {
	addrs []netip.Addr
	e     error
}

func (r *Resolver) lookupBoth(ctx context.Context, name string, preferred, other uint16) (addrs []netip.Addr, e error) {
	ch := make(chan lookupResult, 1)
	go func() {
		addrs, e := r.lookup(ctx, name, other)
		ch <- lookupResult{addrs, e}
	}()
	addrs, e = r.lookup(ctx, name, preferred)
	if e == nil && len(addrs) != 0 {
		// The detached query finishes on its own, its result is dropped.
		return
	}
	result := <-ch
	if result.e == nil && len(result.addrs) != 0 {
		addrs, e = result.addrs, nil
	} else if e == nil {
		e = result.e
		if e == nil {
			e = ErrNoRecords
		}
	}
	return
}

// LookupSRV resolves the srv records of name, ordered lower priority
// first and weighted random within equal priority.
func (r *Resolver) LookupSRV(ctx context.Context, name string) (records []SRV, e error) {
	if cached, ok := r.cache.srv(name); ok {
		records = orderSRV(cached)
		return
	}
	response, duration, e := r.exchange(ctx, name, dns.TypeSRV)
	if e != nil {
		r.log.Warn(`resolver query fail`,
			`name`, name,
			`qtype`, `SRV`,
			`duration`, duration,
			`error`, e,
		)
		return
	}
	found := make([]SRV, 0, len(response.Answer))
	ttl := uint32(0)
	for _, rr := range response.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		found = append(found, SRV{
			Target:   dnsNameString(srv.Target),
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
		ttl = minTTL(ttl, rr.Header().Ttl)
	}
	r.log.Debug(`resolver query`,
		`name`, name,
		`qtype`, `SRV`,
		`duration`, duration,
		`result_count`, len(found),
	)
	if len(found) == 0 {
		e = ErrNoRecords
		return
	}
	r.cache.storeSRV(name, found, ttl)
	records = orderSRV(found)
	return
}

func (r *Resolver) lookup(ctx context.Context, name string, qtype uint16) (addrs []netip.Addr, e error) {
	if cached, ok := r.cache.addresses(name, qtype); ok {
		addrs = cached
		return
	}
	response, duration, e := r.exchange(ctx, name, qtype)
	if e != nil {
		r.log.Warn(`resolver query fail`,
			`name`, name,
			`qtype`, dns.TypeToString[qtype],
			`duration`, duration,
			`error`, e,
		)
		return
	}
	ttl := uint32(0)
	for _, rr := range response.Answer {
		var ip net.IP
		switch record := rr.(type) {
		case *dns.A:
			ip = record.A
		case *dns.AAAA:
			ip = record.AAAA
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, addr.Unmap())
			ttl = minTTL(ttl, rr.Header().Ttl)
		}
	}
	slices.SortFunc(addrs, netip.Addr.Compare)
	r.log.Debug(`resolver query`,
		`name`, name,
		`qtype`, dns.TypeToString[qtype],
		`duration`, duration,
		`result_count`, len(addrs),
	)
	if len(addrs) == 0 {
		e = ErrNoRecords
		return
	}
	r.cache.storeAddresses(name, qtype, addrs, ttl)
	return
}

func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16) (response *dns.Msg, duration time.Duration, e error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	response, duration, e = r.client.ExchangeContext(ctx, msg, r.address)
	if e != nil {
		return
	}
	if response.Rcode != dns.RcodeSuccess && response.Rcode != dns.RcodeNameError {
		e = errors.New(`resolver: server returned ` + dns.RcodeToString[response.Rcode])
	}
	return
}

func dnsNameString(s string) string {
	n := len(s)
	if n > 0 && s[n-1] == '.' {
		s = s[:n-1]
	}
	return s
}

func minTTL(ttl, next uint32) uint32 {
	if ttl == 0 || next < ttl {
		return next
	}
	return ttl
}
