// Package rule implements the routing pipeline: an ordered sequence
// of rules that turns a sniffed service name into a destination
// endpoint.
package rule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/powerpuffpenguin/sniroute/config"
	"github.com/powerpuffpenguin/sniroute/internal/dnsname"
	"github.com/powerpuffpenguin/sniroute/resolver"
)

var (
	// ErrNotAllowed reports a name denied by a filter rule
	ErrNotAllowed = errors.New(`rule: service name not allowed`)
	// ErrNoRoute reports a pipeline that ran out of rules without a
	// destination
	ErrNoRoute = errors.New(`rule: no rule produced a destination`)
	// ErrRewriteInvalid reports a rewrite whose result is not a valid
	// service name
	ErrRewriteInvalid = errors.New(`rule: rewrite produced an invalid service name`)
)

type kind uint8

const (
	kindFilter kind = iota
	kindRewrite
	kindConstant
	kindDNS
	kindFallback
)

func (k kind) String() string {
	switch k {
	case kindFilter:
		return `filter`
	case kindRewrite:
		return `rewrite`
	case kindConstant:
		return `constant`
	case kindDNS:
		return `dns`
	case kindFallback:
		return `fallback`
	}
	return `unknown`
}

// Resolver is the lookup surface the dns rule depends on.
type Resolver interface {
	LookupAddresses(ctx context.Context, name string, strategy resolver.Strategy) ([]netip.Addr, error)
	LookupSRV(ctx context.Context, name string) ([]resolver.SRV, error)
}

// Rule is one step of the pipeline. The variant set is closed, so it
// is a tagged value dispatched by case analysis, not an interface.
// Rules are built once at startup and shared read only across all
// connections.
type Rule struct {
	log  *slog.Logger
	kind kind

	// filter
	names []string

	// rewrite
	matcher  *regexp.Regexp
	replacer string

	// constant
	name  string
	ips   []netip.Addr
	ports map[uint16]uint16

	// dns
	resolver Resolver
	strategy resolver.Strategy
	srv      []string

	// fallback
	address Endpoint
}

func New(log *slog.Logger, opts *config.Rule) (r *Rule, e error) {
	switch opts.Type {
	case `filter`:
		r, e = newFilter(opts)
	case `rewrite`:
		r, e = newRewrite(opts)
	case `constant`:
		r, e = newConstant(opts)
	case `dns`:
		r, e = newDNS(log, opts)
	case `fallback`:
		r, e = newFallback(opts)
	default:
		e = errors.New(`rule type not supported: ` + opts.Type)
	}
	if e != nil {
		log.Error(`new rule fail`, `type`, opts.Type, `error`, e)
		return
	}
	r.log = log.With(`rule`, r.kind.String())
	return
}

func newFilter(opts *config.Rule) (r *Rule, e error) {
	if len(opts.Names) == 0 {
		e = errors.New(`filter requires at least one name`)
		return
	}
	names := make([]string, 0, len(opts.Names))
	for _, name := range opts.Names {
		var s string
		s, e = dnsname.Normalize(name)
		if e != nil {
			e = fmt.Errorf(`filter name %q: %w`, name, e)
			return
		}
		names = append(names, s)
	}
	r = &Rule{
		kind:  kindFilter,
		names: names,
	}
	return
}
func newRewrite(opts *config.Rule) (r *Rule, e error) {
	matcher, e := regexp.Compile(opts.Matcher)
	if e != nil {
		e = fmt.Errorf(`rewrite matcher %q: %w`, opts.Matcher, e)
		return
	}
	r = &Rule{
		kind:     kindRewrite,
		matcher:  matcher,
		replacer: opts.Replacer,
	}
	return
}
func newConstant(opts *config.Rule) (r *Rule, e error) {
	name, e := dnsname.Normalize(opts.Name)
	if e != nil {
		e = fmt.Errorf(`constant name %q: %w`, opts.Name, e)
		return
	}
	ips := make([]netip.Addr, 0, len(opts.IPs))
	for _, s := range opts.IPs {
		var ip netip.Addr
		ip, e = netip.ParseAddr(s)
		if e != nil {
			e = fmt.Errorf(`constant ip %q: %w`, s, e)
			return
		}
		ips = append(ips, ip)
	}
	var ports map[uint16]uint16
	if len(opts.Ports) != 0 {
		ports = make(map[uint16]uint16, len(opts.Ports))
		for _, s := range opts.Ports {
			var from, to uint16
			from, to, e = parsePortMap(s)
			if e != nil {
				return
			}
			if _, exists := ports[from]; exists {
				e = fmt.Errorf(`constant ports %q: duplicate key %d`, s, from)
				return
			}
			ports[from] = to
		}
	}
	r = &Rule{
		kind:  kindConstant,
		name:  name,
		ips:   ips,
		ports: ports,
	}
	return
}
func newDNS(log *slog.Logger, opts *config.Rule) (r *Rule, e error) {
	if opts.Address == `` {
		e = errors.New(`dns requires a resolver address`)
		return
	}
	strategy, e := resolver.ParseStrategy(opts.Strategy)
	if e != nil {
		return
	}
	var timeout time.Duration
	if opts.Timeout != `` {
		timeout, e = time.ParseDuration(opts.Timeout)
		if e != nil {
			e = fmt.Errorf(`dns timeout %q: %w`, opts.Timeout, e)
			return
		}
	}
	srv := make([]string, 0, len(opts.SRV))
	for _, name := range opts.SRV {
		var s string
		s, e = dnsname.Normalize(name)
		if e != nil {
			e = fmt.Errorf(`dns srv %q: %w`, name, e)
			return
		}
		srv = append(srv, s)
	}
	r = &Rule{
		kind:     kindDNS,
		resolver: resolver.New(log, opts.Address, timeout),
		strategy: strategy,
		srv:      srv,
	}
	return
}
func newFallback(opts *config.Rule) (r *Rule, e error) {
	address, e := ParseEndpoint(opts.Address)
	if e != nil {
		e = fmt.Errorf(`fallback address %q: %w`, opts.Address, e)
		return
	}
	r = &Rule{
		kind:    kindFallback,
		address: address,
	}
	return
}

// parsePortMap accepts "from:to" and the shorthand "port" meaning
// "port:port".
func parsePortMap(s string) (from, to uint16, e error) {
	left, right, ok := strings.Cut(s, `:`)
	if !ok {
		right = left
	}
	f, e := strconv.ParseUint(left, 10, 16)
	if e != nil {
		e = fmt.Errorf(`port map %q: %w`, s, e)
		return
	}
	t, e := strconv.ParseUint(right, 10, 16)
	if e != nil {
		e = fmt.Errorf(`port map %q: %w`, s, e)
		return
	}
	from, to = uint16(f), uint16(t)
	return
}

type action uint8

const (
	actionContinue action = iota
	actionTerminate
)

func (a action) String() string {
	switch a {
	case actionContinue:
		return `continue`
	case actionTerminate:
		return `terminate`
	}
	return `fail`
}

func (r *Rule) apply(ctx context.Context, rc *Context) (a action, ep Endpoint, e error) {
	switch r.kind {
	case kindFilter:
		for _, allowed := range r.names {
			if dnsname.HasSuffix(rc.Name, allowed) {
				return
			}
		}
		e = ErrNotAllowed
	case kindRewrite:
		if !r.matcher.MatchString(rc.Name) {
			return
		}
		rewritten, err := dnsname.Normalize(r.matcher.ReplaceAllString(rc.Name, r.replacer))
		if err != nil {
			e = ErrRewriteInvalid
			return
		}
		rc.Name = rewritten
	case kindConstant:
		if rc.Name != r.name {
			return
		}
		for _, ip := range r.ips {
			rc.Candidates = append(rc.Candidates, Endpoint{IP: ip})
		}
		if len(r.ports) != 0 {
			if rc.PortOverrides == nil {
				rc.PortOverrides = make(map[uint16]uint16, len(r.ports))
			}
			for from, to := range r.ports {
				rc.PortOverrides[from] = to
			}
		}
	case kindDNS:
		r.resolve(ctx, rc)
		if len(rc.Candidates) != 0 {
			a, ep = actionTerminate, rc.pick()
		}
	case kindFallback:
		// Candidates accumulated by earlier rules win over the
		// configured last resort address.
		if len(rc.Candidates) != 0 {
			a, ep = actionTerminate, rc.pick()
		} else {
			a, ep = actionTerminate, r.address
		}
	}
	return
}

// resolve appends resolved endpoints to the candidate list. Failures
// are logged and swallowed so a later rule may still terminate the
// pipeline.
func (r *Rule) resolve(ctx context.Context, rc *Context) {
	for _, suffix := range r.srv {
		if dnsname.HasSuffix(rc.Name, suffix) {
			r.resolveSRV(ctx, rc)
			return
		}
	}
	addrs, e := r.resolver.LookupAddresses(ctx, rc.Name, r.strategy)
	if e != nil {
		r.log.Warn(`resolve fail`, `name`, rc.Name, `error`, e)
		return
	}
	for _, addr := range addrs {
		rc.Candidates = append(rc.Candidates, Endpoint{IP: addr})
	}
}

// resolveSRV walks srv records in priority order and keeps the
// addresses of the first target that resolves.
func (r *Rule) resolveSRV(ctx context.Context, rc *Context) {
	records, e := r.resolver.LookupSRV(ctx, rc.Name)
	if e != nil {
		r.log.Warn(`resolve srv fail`, `name`, rc.Name, `error`, e)
		return
	}
	for _, record := range records {
		addrs, e := r.resolver.LookupAddresses(ctx, record.Target, r.strategy)
		if e != nil {
			r.log.Warn(`resolve srv target fail`,
				`name`, rc.Name,
				`target`, record.Target,
				`error`, e,
			)
			continue
		}
		for _, addr := range addrs {
			rc.Candidates = append(rc.Candidates, Endpoint{IP: addr, Port: record.Port})
		}
		return
	}
}
