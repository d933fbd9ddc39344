package rule

import "net/netip"

// Endpoint is a reachable destination, immutable once produced. Port 0
// marks a candidate whose port is settled only when the pipeline picks
// it, so port maps merged by later rules still apply.
type Endpoint struct {
	IP   netip.Addr
	Port uint16
}

// ParseEndpoint parses a literal "ip:port" destination.
func ParseEndpoint(s string) (ep Endpoint, e error) {
	addr, e := netip.ParseAddrPort(s)
	if e != nil {
		return
	}
	ep = Endpoint{
		IP:   addr.Addr(),
		Port: addr.Port(),
	}
	return
}

func (ep Endpoint) String() string {
	return netip.AddrPortFrom(ep.IP, ep.Port).String()
}
