package resolver

import "errors"

// Strategy selects which address families to look up and in what
// order of preference.
type Strategy uint8

const (
	Ipv4Only Strategy = iota
	Ipv6Only
	Ipv4ThenIpv6
	Ipv6ThenIpv4
)

func ParseStrategy(s string) (strategy Strategy, e error) {
	switch s {
	case `Ipv4Only`:
		strategy = Ipv4Only
	case `Ipv6Only`, ``:
		strategy = Ipv6Only
	case `Ipv4ThenIpv6`:
		strategy = Ipv4ThenIpv6
	case `Ipv6ThenIpv4`:
		strategy = Ipv6ThenIpv4
	default:
		e = errors.New(`strategy not supported: ` + s)
	}
	return
}

func (s Strategy) String() string {
	switch s {
	case Ipv4Only:
		return `Ipv4Only`
	case Ipv6Only:
		return `Ipv6Only`
	case Ipv4ThenIpv6:
		return `Ipv4ThenIpv6`
	case Ipv6ThenIpv4:
		return `Ipv6ThenIpv4`
	}
	return `unknown`
}
