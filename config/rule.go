package config

// Rule is one step of the routing pipeline, discriminated by Type:
//
//   - {type: filter, names: [...]}
//   - {type: rewrite, matcher: regex, replacer: template}
//   - {type: constant, name: x, ips: [...], ports: ["80", "443:8443"]}
//   - {type: dns, address: "host:port", strategy: ..., srv: [...]}
//   - {type: fallback, address: "host:port"}
type Rule struct {
	Type string `yaml:"type"`

	// filter: allowed suffix names
	Names []string `yaml:"names"`

	// rewrite
	Matcher  string `yaml:"matcher"`
	Replacer string `yaml:"replacer"`

	// constant
	Name string   `yaml:"name"`
	IPs  []string `yaml:"ips"`
	// "local:remote" or "port" meaning "port:port"
	Ports []string `yaml:"ports"`

	// dns: recursive resolver address. fallback: literal endpoint.
	Address string `yaml:"address"`
	// "Ipv4Only" "Ipv6Only" "Ipv4ThenIpv6" "Ipv6ThenIpv4"
	Strategy string `yaml:"strategy"`
	// Suffixes looked up via srv records first
	SRV []string `yaml:"srv"`
	// Per query timeout, default "5s"
	Timeout string `yaml:"timeout"`
}
