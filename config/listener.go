package config

const DefaultAddress = `127.0.0.1:8314`

// Listener to receive incoming traffic
type Listener struct {
	// Custom name recorded in logs
	Tag string `yaml:"tag"`
	// "tcp", "unix" or "pipe", default "tcp"
	Network string `yaml:"network"`
	Address string `yaml:"address"`
	// Handshake parsers tried in order: "tls", "http/1"
	Parsers []string `yaml:"parsers"`
	// Sniff timeout, default "10s"
	Timeout string `yaml:"timeout"`
	// Abort the relay when no bytes move in either direction for this
	// long, default "60s"
	Idle string `yaml:"idle"`
}

func (l *Listener) format() {
	if l.Network == `` {
		l.Network = `tcp`
	}
	if l.Address == `` {
		l.Address = DefaultAddress
	}
	if len(l.Parsers) == 0 {
		l.Parsers = []string{`http/1`, `tls`}
	}
}
