package rule

// Context is the per connection record threaded through the pipeline.
// It lives from the moment a handshake is parsed until the connection
// ends and is owned by exactly one connection task.
type Context struct {
	// Current service name, rewritten by rules, never empty and
	// always syntactically valid
	Name string
	// The tcp port the client landed on at the listener
	PeerPort uint16
	// Ordered candidate destinations accumulated by rules
	Candidates []Endpoint
	// Accumulated inbound to outbound port mappings
	PortOverrides map[uint16]uint16

	terminated bool
}

// Port is the effective outbound port: PeerPort, or its mapping when
// one was merged by a constant rule.
func (rc *Context) Port() uint16 {
	if mapped, ok := rc.PortOverrides[rc.PeerPort]; ok {
		return mapped
	}
	return rc.PeerPort
}

// pick settles the first candidate into a dialable endpoint.
func (rc *Context) pick() Endpoint {
	ep := rc.Candidates[0]
	if ep.Port == 0 {
		ep.Port = rc.Port()
	}
	return ep
}
