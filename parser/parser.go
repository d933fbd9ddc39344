// Package parser sniffs the application protocol from the first bytes
// of a connection and extracts the service name used for routing.
package parser

import "errors"

var (
	// ErrNeedMore reports that more bytes must be read before the
	// parser can decide
	ErrNeedMore = errors.New(`parser: need more bytes`)
	// ErrNotMine reports that the bytes do not belong to the parser's
	// protocol
	ErrNotMine = errors.New(`parser: not my protocol`)
	// ErrMalformed reports bytes of the right protocol that cannot be
	// parsed
	ErrMalformed = errors.New(`parser: malformed handshake`)
)

// Parser extracts a service name from peeked handshake bytes.
//
// Extract never consumes from the stream, the caller keeps the buffer
// and replays it to the upstream. consumed reports how many bytes the
// parser actually inspected.
type Parser interface {
	Protocol() string
	// Smallest read that can reveal whether the protocol matches
	MinimumBytes() int
	Extract(b []byte) (name string, consumed int, e error)
}

// New returns the built in parser registered under name:
// "tls" or "http/1" ("h1" is accepted as an alias).
func New(name string) (p Parser, e error) {
	switch name {
	case `tls`:
		p = TLS{}
	case `http/1`, `h1`:
		p = HTTP{}
	default:
		e = errors.New(`parser not supported: ` + name)
	}
	return
}
