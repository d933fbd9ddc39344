package listener

import "errors"

var (
	ErrClosed = errors.New(`listener already closed`)
	// ErrParseMalformed reports peeked bytes no configured parser
	// accepted
	ErrParseMalformed = errors.New(`handshake malformed`)
	// ErrParseIncomplete reports a handshake still unparsed at the
	// peek cap or sniff timeout
	ErrParseIncomplete = errors.New(`handshake incomplete`)
)
