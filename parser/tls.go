package parser

import (
	"encoding/binary"

	"github.com/powerpuffpenguin/sniroute/internal/dnsname"
)

const (
	recordHeaderLen  = 5
	contentHandshake = 0x16
	typeClientHello  = 0x01
	extServerName    = 0x0000
	sniHostName      = 0
)

// TLS walks a ClientHello record to the server_name extension and
// returns the first host_name entry.
type TLS struct{}

func (TLS) Protocol() string {
	return `tls`
}
func (TLS) MinimumBytes() int {
	return recordHeaderLen
}
func (TLS) Extract(b []byte) (name string, consumed int, e error) {
	if len(b) < recordHeaderLen {
		e = ErrNeedMore
		return
	}
	if b[0] != contentHandshake {
		e = ErrNotMine
		return
	}
	length := int(binary.BigEndian.Uint16(b[3:5]))
	consumed = recordHeaderLen + length
	if len(b) < consumed {
		e = ErrNeedMore
		consumed = 0
		return
	}
	record := b[recordHeaderLen:consumed]

	// Handshake header: type(1) length(3)
	if len(record) < 4 || record[0] != typeClientHello {
		e = ErrMalformed
		return
	}
	helloLen := int(record[1])<<16 | int(record[2])<<8 | int(record[3])
	hello := record[4:]
	if helloLen > len(hello) {
		// ClientHello split across records
		e = ErrMalformed
		return
	}
	hello = hello[:helloLen]

	// client_version(2) random(32)
	pos := 2 + 32
	if pos+1 > len(hello) {
		e = ErrMalformed
		return
	}
	pos += 1 + int(hello[pos]) // session_id
	if pos+2 > len(hello) {
		e = ErrMalformed
		return
	}
	pos += 2 + int(binary.BigEndian.Uint16(hello[pos:])) // cipher_suites
	if pos+1 > len(hello) {
		e = ErrMalformed
		return
	}
	pos += 1 + int(hello[pos]) // compression_methods
	if pos+2 > len(hello) {
		e = ErrMalformed
		return
	}
	extLen := int(binary.BigEndian.Uint16(hello[pos:]))
	pos += 2
	if pos+extLen > len(hello) {
		e = ErrMalformed
		return
	}
	ext := hello[pos : pos+extLen]

	for len(ext) >= 4 {
		extType := binary.BigEndian.Uint16(ext)
		size := int(binary.BigEndian.Uint16(ext[2:]))
		ext = ext[4:]
		if size > len(ext) {
			e = ErrMalformed
			return
		}
		if extType == extServerName {
			name, e = parseServerName(ext[:size])
			return
		}
		ext = ext[size:]
	}
	e = ErrMalformed
	return
}

// parseServerName reads the first host_name entry of a server_name
// extension body.
func parseServerName(b []byte) (name string, e error) {
	if len(b) < 2 {
		e = ErrMalformed
		return
	}
	listLen := int(binary.BigEndian.Uint16(b))
	b = b[2:]
	if listLen > len(b) {
		e = ErrMalformed
		return
	}
	b = b[:listLen]
	for len(b) >= 3 {
		nameType := b[0]
		size := int(binary.BigEndian.Uint16(b[1:]))
		b = b[3:]
		if size > len(b) {
			e = ErrMalformed
			return
		}
		if nameType == sniHostName {
			name, e = dnsname.Normalize(string(b[:size]))
			if e != nil {
				e = ErrMalformed
			}
			return
		}
		b = b[size:]
	}
	e = ErrMalformed
	return
}
