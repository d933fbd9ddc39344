package parser

import (
	"bytes"
	"strings"

	"github.com/powerpuffpenguin/sniroute/internal/dnsname"
)

// Request head larger than this is rejected instead of buffered
const httpMaxHead = 8 * 1024

var httpMethods = [][]byte{
	[]byte(`GET `),
	[]byte(`HEAD `),
	[]byte(`OPTIONS `),
	[]byte(`CONNECT `),
	[]byte(`POST `),
	[]byte(`PUT `),
	[]byte(`PATCH `),
	[]byte(`TRACE `),
	[]byte(`DELETE `),
}

// Longest method token including the following space
const httpMinimum = len(`OPTIONS `)

// HTTP reads an http/1 request head and returns the Host header value.
type HTTP struct{}

func (HTTP) Protocol() string {
	return `http/1`
}
func (HTTP) MinimumBytes() int {
	return httpMinimum
}
func (HTTP) Extract(b []byte) (name string, consumed int, e error) {
	matched := false
	for _, method := range httpMethods {
		if bytes.HasPrefix(b, method) {
			matched = true
			break
		} else if len(b) < len(method) && bytes.HasPrefix(method, b) {
			e = ErrNeedMore
			return
		}
	}
	if !matched {
		if e == nil {
			e = ErrNotMine
		}
		return
	}

	head := b
	if len(head) > httpMaxHead {
		head = head[:httpMaxHead]
	}
	end := bytes.Index(head, []byte("\r\n\r\n"))
	if end == -1 {
		if len(b) >= httpMaxHead {
			e = ErrMalformed
		} else {
			e = ErrNeedMore
		}
		return
	}
	consumed = end + 4

	for _, line := range strings.Split(string(head[:end]), "\r\n")[1:] {
		k, v, ok := strings.Cut(line, `:`)
		if !ok || !strings.EqualFold(strings.TrimSpace(k), `Host`) {
			continue
		}
		name, e = dnsname.Normalize(trimHostPort(strings.TrimSpace(v)))
		if e != nil {
			name = ``
			e = ErrMalformed
		}
		return
	}
	e = ErrMalformed
	return
}

// trimHostPort strips an optional :port, keeping ipv6 literals intact.
func trimHostPort(host string) string {
	if strings.HasPrefix(host, `[`) {
		if i := strings.Index(host, `]`); i != -1 {
			return host[1:i]
		}
		return host
	}
	if i := strings.LastIndexByte(host, ':'); i != -1 {
		return host[:i]
	}
	return host
}
