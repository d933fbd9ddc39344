package parser

import (
	"encoding/binary"
	"errors"
	"testing"
)

// clientHello builds a minimal ClientHello record carrying the given
// extensions.
func clientHello(exts ...[]byte) []byte {
	var body []byte
	body = append(body, 0x03, 0x03)          // client_version
	body = append(body, make([]byte, 32)...) // random
	body = append(body, 0x00)                // session_id
	body = append(body, 0x00, 0x02, 0x13, 0x01)
	body = append(body, 0x01, 0x00) // null compression

	var extData []byte
	for _, ext := range exts {
		extData = append(extData, ext...)
	}
	body = append(body, byte(len(extData)>>8), byte(len(extData)))
	body = append(body, extData...)

	hs := []byte{0x01, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	hs = append(hs, body...)

	record := []byte{0x16, 0x03, 0x01, byte(len(hs) >> 8), byte(len(hs))}
	return append(record, hs...)
}

func sniExtension(names ...string) []byte {
	var list []byte
	for _, name := range names {
		list = append(list, 0x00, byte(len(name)>>8), byte(len(name)))
		list = append(list, name...)
	}
	body := []byte{byte(len(list) >> 8), byte(len(list))}
	body = append(body, list...)

	ext := []byte{0x00, 0x00, byte(len(body) >> 8), byte(len(body))}
	return append(ext, body...)
}

func rawExtension(id uint16, body []byte) []byte {
	ext := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint16(ext, id)
	binary.BigEndian.PutUint16(ext[2:], uint16(len(body)))
	return append(ext, body...)
}

func TestTLSExtract(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
		want string
		err  error
	}{
		{
			name: `sni`,
			b:    clientHello(sniExtension(`foo.test`)),
			want: `foo.test`,
		},
		{
			name: `sni lowercased`,
			b:    clientHello(sniExtension(`Foo.Example.COM`)),
			want: `foo.example.com`,
		},
		{
			name: `sni after other extensions`,
			b:    clientHello(rawExtension(0x000a, []byte{0x00, 0x02, 0x00, 0x1d}), sniExtension(`bar.test`)),
			want: `bar.test`,
		},
		{
			name: `first name of list wins`,
			b:    clientHello(sniExtension(`first.test`, `second.test`)),
			want: `first.test`,
		},
		{
			name: `not tls`,
			b:    []byte(`GET / HTTP/1.1`),
			err:  ErrNotMine,
		},
		{
			name: `empty record header`,
			b:    []byte{0x16, 0x03},
			err:  ErrNeedMore,
		},
		{
			name: `truncated record`,
			b:    clientHello(sniExtension(`foo.test`))[:20],
			err:  ErrNeedMore,
		},
		{
			name: `no extensions`,
			b:    clientHello(),
			err:  ErrMalformed,
		},
		{
			name: `no sni extension`,
			b:    clientHello(rawExtension(0x000a, []byte{0x00, 0x02, 0x00, 0x1d})),
			err:  ErrMalformed,
		},
		{
			name: `not a client hello`,
			b:    []byte{0x16, 0x03, 0x01, 0x00, 0x04, 0x02, 0x00, 0x00, 0x00},
			err:  ErrMalformed,
		},
		{
			name: `invalid sni name`,
			b:    clientHello(sniExtension(`foo..test`)),
			err:  ErrMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, consumed, e := TLS{}.Extract(tt.b)
			if !errors.Is(e, tt.err) {
				t.Fatalf(`Extract error = %v, want %v`, e, tt.err)
			}
			if name != tt.want {
				t.Fatalf(`Extract name = %q, want %q`, name, tt.want)
			}
			if tt.err == nil && consumed != len(tt.b) {
				t.Fatalf(`Extract consumed = %d, want %d`, consumed, len(tt.b))
			}
		})
	}
}

func TestTLSExtractEveryTruncation(t *testing.T) {
	full := clientHello(sniExtension(`foo.example.com`))
	for i := 0; i < len(full); i++ {
		_, _, e := TLS{}.Extract(full[:i])
		if !errors.Is(e, ErrNeedMore) {
			t.Fatalf(`truncated at %d: error = %v, want %v`, i, e, ErrNeedMore)
		}
	}
	name, _, e := TLS{}.Extract(full)
	if e != nil || name != `foo.example.com` {
		t.Fatalf(`full hello: name = %q, error = %v`, name, e)
	}
}
