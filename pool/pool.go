// Package pool recycles the byte buffers borrowed by connection
// tasks: one while sniffing the handshake, one per relay direction.
package pool

import (
	"sync"

	"github.com/powerpuffpenguin/sniroute/config"
)

// Buffers never shrink below the handshake peek cap so the sniffer
// can always accumulate a full handshake in a single buffer.
const minSize = 16 * 1024

type Pool struct {
	size int
	// Bounded free list checked before the runtime pool
	free chan []byte
	pool sync.Pool
}

func New(conf *config.Pool) *Pool {
	p := &Pool{
		size: conf.Size,
	}
	if p.size < minSize {
		p.size = minSize * 2
	}
	if conf.Cache > 0 {
		p.free = make(chan []byte, conf.Cache)
	}
	p.pool.New = func() any {
		b := make([]byte, p.size)
		return &b
	}
	return p
}
func (p *Pool) Size() int {
	return p.size
}

// Get returns a buffer of exactly Size bytes.
func (p *Pool) Get() (b []byte) {
	select {
	case b = <-p.free:
	default:
		b = (*p.pool.Get().(*[]byte))[:p.size]
	}
	return
}

// Put recycles a buffer handed out by Get. Undersized foreign slices
// are dropped.
func (p *Pool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	select {
	case p.free <- b:
	default:
		p.pool.Put(&b)
	}
}
