package listener

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/powerpuffpenguin/sniroute/pool"
)

type halfCloser interface {
	CloseWrite() error
}

// closeWrite half closes the write side so the peer sees EOF while
// its own writes keep flowing. Connections without a half close
// primitive are closed outright.
func closeWrite(c net.Conn) {
	if hc, ok := c.(halfCloser); ok {
		hc.CloseWrite()
	} else {
		c.Close()
	}
}

type splice struct {
	pool     *pool.Pool
	idle     time.Duration
	activity atomic.Int64
	up, down atomic.Int64
}

func (s *splice) touch() {
	s.activity.Store(time.Now().UnixNano())
}
func (s *splice) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.activity.Load()))
}

// bridging relays bytes both ways until each direction reaches EOF,
// either side errors, or nothing moves for the idle duration. Each
// EOF half closes the corresponding write side so the other direction
// can finish draining.
func (s *splice) bridging(client, upstream net.Conn) (e error) {
	done := make(chan error, 2)
	go s.forwarding(upstream, client, &s.up, done)
	go s.forwarding(client, upstream, &s.down, done)

	s.touch()
	timer := time.NewTimer(s.idle)
	defer timer.Stop()
	finished := 0
	for finished < 2 {
		select {
		case err := <-done:
			finished++
			if err != nil {
				if e == nil {
					e = err
				}
				client.Close()
				upstream.Close()
			}
		case <-timer.C:
			if remain := s.idle - s.idleFor(); remain > 0 {
				timer.Reset(remain)
			} else {
				client.Close()
				upstream.Close()
			}
		}
	}
	return
}
func (s *splice) forwarding(w, r net.Conn, count *atomic.Int64, done chan<- error) {
	b := s.pool.Get()
	defer s.pool.Put(b)
	for {
		n, er := r.Read(b)
		if n > 0 {
			count.Add(int64(n))
			s.touch()
			if _, ew := w.Write(b[:n]); ew != nil {
				done <- ew
				return
			}
		}
		if er != nil {
			if er == io.EOF {
				closeWrite(w)
				done <- nil
			} else {
				done <- er
			}
			return
		}
	}
}
