package listener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/powerpuffpenguin/sniroute/config"
	"github.com/powerpuffpenguin/sniroute/dialer"
	"github.com/powerpuffpenguin/sniroute/internal/network"
	"github.com/powerpuffpenguin/sniroute/parser"
	"github.com/powerpuffpenguin/sniroute/pool"
	"github.com/powerpuffpenguin/sniroute/rule"
)

const (
	// Hard cap on peeked handshake bytes
	peekCap = 16 * 1024
	// Upstream connect timeout
	dialTimeout = time.Second * 10

	defaultSniffTimeout = time.Second * 10
	defaultIdle         = time.Minute
)

// Listener accepts connections on one address, sniffs the service
// name, drives the pipeline and splices to the chosen upstream.
type Listener struct {
	listener net.Listener
	parsers  []parser.Parser
	pipeline *rule.Pipeline
	dialer   dialer.Dialer
	pool     *pool.Pool
	log      *slog.Logger

	closed uint32
	ctx    context.Context
	cancel context.CancelFunc
	wait   sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	timeout time.Duration
	idle    time.Duration
	minimum int
	tag     string
}

func New(nk *network.Network, log *slog.Logger,
	pool *pool.Pool, dialer dialer.Dialer, pipeline *rule.Pipeline,
	opts *config.Listener) (listener *Listener, e error) {

	if len(opts.Parsers) == 0 {
		e = errors.New(`listener requires at least one parser`)
		log.Error(`listener requires at least one parser`, `address`, opts.Address)
		return
	}
	parsers := make([]parser.Parser, 0, len(opts.Parsers))
	minimum := 0
	for _, name := range opts.Parsers {
		var p parser.Parser
		p, e = parser.New(name)
		if e != nil {
			log.Error(`new listener fail`, `error`, e)
			return
		}
		parsers = append(parsers, p)
		if p.MinimumBytes() > minimum {
			minimum = p.MinimumBytes()
		}
	}

	l, e := nk.Listen(opts.Network, opts.Address)
	if e != nil {
		log.Error(`new listener fail`, `error`, e)
		return
	}
	addr := l.Addr()
	tag := opts.Tag
	if tag == `` {
		tag = addr.Network() + `://` + addr.String()
	}
	log = log.With(`listener`, tag)

	timeout := duration(log, `timeout`, opts.Timeout, defaultSniffTimeout)
	idle := duration(log, `idle`, opts.Idle, defaultIdle)

	ctx, cancel := context.WithCancel(context.Background())
	log.Info(`new listener`,
		`network`, addr.Network(),
		`addr`, addr.String(),
		`parsers`, opts.Parsers,
		`sniff timeout`, timeout,
		`idle`, idle,
	)
	listener = &Listener{
		listener: l,
		parsers:  parsers,
		pipeline: pipeline,
		dialer:   dialer,
		pool:     pool,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
		timeout:  timeout,
		idle:     idle,
		minimum:  minimum,
		tag:      tag,
	}
	return
}
func duration(log *slog.Logger, key, value string, def time.Duration) time.Duration {
	if value == `` {
		return def
	}
	d, e := time.ParseDuration(value)
	if e != nil {
		log.Warn(`parse duration fail, used default duration.`,
			`error`, e,
			key, value,
			`default`, def,
		)
		return def
	}
	return d
}

// Addr is the bound address, useful when listening on ":0".
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *Listener) Close() (e error) {
	if atomic.CompareAndSwapUint32(&l.closed, 0, 1) {
		l.cancel()
		e = l.listener.Close()
	} else {
		e = ErrClosed
	}
	return
}

// Shutdown stops accepting, lets in flight connections finish within
// the drain deadline, then force closes the stragglers.
func (l *Listener) Shutdown(ctx context.Context) {
	l.Close()
	done := make(chan struct{})
	go func() {
		l.wait.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		l.mu.Lock()
		for conn := range l.conns {
			conn.Close()
		}
		l.mu.Unlock()
		<-done
	}
}

func (l *Listener) Serve() error {
	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		rw, err := l.listener.Accept()
		if err != nil {
			if atomic.LoadUint32(&l.closed) != 0 {
				return ErrClosed
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				l.log.Warn(`accept fail`,
					`error`, err,
					`retrying`, tempDelay,
				)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0
		l.track(rw)
		l.wait.Add(1)
		go l.serve(rw)
	}
}
func (l *Listener) track(conn net.Conn) {
	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()
}
func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

func (l *Listener) serve(src net.Conn) {
	defer l.wait.Done()
	defer l.untrack(src)
	defer src.Close()

	log := l.log.With(`remote`, src.RemoteAddr().String())
	log.Debug(`accept`)

	buf := l.pool.Get()
	defer l.pool.Put(buf)

	name, proto, peeked, e := l.sniff(src, buf)
	if e != nil {
		log.Warn(`sniff fail`, `error`, e)
		return
	}
	log.Info(`sniff`, `protocol`, proto, `name`, name)

	rc := &rule.Context{
		Name:     name,
		PeerPort: localPort(src),
	}
	ep, e := l.pipeline.Route(l.ctx, rc)
	if e != nil {
		log.Warn(`route fail`, `name`, rc.Name, `error`, e)
		return
	}

	ctx, cancel := context.WithTimeout(l.ctx, dialTimeout)
	dst, e := l.dialer.DialContext(ctx, `tcp`, ep.String())
	cancel()
	if e != nil {
		log.Warn(`dial fail`, `addr`, ep.String(), `error`, e)
		return
	}
	log.Info(`dial`, `addr`, ep.String())
	l.track(dst)
	defer l.untrack(dst)
	defer dst.Close()

	// Replay the peeked handshake before any further client bytes
	if _, e = dst.Write(peeked); e != nil {
		log.Warn(`relay fail`, `addr`, ep.String(), `error`, e)
		return
	}

	at := time.Now()
	s := &splice{
		pool: l.pool,
		idle: l.idle,
	}
	s.up.Add(int64(len(peeked)))
	e = s.bridging(src, dst)
	log.Info(`splice end`,
		`addr`, ep.String(),
		`bytes_up`, s.up.Load(),
		`bytes_down`, s.down.Load(),
		`duration`, time.Since(at),
		`error`, e,
	)
}

// sniff progressively peeks bytes from src until one parser extracts
// a service name. The returned buffer must reach the upstream before
// any other client bytes.
func (l *Listener) sniff(src net.Conn, buf []byte) (name, proto string, peeked []byte, e error) {
	if l.timeout > 0 {
		src.SetReadDeadline(time.Now().Add(l.timeout))
		defer src.SetReadDeadline(time.Time{})
	}
	if len(buf) > peekCap {
		buf = buf[:peekCap]
	}
	alive := make([]parser.Parser, len(l.parsers))
	copy(alive, l.parsers)

	n := 0
	for {
		for n < l.minimum {
			var nr int
			nr, e = src.Read(buf[n:])
			if e != nil {
				peeked = buf[:n]
				if isTimeout(e) {
					e = ErrParseIncomplete
				}
				return
			}
			n += nr
		}

		keep := alive[:0]
		for _, p := range alive {
			found, _, err := p.Extract(buf[:n])
			switch err {
			case nil:
				name, proto, peeked = found, p.Protocol(), buf[:n]
				return
			case parser.ErrNeedMore:
				keep = append(keep, p)
			}
		}
		alive = keep
		if len(alive) == 0 {
			peeked = buf[:n]
			e = ErrParseMalformed
			return
		}
		if n >= len(buf) {
			peeked = buf[:n]
			e = ErrParseIncomplete
			return
		}

		var nr int
		nr, e = src.Read(buf[n:])
		if e != nil {
			peeked = buf[:n]
			if isTimeout(e) {
				e = ErrParseIncomplete
			}
			return
		}
		n += nr
	}
}

func isTimeout(e error) bool {
	ne, ok := e.(net.Error)
	return ok && ne.Timeout()
}

func localPort(conn net.Conn) uint16 {
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}
