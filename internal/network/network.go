// Package network abstracts listen and dial over tcp, unix sockets
// and in process pipe networks.
package network

import (
	"context"
	"errors"
	"net"
	"runtime"
	"sync"

	"github.com/powerpuffpenguin/vnet"
)

var (
	ErrNetworkUnix = errors.New(`network unix only supported on linux`)
	ErrPipeUnknown = errors.New(`pipe address not listening`)
)

type Network struct {
	mu   sync.Mutex
	pipe map[string]*vnet.PipeListener
}

func New() *Network {
	return &Network{
		pipe: make(map[string]*vnet.PipeListener),
	}
}
func (n *Network) Listen(network, address string) (l net.Listener, e error) {
	switch network {
	case `tcp`:
	case `pipe`:
		return n.listenPipe(address)
	case `unix`:
		if runtime.GOOS != `linux` {
			e = ErrNetworkUnix
			return
		}
	default:
		e = errors.New(`network not supported: ` + network)
		return
	}
	l, e = net.Listen(network, address)
	return
}
func (n *Network) listenPipe(address string) (l net.Listener, e error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.pipe[address]; ok {
		e = errors.New(`listen pipe ` + address + `: bind: address already in use`)
		return
	}
	pipe := vnet.ListenPipe()
	n.pipe[address] = pipe
	l = pipe
	return
}

// DialContext reaches a pipe listener registered on this network.
// Real networks dial through the upstream dialer instead.
func (n *Network) DialContext(ctx context.Context, address string) (conn net.Conn, e error) {
	n.mu.Lock()
	pipe, ok := n.pipe[address]
	n.mu.Unlock()
	if !ok {
		e = ErrPipeUnknown
		return
	}
	conn, e = pipe.DialContext(ctx, `pipe`, address)
	return
}
