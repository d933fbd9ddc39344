// Package dialer connects to upstream endpoints, either directly or
// through a configured socks5 proxy.
package dialer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"

	"golang.org/x/net/proxy"
)

// Dialer opens upstream connections. The caller bounds each dial with
// a context deadline.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// New returns a direct dialer, or when proxyURL is set a dialer that
// routes upstream connections through the socks5 server at
// "socks5://[user:password@]host:port".
func New(log *slog.Logger, proxyURL string) (d Dialer, e error) {
	if proxyURL == `` {
		d = new(net.Dialer)
		return
	}
	u, e := url.Parse(proxyURL)
	if e != nil {
		log.Error(`proxy url invalid`, `url`, proxyURL, `error`, e)
		return
	}
	if u.Scheme != `socks5` {
		e = errors.New(`proxy scheme not supported: ` + u.Scheme)
		log.Error(`proxy scheme not supported`, `url`, proxyURL)
		return
	}
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{
			User:     u.User.Username(),
			Password: password,
		}
	}
	raw, e := proxy.SOCKS5(`tcp`, u.Host, auth, new(net.Dialer))
	if e != nil {
		log.Error(`new socks5 dialer fail`, `url`, proxyURL, `error`, e)
		return
	}
	contextDialer, ok := raw.(proxy.ContextDialer)
	if !ok {
		e = errors.New(`socks5 dialer does not support context`)
		return
	}
	log.Info(`upstream connections through socks5`, `addr`, u.Host)
	d = contextDialer
	return
}
