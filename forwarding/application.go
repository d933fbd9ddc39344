// Package forwarding assembles the proxy from its configuration: one
// routing pipeline shared read only by every listener, and one
// listener per configured address.
package forwarding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/powerpuffpenguin/sniroute/config"
	"github.com/powerpuffpenguin/sniroute/dialer"
	"github.com/powerpuffpenguin/sniroute/internal/network"
	"github.com/powerpuffpenguin/sniroute/listener"
	"github.com/powerpuffpenguin/sniroute/pool"
	"github.com/powerpuffpenguin/sniroute/rule"
)

// How long in flight connections may drain on shutdown before they
// are force closed
const DrainTimeout = time.Second * 30

type Application struct {
	listeners []*listener.Listener
	log       *slog.Logger
}

func NewApplication(conf *config.Config, level string) (app *Application, e error) {
	log, e := newLogger(&conf.Logger, level)
	if e != nil {
		return
	}
	d, e := dialer.New(log, conf.Proxy)
	if e != nil {
		return
	}
	pipeline, e := rule.NewPipeline(log, conf.Rules)
	if e != nil {
		return
	}
	var (
		nk        = network.New()
		pool      = pool.New(&conf.Pool)
		listeners = make([]*listener.Listener, 0, len(conf.Listen))
		l         *listener.Listener
	)
	for _, opts := range conf.Listen {
		l, e = listener.New(nk, log, pool, d, pipeline, opts)
		if e != nil {
			for _, l = range listeners {
				l.Close()
			}
			return
		}
		listeners = append(listeners, l)
	}
	app = &Application{
		listeners: listeners,
		log:       log,
	}
	return
}
func (a *Application) Logger() *slog.Logger {
	return a.log
}
// Serve blocks until every listener stopped and reports the first
// failure that was not an orderly close.
func (a *Application) Serve() (e error) {
	var (
		wait  sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	for _, l := range a.listeners {
		wait.Add(1)
		go func(l *listener.Listener) {
			defer wait.Done()
			if err := l.Serve(); err != nil && err != listener.ErrClosed {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		}(l)
	}
	wait.Wait()
	e = first
	return
}

// Shutdown stops accepting and drains in flight connections within
// DrainTimeout.
func (a *Application) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()
	var wait sync.WaitGroup
	for _, l := range a.listeners {
		wait.Add(1)
		go func(l *listener.Listener) {
			defer wait.Done()
			l.Shutdown(ctx)
		}(l)
	}
	wait.Wait()
}
