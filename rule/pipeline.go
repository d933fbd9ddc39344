package rule

import (
	"context"
	"log/slog"

	"github.com/powerpuffpenguin/sniroute/config"
)

// Pipeline is the immutable ordered rule sequence a listener drives
// against each connection.
type Pipeline struct {
	log   *slog.Logger
	rules []*Rule
}

func NewPipeline(log *slog.Logger, opts []*config.Rule) (p *Pipeline, e error) {
	rules := make([]*Rule, 0, len(opts))
	for _, conf := range opts {
		var r *Rule
		r, e = New(log, conf)
		if e != nil {
			return
		}
		rules = append(rules, r)
	}
	p = &Pipeline{
		log:   log,
		rules: rules,
	}
	return
}

// Route drives rc through the rules in declared order until one
// terminates with an endpoint or fails. A pipeline exhausted without a
// destination fails with ErrNoRoute.
func (p *Pipeline) Route(ctx context.Context, rc *Context) (ep Endpoint, e error) {
	for _, r := range p.rules {
		if rc.terminated {
			break
		}
		a, picked, err := r.apply(ctx, rc)
		if err != nil {
			rc.terminated = true
			p.log.Debug(`rule decision`,
				`variant`, r.kind.String(),
				`action`, `fail`,
				`name`, rc.Name,
				`error`, err,
			)
			e = err
			return
		}
		p.log.Debug(`rule decision`,
			`variant`, r.kind.String(),
			`action`, a.String(),
			`name`, rc.Name,
		)
		if a == actionTerminate {
			rc.terminated = true
			ep = picked
			return
		}
	}
	rc.terminated = true
	e = ErrNoRoute
	return
}
