package config

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if e := os.WriteFile(path, []byte(content), 0o600); e != nil {
		t.Fatalf(`write %s: %v`, name, e)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := write(t, `conf.yaml`, `
logger:
  level: debug
listen:
  - address: 127.0.0.1:8443
    parsers: [tls]
rules:
  - type: rewrite
    matcher: '(?P<s>[a-z]+)\.internal\.consul'
    replacer: '$s.consul'
  - type: dns
    address: 127.0.0.1:5353
    strategy: Ipv4Only
    srv: [my.domain]
  - type: fallback
    address: 127.0.0.1:6666
`)
	var c Config
	if e := c.Load(path); e != nil {
		t.Fatalf(`load: %v`, e)
	}
	if c.Logger.Level != `debug` {
		t.Fatalf(`level = %q`, c.Logger.Level)
	}
	if len(c.Listen) != 1 || c.Listen[0].Address != `127.0.0.1:8443` {
		t.Fatalf(`listen = %+v`, c.Listen)
	}
	if len(c.Listen[0].Parsers) != 1 || c.Listen[0].Parsers[0] != `tls` {
		t.Fatalf(`parsers = %v`, c.Listen[0].Parsers)
	}
	if len(c.Rules) != 3 || c.Rules[1].Type != `dns` || c.Rules[1].Strategy != `Ipv4Only` {
		t.Fatalf(`rules = %+v`, c.Rules)
	}
	if c.Rules[0].Replacer != `$s.consul` {
		t.Fatalf(`replacer = %q`, c.Rules[0].Replacer)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := write(t, `conf.yaml`, `
rules:
  - type: fallback
    address: 127.0.0.1:1
`)
	var c Config
	if e := c.Load(path); e != nil {
		t.Fatalf(`load: %v`, e)
	}
	if len(c.Listen) != 1 {
		t.Fatalf(`listen = %+v`, c.Listen)
	}
	l := c.Listen[0]
	if l.Network != `tcp` || l.Address != DefaultAddress {
		t.Fatalf(`listener = %+v`, l)
	}
	if len(l.Parsers) != 2 || l.Parsers[0] != `http/1` || l.Parsers[1] != `tls` {
		t.Fatalf(`parsers = %v`, l.Parsers)
	}
}

func TestLoadNoRules(t *testing.T) {
	path := write(t, `conf.yaml`, `
listen:
  - address: 127.0.0.1:8443
`)
	var c Config
	if e := c.Load(path); e == nil {
		t.Fatal(`expected error for empty rules`)
	}
}

func TestLoadJsonnet(t *testing.T) {
	path := write(t, `conf.jsonnet`, `
local upstream = '127.0.0.1:6666';
{
  listen: [{ address: '127.0.0.1:8443', parsers: ['tls'] }],
  rules: [
    { type: 'filter', names: ['example.com'] },
    { type: 'fallback', address: upstream },
  ],
}
`)
	var c Config
	if e := c.Load(path); e != nil {
		t.Fatalf(`load: %v`, e)
	}
	if len(c.Rules) != 2 || c.Rules[1].Address != `127.0.0.1:6666` {
		t.Fatalf(`rules = %+v`, c.Rules)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var c Config
	if e := c.Load(filepath.Join(t.TempDir(), `missing.yaml`)); e == nil {
		t.Fatal(`expected error for missing file`)
	}
}
