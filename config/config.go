package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-jsonnet"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger Logger `yaml:"logger"`
	Pool   Pool   `yaml:"pool"`
	// Optional socks5 url, route all upstream connections through it
	Proxy string `yaml:"proxy"`
	// Listener to receive incoming traffic
	Listen []*Listener `yaml:"listen"`
	// Routing rules, executed in declared order for every connection
	Rules []*Rule `yaml:"rules"`
}

func (c *Config) Load(filename string) (e error) {
	var data []byte
	switch filepath.Ext(filename) {
	case `.jsonnet`, `.libsonnet`:
		vm := jsonnet.MakeVM()
		var jsonStr string
		jsonStr, e = vm.EvaluateFile(filename)
		if e != nil {
			return
		}
		data = []byte(jsonStr)
	default:
		data, e = os.ReadFile(filename)
		if e != nil {
			return
		}
	}
	e = yaml.Unmarshal(data, c)
	if e != nil {
		return
	}
	e = c.format()
	return
}
func (c *Config) format() (e error) {
	if len(c.Rules) == 0 {
		e = errors.New(`config must include at least one rule`)
		return
	}
	for i, rule := range c.Rules {
		if rule == nil {
			e = fmt.Errorf(`rules[%d]: empty rule`, i)
			return
		}
	}
	if len(c.Listen) == 0 {
		c.Listen = []*Listener{{}}
	}
	for _, l := range c.Listen {
		l.format()
	}
	return
}
