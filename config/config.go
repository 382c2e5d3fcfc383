// Package config provides tenun.ConfigProvider implementations: in-process
// maps, TOML files, and environment variables, plus a Composite that layers
// them by precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	tenun "github.com/antaredja/tenun"
)

// Static serves configuration from a nested map. Useful for defaults and
// for tests.
type Static struct {
	values map[string]any
}

var _ tenun.ConfigProvider = (*Static)(nil)

func NewStatic(values map[string]any) *Static {
	if values == nil {
		values = make(map[string]any)
	}
	return &Static{values: values}
}

// Get walks a dot-separated key through nested maps.
func (s *Static) Get(key string) (any, bool) {
	return lookup(s.values, key)
}

// GetSection returns the named section. Dots descend into nested maps.
func (s *Static) GetSection(name string) tenun.Config {
	v, ok := lookup(s.values, name)
	if !ok {
		return tenun.Config{}
	}
	if m, ok := v.(map[string]any); ok {
		return tenun.Config(m)
	}
	return tenun.Config{}
}

// TOML serves configuration from a TOML file decoded at load time.
type TOML struct {
	root map[string]any
}

var _ tenun.ConfigProvider = (*TOML)(nil)

// LoadTOML reads and decodes a TOML file.
func LoadTOML(path string) (*TOML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	root := make(map[string]any)
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &TOML{root: root}, nil
}

func (t *TOML) Get(key string) (any, bool) {
	return lookup(t.root, key)
}

func (t *TOML) GetSection(name string) tenun.Config {
	v, ok := lookup(t.root, name)
	if !ok {
		return tenun.Config{}
	}
	if m, ok := v.(map[string]any); ok {
		return tenun.Config(m)
	}
	return tenun.Config{}
}

// Env serves configuration from TENUN_-prefixed environment variables.
// The key "llm.api_key" maps to TENUN_LLM_API_KEY. Values are coerced:
// "true"/"false" to bool, then integer, then float, else string.
type Env struct {
	prefix string
}

var _ tenun.ConfigProvider = (*Env)(nil)

func NewEnv() *Env {
	return &Env{prefix: "TENUN_"}
}

func (e *Env) Get(key string) (any, bool) {
	name := e.prefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	raw, ok := os.LookupEnv(name)
	if !ok {
		return nil, false
	}
	return coerce(raw), true
}

// GetSection collects every variable under the section's prefix. The
// remainder of the variable name becomes a lowercased key, so
// TENUN_LLM_API_KEY lands in section "llm" as "api_key". Multi-word keys
// keep their underscores; nested sections are not reconstructed.
func (e *Env) GetSection(name string) tenun.Config {
	secPrefix := e.prefix + strings.ToUpper(strings.ReplaceAll(name, ".", "_")) + "_"
	out := tenun.Config{}
	for _, kv := range os.Environ() {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 || !strings.HasPrefix(kv[:eq], secPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(kv[:eq], secPrefix))
		out[key] = coerce(kv[eq+1:])
	}
	return out
}

func coerce(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// Composite layers providers by precedence: the first provider wins for
// single keys, and sections are merged so higher-precedence providers
// overwrite lower ones key by key.
type Composite struct {
	providers []tenun.ConfigProvider
}

var _ tenun.ConfigProvider = (*Composite)(nil)

// NewComposite takes providers in precedence order, highest first.
func NewComposite(providers ...tenun.ConfigProvider) *Composite {
	return &Composite{providers: providers}
}

func (c *Composite) Get(key string) (any, bool) {
	for _, p := range c.providers {
		if v, ok := p.Get(key); ok {
			return v, true
		}
	}
	return nil, false
}

// GetSection merges the section from every provider, lowest precedence
// first, so the highest-precedence provider has the last write.
func (c *Composite) GetSection(name string) tenun.Config {
	out := tenun.Config{}
	for i := len(c.providers) - 1; i >= 0; i-- {
		for k, v := range c.providers[i].GetSection(name) {
			out[k] = v
		}
	}
	return out
}

// lookup walks a dot-separated key through nested maps.
func lookup(root map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	cur := root
	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			// A flattened key ("agents.general") may exist as a literal
			// map entry at this level.
			if i == 0 {
				if v, ok := cur[key]; ok {
					return v, true
				}
			}
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}
