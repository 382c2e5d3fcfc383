package tenun

// ConfigProvider abstracts configuration access so agents can be driven by
// files, environment variables, or in-process maps interchangeably.
type ConfigProvider interface {
	// Get returns the value for a dot-separated key ("llm.api_key") and
	// whether the key exists.
	Get(key string) (any, bool)
	// GetSection returns a named top-level section as a Config. Missing
	// sections yield an empty (non-nil) Config.
	GetSection(name string) Config
}

// Config is a dynamic configuration section. Typed accessors tolerate the
// numeric representations produced by JSON and TOML decoding.
type Config map[string]any

// String returns the value for key as a string, or def when absent or not
// a string.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Int returns the value for key as an int, accepting int, int64, and
// float64 representations.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Float returns the value for key as a float64, accepting int and int64
// representations.
func (c Config) Float(key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func (c Config) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// StringSlice returns the value for key as a []string, accepting []any
// elements that are strings.
func (c Config) StringSlice(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Sub returns a nested section, or an empty Config when absent.
func (c Config) Sub(key string) Config {
	switch v := c[key].(type) {
	case Config:
		return v
	case map[string]any:
		return Config(v)
	}
	return Config{}
}

// SliceOfConfig returns the value for key as a slice of sections.
func (c Config) SliceOfConfig(key string) []Config {
	var out []Config
	switch v := c[key].(type) {
	case []Config:
		return v
	case []map[string]any:
		for _, m := range v {
			out = append(out, Config(m))
		}
	case []any:
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, Config(m))
			}
		}
	}
	return out
}
