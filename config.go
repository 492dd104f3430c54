package anyopt

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/unixpickle/essentials"
	"gopkg.in/yaml.v3"
)

// Config is a flat mapping of hyperparameter names to
// values, sufficient to rebuild an optimizer.
//
// Values are numbers, strings, string lists, or string
// keyed maps of numbers, so that a Config survives an
// encode/decode cycle through YAML or JSON.
type Config map[string]interface{}

// ParseConfig decodes a YAML (or JSON) mapping.
func ParseConfig(data []byte) (Config, error) {
	var res Config
	if err := yaml.Unmarshal(data, &res); err != nil {
		return nil, essentials.AddCtx("parse config", err)
	}
	if res == nil {
		res = Config{}
	}
	return res.normalize(), nil
}

// normalize turns nested mappings into plain
// map[string]interface{} values.
// Decoding into a Config makes yaml.v3 reuse the Config
// type for nested string keyed mappings.
func (c Config) normalize() Config {
	for k, v := range c {
		c[k] = normalizeValue(v)
	}
	return c
}

func normalizeValue(v interface{}) interface{} {
	switch v := v.(type) {
	case Config:
		res := make(map[string]interface{}, len(v))
		for k, x := range v {
			res[k] = normalizeValue(x)
		}
		return res
	case map[string]interface{}:
		for k, x := range v {
			v[k] = normalizeValue(x)
		}
		return v
	case []interface{}:
		for i, x := range v {
			v[i] = normalizeValue(x)
		}
		return v
	default:
		return v
	}
}

// YAML encodes the config as a YAML mapping with sorted
// keys.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(map[string]interface{}(c))
}

// Keys returns the sorted keys of the config.
func (c Config) Keys() []string {
	res := make([]string, 0, len(c))
	for k := range c {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// MergeConfig combines the keys of an inner layer with
// the keys added by the layer around it.
// A key present in both is a *ConfigError.
func MergeConfig(inner, outer Config) (Config, error) {
	res := make(Config, len(inner)+len(outer))
	for k, v := range inner {
		res[k] = v
	}
	for _, k := range outer.Keys() {
		if _, ok := res[k]; ok {
			return nil, configErr("config key", k, "key defined by more than one layer")
		}
		res[k] = outer[k]
	}
	return res, nil
}

// Float reads a numeric value, returning def if the key
// is absent.
func (c Config) Float(key string, def float64) (float64, error) {
	raw, ok := c[key]
	if !ok || raw == nil {
		return def, nil
	}
	x, ok := toFloat(raw)
	if !ok {
		return 0, configErr(key, raw, "expected a number")
	}
	return x, nil
}

// RequireFloat is like Float, but the key must be
// present.
func (c Config) RequireFloat(key string) (float64, error) {
	if _, ok := c[key]; !ok {
		return 0, configErr(key, nil, "missing required key")
	}
	return c.Float(key, 0)
}

// Int reads an integer value, returning def if the key is
// absent.
func (c Config) Int(key string, def int) (int, error) {
	raw, ok := c[key]
	if !ok || raw == nil {
		return def, nil
	}
	x, ok := toFloat(raw)
	if !ok || x != math.Trunc(x) || math.Abs(x) > math.MaxInt32 {
		return 0, configErr(key, raw, "expected an integer")
	}
	return int(x), nil
}

// RequireInt is like Int, but the key must be present.
func (c Config) RequireInt(key string) (int, error) {
	if _, ok := c[key]; !ok {
		return 0, configErr(key, nil, "missing required key")
	}
	return c.Int(key, 0)
}

// String reads a string value, returning def if the key
// is absent.
func (c Config) String(key, def string) (string, error) {
	raw, ok := c[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", configErr(key, raw, "expected a string")
	}
	return s, nil
}

// Strings reads a list of strings.
// A missing key yields an empty list.
func (c Config) Strings(key string) ([]string, error) {
	raw, ok := c[key]
	if !ok || raw == nil {
		return []string{}, nil
	}
	switch raw := raw.(type) {
	case []string:
		return append([]string{}, raw...), nil
	case []interface{}:
		res := make([]string, len(raw))
		for i, x := range raw {
			s, ok := x.(string)
			if !ok {
				return nil, configErr(key, raw, "entry %d is not a string", i)
			}
			res[i] = s
		}
		return res, nil
	default:
		return nil, configErr(key, raw, "expected a list of strings")
	}
}

// Schedule reads a mapping from integer steps to
// multipliers.
// Keys may be integers or strings holding integers.
func (c Config) Schedule(key string) (map[int]float64, error) {
	raw, ok := c[key]
	if !ok || raw == nil {
		return nil, configErr(key, nil, "missing required key")
	}
	res := map[int]float64{}
	add := func(k, v interface{}) error {
		step, err := scheduleStep(k)
		if err != nil {
			return configErr(key, k, "malformed schedule step: %v", err)
		}
		mult, ok := toFloat(v)
		if !ok {
			return configErr(key, v, "schedule multiplier is not a number")
		}
		if _, dup := res[step]; dup {
			return configErr(key, k, "duplicate schedule step")
		}
		res[step] = mult
		return nil
	}
	switch raw := raw.(type) {
	case map[int]float64:
		for k, v := range raw {
			if err := add(k, v); err != nil {
				return nil, err
			}
		}
	case map[string]float64:
		for k, v := range raw {
			if err := add(k, v); err != nil {
				return nil, err
			}
		}
	case Config:
		for k, v := range raw {
			if err := add(k, v); err != nil {
				return nil, err
			}
		}
	case map[string]interface{}:
		for k, v := range raw {
			if err := add(k, v); err != nil {
				return nil, err
			}
		}
	case map[interface{}]interface{}:
		for k, v := range raw {
			if err := add(k, v); err != nil {
				return nil, err
			}
		}
	default:
		return nil, configErr(key, raw, "expected a mapping")
	}
	return res, nil
}

func scheduleStep(k interface{}) (int, error) {
	switch k := k.(type) {
	case int:
		return k, nil
	case string:
		return strconv.Atoi(k)
	default:
		if x, ok := toFloat(k); ok && x == math.Trunc(x) {
			return int(x), nil
		}
		return 0, fmt.Errorf("unsupported key type %T", k)
	}
}

func toFloat(raw interface{}) (float64, bool) {
	switch x := raw.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}
