package endpointconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"reflect"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	endpointsKey = "endpoints"
	agentsKey    = "agents"
)

// CustomConfig is the raw application config file. Keys keep their original case.
type CustomConfig map[string]any

// LoadCustomConfig reads a YAML config file. A missing file is an empty config.
func LoadCustomConfig(path string) (CustomConfig, error) {
	if path == "" {
		return CustomConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return CustomConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read custom config %s: %w", path, err)
	}
	cfg, err := ParseCustomConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parse custom config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseCustomConfig decodes YAML (or JSON) config data.
func ParseCustomConfig(data []byte) (CustomConfig, error) {
	var cfg CustomConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = CustomConfig{}
	}
	return cfg, nil
}

// AgentsSection returns endpoints.agents. It reports false when endpoints is
// not a map or the section is missing, null, false, an empty string or zero.
func (c CustomConfig) AgentsSection() (any, bool) {
	if c == nil {
		return nil, false
	}
	endpoints, err := cast.ToStringMapE(c[endpointsKey])
	if err != nil || endpoints == nil {
		return nil, false
	}
	section, ok := endpoints[agentsKey]
	if !ok || isUnset(section) {
		return nil, false
	}
	return section, true
}

func isUnset(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.IsZero()
	case reflect.Float32, reflect.Float64:
		return rv.IsZero() || math.IsNaN(rv.Float())
	}
	return false
}
