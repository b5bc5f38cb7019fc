package endpointconfig

import (
	"github.com/spf13/cast"
)

const documentSupportedProvidersKey = "documentSupportedProviders"

var defaultSchema = NewSchema()

// Normalize returns the agents endpoint config for cfg using the default schema.
func Normalize(cfg CustomConfig, defaultConfig *AgentsEndpointConfig) (*AgentsEndpointConfig, error) {
	return defaultSchema.Normalize(cfg, defaultConfig)
}

// Normalize returns defaultConfig itself when cfg has no agents section (or
// the schema defaults when defaultConfig is nil). Otherwise the section is
// parsed and documentSupportedProviders is copied over from the raw section.
// Validation errors are returned unchanged.
func (s *Schema) Normalize(cfg CustomConfig, defaultConfig *AgentsEndpointConfig) (*AgentsEndpointConfig, error) {
	section, ok := cfg.AgentsSection()
	if !ok {
		if defaultConfig != nil {
			return defaultConfig, nil
		}
		return s.Parse(nil)
	}

	parsed, err := s.Parse(section)
	if err != nil {
		return nil, err
	}
	if providers, ok := rawDocumentSupportedProviders(section); ok {
		parsed.DocumentSupportedProviders = providers
	}
	return parsed, nil
}

// rawDocumentSupportedProviders reads the field straight from the section,
// bypassing the schema. Values that are not a string list are ignored.
func rawDocumentSupportedProviders(section any) ([]string, bool) {
	raw, err := cast.ToStringMapE(section)
	if err != nil {
		return nil, false
	}
	value, ok := raw[documentSupportedProvidersKey]
	if !ok || value == nil {
		return nil, false
	}
	switch value.(type) {
	case []string, []any:
	default:
		return nil, false
	}
	providers, err := cast.ToStringSliceE(value)
	if err != nil {
		return nil, false
	}
	if providers == nil {
		providers = []string{}
	}
	return providers, true
}
