// Package endpointconfig loads the application config file and produces the
// validated agents endpoint section.
package endpointconfig

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// Capability is a feature agents on this endpoint may be granted.
type Capability string

const (
	CapabilityExecuteCode Capability = "execute_code"
	CapabilityFileSearch  Capability = "file_search"
	CapabilityWebSearch   Capability = "web_search"
	CapabilityArtifacts   Capability = "artifacts"
	CapabilityActions     Capability = "actions"
	CapabilityContext     Capability = "context"
	CapabilityTools       Capability = "tools"
	CapabilityChain       Capability = "chain"
	CapabilityOCR         Capability = "ocr"
)

// DefaultCapabilities is used when the config does not list capabilities.
func DefaultCapabilities() []Capability {
	return []Capability{
		CapabilityExecuteCode,
		CapabilityFileSearch,
		CapabilityWebSearch,
		CapabilityArtifacts,
		CapabilityActions,
		CapabilityContext,
		CapabilityTools,
		CapabilityChain,
		CapabilityOCR,
	}
}

// AgentsEndpointConfig is the validated agents endpoint section.
type AgentsEndpointConfig struct {
	DisableBuilder      bool         `json:"disableBuilder" mapstructure:"disableBuilder"`
	RecursionLimit      *int         `json:"recursionLimit,omitempty" mapstructure:"recursionLimit" validate:"omitempty,min=1"`
	MaxRecursionLimit   *int         `json:"maxRecursionLimit,omitempty" mapstructure:"maxRecursionLimit" validate:"omitempty,min=1"`
	TitleConvo          bool         `json:"titleConvo" mapstructure:"titleConvo"`
	TitleModel          string       `json:"titleModel,omitempty" mapstructure:"titleModel"`
	StreamRate          *float64     `json:"streamRate,omitempty" mapstructure:"streamRate" validate:"omitempty,min=0"`
	AllowedProviders    []string     `json:"allowedProviders,omitempty" mapstructure:"allowedProviders" validate:"omitempty,dive,required"`
	Capabilities        []Capability `json:"capabilities" mapstructure:"capabilities" validate:"dive,oneof=execute_code file_search web_search artifacts actions context tools chain ocr"`
	MaxCitations        int          `json:"maxCitations" mapstructure:"maxCitations" validate:"min=1,max=50"`
	MaxCitationsPerFile int          `json:"maxCitationsPerFile" mapstructure:"maxCitationsPerFile" validate:"min=1,max=10"`
	MinRelevanceScore   float64      `json:"minRelevanceScore" mapstructure:"minRelevanceScore" validate:"min=0,max=1"`

	// DocumentSupportedProviders is not part of the schema. It is copied from
	// the raw section by Normalize.
	DocumentSupportedProviders []string `json:"documentSupportedProviders,omitempty" mapstructure:"-"`
}

// Clone returns a deep copy of the config.
func (c *AgentsEndpointConfig) Clone() *AgentsEndpointConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.RecursionLimit != nil {
		v := *c.RecursionLimit
		out.RecursionLimit = &v
	}
	if c.MaxRecursionLimit != nil {
		v := *c.MaxRecursionLimit
		out.MaxRecursionLimit = &v
	}
	if c.StreamRate != nil {
		v := *c.StreamRate
		out.StreamRate = &v
	}
	out.AllowedProviders = slices.Clone(c.AllowedProviders)
	out.Capabilities = slices.Clone(c.Capabilities)
	out.DocumentSupportedProviders = slices.Clone(c.DocumentSupportedProviders)
	return &out
}

func defaults() *AgentsEndpointConfig {
	return &AgentsEndpointConfig{
		Capabilities:        DefaultCapabilities(),
		MaxCitations:        30,
		MaxCitationsPerFile: 7,
		MinRelevanceScore:   0.45,
	}
}

// Schema decodes and validates agents sections.
type Schema struct {
	validate *validator.Validate
}

// NewSchema creates a schema. Validation issues name fields by their config key.
func NewSchema() *Schema {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Schema{validate: v}
}

// Parse decodes input over the schema defaults and validates the result.
// Unknown keys are ignored. A nil input yields the defaults.
func (s *Schema) Parse(input any) (*AgentsEndpointConfig, error) {
	section, err := asSection(input)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	// Keys set to null keep their defaults. Slices given in the section
	// replace the default slice rather than merging into it.
	for key, value := range section {
		if value == nil {
			delete(section, key)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: integerHook,
		Result:     cfg,
		TagName:    "mapstructure",
		ZeroFields: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(section); err != nil {
		return nil, newDecodeError(err)
	}
	if err := s.validate.Struct(cfg); err != nil {
		return nil, newValidationError(err)
	}
	return cfg, nil
}

// integerHook rejects fractional numbers for integer fields; mapstructure
// would otherwise truncate them.
func integerHook(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}
	switch from.Kind() {
	case reflect.Float32, reflect.Float64:
		if f := reflect.ValueOf(data).Float(); f != math.Trunc(f) {
			return nil, fmt.Errorf("expected an integer, got %v", f)
		}
	}
	return data, nil
}

func asSection(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return maps.Clone(v), nil
	case map[any]any:
		section, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, &ValidationError{Issues: []string{err.Error()}, Err: err}
		}
		return section, nil
	default:
		err := fmt.Errorf("expected an object, got %T", input)
		return nil, &ValidationError{Issues: []string{err.Error()}, Err: err}
	}
}

func newDecodeError(err error) *ValidationError {
	var merr *mapstructure.Error
	if errors.As(err, &merr) {
		issues := slices.Clone(merr.Errors)
		slices.Sort(issues)
		return &ValidationError{Issues: issues, Err: err}
	}
	return &ValidationError{Issues: []string{err.Error()}, Err: err}
}

func newValidationError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Issues: []string{err.Error()}, Err: err}
	}
	issues := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "AgentsEndpointConfig.")
		if fe.Param() != "" {
			issues = append(issues, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			issues = append(issues, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return &ValidationError{Issues: issues, Err: err}
}
