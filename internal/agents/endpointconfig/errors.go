package endpointconfig

import "strings"

// ValidationError reports an agents section that does not match the schema.
type ValidationError struct {
	Issues []string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid agents endpoint config"
	}
	return "invalid agents endpoint config: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
