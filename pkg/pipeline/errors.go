// pkg/pipeline/errors.go
package pipeline

import (
	"errors"
	"fmt"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/validate"
)

// ErrorCategory classifies pipeline failures by scope
type ErrorCategory int

const (
	// Error categories with increasing severity
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryChunkLevel
	ErrorCategoryValidation
	ErrorCategoryTableLevel
	ErrorCategoryConnectionLevel
	ErrorCategoryConfig
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryChunkLevel:
		return "ChunkLevel"
	case ErrorCategoryValidation:
		return "Validation"
	case ErrorCategoryTableLevel:
		return "TableLevel"
	case ErrorCategoryConnectionLevel:
		return "ConnectionLevel"
	case ErrorCategoryConfig:
		return "Config"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// ConfigError marks a precondition failure: missing directories, empty
// dependency tables, inconsistent flags. Never retried.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}

// NewConfigError builds a ConfigError for a named setting.
func NewConfigError(setting, reason string) *ConfigError {
	return &ConfigError{Setting: setting, Reason: reason}
}

// Categorize maps an error to its pipeline category.
func Categorize(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		return ErrorCategoryValidation
	}
	var cerr *ConfigError
	if errors.As(err, &cerr) {
		return ErrorCategoryConfig
	}
	return ErrorCategoryTableLevel
}
