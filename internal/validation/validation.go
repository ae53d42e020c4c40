package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	levelRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
)

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors collects field errors. A nil or empty Errors is not an error.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

// Add records a field error
func (e *Errors) Add(field, format string, args ...interface{}) {
	*e = append(*e, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns e as an error, or nil when nothing was recorded
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Required records an error when value is blank
func (e *Errors) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "%s is required", field)
	}
}

// MaxLength records an error when value is longer than max characters
func (e *Errors) MaxLength(field, value string, max int) {
	if len([]rune(value)) > max {
		e.Add(field, "%s must be at most %d characters", field, max)
	}
}

// IntRange records an error when value lies outside [min, max]
func (e *Errors) IntRange(field string, value, min, max int) {
	if value < min || value > max {
		e.Add(field, "%s must be between %d and %d", field, min, max)
	}
}

// Future records an error when t is not strictly after now
func (e *Errors) Future(field string, t, now time.Time) {
	if t.IsZero() {
		e.Add(field, "%s is required", field)
		return
	}
	if !t.After(now) {
		e.Add(field, "%s must be in the future", field)
	}
}

// Level records an error when value is not a valid level tag
func (e *Errors) Level(field, value string) {
	if value != "" && !levelRegex.MatchString(value) {
		e.Add(field, "%s must be a lowercase tag of letters, digits, '-' or '_'", field)
	}
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return FieldError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return FieldError{Field: "email", Message: "invalid email format"}
	}
	return nil
}
