package authkit

import (
	"net/mail"
	"strings"
	"unicode"
)

// ValidationError carries field-keyed messages for form re-display. It is
// the only error type that exposes per-field detail to the caller.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type fieldErrors map[string]string

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// checkPasswordComplexity enforces the registration policy: at least 8
// characters with one uppercase letter, one digit and one symbol.
func checkPasswordComplexity(password string) string {
	if len(password) < 8 {
		return "must be at least 8 characters"
	}

	var hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return "must contain an uppercase letter"
	case !hasDigit:
		return "must contain a digit"
	case !hasSymbol:
		return "must contain a symbol"
	}
	return ""
}

func validateLoginInput(email, password string) error {
	fields := fieldErrors{}
	if email == "" {
		fields["email"] = "required"
	}
	if password == "" {
		fields["password"] = "required"
	}
	return fields.err()
}

func validateRegisterInput(in RegisterInput) error {
	fields := fieldErrors{}

	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "required"
	}
	if !validEmail(normalizeEmail(in.Email)) {
		fields["email"] = "must be a valid email address"
	}
	if msg := checkPasswordComplexity(in.Password); msg != "" {
		fields["password"] = msg
	}
	if in.Password != in.ConfirmPassword {
		fields["confirmPassword"] = "passwords do not match"
	}
	return fields.err()
}

func validateNewPassword(password, confirm string) error {
	fields := fieldErrors{}

	if msg := checkPasswordComplexity(password); msg != "" {
		fields["password"] = msg
	}
	if password != confirm {
		fields["confirmPassword"] = "passwords do not match"
	}
	return fields.err()
}
