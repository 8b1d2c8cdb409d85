package authkit

import (
	"errors"
	"testing"
)

func TestCheckPasswordComplexity(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Sup3r-Secret!", true},
		{"Aa1!aaaa", true},
		{"short1!", false},
		{"alllowercase1!", false},
		{"NoDigitsHere!", false},
		{"NoSymbols123", false},
		{"", false},
	}

	for _, c := range cases {
		msg := checkPasswordComplexity(c.password)
		if c.ok && msg != "" {
			t.Errorf("checkPasswordComplexity(%q) = %q, want pass", c.password, msg)
		}
		if !c.ok && msg == "" {
			t.Errorf("checkPasswordComplexity(%q) passed, want rejection", c.password)
		}
	}
}

func TestValidateRegisterInput(t *testing.T) {
	err := validateRegisterInput(RegisterInput{
		Name:            "",
		Email:           "not-an-email",
		Password:        "Sup3r-Secret!",
		ConfirmPassword: "different",
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	for _, field := range []string{"name", "email", "confirmPassword"} {
		if _, ok := vErr.Fields[field]; !ok {
			t.Errorf("fields = %v, missing %q", vErr.Fields, field)
		}
	}

	if err := validateRegisterInput(RegisterInput{
		Name:            "Valid Name",
		Email:           "valid@example.com",
		Password:        "Sup3r-Secret!",
		ConfirmPassword: "Sup3r-Secret!",
	}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := normalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Fatalf("normalizeEmail = %q", got)
	}
}
