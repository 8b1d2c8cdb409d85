package authkit

import (
	"strings"
	"testing"
	"time"
)

// RFC 6238 appendix B reference outputs for the SHA1 mode, truncated to
// eight digits.
var rfc6238Vectors = []struct {
	unix int64
	code string
}{
	{59, "94287082"},
	{1111111109, "07081804"},
	{1111111111, "14050471"},
	{1234567890, "89005924"},
	{2000000000, "69279037"},
	{20000000000, "65353130"},
}

func TestVerifyReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")
	engine := newTOTPEngine(TOTPConfig{Issuer: "test", Digits: 8, Period: 30, Skew: 0})

	for _, v := range rfc6238Vectors {
		at := time.Unix(v.unix, 0).UTC()
		if !engine.Verify(secret, v.code, at) {
			t.Errorf("Verify(%q) at %d = false, want true", v.code, v.unix)
		}
	}
}

func TestHOTPReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")

	for _, v := range rfc6238Vectors {
		counter := v.unix / 30
		if got := hotpCode(secret, counter, 8); got != v.code {
			t.Errorf("hotpCode(counter=%d) = %q, want %q", counter, got, v.code)
		}
	}
}

func TestVerifySkewWindow(t *testing.T) {
	secret := []byte("12345678901234567890")
	engine := newTOTPEngine(TOTPConfig{Issuer: "test", Digits: 6, Period: 30, Skew: 1})

	now := time.Unix(1111111111, 0).UTC()
	current := hotpCode(secret, now.Unix()/30, 6)
	previous := hotpCode(secret, now.Unix()/30-1, 6)
	next := hotpCode(secret, now.Unix()/30+1, 6)
	twoBack := hotpCode(secret, now.Unix()/30-2, 6)
	twoAhead := hotpCode(secret, now.Unix()/30+2, 6)

	if !engine.Verify(secret, current, now) {
		t.Error("current step rejected")
	}
	if !engine.Verify(secret, previous, now) {
		t.Error("one step behind rejected inside skew window")
	}
	if !engine.Verify(secret, next, now) {
		t.Error("one step ahead rejected inside skew window")
	}
	if twoBack != current && twoBack != previous && twoBack != next && engine.Verify(secret, twoBack, now) {
		t.Error("two steps behind accepted outside skew window")
	}
	if twoAhead != current && twoAhead != previous && twoAhead != next && engine.Verify(secret, twoAhead, now) {
		t.Error("two steps ahead accepted outside skew window")
	}
}

func TestVerifyRejectsMalformedCodes(t *testing.T) {
	secret := []byte("12345678901234567890")
	engine := newTOTPEngine(TOTPConfig{Issuer: "test", Digits: 6, Period: 30, Skew: 1})
	now := time.Unix(1111111111, 0).UTC()

	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		if engine.Verify(secret, code, now) {
			t.Errorf("Verify(%q) = true, want false", code)
		}
	}
	if engine.Verify(nil, "123456", now) {
		t.Error("empty secret verified")
	}
}

func TestVerifyTrimsWhitespace(t *testing.T) {
	secret := []byte("12345678901234567890")
	engine := newTOTPEngine(TOTPConfig{Issuer: "test", Digits: 6, Period: 30, Skew: 0})
	now := time.Unix(1111111111, 0).UTC()

	code := hotpCode(secret, now.Unix()/30, 6)
	if !engine.Verify(secret, " "+code+" ", now) {
		t.Error("code with surrounding spaces rejected")
	}
}

func TestGenerateSecretIsUnique(t *testing.T) {
	engine := newTOTPEngine(TOTPConfig{Issuer: "test", Digits: 6, Period: 30, Skew: 1})

	raw1, b32a, err := engine.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	raw2, b32b, err := engine.GenerateSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if len(raw1) != 20 || len(raw2) != 20 {
		t.Fatalf("secret lengths = %d, %d, want 20", len(raw1), len(raw2))
	}
	if b32a == b32b {
		t.Fatal("two generated secrets are identical")
	}
}

func TestProvisionURI(t *testing.T) {
	engine := newTOTPEngine(TOTPConfig{Issuer: "Teamdeck", Digits: 6, Period: 30, Skew: 1})

	uri := engine.ProvisionURI("JBSWY3DPEHPK3PXP", "user@example.com")
	for _, want := range []string{
		"otpauth://totp/Teamdeck:user@example.com",
		"secret=JBSWY3DPEHPK3PXP",
		"issuer=Teamdeck",
		"digits=6",
		"period=30",
		"algorithm=SHA1",
	} {
		if !strings.Contains(uri, want) {
			t.Errorf("URI %q missing %q", uri, want)
		}
	}
}
