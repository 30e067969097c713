package auth

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	if !IsValidTokenFormat(token) {
		t.Fatalf("IsValidTokenFormat(%q) = false", token)
	}
	hash, err := hashToken(token, bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !IsValidHash(hash) {
		t.Error("IsValidHash() = false for a bcrypt hash")
	}
	if !VerifyToken(token, hash) {
		t.Error("VerifyToken() rejected its own token")
	}
	if VerifyToken(token+"0", hash) {
		t.Error("VerifyToken() accepted a different token")
	}
}

func TestTokenFormatAndMask(t *testing.T) {
	tests := []struct {
		token string
		valid bool
	}{
		{TokenPrefix + strings.Repeat("ab", TokenLength), true},
		{TokenPrefix + strings.Repeat("zz", TokenLength), false},
		{TokenPrefix + "abcd", false},
		{"pat_sk_" + strings.Repeat("ab", TokenLength), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidTokenFormat(tt.token); got != tt.valid {
			t.Errorf("IsValidTokenFormat(%q) = %v, want %v", tt.token, got, tt.valid)
		}
	}
	if got := MaskToken(TokenPrefix + "a1b2c3d4e5f6"); got != "psur_sk_a1b2c3d4****...****" {
		t.Errorf("MaskToken() = %q", got)
	}
	if got := MaskToken("short"); got != "****" {
		t.Errorf("MaskToken(short) = %q", got)
	}
	if IsValidHash("plain-text") {
		t.Error("IsValidHash accepted plain text")
	}
}

func TestAuthenticator(t *testing.T) {
	open := NewAuthenticator("", nil, nil)
	if open.Required() || !open.Authenticate("", "1.2.3.4").Authenticated {
		t.Error("empty hash should accept every request")
	}

	token, _ := GenerateToken()
	hash, _ := hashToken(token, bcrypt.MinCost)
	a := NewAuthenticator(hash, nil, nil)
	if !a.Required() {
		t.Fatal("Required() = false")
	}

	tests := []struct {
		name  string
		token string
		ok    bool
		code  string
	}{
		{"valid", token, true, ""},
		{"cached", token, true, ""},
		{"missing", "", false, ErrCodeMissingToken},
		{"wrong", TokenPrefix + strings.Repeat("0", 64), false, ErrCodeInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Authenticate(tt.token, "client")
			if res.Authenticated != tt.ok || res.ErrorCode != tt.code {
				t.Errorf("Authenticate() = %+v", res)
			}
		})
	}
	if len(a.verified) != 1 {
		t.Errorf("verified cache = %d entries, want 1", len(a.verified))
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{Limit: 60, BurstSize: 2}, nil)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("a"); !ok {
			t.Fatalf("request %d limited", i)
		}
	}
	ok, retry := rl.Allow("a")
	if ok || retry != 2 {
		t.Errorf("third request = %v, retry %d; want limited, 2", ok, retry)
	}
	if ok, _ := rl.Allow("b"); !ok {
		t.Error("other client limited")
	}

	now = now.Add(time.Second)
	if ok, _ := rl.Allow("a"); !ok {
		t.Error("bucket did not refill")
	}

	now = now.Add(time.Hour)
	if removed := rl.cleanup(); removed != 2 {
		t.Errorf("cleanup removed %d, want 2", removed)
	}

	var disabled *RateLimiter
	if ok, _ := disabled.Allow("a"); !ok {
		t.Error("nil limiter should allow")
	}

	token, _ := GenerateToken()
	hash, _ := hashToken(token, bcrypt.MinCost)
	a := NewAuthenticator(hash, rl, nil)
	a.Authenticate(token, "c")
	a.Authenticate(token, "c")
	if res := a.Authenticate(token, "c"); !res.RateLimited || res.ErrorCode != ErrCodeRateLimited {
		t.Errorf("Authenticate() = %+v, want rate limited", res)
	}
}
