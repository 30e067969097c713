package auth

import (
	"crypto/sha256"
	"log/slog"
	"sync"

	"psurops/internal/slogutil"
)

// Error codes for authentication failures
const (
	ErrCodeMissingToken = "missing_token"
	ErrCodeInvalidToken = "invalid_token"
	ErrCodeRateLimited  = "rate_limited"
)

// Result is the outcome of an authentication attempt
type Result struct {
	Authenticated bool   `json:"authenticated"`
	RateLimited   bool   `json:"rate_limited"`
	RetryAfter    int    `json:"retry_after,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Authenticator checks bearer tokens against one bcrypt hash. With an empty
// hash every request is accepted. Accepted tokens are remembered by digest
// so bcrypt runs once per valid token.
type Authenticator struct {
	hash    string
	limiter *RateLimiter
	logger  *slog.Logger

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewAuthenticator creates an authenticator. limiter may be nil.
func NewAuthenticator(hash string, limiter *RateLimiter, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Authenticator{
		hash:     hash,
		limiter:  limiter,
		logger:   logger,
		verified: make(map[[sha256.Size]byte]struct{}),
	}
}

// Required reports whether a token must be presented.
func (a *Authenticator) Required() bool {
	return a.hash != ""
}

// Authenticate validates token for the given client key (usually the remote
// address). Rate limiting applies before the token check.
func (a *Authenticator) Authenticate(token, client string) *Result {
	if ok, retry := a.limiter.Allow(client); !ok {
		return &Result{
			RateLimited:  true,
			RetryAfter:   retry,
			ErrorCode:    ErrCodeRateLimited,
			ErrorMessage: "rate limit exceeded",
		}
	}
	if !a.Required() {
		return &Result{Authenticated: true}
	}
	if token == "" {
		return &Result{ErrorCode: ErrCodeMissingToken, ErrorMessage: "bearer token required"}
	}

	sum := sha256.Sum256([]byte(token))
	a.mu.RLock()
	_, known := a.verified[sum]
	a.mu.RUnlock()
	if !known && VerifyToken(token, a.hash) {
		a.mu.Lock()
		a.verified[sum] = struct{}{}
		a.mu.Unlock()
		known = true
	}
	if !known {
		a.logger.Warn("rejected bearer token", "client", client, "token", MaskToken(token))
		return &Result{ErrorCode: ErrCodeInvalidToken, ErrorMessage: "invalid bearer token"}
	}
	return &Result{Authenticated: true}
}
