package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"Prism/internal/logging"
)

// DefaultSecretHeader carries the pre-shared secret on worker invocations.
const DefaultSecretHeader = "X-Origin-Secret"

// Claim names bound into signed worker requests.
const (
	ClaimMethod = "method"
	ClaimPath   = "path"
)

// ErrUnauthorized is returned when the caller cannot be verified.
var ErrUnauthorized = errors.New("caller verification failed")

// Verifier decides whether a request comes from an authorized upstream.
type Verifier interface {
	Verify(r *http.Request) error
}

// SharedSecretVerifier compares a header against a pre-shared secret in constant time.
type SharedSecretVerifier struct {
	header string
	secret []byte
}

// NewSharedSecretVerifier returns a verifier for secret delivered in header
// (DefaultSecretHeader when empty).
func NewSharedSecretVerifier(header, secret string) (*SharedSecretVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("shared secret is empty")
	}
	if header == "" {
		header = DefaultSecretHeader
	}
	return &SharedSecretVerifier{header: http.CanonicalHeaderKey(header), secret: []byte(secret)}, nil
}

// Verify implements Verifier.
func (v *SharedSecretVerifier) Verify(r *http.Request) error {
	got := r.Header.Get(v.header)
	if got == "" {
		return fmt.Errorf("%w: missing %s header", ErrUnauthorized, v.header)
	}
	if subtle.ConstantTimeCompare([]byte(got), v.secret) != 1 {
		return fmt.Errorf("%w: secret mismatch", ErrUnauthorized)
	}
	return nil
}

// SignatureVerifier accepts HS256-signed bearer tokens whose method and path claims
// match the request. Tokens must carry exp.
type SignatureVerifier struct {
	key  []byte
	skew time.Duration
}

// NewSignatureVerifier returns a verifier for tokens signed with key.
func NewSignatureVerifier(key []byte, skew time.Duration) (*SignatureVerifier, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key is empty")
	}
	return &SignatureVerifier{key: key, skew: skew}, nil
}

// Verify implements Verifier.
func (v *SignatureVerifier) Verify(r *http.Request) error {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return fmt.Errorf("%w: missing Authorization header", ErrUnauthorized)
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return fmt.Errorf("%w: expected Bearer token", ErrUnauthorized)
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, v.key),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claim(token, ClaimMethod) != r.Method {
		return fmt.Errorf("%w: method claim does not match request", ErrUnauthorized)
	}
	if claim(token, ClaimPath) != r.URL.Path {
		return fmt.Errorf("%w: path claim does not match request", ErrUnauthorized)
	}
	return nil
}

func claim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// SignRequest issues a token for method and path valid for ttl, for upstreams and
// operators calling the worker or admin surface.
func SignRequest(key []byte, method, path string, ttl time.Duration) (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(ClaimMethod, method).
		Claim(ClaimPath, path).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, key))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// AnyVerifier accepts a request when any of its verifiers does.
type AnyVerifier []Verifier

// Verify implements Verifier.
func (a AnyVerifier) Verify(r *http.Request) error {
	if len(a) == 0 {
		return fmt.Errorf("%w: no verifier configured", ErrUnauthorized)
	}
	errs := make([]error, 0, len(a))
	for _, v := range a {
		err := v.Verify(r)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RequireVerified rejects requests that v does not accept with 403.
func RequireVerified(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := v.Verify(r); err != nil {
				logging.FromContext(r.Context()).Warn("[AUTH_FAILURE] caller rejected",
					zap.String("ip", r.RemoteAddr),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				writeForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("forbidden"))
}
