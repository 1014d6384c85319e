// Package auth implements the request trust gate and capability-token
// sessions for the Engram governance kernel. The gate classifies requests
// from transport-level and header information only; it never inspects
// request bodies.
package auth

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
)

// Headers and environment consumed by the gate.
const (
	HeaderClient   = "X-Engram-Client"
	HeaderAdminKey = "X-Engram-Admin-Key"
	AdminKeyEnv    = "ENGRAM_ADMIN_KEY"
)

var (
	// ErrUnauthorized means a capability token was required and absent.
	ErrUnauthorized = errors.New("bearer capability token required")

	// ErrForbidden means the operation is restricted to trusted local
	// callers (optionally with a matching admin key).
	ErrForbidden = errors.New("forbidden")
)

// cliHints are User-Agent substrings that identify first-party CLI tools.
var cliHints = []string{"engram-cli", "go-http-client"}

// localHosts are addresses recognized as "this machine".
var localHosts = map[string]bool{
	"127.0.0.1":        true,
	"::1":              true,
	"::ffff:127.0.0.1": true,
	"localhost":        true,
	"testclient":       true,
}

// Gate classifies inbound requests. Construction is cheap; a Gate is
// immutable and safe for concurrent use.
type Gate struct {
	extraHosts map[string]bool
}

// NewGate builds a gate whose local allow set is the built-in loopback set
// plus the deployment-specific extra hosts.
func NewGate(extraHosts []string) *Gate {
	extra := make(map[string]bool, len(extraHosts))
	for _, h := range extraHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			extra[h] = true
		}
	}
	return &Gate{extraHosts: extra}
}

// Decision is the per-request trust classification. Never persisted.
type Decision struct {
	TrustedLocal  bool
	TrustedDirect bool
	Token         string
}

// Classify computes the full trust decision for a request.
func (g *Gate) Classify(r *http.Request) Decision {
	return Decision{
		TrustedLocal:  g.IsTrustedLocal(RemoteHost(r)),
		TrustedDirect: g.IsTrustedDirect(r),
		Token:         TokenFromRequest(r),
	}
}

// ExtractBearerToken parses an Authorization header of the exact form
// "Bearer <token>". It returns the trimmed token, or "" when the header is
// missing, malformed, uses another scheme, or the token is blank. The
// scheme match is case-insensitive.
func ExtractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// TokenFromRequest extracts the bearer token from a request, if any.
func TokenFromRequest(r *http.Request) string {
	return ExtractBearerToken(r.Header.Get("Authorization"))
}

// RemoteHost returns the request's remote address without its port.
func RemoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// IsTrustedLocal reports whether the remote host is recognized as this
// machine. Anything not in the allow set is untrusted.
func (g *Gate) IsTrustedLocal(remoteHost string) bool {
	host := strings.ToLower(strings.TrimSpace(remoteHost))
	if host == "" {
		return false
	}
	return localHosts[host] || g.extraHosts[host]
}

// IsTrustedDirect reports whether the request is a trusted local CLI call:
// trusted local, plus either an explicit client hint or a known CLI
// User-Agent marker.
func (g *Gate) IsTrustedDirect(r *http.Request) bool {
	if !g.IsTrustedLocal(RemoteHost(r)) {
		return false
	}
	hint := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderClient)))
	if hint == "cli" {
		return true
	}
	userAgent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, marker := range cliHints {
		if strings.Contains(userAgent, marker) {
			return true
		}
	}
	return false
}

// RequireTokenForUntrusted fails with ErrUnauthorized when no token is
// present and the caller is not trusted local. Trusted local callers pass
// with or without a token.
func (g *Gate) RequireTokenForUntrusted(r *http.Request, token string) error {
	if token != "" {
		return nil
	}
	if g.IsTrustedLocal(RemoteHost(r)) {
		return nil
	}
	return ErrUnauthorized
}

// EnforceSessionIssuer locks session minting to trusted local callers. If
// an admin secret is configured in the environment, the request must also
// carry a matching admin-key header; the comparison is constant-time.
func (g *Gate) EnforceSessionIssuer(r *http.Request) error {
	if !g.IsTrustedLocal(RemoteHost(r)) {
		return ErrForbidden
	}
	expected := strings.TrimSpace(os.Getenv(AdminKeyEnv))
	if expected == "" {
		return nil
	}
	provided := strings.TrimSpace(r.Header.Get(HeaderAdminKey))
	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return ErrForbidden
	}
	return nil
}
