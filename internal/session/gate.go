package session

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// Rules configure the pre-render route gate.
type Rules struct {
	ProtectedPrefixes []string
	LoginPath         string
	LandingPath       string
	RedirectParam     string
}

// DefaultRules protect /dashboard and use /login as the login surface.
func DefaultRules() Rules {
	return Rules{
		ProtectedPrefixes: []string{"/dashboard"},
		LoginPath:         "/login",
		LandingPath:       "/dashboard",
		RedirectParam:     "from",
	}
}

// Decision is the gate outcome. An empty Redirect lets the request through.
type Decision struct {
	Redirect string
}

func (d Decision) Pass() bool {
	return d.Redirect == ""
}

// Evaluate applies the rules to path. hasCredential is the cookie-level check:
// the gate runs before any session state is loaded.
func (r Rules) Evaluate(path string, hasCredential bool) Decision {
	if path == "" {
		path = "/"
	}
	if !hasCredential && r.protected(path) {
		return Decision{Redirect: r.LoginPath + "?" + r.RedirectParam + "=" + escapeFrom(path)}
	}
	if hasCredential && path == r.LoginPath {
		return Decision{Redirect: r.LandingPath}
	}
	return Decision{}
}

func (r Rules) protected(path string) bool {
	for _, prefix := range r.ProtectedPrefixes {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

// SafeRedirect returns from when it is a local absolute path, otherwise fallback.
func SafeRedirect(from, fallback string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.ContainsAny(from, "\\\r\n") {
		return fallback
	}
	u, err := url.Parse(from)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return from
}

// escapeFrom query-escapes path but keeps slashes readable.
func escapeFrom(path string) string {
	return strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
}

// Middleware enforces rules using the credential cookie of each request.
func Middleware(rules Rules) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieName)
		d := rules.Evaluate(c.Request.URL.Path, err == nil && token != "")
		if d.Pass() {
			c.Next()
			return
		}
		c.Redirect(http.StatusFound, d.Redirect)
		c.Abort()
	}
}
