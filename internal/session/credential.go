package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/domain"
	"storefront/internal/storage"
)

// Storage keys and the cookie name shared with the route gate.
const (
	TokenKey     = "token"
	PrincipalKey = "admin"
	CookieName   = "token"
)

// Principal holds display attributes of the signed-in admin. It is never used
// for authorization.
type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Credential is a bearer token plus the cached principal.
type Credential struct {
	Token     string
	Principal Principal
}

// CookiePolicy controls the attributes of the credential cookie.
type CookiePolicy struct {
	Path   string
	Secure bool
	// FallbackTTL applies when the token carries no expiry.
	FallbackTTL time.Duration
}

// DefaultCookiePolicy is HttpOnly, SameSite=Lax, scoped to "/", valid for a day
// when the token itself has no expiry.
func DefaultCookiePolicy(secure bool) CookiePolicy {
	return CookiePolicy{Path: "/", Secure: secure, FallbackTTL: 24 * time.Hour}
}

// Cookie builds the credential cookie for token. The cookie expires with the token.
func (p CookiePolicy) Cookie(token string, now time.Time) *http.Cookie {
	expires := now.Add(p.FallbackTTL)
	if exp, err := Expiry(token); err == nil && !exp.IsZero() {
		expires = exp
	}
	path := p.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     path,
		Expires:  expires,
		MaxAge:   int(expires.Sub(now).Seconds()),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// CredentialStore keeps the token in storage and in the cookie jar as two
// views of one value. Set and Clear always write both.
type CredentialStore struct {
	kv     storage.KV
	jar    storage.CookieJar
	policy CookiePolicy
	now    func() time.Time
}

func NewCredentialStore(kv storage.KV, jar storage.CookieJar, policy CookiePolicy) *CredentialStore {
	return &CredentialStore{kv: kv, jar: jar, policy: policy, now: time.Now}
}

// Set persists cred. A failed storage write still sets the cookie so the two
// views are reconciled by the next Set or Clear.
func (s *CredentialStore) Set(ctx context.Context, cred Credential) error {
	raw, err := json.Marshal(cred.Principal)
	if err != nil {
		return err
	}
	s.jar.SetCookie(s.policy.Cookie(cred.Token, s.now()))
	if err := s.kv.Set(ctx, TokenKey, cred.Token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := s.kv.Set(ctx, PrincipalKey, string(raw)); err != nil {
		return fmt.Errorf("store principal: %w", err)
	}
	return nil
}

// SetPrincipal refreshes only the cached principal.
func (s *CredentialStore) SetPrincipal(ctx context.Context, p Principal) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, PrincipalKey, string(raw))
}

// Load returns the persisted credential. ok is false when no token is stored.
// An unreadable principal is returned empty rather than failing the load.
func (s *CredentialStore) Load(ctx context.Context) (cred Credential, ok bool, err error) {
	token, err := s.kv.Get(ctx, TokenKey)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && token == "") {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, err
	}
	cred.Token = token
	if raw, err := s.kv.Get(ctx, PrincipalKey); err == nil {
		_ = json.Unmarshal([]byte(raw), &cred.Principal)
	}
	return cred, true, nil
}

// Clear removes the token, the principal and the cookie.
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.jar.DeleteCookie(CookieName)
	return errors.Join(
		s.kv.Delete(ctx, TokenKey),
		s.kv.Delete(ctx, PrincipalKey),
	)
}

// HasCookie reports whether the cookie view currently carries a token.
func (s *CredentialStore) HasCookie() bool {
	_, ok := s.jar.Cookie(CookieName)
	return ok
}
