package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedCredential means the token is not three dot-separated segments
	// of decodable JWT.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrCredentialExpired means the embedded expiry is not in the future.
	ErrCredentialExpired = errors.New("credential expired")
)

var unverified = jwt.NewParser()

// Expiry returns the exp claim of token, or the zero time when absent. The
// signature is not checked; this only inspects the token.
func Expiry(token string) (time.Time, error) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, ErrMalformedCredential
	}
	for _, seg := range strings.Split(token, ".") {
		if seg == "" {
			return time.Time{}, ErrMalformedCredential
		}
	}
	claims := jwt.MapClaims{}
	if _, _, err := unverified.ParseUnverified(token, claims); err != nil {
		return time.Time{}, ErrMalformedCredential
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, ErrMalformedCredential
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// CheckLocal is the synchronous validity check done before any network call.
func CheckLocal(token string, now time.Time) error {
	exp, err := Expiry(token)
	if err != nil {
		return err
	}
	if !exp.IsZero() && !exp.After(now) {
		return ErrCredentialExpired
	}
	return nil
}
