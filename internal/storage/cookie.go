package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// CookieJar is the cookie side of client storage. The route gate only ever
// reads from it; the session credential store is the single writer.
type CookieJar interface {
	SetCookie(c *http.Cookie)
	Cookie(name string) (string, bool)
	DeleteCookie(name string)
}

// HTTPCookies reads cookies from an incoming request and writes Set-Cookie
// headers on the response.
type HTTPCookies struct {
	W http.ResponseWriter
	R *http.Request
}

func (h HTTPCookies) SetCookie(c *http.Cookie) {
	http.SetCookie(h.W, c)
}

func (h HTTPCookies) Cookie(name string) (string, bool) {
	c, err := h.R.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (h HTTPCookies) DeleteCookie(name string) {
	http.SetCookie(h.W, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type storedCookie struct {
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

// KVCookies keeps cookies in a KV for processes without a browser, such as the CLI.
type KVCookies struct {
	kv  KV
	now func() time.Time
}

func NewKVCookies(kv KV) *KVCookies {
	return &KVCookies{kv: kv, now: time.Now}
}

func (k *KVCookies) SetCookie(c *http.Cookie) {
	raw, err := json.Marshal(storedCookie{Value: c.Value, Expires: c.Expires})
	if err != nil {
		return
	}
	_ = k.kv.Set(context.Background(), cookieKey(c.Name), string(raw))
}

func (k *KVCookies) Cookie(name string) (string, bool) {
	raw, err := k.kv.Get(context.Background(), cookieKey(name))
	if err != nil {
		return "", false
	}
	var c storedCookie
	if err := json.Unmarshal([]byte(raw), &c); err != nil || c.Value == "" {
		return "", false
	}
	if !c.Expires.IsZero() && !k.now().Before(c.Expires) {
		return "", false
	}
	return c.Value, true
}

func (k *KVCookies) DeleteCookie(name string) {
	_ = k.kv.Delete(context.Background(), cookieKey(name))
}

func cookieKey(name string) string {
	return "cookie:" + name
}
