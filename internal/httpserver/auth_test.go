package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"storefront/internal/domain"
	adminsvc "storefront/internal/service/admin"
	"storefront/internal/session"
)

// stubAdminService issues real HS256 tokens so the session guard's local
// expiry check sees well-formed credentials.
type stubAdminService struct {
	mu       sync.Mutex
	admin    domain.Admin
	password string
	ttl      time.Duration
	active    map[string]bool
	loginErr  error
	logoutErr error
}

func newStubAdminService() *stubAdminService {
	return &stubAdminService{
		admin:    domain.Admin{ID: "admin-1", Email: "admin@example.com", Name: "Ada Admin", Role: "admin"},
		password: "password123",
		ttl:      time.Hour,
		active:   make(map[string]bool),
	}
}

func (s *stubAdminService) issue(ttl time.Duration) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   s.admin.ID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}).SignedString([]byte("test"))
	if err != nil {
		panic(err)
	}
	return token
}

func (s *stubAdminService) Login(_ context.Context, email, password string) (*domain.Admin, string, error) {
	if s.loginErr != nil {
		return nil, "", s.loginErr
	}
	if !strings.Contains(email, "@") || password == "" {
		return nil, "", adminsvc.ErrInvalidInput
	}
	if email != s.admin.Email || password != s.password {
		return nil, "", adminsvc.ErrInvalidCredentials
	}
	token := s.issue(s.ttl)
	s.mu.Lock()
	s.active[token] = true
	s.mu.Unlock()
	a := s.admin
	return &a, token, nil
}

func (s *stubAdminService) LookupByToken(_ context.Context, token string) (*domain.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active[token] {
		return nil, adminsvc.ErrInvalidToken
	}
	a := s.admin
	return &a, nil
}

func (s *stubAdminService) Logout(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active[token] {
		return adminsvc.ErrInvalidToken
	}
	if s.logoutErr != nil {
		return s.logoutErr
	}
	delete(s.active, token)
	return nil
}

func (s *stubAdminService) AccessTTLSeconds() int {
	return int(s.ttl.Seconds())
}

func routerWithAdmin(t *testing.T, svc *stubAdminService) http.Handler {
	return newTestRouter(t, func(d *Deps) { d.AdminSvc = svc })
}

func TestAdminLoginHandler(t *testing.T) {
	router := routerWithAdmin(t, newStubAdminService())

	body := `{"email":"admin@example.com","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"email":"admin@example.com"`) || !strings.Contains(rec.Body.String(), `"expiresIn":3600`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestAdminLoginHandler_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad credentials", `{"email":"admin@example.com","password":"nope"}`, http.StatusUnauthorized},
		{"malformed email", `{"email":"admin","password":"password123"}`, http.StatusBadRequest},
		{"invalid json", `{"email":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := routerWithAdmin(t, newStubAdminService())
			req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d body=%s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAdminProfileAndLogout(t *testing.T) {
	svc := newStubAdminService()
	router := routerWithAdmin(t, svc)
	_, token, err := svc.Login(context.Background(), "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"name":"Ada Admin"`) {
		t.Fatalf("expected profile, got %d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestAdminLogoutStoreFailureIsServerError(t *testing.T) {
	svc := newStubAdminService()
	svc.logoutErr = errors.New("revoke token: db down")
	router := routerWithAdmin(t, svc)
	_, token, err := svc.Login(context.Background(), "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d body=%s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestAdminProfileRequiresToken(t *testing.T) {
	router := routerWithAdmin(t, newStubAdminService())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/profile", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func TestDashboardRedirectsAnonymousVisitors(t *testing.T) {
	router := routerWithAdmin(t, newStubAdminService())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/login?from=/dashboard" {
		t.Fatalf("unexpected redirect %q", got)
	}
}

func TestWebLoginSetsCookieAndRedirects(t *testing.T) {
	svc := newStubAdminService()
	router := routerWithAdmin(t, svc)

	form := url.Values{"email": {"admin@example.com"}, "password": {"password123"}, "from": {"/dashboard/orders"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != "/dashboard/orders" {
		t.Fatalf("unexpected redirect %q", got)
	}
	c := sessionCookie(rec)
	if c == nil || c.Value == "" {
		t.Fatalf("expected session cookie")
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie policy not applied: %+v", c)
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: c.Value})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Welcome, Ada Admin") {
		t.Fatalf("expected dashboard, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestWebLoginIgnoresOffsiteFrom(t *testing.T) {
	router := routerWithAdmin(t, newStubAdminService())

	form := url.Values{"email": {"admin@example.com"}, "password": {"password123"}, "from": {"//evil.example.com"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Location"); got != "/dashboard" {
		t.Fatalf("expected fallback redirect, got %q", got)
	}
}

func TestWebLoginRejectsBadCredentials(t *testing.T) {
	router := routerWithAdmin(t, newStubAdminService())

	form := url.Values{"email": {"admin@example.com"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if sessionCookie(rec) != nil {
		t.Fatalf("no cookie expected on failed login")
	}
	if !strings.Contains(rec.Body.String(), "Email or password is incorrect.") {
		t.Fatalf("expected error message, body=%s", rec.Body.String())
	}
}

func TestWebLoginRejectsUnreadableForm(t *testing.T) {
	router := routerWithAdmin(t, newStubAdminService())

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=%zz&password=password123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if sessionCookie(rec) != nil {
		t.Fatalf("no cookie expected for an unreadable form")
	}
	if !strings.Contains(rec.Body.String(), "The sign-in form could not be read.") {
		t.Fatalf("expected form error, body=%s", rec.Body.String())
	}
}

func TestWebLoginBackendFailure(t *testing.T) {
	svc := newStubAdminService()
	svc.loginErr = errors.New("db down")
	router := routerWithAdmin(t, svc)

	form := url.Values{"email": {"admin@example.com"}, "password": {"password123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestLoginPageRedirectsSignedInVisitors(t *testing.T) {
	router := routerWithAdmin(t, newStubAdminService())

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "anything"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestDashboardPurgesRevokedCredential(t *testing.T) {
	svc := newStubAdminService()
	router := routerWithAdmin(t, svc)
	revoked := svc.issue(time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: revoked})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/login?from=/dashboard&expired=1" {
		t.Fatalf("unexpected redirect %q", got)
	}
	c := sessionCookie(rec)
	if c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cookie deletion, got %+v", c)
	}
}

func TestDashboardPurgesExpiredCredential(t *testing.T) {
	svc := newStubAdminService()
	router := routerWithAdmin(t, svc)
	expired := svc.issue(-time.Minute)
	svc.active[expired] = true

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: expired})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Location"); got != "/login?from=/dashboard&expired=1" {
		t.Fatalf("unexpected redirect %q", got)
	}
	if sessionCookie(rec) == nil {
		t.Fatalf("expected cookie deletion")
	}
}

func TestWebLogoutRevokesAndClearsCookie(t *testing.T) {
	svc := newStubAdminService()
	router := routerWithAdmin(t, svc)
	_, token, err := svc.Login(context.Background(), "admin@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if c := sessionCookie(rec); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cookie deletion, got %+v", c)
	}
	if _, err := svc.LookupByToken(context.Background(), token); !errors.Is(err, adminsvc.ErrInvalidToken) {
		t.Fatalf("expected token revoked, got %v", err)
	}
}
