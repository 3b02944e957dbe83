package httpserver

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
	adminsvc "storefront/internal/service/admin"
	"storefront/internal/session"
	"storefront/internal/storage"
)

var pages = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><title>Sign in</title></head><body>
<h1>Admin sign in</h1>
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="from" value="{{.From}}">
<label>Email <input type="email" name="email" value="{{.Email}}" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
</body></html>`))

func init() {
	template.Must(pages.New("dashboard").Parse(`<!doctype html>
<html><head><title>Dashboard</title></head><body>
<h1>Welcome, {{.Name}}</h1>
<p>Signed in as {{.Email}} ({{.Role}})</p>
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
</body></html>`))
}

type loginPageData struct {
	From   string
	Email  string
	Error  string
	Notice string
}

// serviceAuthenticator lets a session.Guard talk to the admin service in-process.
type serviceAuthenticator struct {
	svc adminService
}

func (a serviceAuthenticator) Login(ctx context.Context, email, password string) (session.Credential, error) {
	adm, token, err := a.svc.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, adminsvc.ErrInvalidCredentials) {
			return session.Credential{}, session.ErrUnauthorized
		}
		return session.Credential{}, err
	}
	return session.Credential{Token: token, Principal: toPrincipal(*adm)}, nil
}

func (a serviceAuthenticator) Profile(ctx context.Context, token string) (session.Principal, error) {
	adm, err := a.svc.LookupByToken(ctx, token)
	if err != nil {
		if errors.Is(err, adminsvc.ErrInvalidToken) {
			return session.Principal{}, session.ErrUnauthorized
		}
		return session.Principal{}, err
	}
	return toPrincipal(*adm), nil
}

func toPrincipal(a domain.Admin) session.Principal {
	return session.Principal{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role}
}

// requestGuard builds a guard whose credential lives in the request cookie.
// Every purge and every login is written back as a Set-Cookie header.
func (h *handlers) requestGuard(c *gin.Context) *session.Guard {
	jar := storage.HTTPCookies{W: c.Writer, R: c.Request}
	kv := storage.NewMemory()
	if token, ok := jar.Cookie(session.CookieName); ok {
		_ = kv.Set(c.Request.Context(), session.TokenKey, token)
	}
	creds := session.NewCredentialStore(kv, jar, h.policy)
	g := session.NewGuard(creds, serviceAuthenticator{svc: h.deps.AdminSvc},
		session.WithGuardLogger(h.logger.With(zap.String("request_id", c.GetString(requestIDKey)))))
	g.Subscribe(h.deps.Metrics.SessionListener())
	return g
}

func (h *handlers) loginPage(c *gin.Context) {
	data := loginPageData{From: session.SafeRedirect(c.Query("from"), "")}
	if c.Query("expired") != "" {
		data.Notice = session.NoticeSessionExpired
	}
	c.HTML(http.StatusOK, "login", data)
}

func (h *handlers) loginSubmit(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Debug("login form unreadable", zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
		h.countLogin(adminsvc.ErrInvalidInput)
		c.HTML(http.StatusBadRequest, "login", loginPageData{Error: "The sign-in form could not be read."})
		return
	}
	from := session.SafeRedirect(c.PostForm("from"), "")

	g := h.requestGuard(c)
	err := g.Login(c.Request.Context(), req.Email, req.Password)
	h.countLogin(unwrapGuardLogin(err))
	if err != nil {
		msg := "Sign in failed. Please try again."
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, session.ErrInvalidInput):
			msg, status = "Enter a valid email and password.", http.StatusBadRequest
		case errors.Is(err, session.ErrUnauthorized):
			msg, status = "Email or password is incorrect.", http.StatusUnauthorized
		default:
			h.logger.Error("web login failed", zap.Error(err))
		}
		c.HTML(status, "login", loginPageData{From: from, Email: req.Email, Error: msg})
		return
	}
	c.Redirect(http.StatusFound, session.SafeRedirect(from, session.DefaultRules().LandingPath))
}

func (h *handlers) logoutSubmit(c *gin.Context) {
	if token, err := c.Cookie(session.CookieName); err == nil && token != "" {
		if err := h.deps.AdminSvc.Logout(c.Request.Context(), token); err != nil && !errors.Is(err, adminsvc.ErrInvalidToken) {
			h.logger.Warn("token revocation failed", zap.Error(err))
		}
	}
	h.requestGuard(c).Logout(c.Request.Context())
	c.Redirect(http.StatusFound, session.DefaultRules().LoginPath)
}

func (h *handlers) dashboard(c *gin.Context) {
	g := h.requestGuard(c)
	if g.Start(c.Request.Context()) != session.Authenticated {
		rules := session.DefaultRules()
		target := rules.Evaluate(c.Request.URL.Path, false).Redirect
		if g.Notice() != "" {
			target += "&expired=1"
		}
		c.Redirect(http.StatusFound, target)
		return
	}
	p := g.Principal()
	c.HTML(http.StatusOK, "dashboard", p)
}

// unwrapGuardLogin maps guard login errors back to the admin service's
// vocabulary for metrics.
func unwrapGuardLogin(err error) error {
	switch {
	case errors.Is(err, session.ErrUnauthorized):
		return adminsvc.ErrInvalidCredentials
	case errors.Is(err, session.ErrInvalidInput):
		return adminsvc.ErrInvalidInput
	default:
		return err
	}
}
