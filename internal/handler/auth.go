package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/auth"
	"github.com/sakif/snippetcms/internal/service"
	"github.com/sakif/snippetcms/web"
)

const (
	// LoginPath is the admin login page.
	LoginPath = "/admin/login/"

	oauthStateCookie = "oauth_state"
)

// GitHubLogin is the OAuth provider used for "Sign in with GitHub".
// *auth.GitHubProvider implements it.
type GitHubLogin interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler manages admin sign-in and sign-out.
//
//   - HandleLoginPage / HandleLogin → username and password form
//   - HandleLogout                  → clear the session cookie
//   - HandleGitHubLogin / Callback  → GitHub OAuth, when configured
//   - HandleMe                      → JSON profile of the signed-in user
type AuthHandler struct {
	auth   *service.AuthService
	github GitHubLogin
	pages  *web.Templates
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil, which disables
// the OAuth routes and hides the GitHub button.
func NewAuthHandler(
	authService *service.AuthService,
	github GitHubLogin,
	pages *web.Templates,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		github: github,
		pages:  pages,
		logger: logger,
	}
}

type loginPage struct {
	pageMeta
	Next          string
	Username      string
	Error         string
	NoAccess      bool
	GitHubEnabled bool
}

// safeNext returns next when it is a local absolute path, and the
// changelist otherwise.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ChangelistPath
	}
	return next
}

// HandleLoginPage shows the login form. Users that may already use the
// admin are sent on to ?next.
//
// HTTP: GET /admin/login/?next=/admin/snippets/
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	user := currentUser(r)
	if user != nil && user.CanUseAdmin() {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}

	h.renderLogin(w, r, http.StatusOK, loginPage{
		pageMeta: pageMeta{Title: "Log in", User: user},
		Next:     next,
		NoAccess: user != nil,
	})
}

// HandleLogin checks the submitted credentials and starts a session.
//
// HTTP: POST /admin/login/ (form: username, password, next)
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	username := r.PostFormValue("username")
	next := safeNext(r.PostFormValue("next"))
	page := loginPage{
		pageMeta: pageMeta{Title: "Log in"},
		Next:     next,
		Username: username,
	}

	result, err := h.auth.Login(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			page.Error = "Please enter the correct username and password for a staff account."
			h.renderLogin(w, r, http.StatusOK, page)
			return
		}
		h.logger.Error("login failed", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if !result.User.CanUseAdmin() {
		page.Error = "Please enter the correct username and password for a staff account."
		h.renderLogin(w, r, http.StatusOK, page)
		return
	}

	http.SetCookie(w, auth.SessionCookie(result.Token, h.auth.SessionTTL(), r.TLS != nil))
	http.Redirect(w, r, next, http.StatusFound)
}

// HandleLogout ends the session. The JWT stays valid until it expires, but
// the browser no longer holds it.
//
// HTTP: POST /admin/logout/
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearSessionCookie())
	http.Redirect(w, r, LoginPath, http.StatusFound)
}

// HandleGitHubLogin redirects to GitHub's authorization page. The random
// state is kept in a short-lived cookie and checked on callback.
//
// HTTP: GET /admin/github/login/
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/admin/github/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow and starts a session.
// Accounts created here have no admin rights until a superuser grants them.
//
// HTTP: GET /admin/github/callback/?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/admin/github/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	result, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("github callback: sign-in failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, auth.SessionCookie(result.Token, h.auth.SessionTTL(), r.TLS != nil))

	target := ChangelistPath
	if !result.User.CanUseAdmin() {
		target = LoginPath
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleMe returns the signed-in user's profile.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, page loginPage) {
	page.GitHubEnabled = h.github != nil
	if err := h.pages.Render(w, status, web.PageLogin, page); err != nil {
		h.logger.Error("rendering login page",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
