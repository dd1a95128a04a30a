package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/oss-hunter/internal/auth"
	"github.com/sakif/oss-hunter/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler runs the GitHub OAuth sign-in and the session cookie.
//
//   - HandleGitHubLogin    → redirect to GitHub's consent page
//   - HandleGitHubCallback → exchange the code, store the token, set the session
//   - HandleLogout         → clear the session cookie
//   - HandleMe             → the signed-in user's profile
type AuthHandler struct {
	github *auth.GitHubProvider
	auth   *service.AuthService
	secure bool // Secure flag on cookies; true behind HTTPS
	logger *slog.Logger
}

func NewAuthHandler(github *auth.GitHubProvider, authSvc *service.AuthService, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{github: github, auth: authSvc, secure: secureCookies, logger: logger}
}

// HandleGitHubLogin redirects to GitHub.
//
// HTTP: GET /auth/github/login
//
// The random state goes into a short-lived HttpOnly cookie and is checked on
// the callback, so a callback we did not start is refused.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes sign-in.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
//  1. Check the state cookie
//  2. Exchange the code for the profile and the access token
//  3. Upsert the user with the sealed token
//  4. Set the session cookie and redirect to the dashboard
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: invalid state")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, accessToken, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	result, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser, accessToken)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(auth.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so logging out only forgets the cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := h.auth.GetUserByID(r.Context(), uid)
	if err != nil {
		h.logger.Error("HandleMe: loading user", slog.String("userID", uid), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
