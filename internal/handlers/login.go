package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/simonsobs/soauth/internal/config"
	"github.com/simonsobs/soauth/internal/middleware"
	"github.com/simonsobs/soauth/internal/services"

	"github.com/gin-gonic/gin"
)

// LoginHandler serves the browser handshake: /login sends the user to the
// identity provider, /callback receives them back and forwards them to the app.
type LoginHandler struct {
	loginService *services.LoginService
	flowService  *services.FlowService
	appService   *services.AppService
	config       *config.Config
}

func NewLoginHandler(
	ls *services.LoginService,
	fs *services.FlowService,
	as *services.AppService,
	cfg *config.Config,
) *LoginHandler {
	return &LoginHandler{
		loginService: ls,
		flowService:  fs,
		appService:   as,
		config:       cfg,
	}
}

// Login godoc
//
//	@Summary		Start a login
//	@Description	Redirects the browser to the identity provider. After login the user lands on the app domain, the path given in next, or the Referer.
//	@Tags			Login
//	@Param			app_id	path	string	true	"App ID"
//	@Param			next	query	string	false	"Path on the app domain to land on after login"
//	@Success		302
//	@Failure		404	{object}	object{error=string,error_description=string}	"App not found"
//	@Router			/login/{app_id} [get]
func (h *LoginHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.appService.GetApp(ctx, c.Param("app_id"))
	if err != nil {
		if errors.Is(err, services.ErrAppNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "not_found",
				"error_description": "App " + c.Param("app_id") + " not found",
			})
			return
		}
		respondInternalError(c, "Failed to load app", err)
		return
	}

	req, err := h.loginService.Start(ctx, app, c.Query("next"), c.Request.Referer())
	if err != nil {
		respondInternalError(c, "Failed to start login", err)
		return
	}
	if err := middleware.BindLoginRequest(c, req.ID); err != nil {
		respondInternalError(c, "Failed to save session", err)
		return
	}

	target, err := h.loginService.ProviderRedirect(ctx, req)
	if err != nil {
		respondInternalError(c, "Failed to build provider redirect", err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// Callback godoc
//
//	@Summary		Identity provider callback
//	@Description	Completes the provider login and redirects to the app's redirect URL with a one-time code. Called by the provider, not by apps.
//	@Tags			Login
//	@Param			code	query	string	true	"Provider code"
//	@Param			state	query	string	true	"Login request ID"
//	@Success		302
//	@Failure		401	{object}	object{error=string,error_description=string}	"Authentication failed"
//	@Router			/callback [get]
func (h *LoginHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	state := c.Query("state")

	if !middleware.ConsumeLoginState(c, state) {
		log.Printf("[Login] Callback state %q does not match the session", state)
		authenticationFailed(c)
		return
	}

	req, err := h.loginService.Resume(ctx, state)
	if err != nil {
		if !errors.Is(err, services.ErrStaleRequest) {
			log.Printf("[Login] Failed to resume request %s: %v", state, err)
		}
		authenticationFailed(c)
		return
	}

	if _, err := h.loginService.Authenticate(ctx, req, c.Query("code")); err != nil {
		authenticationFailed(c)
		return
	}

	app, err := h.appService.GetApp(ctx, req.AppID)
	if err != nil {
		authenticationFailed(c)
		return
	}
	c.Redirect(http.StatusFound, h.loginService.CallbackURL(app, req))
}

// CallbackSelf finishes logins into the management app. Tokens are stored as
// cookies and the browser is sent on to where the login started.
func (h *LoginHandler) CallbackSelf(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.appService.ManagementApp(ctx)
	if err != nil {
		respondInternalError(c, "Failed to load management app", err)
		return
	}

	pair, redirect, err := h.flowService.ExchangeOwnCode(ctx, app, c.Query("code"))
	if err != nil {
		if !isLoginClientError(err) {
			log.Printf("[Login] Self exchange failed: %v", err)
		}
		authenticationFailed(c)
		return
	}

	h.setTokenCookies(c, pair)
	c.Redirect(http.StatusFound, redirect)
}

func (h *LoginHandler) setTokenCookies(c *gin.Context, pair *services.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		middleware.AccessTokenCookie,
		pair.AccessToken,
		cookieMaxAge(pair.AccessTokenExpires),
		"/",
		"",
		h.config.IsProduction,
		true,
	)
	c.SetCookie(
		middleware.RefreshTokenCookie,
		pair.RefreshToken,
		cookieMaxAge(pair.RefreshTokenExpires),
		"/",
		"",
		h.config.IsProduction,
		true,
	)
}

func cookieMaxAge(expires time.Time) int {
	return max(int(time.Until(expires).Seconds()), 1)
}

// CodeResponse is a token pair plus where the app should send the browser.
type CodeResponse struct {
	*services.TokenPair
	Redirect string `json:"redirect"`
}

// Code godoc
//
//	@Summary		Exchange a login code
//	@Description	Exchange the one-time code an app received at its redirect URL, plus the app's client secret, for a token pair.
//	@Tags			Login
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			app_id	path		string			true	"App ID"
//	@Param			code	formData	string			true	"One-time code"
//	@Param			secret	formData	string			true	"Client secret"
//	@Success		200		{object}	CodeResponse	"Tokens issued"
//	@Failure		401		{object}	object{error=string,error_description=string}	"Authentication failed"
//	@Router			/code/{app_id} [post]
func (h *LoginHandler) Code(c *gin.Context) {
	code := formOrQuery(c, "code")
	secret := formOrQuery(c, "secret")
	if code == "" || secret == "" {
		authenticationFailed(c)
		return
	}

	pair, redirect, err := h.flowService.ExchangeCode(
		c.Request.Context(),
		c.Param("app_id"),
		code,
		secret,
	)
	if err != nil {
		if !isLoginClientError(err) {
			log.Printf("[Login] Code exchange for app %s failed: %v", c.Param("app_id"), err)
		}
		authenticationFailed(c)
		return
	}

	c.JSON(http.StatusOK, CodeResponse{TokenPair: pair, Redirect: redirect})
}

func formOrQuery(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}

func isLoginClientError(err error) bool {
	return errors.Is(err, services.ErrStaleRequest) ||
		errors.Is(err, services.ErrRedirectInvalid) ||
		errors.Is(err, services.ErrAuthorization)
}

func authenticationFailed(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":             "unauthorized",
		"error_description": "Authentication failed",
	})
}
