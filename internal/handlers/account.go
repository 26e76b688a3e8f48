package handlers

import (
	"errors"
	"net/http"

	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/services"

	"github.com/gin-gonic/gin"
)

// AccountHandler serves the signed-in user's own profile, sessions and API keys.
type AccountHandler struct {
	userService          *services.UserService
	authorizationService *services.AuthorizationService
	refreshService       *services.RefreshService
	flowService          *services.FlowService
	appService           *services.AppService
}

func NewAccountHandler(
	us *services.UserService,
	as *services.AuthorizationService,
	rs *services.RefreshService,
	fs *services.FlowService,
	apps *services.AppService,
) *AccountHandler {
	return &AccountHandler{
		userService:          us,
		authorizationService: as,
		refreshService:       rs,
		flowService:          fs,
		appService:           apps,
	}
}

// ProfileResponse is a user with the grants their groups add.
type ProfileResponse struct {
	*models.User
	EffectiveGrants []string       `json:"effective_grants"`
	Groups          []models.Group `json:"groups"`
}

// Me godoc
//
//	@Summary		Current user
//	@Description	Profile of the authenticated user with effective grants and groups
//	@Tags			Account
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	ProfileResponse
//	@Failure		401	{object}	object{error=string,error_description=string}
//	@Router			/api/me [get]
func (h *AccountHandler) Me(c *gin.Context) {
	user, ok := currentUser(c, h.userService)
	if !ok {
		return
	}

	grants, groups, err := h.authorizationService.Resolve(c.Request.Context(), user)
	if err != nil {
		respondInternalError(c, "Failed to resolve grants", err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}

	c.JSON(http.StatusOK, ProfileResponse{
		User:            user,
		EffectiveGrants: grants.Slice(),
		Groups:          groups,
	})
}

// Sessions godoc
//
//	@Summary		Active sessions
//	@Description	Live refresh tokens of the authenticated user, API keys included
//	@Tags			Account
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	object{sessions=[]models.RefreshRecord}
//	@Router			/api/me/sessions [get]
func (h *AccountHandler) Sessions(c *gin.Context) {
	principal := models.GetUserFromContext(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	records, err := h.refreshService.ListActiveForUser(c.Request.Context(), principal.UserID)
	if err != nil {
		respondInternalError(c, "Failed to list sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

// Apps lists the apps the authenticated user registered.
func (h *AccountHandler) Apps(c *gin.Context) {
	principal := models.GetUserFromContext(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	apps, err := h.appService.ListAppsByOwner(c.Request.Context(), principal.UserID)
	if err != nil {
		respondInternalError(c, "Failed to list apps", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apps": apps})
}

// IssueAPIKey godoc
//
//	@Summary		Create an API key
//	@Description	Issue a long-lived token pair for an app that allows API access. API keys do not end other sessions.
//	@Tags			Account
//	@Security		BearerAuth
//	@Produce		json
//	@Param			app_id	path		string				true	"App ID"
//	@Success		201		{object}	services.TokenPair
//	@Failure		403		{object}	object{error=string,error_description=string}	"App does not allow API keys or is not visible"
//	@Failure		404		{object}	object{error=string,error_description=string}	"App not found"
//	@Router			/api/me/api-keys/{app_id} [post]
func (h *AccountHandler) IssueAPIKey(c *gin.Context) {
	user, ok := currentUser(c, h.userService)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	app, err := h.appService.GetApp(ctx, c.Param("app_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	pair, err := h.flowService.IssueAPIKey(ctx, user, app)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pair)
}

// currentUser loads the stored user behind the bearer principal. It writes
// the error response itself.
func currentUser(c *gin.Context, users *services.UserService) (*models.User, bool) {
	principal := models.GetUserFromContext(c)
	if principal == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	user, err := users.GetUser(c.Request.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthorized",
				"error_description": "User no longer exists",
			})
			return nil, false
		}
		respondInternalError(c, "Failed to load user", err)
		return nil, false
	}
	return user, true
}
