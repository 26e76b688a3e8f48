package handlers

import (
	"net/http"

	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the admin API for apps, groups and users. Every route
// sits behind RequireAuth and RequireAdmin.
type AdminHandler struct {
	appService           *services.AppService
	groupService         *services.GroupService
	userService          *services.UserService
	authorizationService *services.AuthorizationService
	refreshService       *services.RefreshService
}

func NewAdminHandler(
	apps *services.AppService,
	groups *services.GroupService,
	users *services.UserService,
	authz *services.AuthorizationService,
	refresh *services.RefreshService,
) *AdminHandler {
	return &AdminHandler{
		appService:           apps,
		groupService:         groups,
		userService:          users,
		authorizationService: authz,
		refreshService:       refresh,
	}
}

// GrantRequest is the body of POST /api/admin/users/:id/grants.
type GrantRequest struct {
	Grant string `json:"grant" binding:"required"`
}

// CreateApp godoc
//
//	@Summary		Register an app
//	@Description	Creates an app with a fresh key pair. The client secret is only returned here and on rotation.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		services.CreateAppRequest	true	"App registration"
//	@Success		201		{object}	services.AppResponse
//	@Failure		400		{object}	object{error=string,error_description=string}
//	@Router			/api/admin/apps [post]
func (h *AdminHandler) CreateApp(c *gin.Context) {
	owner, ok := currentUser(c, h.userService)
	if !ok {
		return
	}

	var req services.CreateAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name, domain and redirect_url are required")
		return
	}

	resp, err := h.appService.CreateApp(c.Request.Context(), owner, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *AdminHandler) ListApps(c *gin.Context) {
	apps, err := h.appService.ListApps(c.Request.Context())
	if err != nil {
		respondInternalError(c, "Failed to list apps", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apps": apps})
}

func (h *AdminHandler) GetApp(c *gin.Context) {
	app, err := h.appService.GetApp(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// DeleteApp removes an app with its sessions and pending logins.
func (h *AdminHandler) DeleteApp(c *gin.Context) {
	if err := h.appService.DeleteApp(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RotateKeys replaces the app key pair and revokes every token it signed.
func (h *AdminHandler) RotateKeys(c *gin.Context) {
	app, err := h.appService.RotateKeys(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *AdminHandler) RotateSecret(c *gin.Context) {
	resp, err := h.appService.RotateSecret(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AppSessions lists who is logged in to an app.
func (h *AdminHandler) AppSessions(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.appService.GetApp(ctx, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	records, err := h.refreshService.ListActiveForApp(ctx, app.ID)
	if err != nil {
		respondInternalError(c, "Failed to list sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

// CreateGroup godoc
//
//	@Summary		Create a group
//	@Description	Creates a group with a normalized unique name. The caller becomes its first member.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		services.CreateGroupRequest	true	"Group"
//	@Success		201		{object}	models.Group
//	@Failure		400		{object}	object{error=string,error_description=string}
//	@Router			/api/admin/groups [post]
func (h *AdminHandler) CreateGroup(c *gin.Context) {
	creator, ok := currentUser(c, h.userService)
	if !ok {
		return
	}

	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "group_name is required")
		return
	}

	group, err := h.groupService.CreateGroup(c.Request.Context(), creator, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *AdminHandler) ListGroups(c *gin.Context) {
	groups, err := h.groupService.ListGroups(c.Request.Context())
	if err != nil {
		respondInternalError(c, "Failed to list groups", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup returns a group with its members.
func (h *AdminHandler) GetGroup(c *gin.Context) {
	ctx := c.Request.Context()
	group, err := h.groupService.GetGroup(ctx, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	members, err := h.groupService.ListMembers(ctx, group.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "members": members})
}

// GroupGrantsRequest replaces the grants of a group.
type GroupGrantsRequest struct {
	Grants []string `json:"grants"`
}

// SetGroupGrants replaces the grants a group hands to its members.
func (h *AdminHandler) SetGroupGrants(c *gin.Context) {
	var req GroupGrantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	group, err := h.groupService.SetGrants(c.Request.Context(), c.Param("id"), req.Grants)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *AdminHandler) DeleteGroup(c *gin.Context) {
	if err := h.groupService.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) AddGroupMember(c *gin.Context) {
	err := h.groupService.AddMember(c.Request.Context(), c.Param("id"), c.Param("user_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) RemoveGroupMember(c *gin.Context) {
	err := h.groupService.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("user_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context())
	if err != nil {
		respondInternalError(c, "Failed to list users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUser returns a user with the grants their groups add.
func (h *AdminHandler) GetUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.userService.GetUser(ctx, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	grants, groups, err := h.authorizationService.Resolve(ctx, user)
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

func (h *AdminHandler) UserSessions(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.userService.GetUser(ctx, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	records, err := h.refreshService.ListActiveForUser(ctx, user.ID)
	if err != nil {
		respondInternalError(c, "Failed to list sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": records})
}

// AddGrant godoc
//
//	@Summary		Grant a user
//	@Description	Adds a direct grant. Takes effect at the user's next token refresh.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"User ID"
//	@Param			body	body		GrantRequest	true	"Grant"
//	@Success		200		{object}	object{changed=bool,grant=string}
//	@Failure		404		{object}	object{error=string,error_description=string}
//	@Router			/api/admin/users/{id}/grants [post]
func (h *AdminHandler) AddGrant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil || models.NormalizeGrant(req.Grant) == "" {
		badRequest(c, "grant is required")
		return
	}
	h.changeGrant(c, req.Grant, true)
}

func (h *AdminHandler) RemoveGrant(c *gin.Context) {
	grant := c.Param("grant")
	if models.NormalizeGrant(grant) == "" {
		badRequest(c, "grant is required")
		return
	}
	h.changeGrant(c, grant, false)
}

func (h *AdminHandler) changeGrant(c *gin.Context, grant string, add bool) {
	ctx := c.Request.Context()
	userID := c.Param("id")

	var (
		changed bool
		err     error
	)
	if add {
		changed, err = h.authorizationService.AddGrant(ctx, userID, grant)
	} else {
		changed, err = h.authorizationService.RemoveGrant(ctx, userID, grant)
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"changed": changed,
		"grant":   models.NormalizeGrant(grant),
	})
}
