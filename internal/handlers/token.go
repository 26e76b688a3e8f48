package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/services"
	"github.com/simonsobs/soauth/internal/store"
	"github.com/simonsobs/soauth/internal/token"

	"github.com/gin-gonic/gin"
)

// RefreshTokenRequest is the body of /exchange and /expire.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenHandler struct {
	flowService    *services.FlowService
	refreshService *services.RefreshService
}

func NewTokenHandler(fs *services.FlowService, rs *services.RefreshService) *TokenHandler {
	return &TokenHandler{
		flowService:    fs,
		refreshService: rs,
	}
}

// Exchange godoc
//
//	@Summary		Refresh a session
//	@Description	Exchange a refresh token for a new access token and a new refresh token. The old refresh token stops working.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RefreshTokenRequest		true	"Refresh token"
//	@Success		200		{object}	services.TokenPair		"New token pair"
//	@Failure		400		{object}	object{error=string,error_description=string}	"Bad refresh token"
//	@Failure		401		{object}	object{error=string,error_description=string}	"Refresh token expired"
//	@Router			/exchange [post]
func (h *TokenHandler) Exchange(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "refresh_token is required",
		})
		return
	}

	pair, err := h.flowService.Secondary(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "expired_token",
				"error_description": "Refresh token expired",
			})
		case errors.Is(err, services.ErrAuthorization),
			errors.Is(err, token.ErrTokenInvalid),
			errors.Is(err, token.ErrMalformedToken):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_grant",
				"error_description": "Bad refresh token",
			})
		default:
			respondInternalError(c, "Failed to refresh token", err)
		}
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Expire godoc
//
//	@Summary		Log out
//	@Description	Revoke the session behind a refresh token. Always succeeds, whether or not the token could be decoded.
//	@Tags			Tokens
//	@Accept			json
//	@Param			body	body	RefreshTokenRequest	true	"Refresh token"
//	@Success		200
//	@Router			/expire [post]
func (h *TokenHandler) Expire(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		if err := h.flowService.Logout(c.Request.Context(), req.RefreshToken); err != nil &&
			!isClientTokenError(err) {
			log.Printf("[Token] Logout failed: %v", err)
		}
	}
	c.Status(http.StatusOK)
}

// ExpireByID godoc
//
//	@Summary		Revoke one of your sessions
//	@Description	Revoke a refresh token by id. Only the owner may revoke it.
//	@Tags			Tokens
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Refresh key ID"
//	@Success		200
//	@Failure		404	{object}	object{error=string,error_description=string}	"Key not found or not yours"
//	@Router			/expire/{id} [delete]
func (h *TokenHandler) ExpireByID(c *gin.Context) {
	user := models.GetUserFromContext(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	err := h.refreshService.RevokeOwned(c.Request.Context(), c.Param("id"), user.UserID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "not_found",
				"error_description": "Key not found",
			})
			return
		}
		respondInternalError(c, "Failed to revoke key", err)
		return
	}
	c.Status(http.StatusOK)
}

func isClientTokenError(err error) bool {
	return errors.Is(err, token.ErrTokenInvalid) ||
		errors.Is(err, token.ErrMalformedToken) ||
		errors.Is(err, token.ErrTokenExpired) ||
		errors.Is(err, services.ErrAuthorization)
}
