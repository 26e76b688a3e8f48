package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/simonsobs/soauth/internal/services"
	"github.com/simonsobs/soauth/internal/store"

	"github.com/gin-gonic/gin"
)

// respondServiceError maps service sentinels onto JSON API responses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAppNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrGroupNotFound),
		errors.Is(err, store.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": err.Error(),
		})
	case errors.Is(err, services.ErrInvalidApp),
		errors.Is(err, services.ErrInvalidGroup):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
	case errors.Is(err, services.ErrAuthorization):
		c.JSON(http.StatusForbidden, gin.H{
			"error":             "forbidden",
			"error_description": err.Error(),
		})
	default:
		respondInternalError(c, "Internal server error", err)
	}
}

// respondInternalError logs err and answers 500 without leaking it.
func respondInternalError(c *gin.Context, description string, err error) {
	log.Printf("[Handler] %s %s: %s: %v", c.Request.Method, c.Request.URL.Path, description, err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":             "server_error",
		"error_description": description,
	})
}

func badRequest(c *gin.Context, description string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":             "invalid_request",
		"error_description": description,
	})
}
