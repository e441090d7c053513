package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/middleware"
)

// currentUser returns the authenticated user id or renders 401.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, err := middleware.GetUserID(c)
	if err != nil {
		apperrors.Respond(c, apperrors.ErrUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		apperrors.Respond(c, apperrors.ErrInvalidInput.WithMessage("invalid "+name))
		return 0, false
	}
	return uint(v), true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		apperrors.Respond(c, apperrors.ErrInvalidInput.WithMessage("invalid "+name))
		return uuid.Nil, false
	}
	return v, true
}

// parsePaginationParams reads page and limit; the services clamp them.
func parsePaginationParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	return page, limit
}

func bindError(c *gin.Context, err error) {
	apperrors.Respond(c, apperrors.ErrInvalidInput.Wrap(err).WithMessage("invalid payload"))
}
