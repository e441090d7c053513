package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/services"
)

const refreshCookieName = "refreshToken"

type AuthAPI interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// CookieConfig controls the httpOnly refresh token cookie.
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge int // seconds
}

type AuthController struct {
	svc    AuthAPI
	cookie CookieConfig
}

func NewAuthController(svc AuthAPI, cookie CookieConfig) *AuthController {
	return &AuthController{svc: svc, cookie: cookie}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (ac *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	user, err := ac.svc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := ac.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	ac.setRefreshCookie(c, res.Tokens.RefreshToken, ac.cookie.MaxAge)
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  res.Tokens.AccessToken,
		"refreshToken": res.Tokens.RefreshToken,
		"user":         res.User,
	})
}

// RefreshToken accepts the refresh token from the JSON body or the cookie.
func (ac *AuthController) RefreshToken(c *gin.Context) {
	token := ac.presentedRefreshToken(c)
	pair, err := ac.svc.Refresh(c.Request.Context(), token)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	resp := gin.H{"accessToken": pair.AccessToken}
	if pair.RefreshToken != "" {
		ac.setRefreshCookie(c, pair.RefreshToken, ac.cookie.MaxAge)
		resp["refreshToken"] = pair.RefreshToken
	}
	c.JSON(http.StatusOK, resp)
}

func (ac *AuthController) Logout(c *gin.Context) {
	if err := ac.svc.Logout(c.Request.Context(), ac.presentedRefreshToken(c)); err != nil {
		apperrors.Respond(c, err)
		return
	}
	ac.setRefreshCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (ac *AuthController) presentedRefreshToken(c *gin.Context) string {
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie
}

func (ac *AuthController) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, value, maxAge, "/api/auth", ac.cookie.Domain, ac.cookie.Secure, true)
}
