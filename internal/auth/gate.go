package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"watchparty/internal/models"
	"watchparty/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	ctxUserKey = "user"
)

// Gate verifies access tokens and resolves them to stored users.
type Gate struct {
	issuer *Issuer
	users  store.Users
}

func NewGate(issuer *Issuer, users store.Users) *Gate {
	return &Gate{issuer: issuer, users: users}
}

// Authenticate has no side effects. Expired or foreign-signed tokens and
// tokens whose user no longer exists all yield ErrInvalidCredential.
func (g *Gate) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := g.issuer.ParseAccess(token)
	if err != nil {
		return nil, err
	}
	u, err := g.users.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrInvalidCredential)
		}
		return nil, err
	}
	return u, nil
}

// AccessTokenFromRequest reads the access cookie, falling back to a bearer header.
func AccessTokenFromRequest(r *http.Request) string {
	if ck, err := r.Cookie(AccessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Middleware 校验 access token 并把用户写入 gin 上下文。
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := g.Authenticate(c.Request.Context(), AccessTokenFromRequest(c.Request))
		if err != nil {
			msg := "Invalid Access Token"
			switch {
			case errors.Is(err, ErrMissingCredential):
				msg = "Unauthorized request"
			case !errors.Is(err, ErrInvalidCredential):
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"statusCode": http.StatusInternalServerError, "message": "internal error", "success": false,
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"statusCode": http.StatusUnauthorized, "message": msg, "success": false,
			})
			return
		}
		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by Middleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ctxUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
