package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookiePolicy controls the attributes of the session cookies. Both cookies
// are HttpOnly, SameSite=Lax and scoped to "/".
type CookiePolicy struct {
	Secure bool
}

func (p CookiePolicy) set(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", p.Secure, true)
}

// SetSession 写入 access/refresh 两个会话 cookie，有效期与 token 一致。
func (p CookiePolicy) SetSession(c *gin.Context, access, refresh string, accessTTL, refreshTTL time.Duration) {
	p.set(c, AccessCookie, access, int(accessTTL.Seconds()))
	p.set(c, RefreshCookie, refresh, int(refreshTTL.Seconds()))
}

// ClearSession expires both session cookies.
func (p CookiePolicy) ClearSession(c *gin.Context) {
	p.set(c, AccessCookie, "", -1)
	p.set(c, RefreshCookie, "", -1)
}
