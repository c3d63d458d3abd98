package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rankhive/seofix_backend/config"
	"github.com/rankhive/seofix_backend/utils"
)

type sessionRecord struct {
	AccountId string `json:"account_id"`
	UserId    int    `json:"user_id"`
	UserName  string `json:"user_name"`
	Role      string `json:"role"`
}

// SessionMiddleware resolves an opaque dashboard session token from redis.
// Bearer JWTs take precedence; a request carrying both uses the JWT identity.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		if _, ok := utils.GetAccountIdFromContext(c.Request.Context()); ok {
			c.Next()
			return
		}

		var session sessionRecord
		exists, err := config.GetRedisObject("Session:"+token, &session)
		if err != nil || !exists || session.AccountId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetAccountIdInContext(ctx, session.AccountId)
		ctx = utils.SetUserIdInContext(ctx, session.UserId)
		ctx = utils.SetUserNameInContext(ctx, session.UserName)
		ctx = utils.SetIsAdminInContext(ctx, session.Role == "admin")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
