package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/anthem-ai/internal/auth"
	"github.com/suPer8Hu/anthem-ai/internal/common"
)

const OwnerIDKey = "owner_id"

// AuthRequired accepts "Authorization: Bearer <jwt>" signed with secret and
// stores the token subject as the owner id.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			common.Abort(c, http.StatusUnauthorized, 40101, "missing authorization")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			common.Abort(c, http.StatusUnauthorized, 40101, "invalid authorization")
			return
		}
		owner, err := auth.ParseJWT(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			common.Abort(c, http.StatusUnauthorized, 40102, "invalid token")
			return
		}
		c.Set(OwnerIDKey, owner)
		c.Next()
	}
}

// FixedOwner attributes every request to one owner. Local development only.
func FixedOwner(owner string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(OwnerIDKey, owner)
		c.Next()
	}
}

func OwnerIDFromContext(c *gin.Context) (string, bool) {
	v := c.GetString(OwnerIDKey)
	return v, v != ""
}
