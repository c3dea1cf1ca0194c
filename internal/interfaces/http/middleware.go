package http

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// KeySet is an unordered set of accepted API keys. An empty set means auth
// is disabled (the debug default): every endpoint is open.
type KeySet map[string]struct{}

func NewKeySet(keys []string) KeySet {
	set := make(KeySet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// apiKeyAuth enforces the Bearer/X-API-Key rule against every /v1/* route
// except /v1/models, which stays open regardless of the key set.
func apiKeyAuth(keys KeySet) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}
		if !strings.HasPrefix(c.Request.URL.Path, "/v1/") || c.Request.URL.Path == "/v1/models" {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if _, ok := keys[key]; !ok {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{"message": "missing or invalid API key", "type": "unauthorized"}})
			return
		}
		c.Next()
	}
}
