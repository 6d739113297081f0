package handler

import (
	"mindspace/backend/internal/auth"
	"mindspace/backend/internal/models"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// RequireAuth resolves the bearer credential into an identity or aborts with 401.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := h.authenticate(c)
		if err != nil {
			h.abortWithError(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func (h *Handler) authenticate(c *gin.Context) (models.Identity, error) {
	token, err := auth.ExtractToken(c.Request)
	if err != nil {
		return models.Identity{}, err
	}
	return h.Verifier.Verify(c.Request.Context(), token)
}

// currentUser returns the identity stored by RequireAuth.
func currentUser(c *gin.Context) models.Identity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(models.Identity)
	return identity
}
