package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/plantops/workflow-api/internal/middleware"
	"github.com/plantops/workflow-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// userFromContext rebuilds the acting user from token claims. The claims
// carry everything the services need, so no per-request database read.
func userFromContext(c *gin.Context) *models.User {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil
	}
	return &models.User{
		ID:          claims.UserID,
		Email:       claims.Email,
		FullName:    claims.FullName,
		Role:        claims.Role,
		CompanyName: claims.CompanyName,
		Active:      true,
	}
}
