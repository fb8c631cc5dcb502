package delivery

import (
	"errors"
	"net/http"
	"strings"

	authdomain "github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/auth/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

// AdminContextKey holds the *authdomain.Admin of an authenticated request
const AdminContextKey = "admin"

func AuthMiddleware(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		admin, err := authUsecase.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, authdomain.ErrNotAdmin) {
				c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			}
			c.Abort()
			return
		}

		c.Set(AdminContextKey, admin)
		c.Next()
	}
}
