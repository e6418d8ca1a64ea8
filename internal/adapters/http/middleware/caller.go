package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/platform/config"
)

// ContextKeyClaims is the gin context key for the extracted claims.
const ContextKeyClaims = "claims"

// Claims is the identity forwarded by the gateway, which has already
// authenticated the user.
type Claims struct {
	Subject string
	Roles   []string
}

// HasAnyRole reports whether the claims include one of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, func(r string) bool {
		return slices.Contains(c.Roles, r)
	})
}

// ExtractClaims reads the subject and comma-separated roles headers.
func ExtractClaims(c *gin.Context, cfg *config.AuthConfig) *Claims {
	claims := &Claims{Subject: strings.TrimSpace(c.GetHeader(cfg.SubjectHeader))}

	for _, role := range strings.Split(c.GetHeader(cfg.RolesHeader), ",") {
		if role = strings.TrimSpace(role); role != "" {
			claims.Roles = append(claims.Roles, role)
		}
	}

	return claims
}

// GetClaims returns the claims stored by CallerIdentity, or nil.
func GetClaims(c *gin.Context) *Claims {
	if v, ok := c.Get(ContextKeyClaims); ok {
		if claims, ok := v.(*Claims); ok {
			return claims
		}
	}

	return nil
}

// CallerIdentity resolves the domain caller from gateway headers and stores
// it in the request context. Anonymous requests pass through; the services
// decide which operations need a privileged caller.
func CallerIdentity(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ExtractClaims(c, cfg)
		c.Set(ContextKeyClaims, claims)

		if claims.Subject != "" {
			caller := domain.Caller{
				ID:         claims.Subject,
				Privileged: claims.HasAnyRole(cfg.PrivilegedRoles...),
			}
			c.Request = c.Request.WithContext(domain.WithCaller(c.Request.Context(), caller))
		}

		c.Next()
	}
}
