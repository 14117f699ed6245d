package rbac

import (
	"context"
	"net/http"

	"github.com/AdolfoEscobar473/hospital/internal/auth"
	"github.com/AdolfoEscobar473/hospital/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ContextRolesKey holds the roles loaded for the current request.
const ContextRolesKey = "roles"

// LoadRoles resolves the caller's roles through provider.
// Roles are cached on the gin context for the lifetime of one request only.
func LoadRoles(c *gin.Context, provider RoleProvider) ([]string, error) {
	if v, ok := c.Get(ContextRolesKey); ok {
		if roles, ok := v.([]string); ok {
			return roles, nil
		}
	}
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		return nil, err
	}
	roles, err := provider.Roles(c.Request.Context(), uid)
	if err != nil {
		return nil, err
	}
	c.Set(ContextRolesKey, roles)
	c.Request = c.Request.WithContext(withRoles(c.Request.Context(), roles))
	return roles, nil
}

// RequireAnyRole allows access if the caller holds any of the provided roles.
// Roles are read from provider on every request, never from the token.
func RequireAnyRole(provider RoleProvider, allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, ok := loadOrAbort(c, provider)
		if !ok {
			return
		}
		if !Decide(roles, allowed...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

// RequireModule gates a contributor-tier module. Safe methods are open to any
// authenticated caller; writes are decided by the permission matrix.
func RequireModule(provider RoleProvider, table *PolicyTable, module string) gin.HandlerFunc {
	return func(c *gin.Context) {
		action, write := actionForMethod(c.Request.Method)
		if !write {
			c.Next()
			return
		}
		enforce(c, provider, table, module, action)
	}
}

// RequirePermission gates a route on one explicit matrix action.
func RequirePermission(provider RoleProvider, table *PolicyTable, module string, action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		enforce(c, provider, table, module, action)
	}
}

func enforce(c *gin.Context, provider RoleProvider, table *PolicyTable, module string, action Action) {
	roles, ok := loadOrAbort(c, provider)
	if !ok {
		return
	}
	allowed, err := table.Allowed(c.Request.Context(), roles, module, action)
	if err != nil {
		logger.FromGin(c).Error("policy lookup failed", "module", module, "action", string(action), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !allowed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrForbidden.Error()})
		return
	}
	c.Next()
}

func loadOrAbort(c *gin.Context, provider RoleProvider) ([]string, bool) {
	if _, err := auth.UserID(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
		return nil, false
	}
	roles, err := LoadRoles(c, provider)
	if err != nil {
		logger.FromGin(c).Error("role lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	return roles, true
}

func actionForMethod(method string) (Action, bool) {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRead, false
	case http.MethodDelete:
		return ActionDelete, true
	default:
		return ActionEdit, true
	}
}

type ctxKey struct{}

func withRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, ctxKey{}, roles)
}

// RolesFrom returns roles previously loaded by the gate for this request.
func RolesFrom(ctx context.Context) ([]string, bool) {
	roles, ok := ctx.Value(ctxKey{}).([]string)
	return roles, ok
}
