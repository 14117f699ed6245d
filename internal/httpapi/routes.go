package httpapi

import (
	"github.com/AdolfoEscobar473/hospital/internal/auth"
	"github.com/AdolfoEscobar473/hospital/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Deps carries what RegisterRoutes needs besides the handlers.
type Deps struct {
	Tokens *auth.Manager
	// Roles is consulted on every gated request.
	Roles rbac.RoleProvider
	// Limiter guards the public endpoints. Nil disables it.
	Limiter *IPRateLimiter
}

// publicCreateModules accept anonymous POSTs.
var publicCreateModules = map[string]bool{
	rbac.ModuleSupportTickets: true,
	rbac.ModuleClientLogs:     true,
}

// RegisterRoutes wires every /api route.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func RegisterRoutes(r gin.IRouter, h Handlers, d Deps) {
	public := []gin.HandlerFunc{RequestMeta()}
	if d.Limiter != nil {
		public = append(public, d.Limiter.Middleware())
	}
	authn := auth.RequireAccessToken(d.Tokens)

	api := r.Group("/api")
	api.GET("/health", h.Health)

	// AUTH
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", chain(public, h.Login)...)
		authGroup.POST("/refresh", chain(public, h.Refresh)...)
		authGroup.POST("/logout", chain(public, h.Logout)...)
		authGroup.POST("/forgot", chain(public, h.ForgotPassword)...)

		authGroup.GET("/profile", authn, h.Profile)
		authGroup.POST("/change-password", authn, RequestMeta(), h.ChangePassword)
	}

	protected := api.Group("")
	protected.Use(authn, RequestMeta())

	// USERS
	adminOrLeader := rbac.RequireAnyRole(d.Roles, rbac.RoleAdmin, rbac.RoleLeader)
	adminOnly := rbac.RequireAnyRole(d.Roles, rbac.RoleAdmin)
	users := protected.Group("/users")
	{
		users.GET("", adminOrLeader, h.ListUsers)
		users.POST("", adminOnly, h.CreateUser)
		users.GET("/:id", adminOrLeader, h.GetUser)
		users.PATCH("/:id", adminOrLeader, h.UpdateUser)
		users.PUT("/:id", adminOrLeader, h.UpdateUser)
		users.DELETE("/:id", adminOnly, h.DeleteUser)
		users.PATCH("/:id/status", adminOnly, h.SetUserStatus)
		users.POST("/:id/reset", adminOnly, h.ResetUser)
		users.POST("/:id/reset-password", adminOnly, h.ResetUserPassword)
	}

	// CONFIG
	protected.GET("/roles", h.ListRoles)
	protected.GET("/permissions", h.GetPermissions)
	protected.PUT("/permissions", adminOnly, h.SavePermissions)

	protected.GET("/dashboard/summary", h.DashboardSummary)

	// MODULES
	for _, m := range rbac.Modules {
		registerModule(api, h, d, m, public, authn)
	}
}

func registerModule(api *gin.RouterGroup, h Handlers, d Deps, module string, public []gin.HandlerFunc, authn gin.HandlerFunc) {
	rh := RecordHandlers{Module: module, H: h}
	gate := rbac.RequireModule(d.Roles, h.Policy, module)
	approve := rbac.RequirePermission(d.Roles, h.Policy, module, rbac.ActionApprove)
	g := api.Group("/" + module)

	if publicCreateModules[module] {
		g.POST("", chain(public, rh.Create)...)
	} else {
		g.POST("", authn, RequestMeta(), gate, rh.Create)
	}
	g.GET("", authn, rh.List)
	g.GET("/statistics", authn, rh.Statistics)
	g.GET("/:id", authn, rh.Get)
	g.PATCH("/:id", authn, RequestMeta(), gate, rh.Update)
	g.PUT("/:id", authn, RequestMeta(), gate, rh.Update)
	g.DELETE("/:id", authn, RequestMeta(), gate, rh.Delete)
	g.POST("/:id/approve", authn, RequestMeta(), approve, rh.Approve)
}

func chain(mw []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}
