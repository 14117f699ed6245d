package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/AdolfoEscobar473/hospital/internal/accounts"
	"github.com/AdolfoEscobar473/hospital/internal/audit"
	"github.com/AdolfoEscobar473/hospital/internal/auth"
	"github.com/AdolfoEscobar473/hospital/internal/rbac"
	"github.com/AdolfoEscobar473/hospital/internal/records"
	"github.com/AdolfoEscobar473/hospital/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Accounts *accounts.Service
	Policy   *rbac.PolicyTable
	Records  *records.Service
	Reports  *reporting.Service
	Audit    *audit.Service
}

func actorID(c *gin.Context) string {
	id, _ := auth.UserID(c.Request.Context())
	return id
}

func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type forgotPasswordRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

type userPayload struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type sessionResponse struct {
	AccessToken        string      `json:"accessToken"`
	RefreshToken       string      `json:"refreshToken"`
	AccessExpiresAt    time.Time   `json:"accessExpiresAt"`
	RefreshExpiresAt   time.Time   `json:"refreshExpiresAt"`
	MustChangePassword bool        `json:"mustChangePassword"`
	User               userPayload `json:"user"`
}

func sessionJSON(s accounts.Session) sessionResponse {
	return sessionResponse{
		AccessToken:        s.AccessToken,
		RefreshToken:       s.RefreshToken,
		AccessExpiresAt:    s.AccessExpiresAt,
		RefreshExpiresAt:   s.RefreshExpiresAt,
		MustChangePassword: s.MustChangePassword,
		User: userPayload{
			ID:       s.User.ID,
			Username: s.User.Username,
			Name:     s.User.Name,
			Email:    s.User.Email,
			Roles:    s.User.Roles,
		},
	}
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.Accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionJSON(sess))
}

func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.Accounts.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionJSON(sess))
}

// Logout always reports success, whatever the body holds.
func (h Handlers) Logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)
	h.Accounts.Logout(c.Request.Context(), req.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) Profile(c *gin.Context) {
	p, err := h.Accounts.Profile(c.Request.Context(), actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, err)
		return
	}
	if err := h.Accounts.ChangePassword(c.Request.Context(), actorID(c), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

const forgotPasswordMessage = "If the account exists, its owner will be notified."

func (h Handlers) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, err)
		return
	}
	temp, err := h.Accounts.ForgotPassword(c.Request.Context(), req.Identifier)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{"success": true, "message": forgotPasswordMessage}
	if temp != "" {
		body["tempPassword"] = temp
	}
	c.JSON(http.StatusOK, body)
}

// --- Users ---

type createUserRequest struct {
	Username string   `json:"username" binding:"required,max=150"`
	Name     string   `json:"name" binding:"max=200"`
	Email    string   `json:"email" binding:"omitempty,email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
	IsActive *bool    `json:"is_active"`
}

type updateUserRequest struct {
	Name     *string   `json:"name" binding:"omitempty,max=200"`
	Email    *string   `json:"email" binding:"omitempty,email"`
	IsActive *bool     `json:"is_active"`
	Roles    *[]string `json:"roles"`
	Password *string   `json:"password"`
}

type statusRequest struct {
	IsActive *bool `json:"is_active"`
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

func (h Handlers) ListUsers(c *gin.Context) {
	list, err := h.Accounts.ListAccounts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h Handlers) GetUser(c *gin.Context) {
	p, err := h.Accounts.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, err)
		return
	}
	p, temp, err := h.Accounts.CreateAccount(c.Request.Context(), actorID(c), accounts.CreateInput{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Roles:    req.Roles,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if temp != "" {
		c.JSON(http.StatusCreated, gin.H{"user": p, "tempPassword": temp})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": p})
}

func (h Handlers) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, err)
		return
	}
	p, err := h.Accounts.UpdateAccount(c.Request.Context(), actorID(c), c.Param("id"), accounts.UpdateInput{
		Name:     req.Name,
		Email:    req.Email,
		IsActive: req.IsActive,
		Roles:    req.Roles,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) DeleteUser(c *gin.Context) {
	if err := h.Accounts.DeleteAccount(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetUserStatus toggles is_active; a missing flag means activate.
func (h Handlers) SetUserStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, err)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	p, err := h.Accounts.SetStatus(c.Request.Context(), actorID(c), c.Param("id"), active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "is_active": p.IsActive})
}

func (h Handlers) ResetUser(c *gin.Context) {
	temp, err := h.Accounts.ResetPassword(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tempPassword": temp})
}

func (h Handlers) ResetUserPassword(c *gin.Context) {
	var req setPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, err)
		return
	}
	if err := h.Accounts.SetPassword(c.Request.Context(), actorID(c), c.Param("id"), req.Password); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- Roles & permissions ---

func (h Handlers) ListRoles(c *gin.Context) {
	c.JSON(http.StatusOK, rbac.Catalog)
}

func (h Handlers) GetPermissions(c *gin.Context) {
	perms, version, err := h.Policy.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version, "permissions": perms})
}

type savePermissionsRequest struct {
	Permissions []rbac.Permission `json:"permissions" binding:"required,min=1"`
}

func (h Handlers) SavePermissions(c *gin.Context) {
	var req savePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, err)
		return
	}
	version, err := h.Policy.Save(c.Request.Context(), req.Permissions)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Audit != nil {
		if err := h.Audit.Append(c.Request.Context(), audit.Event{
			Type:        audit.EventPermissionsUpdated,
			ActorUserID: actorID(c),
			EntityType:  "role_permissions",
		}); err != nil {
			_ = c.Error(err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"saved": len(req.Permissions), "version": version})
}
