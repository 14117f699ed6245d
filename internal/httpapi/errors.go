package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AdolfoEscobar473/hospital/internal/accounts"
	"github.com/AdolfoEscobar473/hospital/internal/auth"
	"github.com/AdolfoEscobar473/hospital/internal/rbac"
	"github.com/AdolfoEscobar473/hospital/internal/records"
	"github.com/AdolfoEscobar473/hospital/internal/reporting"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// statusFor maps a domain error to an HTTP status and a client-safe message.
// ok is false for errors that must not be echoed.
func statusFor(err error) (code int, msg string, ok bool) {
	var (
		verrs  validator.ValidationErrors
		syntax *json.SyntaxError
		typ    *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, "validation failed: " + verrs.Error(), true
	case errors.Is(err, io.EOF):
		return http.StatusBadRequest, "body not found", true
	case errors.As(err, &syntax), errors.As(err, &typ):
		return http.StatusBadRequest, "invalid json", true

	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, auth.ErrUnauthenticated.Error(), true
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, auth.ErrInvalidToken.Error(), true
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized, accounts.ErrInvalidCredentials.Error(), true

	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden, rbac.ErrForbidden.Error(), true
	case errors.Is(err, accounts.ErrAccountInactive):
		return http.StatusForbidden, accounts.ErrAccountInactive.Error(), true

	case errors.Is(err, accounts.ErrWrongCurrentPassword):
		return http.StatusBadRequest, accounts.ErrWrongCurrentPassword.Error(), true
	case errors.Is(err, accounts.ErrValidation),
		errors.Is(err, records.ErrValidation),
		errors.Is(err, rbac.ErrInvalidPermission),
		errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error(), true

	case errors.Is(err, accounts.ErrNotFound),
		errors.Is(err, records.ErrNotFound),
		errors.Is(err, records.ErrUnknownModule):
		return http.StatusNotFound, "not found", true
	case errors.Is(err, accounts.ErrConflict):
		return http.StatusConflict, accounts.ErrConflict.Error(), true
	case errors.Is(err, accounts.ErrTooManyAttempts):
		return http.StatusTooManyRequests, accounts.ErrTooManyAttempts.Error(), true
	}
	return http.StatusInternalServerError, "internal error", false
}

// writeError aborts c with {"error": msg}. Unexpected errors are attached to
// the gin context, so the request logger records the detail, and reported to
// the client as a bare 500.
func writeError(c *gin.Context, err error) {
	code, msg, ok := statusFor(err)
	if !ok {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
