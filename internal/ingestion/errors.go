package ingestion

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiError is the ingestion surface's three-member error taxonomy (spec.md
// §4.1): every endpoint fails with one of AuthFailure, ValidationFailure, or
// ConflictFailure, mirrored here the way the teacher's internal/auth.Error
// pairs a machine-readable code with an operator-facing message.
type apiError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	status  int
}

func authFailure(msg string) apiError {
	return apiError{Code: "AuthFailure", Message: msg, status: http.StatusUnauthorized}
}

func validationFailure(msg string) apiError {
	return apiError{Code: "ValidationFailure", Message: msg, status: http.StatusBadRequest}
}

func conflictFailure(msg string) apiError {
	return apiError{Code: "ConflictFailure", Message: msg, status: http.StatusConflict}
}

func abort(c *gin.Context, e apiError) {
	c.AbortWithStatusJSON(e.status, e)
}
