package handlers

import (
	"errors"
	"net/http"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/verify"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the response envelope
const (
	CodeNotFound           = "NOT_FOUND"
	CodeAmbiguousMatch     = "AMBIGUOUS_MATCH"
	CodeValidationConflict = "VALIDATION_CONFLICT"
	CodeResourceExhausted  = "RESOURCE_EXHAUSTED"
	CodeTimeout            = "TIMEOUT"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnknownTool        = "UNKNOWN_TOOL"
	CodeInternal           = "INTERNAL"
)

// errorStatus maps a service error to an HTTP status and envelope code
func errorStatus(err error) (int, string) {
	var ambiguous *models.AmbiguousError
	switch {
	case errors.As(err, &ambiguous), errors.Is(err, models.ErrAmbiguousMatch):
		return http.StatusConflict, CodeAmbiguousMatch
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, models.ErrValidationConflict):
		return http.StatusConflict, CodeValidationConflict
	case errors.Is(err, models.ErrResourceExhausted):
		return http.StatusServiceUnavailable, CodeResourceExhausted
	case errors.Is(err, models.ErrTimeout):
		return http.StatusGatewayTimeout, CodeTimeout
	}
	return http.StatusInternalServerError, CodeInternal
}

func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	body := gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": err.Error(),
		},
	}
	var ambiguous *models.AmbiguousError
	if errors.As(err, &ambiguous) {
		body["data"] = gin.H{"candidates": ambiguous.Candidates}
	}
	c.JSON(status, body)
}

func respondInvalid(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    CodeInvalidRequest,
			"message": message,
		},
	})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondLookup answers a REST lookup. A miss keeps the result as data so
// callers still see the reason and any tied candidates.
func respondLookup(c *gin.Context, found bool, reason string, data interface{}) {
	if found {
		respondOK(c, http.StatusOK, data)
		return
	}

	status, code := http.StatusNotFound, CodeNotFound
	if reason == verify.ReasonAmbiguous {
		status, code = http.StatusConflict, CodeAmbiguousMatch
	}
	c.JSON(status, gin.H{
		"success": false,
		"data":    data,
		"error": gin.H{
			"code":    code,
			"message": reason,
		},
	})
}
