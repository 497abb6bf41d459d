package errutil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HTTPStatus converts the CoreStatus to its closest HTTP status code equivalent.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusInternal, StatusUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError normalises a domain error into a JSON error response so
// handlers can safely return it to the transport layer.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var base BaseError
	if errors.As(err, &base) {
		c.AbortWithStatusJSON(base.Code.HTTPStatus(), base.JSON())
		return
	}

	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		c.AbortWithStatusJSON(coder.Status().HTTPStatus(), gin.H{
			"error": gin.H{"code": coder.Status(), "message": err.Error()},
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": StatusInternal, "message": err.Error()},
	})
}
