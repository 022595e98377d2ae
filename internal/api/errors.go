package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/reactoryard/internal/errs"
)

// statusFor maps an error kind to an HTTP status.
var statusFor = map[string]int{
	"not_found":          http.StatusNotFound,
	"invalid_transition": http.StatusConflict,
	"conflict":           http.StatusConflict,
	"validation":         http.StatusUnprocessableEntity,
	"store":              http.StatusServiceUnavailable,
}

// writeError renders err as {"error", "kind"} with the mapped status.
func writeError(c *gin.Context, err error) {
	kind := errs.Kind(err)
	code, ok := statusFor[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	c.JSON(code, gin.H{"error": err.Error(), "kind": kind})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "bad_request"})
}

func invalidField(field string, err error) error {
	return errs.Invalid(field, "%v", err)
}
