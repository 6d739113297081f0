package handler

import (
	"errors"
	"net/http"
	"strconv"

	"mindspace/backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

// abortWithError writes the error body. Outside production the wrapped error
// chain is included as "stack".
func (h *Handler) abortWithError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		if h.cfg.IsProduction() {
			msg = "internal server error"
		}
	}

	body := gin.H{"error": msg}
	if !h.cfg.IsProduction() {
		body["stack"] = errorChain(err)
	}
	c.AbortWithStatusJSON(status, body)
}

// errorChain flattens err and everything it wraps, depth first.
func errorChain(err error) []string {
	var chain []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		chain = append(chain, e.Error())
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		default:
			walk(errors.Unwrap(e))
		}
	}
	walk(err)
	return chain
}

func uintParam(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.Invalid("%s must be a positive integer", name)
	}
	return uint(v), nil
}
