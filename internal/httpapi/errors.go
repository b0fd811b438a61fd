package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-service/internal/errs"
)

// writeError renders err as the standard error body: {error, code,
// category, retry_after?, context?}.
func writeError(c *gin.Context, err error) {
	e, ok := err.(*errs.Error)
	if !ok {
		c.JSON(http.StatusInternalServerError, errs.ToResponse(errs.Internal("unhandled", err)))
		return
	}
	c.JSON(e.StatusCode(), errs.ToResponse(e))
}
