package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RecoveryMiddleware catches panics, logs them, and renders the error page.
// Outside production the panic detail is included in the response for
// debugging; in production only a generic message is shown.
func RecoveryMiddleware(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Str("path", c.Request.URL.Path).
					Msg("Unhandled error")

				detail := ""
				if !production {
					detail = fmt.Sprintf("%v", r)
				}
				c.HTML(http.StatusInternalServerError, "error.html", gin.H{
					"message": "Something went wrong!",
					"error":   detail,
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
